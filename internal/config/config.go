// Package config provides configuration loading, validation, and default
// values for the bot. Values come from defaults, an optional YAML file, and
// BOT_* environment variables, in increasing order of precedence.
package config

import (
	"time"

	"github.com/edgard/slackai/internal/conversation"
)

// Config is the complete application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger"`
	Server   ServerConfig   `mapstructure:"server"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	History  HistoryConfig  `mapstructure:"history"`
	Window   WindowConfig   `mapstructure:"window"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Messages MessagesConfig `mapstructure:"messages"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// ServerConfig configures the HTTP ingress.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
}

// SlackConfig holds Slack credentials and ingress routing settings.
type SlackConfig struct {
	BotToken                string        `mapstructure:"bot_token"                 validate:"required"`
	SigningSecret           string        `mapstructure:"signing_secret"            validate:"required"`
	SkipVerification        bool          `mapstructure:"skip_verification"`
	SummarizeCommand        string        `mapstructure:"summarize_command"         validate:"required,startswith=/"`
	SummarizeThreadCallback string        `mapstructure:"summarize_thread_callback" validate:"required"`
	GreetingPattern         string        `mapstructure:"greeting_pattern"          validate:"required"`
	MaxAttachmentBytes      int64         `mapstructure:"max_attachment_bytes"      validate:"min=1"`
	AttachmentTimeout       time.Duration `mapstructure:"attachment_timeout"        validate:"min=1s"`
	IdentityTTL             time.Duration `mapstructure:"identity_ttl"              validate:"min=1m"`
}

// GeminiConfig configures the generation backend. An APIKey selects the
// Gemini API; otherwise Project and Location address Vertex AI.
type GeminiConfig struct {
	APIKey            string             `mapstructure:"api_key"`
	Project           string             `mapstructure:"project"             validate:"required_without=APIKey"`
	Location          string             `mapstructure:"location"`
	ModelName         string             `mapstructure:"model_name"          validate:"required"`
	SystemInstruction string             `mapstructure:"system_instruction"`
	MaxRetries        int                `mapstructure:"max_retries"         validate:"min=0,max=5"`
	RetryDelaySeconds int                `mapstructure:"retry_delay_seconds" validate:"min=0"`
	Reply             GenerationSettings `mapstructure:"reply"`
	Lookback          GenerationSettings `mapstructure:"lookback"`
}

// GenerationSettings are per-call sampling parameters.
type GenerationSettings struct {
	Temperature float32 `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxTokens   int32   `mapstructure:"max_tokens"  validate:"min=0"`
	TopP        float32 `mapstructure:"top_p"       validate:"min=0,max=1"`
	TopK        float32 `mapstructure:"top_k"       validate:"min=0"`
}

// Generation converts the settings into a per-call config.
func (s GenerationSettings) Generation() conversation.GenerationConfig {
	return conversation.GenerationConfig{
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
		TopP:        s.TopP,
		TopK:        s.TopK,
	}
}

// HistoryConfig bounds history pagination.
type HistoryConfig struct {
	MaxPages     int           `mapstructure:"max_pages"     validate:"min=1,max=1000"`
	PageSize     int           `mapstructure:"page_size"     validate:"min=1,max=1000"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"min=1s"`
}

// WindowConfig bounds the channel summarization lookback.
type WindowConfig struct {
	MaxHours float64 `mapstructure:"max_hours" validate:"min=0"`
}

// DispatchConfig sizes the in-process event queue.
type DispatchConfig struct {
	Workers      int           `mapstructure:"workers"       validate:"min=1,max=64"`
	QueueSize    int           `mapstructure:"queue_size"    validate:"min=1"`
	EventTimeout time.Duration `mapstructure:"event_timeout" validate:"min=1s"`
}

// MessagesConfig holds user-facing texts and prompts.
type MessagesConfig struct {
	UnableToRespond    string `mapstructure:"unable_to_respond"    validate:"required"`
	NoAccess           string `mapstructure:"no_access"            validate:"required"`
	GreetingPrompt     string `mapstructure:"greeting_prompt"      validate:"required"`
	SummarizeThread    string `mapstructure:"summarize_thread"     validate:"required"`
	SummarizeChannel   string `mapstructure:"summarize_channel"    validate:"required"`
	NothingToSummarize string `mapstructure:"nothing_to_summarize" validate:"required"`
	SlashAck           string `mapstructure:"slash_ack"`
}
