package config

import "time"

// Default values for configuration.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = true

	DefaultServerAddr            = ":8080"
	DefaultServerReadTimeout     = 10 * time.Second
	DefaultServerWriteTimeout    = 30 * time.Second
	DefaultServerShutdownTimeout = 15 * time.Second

	DefaultSummarizeCommand        = "/summarize"
	DefaultSummarizeThreadCallback = "summarize_thread"
	DefaultGreetingPattern         = `(?i)hello ai|howdy ai|<!here>|hey ai`
	DefaultMaxAttachmentBytes      = 10 * 1024 * 1024
	DefaultAttachmentTimeout       = 30 * time.Second
	DefaultIdentityTTL             = time.Hour

	DefaultGeminiLocation  = "us-central1"
	DefaultGeminiModelName = "gemini-2.0-flash"

	DefaultHistoryMaxPages     = 50
	DefaultHistoryPageSize     = 200
	DefaultHistoryFetchTimeout = 30 * time.Second

	DefaultWindowMaxHours = 720.0

	DefaultDispatchWorkers      = 4
	DefaultDispatchQueueSize    = 256
	DefaultDispatchEventTimeout = 3 * time.Minute
)

// DefaultReply tunes conversational answers and summaries.
var DefaultReply = GenerationSettings{Temperature: 0.2, MaxTokens: 1024, TopP: 0.8, TopK: 40}

// DefaultLookback keeps the numeric lookback extraction short and stable.
var DefaultLookback = GenerationSettings{Temperature: 0, MaxTokens: 8, TopP: 0.8, TopK: 40}

// DefaultMessages are the user-facing texts.
var DefaultMessages = MessagesConfig{
	UnableToRespond:    "Sorry, I was unable to respond to that. Please try again later.",
	NoAccess:           "I don't have access to that channel. Invite me to it and try again.",
	GreetingPrompt:     "Generate a friendly welcome message",
	SummarizeThread:    "Summarize the conversation above as a short list of key points, decisions and open questions.",
	SummarizeChannel:   "Summarize the channel conversation above as a short list of key points, decisions and open questions.",
	NothingToSummarize: "There is nothing to summarize in that window.",
	SlashAck:           "On it.",
}

// defaults maps viper keys to their default values. Every key is listed so
// environment overrides reach Unmarshal even without a config file.
var defaults = map[string]any{
	"logger.level": DefaultLogLevel,
	"logger.json":  DefaultLogJSON,

	"server.addr":             DefaultServerAddr,
	"server.read_timeout":     DefaultServerReadTimeout,
	"server.write_timeout":    DefaultServerWriteTimeout,
	"server.shutdown_timeout": DefaultServerShutdownTimeout,

	"slack.bot_token":                 "",
	"slack.signing_secret":            "",
	"slack.skip_verification":         false,
	"slack.summarize_command":         DefaultSummarizeCommand,
	"slack.summarize_thread_callback": DefaultSummarizeThreadCallback,
	"slack.greeting_pattern":          DefaultGreetingPattern,
	"slack.max_attachment_bytes":      DefaultMaxAttachmentBytes,
	"slack.attachment_timeout":        DefaultAttachmentTimeout,
	"slack.identity_ttl":              DefaultIdentityTTL,

	"gemini.api_key":              "",
	"gemini.project":              "",
	"gemini.location":             DefaultGeminiLocation,
	"gemini.model_name":           DefaultGeminiModelName,
	"gemini.system_instruction":   "",
	"gemini.max_retries":          0,
	"gemini.retry_delay_seconds":  2,
	"gemini.reply.temperature":    DefaultReply.Temperature,
	"gemini.reply.max_tokens":     DefaultReply.MaxTokens,
	"gemini.reply.top_p":          DefaultReply.TopP,
	"gemini.reply.top_k":          DefaultReply.TopK,
	"gemini.lookback.temperature": DefaultLookback.Temperature,
	"gemini.lookback.max_tokens":  DefaultLookback.MaxTokens,
	"gemini.lookback.top_p":       DefaultLookback.TopP,
	"gemini.lookback.top_k":       DefaultLookback.TopK,

	"history.max_pages":     DefaultHistoryMaxPages,
	"history.page_size":     DefaultHistoryPageSize,
	"history.fetch_timeout": DefaultHistoryFetchTimeout,

	"window.max_hours": DefaultWindowMaxHours,

	"dispatch.workers":       DefaultDispatchWorkers,
	"dispatch.queue_size":    DefaultDispatchQueueSize,
	"dispatch.event_timeout": DefaultDispatchEventTimeout,

	"messages.unable_to_respond":    DefaultMessages.UnableToRespond,
	"messages.no_access":            DefaultMessages.NoAccess,
	"messages.greeting_prompt":      DefaultMessages.GreetingPrompt,
	"messages.summarize_thread":     DefaultMessages.SummarizeThread,
	"messages.summarize_channel":    DefaultMessages.SummarizeChannel,
	"messages.nothing_to_summarize": DefaultMessages.NothingToSummarize,
	"messages.slash_ack":            DefaultMessages.SlashAck,
}
