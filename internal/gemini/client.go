// Package gemini implements integration with Google's Gemini models through
// Vertex AI or the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/slackai/internal/config"
	"github.com/edgard/slackai/internal/conversation"
)

// Client defines the generation operations used by the bot flows.
type Client interface {
	// Generate answers a role-alternating conversation.
	Generate(ctx context.Context, turns conversation.TurnSequence, cfg conversation.GenerationConfig) (string, error)

	// GeneratePrompt answers a single user prompt.
	GeneratePrompt(ctx context.Context, prompt string, cfg conversation.GenerationConfig) (string, error)
}

// contentGenerator is the subset of *genai.Models the client calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type sdkClient struct {
	models            contentGenerator
	log               *slog.Logger
	modelName         string
	systemInstruction string
	maxRetries        int
	retryDelay        time.Duration
}

// NewClient creates a Gemini client. A configured API key selects the Gemini
// API backend; otherwise Vertex AI is used with application default
// credentials.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	cc := &genai.ClientConfig{}
	if cfg.APIKey != "" {
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	} else {
		if cfg.Project == "" {
			return nil, fmt.Errorf("gemini project is required for the Vertex AI backend")
		}
		cc.Project = strings.TrimPrefix(cfg.Project, "projects/")
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	}

	gi, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.ModelName, "vertex", cc.Backend == genai.BackendVertexAI)
	return newSDKClient(gi.Models, cfg, logger), nil
}

func newSDKClient(models contentGenerator, cfg config.GeminiConfig, log *slog.Logger) *sdkClient {
	return &sdkClient{
		models:            models,
		log:               log,
		modelName:         cfg.ModelName,
		systemInstruction: systemInstruction(cfg.SystemInstruction),
		maxRetries:        cfg.MaxRetries,
		retryDelay:        time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}
}

func (c *sdkClient) Generate(ctx context.Context, turns conversation.TurnSequence, cfg conversation.GenerationConfig) (string, error) {
	const op = "generate"
	if len(turns) == 0 {
		return "", &conversation.GenerationError{Op: op, Err: errors.New("no turns to submit")}
	}
	c.log.DebugContext(ctx, "Generating reply", "turn_count", len(turns))

	resp, err := c.generateContentWithRetries(ctx, ToContents(turns), c.contentConfig(cfg, true))
	if err != nil {
		return "", &conversation.GenerationError{Op: op, Err: err}
	}
	return c.extractText(ctx, op, resp)
}

func (c *sdkClient) GeneratePrompt(ctx context.Context, prompt string, cfg conversation.GenerationConfig) (string, error) {
	const op = "generate_prompt"
	c.log.DebugContext(ctx, "Generating prompt completion", "prompt_len", len(prompt))

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := c.generateContentWithRetries(ctx, contents, c.contentConfig(cfg, false))
	if err != nil {
		return "", &conversation.GenerationError{Op: op, Err: err}
	}
	return c.extractText(ctx, op, resp)
}

// contentConfig maps cfg onto the SDK request config. Zero values leave the
// model defaults in place, except temperature which is always sent.
func (c *sdkClient) contentConfig(cfg conversation.GenerationConfig, withSystem bool) *genai.GenerateContentConfig {
	out := &genai.GenerateContentConfig{
		Temperature: ptr(cfg.Temperature),
	}
	if cfg.MaxTokens > 0 {
		out.MaxOutputTokens = cfg.MaxTokens
	}
	if cfg.TopP > 0 {
		out.TopP = ptr(cfg.TopP)
	}
	if cfg.TopK > 0 {
		out.TopK = ptr(cfg.TopK)
	}
	if withSystem && c.systemInstruction != "" {
		out.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: c.systemInstruction}}}
	}
	return out
}

// ToContents converts a turn sequence into SDK contents, preserving part
// order.
func ToContents(turns conversation.TurnSequence) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		var role genai.Role = genai.RoleUser
		if t.Role == conversation.RoleModel {
			role = genai.RoleModel
		}
		parts := make([]*genai.Part, 0, len(t.Parts))
		for _, p := range t.Parts {
			if p.IsText() {
				parts = append(parts, genai.NewPartFromText(p.Text))
			} else {
				parts = append(parts, genai.NewPartFromBytes(p.Data, p.MIMEType))
			}
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		var resp *genai.GenerateContentResponse
		resp, err = c.models.GenerateContent(ctx, c.modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		code, retriable := retriableCode(err)
		if !retriable || i == c.maxRetries {
			c.log.ErrorContext(ctx, "Gemini API call failed", "attempt", i+1, "max_retries", c.maxRetries, "error", err)
			return nil, fmt.Errorf("gemini API call failed: %w", err)
		}

		c.log.WarnContext(ctx, "Retrying Gemini API call due to retriable APIError", "attempt", i+1, "delay", c.retryDelay, "code", code)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gemini API call cancelled: %w", ctx.Err())
		case <-time.After(c.retryDelay):
		}
	}
	return nil, fmt.Errorf("gemini API call failed: %w", err)
}

func (c *sdkClient) extractText(ctx context.Context, op string, resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", &conversation.GenerationError{Op: op, Err: errors.New("nil response")}
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "operation", op, "reason", reasonMsg)
		return "", &conversation.GenerationError{Op: op, Err: fmt.Errorf("blocked by safety filter: %s", reasonMsg)}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "operation", op, "finish_reason", finishReason)
		return "", &conversation.GenerationError{Op: op, Err: fmt.Errorf("no content, finish reason: %s", finishReason)}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		c.log.WarnContext(ctx, "Gemini response text is empty", "operation", op)
		return "", &conversation.GenerationError{Op: op, Err: errors.New("empty text")}
	}
	return text, nil
}

// retriableCode reports whether err is a server-side APIError worth retrying.
func retriableCode(err error) (int, bool) {
	var code int
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		return 0, false
	}
	return code, code == 500 || code == 503
}

func systemInstruction(configured string) string {
	if strings.TrimSpace(configured) == "" {
		return DefaultSystemInstruction
	}
	return configured
}

func ptr[T any](v T) *T { return &v }
