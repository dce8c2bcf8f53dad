// Package window derives the channel history lookback for a summarization
// request from the requester's free text.
package window

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/edgard/slackai/internal/conversation"
	"github.com/edgard/slackai/internal/logger"
)

const maxCompletionPreview = 80

// lookbackPrompt asks for a bare number of hours. The format argument is the
// user's request.
const lookbackPrompt = `Extract how many hours of chat history the following request wants summarized.
Reply with a single number of hours and nothing else. If the request does not specify a duration, reply with 1.

Examples:
"summarize the last day" -> 24
"what happened in the past 30 minutes" -> 0.5
"catch me up" -> 1

Request: %q`

// Generator runs a single prompt completion.
type Generator interface {
	GeneratePrompt(ctx context.Context, prompt string, cfg conversation.GenerationConfig) (string, error)
}

// Selector turns free text into a lookback and an absolute oldest timestamp.
type Selector struct {
	gen      Generator
	cfg      conversation.GenerationConfig
	maxHours float64
	now      func() time.Time
	log      *slog.Logger
}

// NewSelector creates a Selector. maxHours <= 0 disables the upper clamp.
func NewSelector(gen Generator, cfg conversation.GenerationConfig, maxHours float64, log *slog.Logger) *Selector {
	return &Selector{
		gen:      gen,
		cfg:      cfg,
		maxHours: maxHours,
		now:      time.Now,
		log:      log.With("component", "window_selector"),
	}
}

// Select derives the lookback from userText and returns it together with the
// oldest timestamp, latest minus the lookback. It never fails: any error in
// the auxiliary model call degrades to conversation.DefaultLookbackHours. An
// empty latest measures from now.
func (s *Selector) Select(ctx context.Context, userText, latest string) (conversation.LookbackSpec, string) {
	spec := conversation.LookbackSpec{Hours: s.lookbackHours(ctx, userText)}

	if latest == "" {
		latest = conversation.FormatTimestamp(s.now())
	}
	oldest, err := conversation.SubtractHours(latest, spec.Hours)
	if err != nil {
		s.log.WarnContext(ctx, "Invalid latest timestamp, measuring lookback from now", "latest", latest, "error", err)
		oldest = conversation.FormatTimestamp(s.now().Add(-hoursDuration(spec.Hours)))
	}

	s.log.DebugContext(ctx, "Selected history window", "hours", spec.Hours, "oldest", oldest, "latest", latest)
	return spec, oldest
}

func (s *Selector) lookbackHours(ctx context.Context, userText string) float64 {
	completion, err := s.gen.GeneratePrompt(ctx, fmt.Sprintf(lookbackPrompt, userText), s.cfg)
	if err != nil {
		s.log.WarnContext(ctx, "Lookback extraction failed, using default", "error", err, "default_hours", conversation.DefaultLookbackHours)
		return conversation.DefaultLookbackHours
	}

	hours, err := ParseHours(completion)
	if err != nil {
		s.log.WarnContext(ctx, "Lookback completion not numeric, using default", "completion", logger.Truncate(completion, maxCompletionPreview), "default_hours", conversation.DefaultLookbackHours)
		return conversation.DefaultLookbackHours
	}

	if s.maxHours > 0 && hours > s.maxHours {
		s.log.InfoContext(ctx, "Clamping lookback", "requested_hours", hours, "max_hours", s.maxHours)
		hours = s.maxHours
	}
	return hours
}

// ParseHours parses a numeric completion. Negative, NaN and infinite values
// are rejected.
func ParseHours(completion string) (float64, error) {
	v := strings.TrimSpace(completion)
	v = strings.Trim(v, "`\"'")
	v = strings.TrimSpace(v)
	hours, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse lookback %q: %w", completion, err)
	}
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours < 0 {
		return 0, fmt.Errorf("lookback %q out of range", completion)
	}
	return hours, nil
}

func hoursDuration(hours float64) time.Duration {
	return time.Duration(math.Round(hours * float64(time.Hour)))
}
