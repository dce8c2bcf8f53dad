// Package turns converts an ordered message set into a role-alternating turn
// sequence suitable for a chat-style generative model.
package turns

import (
	"context"
	"errors"
	"log/slog"

	"github.com/edgard/slackai/internal/conversation"
)

// AttachmentFetcher retrieves the bytes behind an attachment. The returned
// MIME type takes precedence over the declared one when non-empty.
type AttachmentFetcher interface {
	Fetch(ctx context.Context, url, mimeType string) ([]byte, string, error)
}

// Aggregator builds turn sequences. It holds no per-request state and is safe
// for concurrent use.
type Aggregator struct {
	attachments AttachmentFetcher
	log         *slog.Logger
}

// NewAggregator creates an Aggregator. A nil fetcher drops all attachments.
func NewAggregator(attachments AttachmentFetcher, log *slog.Logger) *Aggregator {
	return &Aggregator{
		attachments: attachments,
		log:         log.With("component", "turn_aggregator"),
	}
}

// turnBuilder accumulates parts for the turn under construction.
type turnBuilder struct {
	role  conversation.Role
	parts []conversation.Part
}

func (b *turnBuilder) add(parts ...conversation.Part) {
	b.parts = append(b.parts, parts...)
}

func (b *turnBuilder) build() conversation.Turn {
	parts := make([]conversation.Part, len(b.parts))
	copy(parts, b.parts)
	return conversation.Turn{Role: b.role, Parts: parts}
}

// Aggregate walks messages in order and merges consecutive same-role content
// into one turn. Messages contributing no parts never yield an empty turn.
// Attachments that fail to download are skipped and logged.
func (a *Aggregator) Aggregate(ctx context.Context, messages []conversation.RawMessage) conversation.TurnSequence {
	var builders []*turnBuilder

	for _, m := range messages {
		parts := a.messageParts(ctx, m)
		role := m.Role()

		if n := len(builders); n > 0 && builders[n-1].role == role {
			builders[n-1].add(parts...)
			continue
		}
		b := &turnBuilder{role: role}
		b.add(parts...)
		builders = append(builders, b)
	}

	return normalize(builders)
}

// normalize drops empty builders and re-merges neighbours that end up
// adjacent with the same role.
func normalize(builders []*turnBuilder) conversation.TurnSequence {
	var merged []*turnBuilder
	for _, b := range builders {
		if len(b.parts) == 0 {
			continue
		}
		if n := len(merged); n > 0 && merged[n-1].role == b.role {
			merged[n-1].add(b.parts...)
			continue
		}
		merged = append(merged, b)
	}

	seq := make(conversation.TurnSequence, 0, len(merged))
	for _, b := range merged {
		seq = append(seq, b.build())
	}
	return seq
}

func (a *Aggregator) messageParts(ctx context.Context, m conversation.RawMessage) []conversation.Part {
	var parts []conversation.Part
	if m.Text != "" {
		parts = append(parts, conversation.TextPart(m.Text))
	}

	for _, att := range m.Attachments {
		if a.attachments == nil {
			continue
		}
		data, mimeType, err := a.attachments.Fetch(ctx, att.URL, att.MIMEType)
		if err == nil && len(data) == 0 {
			err = errors.New("empty attachment")
		}
		if err != nil {
			fetchErr := &conversation.AttachmentFetchError{URL: att.URL, Err: err}
			a.log.WarnContext(ctx, "Skipping attachment", "message_ts", m.Timestamp, "name", att.Name, "error", fetchErr)
			continue
		}
		if mimeType == "" {
			mimeType = att.MIMEType
		}
		parts = append(parts, conversation.BlobPart(data, mimeType))
	}
	return parts
}
