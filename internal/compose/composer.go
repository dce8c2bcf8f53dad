// Package compose converts model output into Slack markup and sends it with
// the message shape the flow asks for.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is the per-message text ceiling applied before sending.
const MaxMessageLength = 4000

// DefaultFallbackText replaces empty model output.
const DefaultFallbackText = "Sorry, I was unable to respond to that."

// TargetKind selects how a reply is delivered.
type TargetKind int

const (
	// ThreadReply posts visibly in a channel thread.
	ThreadReply TargetKind = iota
	// Ephemeral posts a message only the requester can see.
	Ephemeral
	// Direct posts to the user's direct message channel.
	Direct
)

func (k TargetKind) String() string {
	switch k {
	case ThreadReply:
		return "thread_reply"
	case Ephemeral:
		return "ephemeral"
	case Direct:
		return "direct"
	default:
		return fmt.Sprintf("target(%d)", int(k))
	}
}

// ReplyTarget is where a composed message goes.
type ReplyTarget struct {
	Kind     TargetKind
	Channel  string
	ThreadTS string
	User     string
}

// ThreadReplyTo targets a visible reply under threadTS.
func ThreadReplyTo(channel, threadTS string) ReplyTarget {
	return ReplyTarget{Kind: ThreadReply, Channel: channel, ThreadTS: threadTS}
}

// EphemeralTo targets a private message to user within channel.
func EphemeralTo(channel, user string) ReplyTarget {
	return ReplyTarget{Kind: Ephemeral, Channel: channel, User: user}
}

// DirectTo targets the user's direct message channel.
func DirectTo(user string) ReplyTarget {
	return ReplyTarget{Kind: Direct, User: user}
}

// Payload is a formatted, ready-to-send message.
type Payload struct {
	Target ReplyTarget
	Text   string
	Chunks []string
}

// Poster is the write side of the chat platform.
type Poster interface {
	PostMessage(ctx context.Context, channel, threadTS, text string) error
	PostEphemeral(ctx context.Context, channel, user, text string) error
}

// Composer formats and sends replies.
type Composer struct {
	poster   Poster
	fallback string
	maxLen   int
	log      *slog.Logger
}

// NewComposer creates a Composer. An empty fallback uses DefaultFallbackText.
func NewComposer(poster Poster, fallback string, log *slog.Logger) *Composer {
	if fallback == "" {
		fallback = DefaultFallbackText
	}
	return &Composer{
		poster:   poster,
		fallback: fallback,
		maxLen:   MaxMessageLength,
		log:      log.With("component", "response_composer"),
	}
}

// FallbackText is the placeholder used for empty model output.
func (c *Composer) FallbackText() string {
	return c.fallback
}

// Compose converts aiText to Slack markup for target. Empty text is replaced
// by the fallback so a reply is always sent.
func (c *Composer) Compose(aiText string, target ReplyTarget) Payload {
	text := ToSlackMarkup(strings.TrimSpace(aiText))
	if text == "" {
		text = c.fallback
	}
	return Payload{Target: target, Text: text, Chunks: SplitMessage(text, c.maxLen)}
}

// Send delivers every chunk of p.
func (c *Composer) Send(ctx context.Context, p Payload) error {
	for i, chunk := range p.Chunks {
		var err error
		switch p.Target.Kind {
		case ThreadReply:
			err = c.poster.PostMessage(ctx, p.Target.Channel, p.Target.ThreadTS, chunk)
		case Ephemeral:
			err = c.poster.PostEphemeral(ctx, p.Target.Channel, p.Target.User, chunk)
		case Direct:
			err = c.poster.PostMessage(ctx, p.Target.User, "", chunk)
		default:
			err = fmt.Errorf("unknown reply target %s", p.Target.Kind)
		}
		if err != nil {
			return fmt.Errorf("send %s chunk %d/%d: %w", p.Target.Kind, i+1, len(p.Chunks), err)
		}
	}
	c.log.InfoContext(ctx, "Sent reply", "target", p.Target.Kind.String(), "channel", p.Target.Channel, "user", p.Target.User, "chunks", len(p.Chunks))
	return nil
}

// ToSlackMarkup rewrites Markdown bold markers to Slack emphasis.
func ToSlackMarkup(text string) string {
	return strings.ReplaceAll(text, "**", "*")
}

// SplitMessage cuts msg into chunks of at most maxLen bytes, preferring
// newline boundaries and never splitting a UTF-8 sequence.
func SplitMessage(msg string, maxLen int) []string {
	if maxLen <= 0 || len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		if idx := strings.LastIndex(msg[:cut], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		if cut == 0 {
			cut = maxLen
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
