// Package gate decides whether the bot already takes part in a thread before
// any ambient reply work is done.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/edgard/slackai/internal/history"
)

// Gate checks thread participation by reading the thread lead message.
type Gate struct {
	source history.Source
	log    *slog.Logger
}

// New creates a Gate over the platform history source.
func New(source history.Source, log *slog.Logger) *Gate {
	return &Gate{source: source, log: log.With("component", "participation_gate")}
}

// IsParticipant reports whether botUserID appears among the repliers of the
// thread rooted at threadRoot. A missing lead message or reply list yields
// false.
func (g *Gate) IsParticipant(ctx context.Context, channel, threadRoot, botUserID string) (bool, error) {
	page, err := g.source.History(ctx, history.Query{
		Channel:   channel,
		Latest:    threadRoot,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return false, fmt.Errorf("read thread lead %s in %s: %w", threadRoot, channel, err)
	}

	if len(page.Messages) == 0 {
		g.log.DebugContext(ctx, "Thread lead not found", "channel", channel, "thread_ts", threadRoot)
		return false, nil
	}
	lead := page.Messages[0]
	if lead.Timestamp != threadRoot {
		g.log.DebugContext(ctx, "Thread lead mismatch", "channel", channel, "thread_ts", threadRoot, "lead_ts", lead.Timestamp)
		return false, nil
	}

	ok := slices.Contains(lead.ReplyUsers, botUserID)
	g.log.DebugContext(ctx, "Participation checked", "channel", channel, "thread_ts", threadRoot, "participant", ok)
	return ok, nil
}
