// Package history walks paginated platform history for a channel window or a
// thread and returns a complete, deduplicated, time-ordered message set.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/edgard/slackai/internal/conversation"
)

// DefaultMaxPages bounds a single fetch when no limit is configured.
const DefaultMaxPages = 50

// Query is one page request. Latest and Cursor are empty on the first page.
type Query struct {
	Channel   string
	Thread    string
	Oldest    string
	Latest    string
	Cursor    string
	Inclusive bool
	Limit     int
}

// Page is one page of platform history.
type Page struct {
	Messages   []conversation.RawMessage
	HasMore    bool
	NextCursor string
}

// Source is the read side of the chat platform.
type Source interface {
	History(ctx context.Context, q Query) (Page, error)
	Replies(ctx context.Context, q Query) (Page, error)
}

// Fetcher retrieves full history windows from a Source.
type Fetcher struct {
	source   Source
	maxPages int
	log      *slog.Logger
}

// NewFetcher creates a Fetcher. A non-positive maxPages uses DefaultMaxPages.
func NewFetcher(source Source, maxPages int, log *slog.Logger) *Fetcher {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Fetcher{
		source:   source,
		maxPages: maxPages,
		log:      log.With("component", "history_fetcher"),
	}
}

// Fetch returns every message in the window, ascending by timestamp, with
// duplicates across pages removed. Platform access denials surface as
// *conversation.HistoryAccessError.
func (f *Fetcher) Fetch(ctx context.Context, w conversation.HistoryWindow) ([]conversation.RawMessage, error) {
	var (
		all    []conversation.RawMessage
		seen   = make(map[string]struct{})
		cursor string
		latest string
	)

	for page := 0; ; page++ {
		if page >= f.maxPages {
			f.log.WarnContext(ctx, "Pagination page limit reached, returning partial history",
				"channel", w.Channel, "thread_ts", w.ThreadRootTimestamp, "max_pages", f.maxPages, "message_count", len(all))
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch history for %s: %w", w.Channel, err)
		}

		q := Query{
			Channel: w.Channel,
			Thread:  w.ThreadRootTimestamp,
			Oldest:  w.Oldest,
			Latest:  latest,
			Cursor:  cursor,
		}

		var (
			p   Page
			err error
		)
		if w.IsThread() {
			p, err = f.source.Replies(ctx, q)
		} else {
			p, err = f.source.History(ctx, q)
		}
		if err != nil {
			return nil, fmt.Errorf("fetch history page %d for %s: %w", page+1, w.Channel, err)
		}

		for _, m := range p.Messages {
			if _, dup := seen[m.Timestamp]; dup {
				continue
			}
			seen[m.Timestamp] = struct{}{}
			all = append(all, m)
		}

		f.log.DebugContext(ctx, "Fetched history page",
			"channel", w.Channel, "page", page+1, "page_size", len(p.Messages), "has_more", p.HasMore)

		if !p.HasMore || p.NextCursor == "" {
			break
		}
		if p.NextCursor == cursor {
			f.log.WarnContext(ctx, "Pagination cursor did not advance, stopping", "channel", w.Channel, "cursor", cursor)
			break
		}
		cursor = p.NextCursor
		// Channel history is newest first, so each page re-states its lower
		// boundary. Replies are oldest first and follow the cursor alone.
		if !w.IsThread() {
			if b := secondOldest(p.Messages); b != "" {
				latest = b
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return conversation.CompareTimestamps(all[i].Timestamp, all[j].Timestamp) < 0
	})
	return all, nil
}

// secondOldest returns the timestamp of the second-oldest message of a page,
// or the only message's timestamp for single-message pages.
func secondOldest(msgs []conversation.RawMessage) string {
	switch len(msgs) {
	case 0:
		return ""
	case 1:
		return msgs[0].Timestamp
	}
	ts := make([]string, len(msgs))
	for i, m := range msgs {
		ts[i] = m.Timestamp
	}
	sort.Slice(ts, func(i, j int) bool { return conversation.CompareTimestamps(ts[i], ts[j]) < 0 })
	return ts[1]
}
