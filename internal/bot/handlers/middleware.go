// Package handlers contains the Slack event flow handlers, along with their
// registration logic and middleware.
package handlers

import (
	"context"

	"github.com/edgard/slackai/internal/dispatch"
	"github.com/edgard/slackai/internal/event"
	"github.com/edgard/slackai/internal/logger"
)

// Middleware wraps a flow handler.
type Middleware func(next dispatch.HandlerFunc) dispatch.HandlerFunc

// RequireParticipation creates a middleware that only lets thread events
// through when the bot has already replied in the thread. It runs before the
// wrapped handler reads or aggregates any history.
func RequireParticipation(deps HandlerDeps) Middleware {
	return func(next dispatch.HandlerFunc) dispatch.HandlerFunc {
		return func(ctx context.Context, ev event.Event) {
			log := logger.FromContext(ctx, deps.Logger).With("middleware", "RequireParticipation")

			id, err := deps.Identity.Identity(ctx)
			if err != nil {
				log.ErrorContext(ctx, "Failed to resolve bot identity", "error", err)
				return
			}

			ok, err := deps.Gate.IsParticipant(ctx, ev.Channel, ev.ThreadTimestamp, id.UserID)
			if err != nil {
				log.WarnContext(ctx, "Participation check failed, skipping event", "error", err, "thread_ts", ev.ThreadTimestamp)
				return
			}
			if !ok {
				log.DebugContext(ctx, "Bot has not replied in thread, skipping", "thread_ts", ev.ThreadTimestamp)
				return
			}

			next(ctx, ev)
		}
	}
}
