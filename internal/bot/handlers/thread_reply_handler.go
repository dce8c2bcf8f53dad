package handlers

import (
	"context"
	"errors"

	"github.com/edgard/slackai/internal/compose"
	"github.com/edgard/slackai/internal/conversation"
	"github.com/edgard/slackai/internal/dispatch"
	"github.com/edgard/slackai/internal/event"
	"github.com/edgard/slackai/internal/logger"
)

// NewThreadReplyHandler returns a handler that continues a thread the bot
// participates in, answering with the whole thread as context. Register it
// behind RequireParticipation.
func NewThreadReplyHandler(deps HandlerDeps) dispatch.HandlerFunc {
	return threadReplyHandler{deps}.Handle
}

type threadReplyHandler struct {
	deps HandlerDeps
}

func (h threadReplyHandler) Handle(ctx context.Context, ev event.Event) {
	deps := h.deps
	log := logger.FromContext(ctx, deps.Logger).With("handler", "thread_reply")
	log.InfoContext(ctx, "Handling thread reply", "thread_ts", ev.ThreadTimestamp, "ts", ev.Timestamp)

	target := compose.ThreadReplyTo(ev.Channel, ev.ThreadTimestamp)

	turns, err := conversationTurns(ctx, deps, conversation.ThreadWindow(ev.Channel, ev.ThreadTimestamp))
	if err != nil {
		var accessErr *conversation.HistoryAccessError
		if errors.As(err, &accessErr) {
			log.WarnContext(ctx, "Lost access to thread, not replying", "code", accessErr.Code)
			return
		}
		log.ErrorContext(ctx, "Failed to fetch thread", "error", err)
		sendReply(ctx, deps, log, deps.Composer.FallbackText(), target)
		return
	}
	if len(turns) == 0 {
		log.InfoContext(ctx, "Thread has no usable content, skipping")
		return
	}

	log.DebugContext(ctx, "Aggregated thread", "turn_count", len(turns))
	sendReply(ctx, deps, log, generateReply(ctx, deps, log, turns), target)
}
