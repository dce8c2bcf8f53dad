package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/edgard/slackai/internal/compose"
	"github.com/edgard/slackai/internal/conversation"
)

const sendMessageTimeout = 10 * time.Second

// conversationTurns fetches the messages of w and aggregates them into turns.
// The fetch is bounded by history.fetch_timeout.
func conversationTurns(ctx context.Context, deps HandlerDeps, w conversation.HistoryWindow) (conversation.TurnSequence, error) {
	fetchCtx := ctx
	if timeout := deps.Config.History.FetchTimeout; timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msgs, err := deps.Fetcher.Fetch(fetchCtx, w)
	if err != nil {
		return nil, err
	}
	return deps.Aggregator.Aggregate(ctx, msgs), nil
}

// generateReply answers turns with the reply settings. A failed generation
// yields the fallback text so the user always gets a response.
func generateReply(ctx context.Context, deps HandlerDeps, log *slog.Logger, turns conversation.TurnSequence) string {
	text, err := deps.GeminiClient.Generate(ctx, turns, deps.Config.Gemini.Reply.Generation())
	if err != nil {
		log.ErrorContext(ctx, "Failed to generate reply", "error", err, "turn_count", len(turns))
		return deps.Composer.FallbackText()
	}
	return text
}

// sendReply composes text for target and posts it.
func sendReply(ctx context.Context, deps HandlerDeps, log *slog.Logger, text string, target compose.ReplyTarget) {
	if ctx.Err() != nil {
		log.ErrorContext(ctx, "Context cancelled before sending reply", "error", ctx.Err())
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()

	payload := deps.Composer.Compose(text, target)
	if err := deps.Composer.Send(sendCtx, payload); err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err, "target", target.Kind.String())
	}
}

// handleHistoryError reports a failed history read. Access denials are
// explained to the requester in a direct message; other failures get the
// fallback text at fallbackTarget.
func handleHistoryError(ctx context.Context, deps HandlerDeps, log *slog.Logger, err error, user string, fallbackTarget compose.ReplyTarget) {
	var accessErr *conversation.HistoryAccessError
	if errors.As(err, &accessErr) {
		log.WarnContext(ctx, "No access to conversation history", "channel", accessErr.Channel, "code", accessErr.Code)
		sendReply(ctx, deps, log, deps.Config.Messages.NoAccess, compose.DirectTo(user))
		return
	}
	log.ErrorContext(ctx, "Failed to fetch conversation history", "error", err)
	sendReply(ctx, deps, log, deps.Composer.FallbackText(), fallbackTarget)
}
