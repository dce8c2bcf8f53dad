package handlers

import (
	"context"

	"github.com/edgard/slackai/internal/compose"
	"github.com/edgard/slackai/internal/conversation"
	"github.com/edgard/slackai/internal/dispatch"
	"github.com/edgard/slackai/internal/event"
	"github.com/edgard/slackai/internal/logger"
)

// NewSummarizeThreadHandler returns a handler that privately summarizes a
// thread for the user who asked.
func NewSummarizeThreadHandler(deps HandlerDeps) dispatch.HandlerFunc {
	return summarizeHandler{deps: deps, thread: true}.Handle
}

// NewSummarizeChannelHandler returns a handler that privately summarizes the
// recent channel history for the user who asked. The lookback window is
// derived from the request text.
func NewSummarizeChannelHandler(deps HandlerDeps) dispatch.HandlerFunc {
	return summarizeHandler{deps: deps}.Handle
}

type summarizeHandler struct {
	deps   HandlerDeps
	thread bool
}

func (h summarizeHandler) Handle(ctx context.Context, ev event.Event) {
	deps := h.deps
	log := logger.FromContext(ctx, deps.Logger).With("handler", "summarize", "thread", h.thread)

	target := compose.EphemeralTo(ev.Channel, ev.User)
	window, instruction := h.window(ctx, ev)
	log.InfoContext(ctx, "Handling summary request", "thread_ts", window.ThreadRootTimestamp, "oldest", window.Oldest)

	turns, err := conversationTurns(ctx, deps, window)
	if err != nil {
		handleHistoryError(ctx, deps, log, err, ev.User, target)
		return
	}
	if len(turns) == 0 {
		log.InfoContext(ctx, "Nothing to summarize")
		sendReply(ctx, deps, log, deps.Config.Messages.NothingToSummarize, target)
		return
	}

	turns = turns.WithInstruction(instruction)
	log.DebugContext(ctx, "Aggregated conversation for summary", "turn_count", len(turns))
	sendReply(ctx, deps, log, generateReply(ctx, deps, log, turns), target)
}

func (h summarizeHandler) window(ctx context.Context, ev event.Event) (conversation.HistoryWindow, string) {
	if h.thread {
		return conversation.ThreadWindow(ev.Channel, ev.ThreadRoot()), h.deps.Config.Messages.SummarizeThread
	}
	lookback, oldest := h.deps.Selector.Select(ctx, ev.Text, ev.Timestamp)
	logger.FromContext(ctx, h.deps.Logger).DebugContext(ctx, "Selected lookback window", "hours", lookback.Hours, "oldest", oldest)
	return conversation.ChannelWindow(ev.Channel, oldest), h.deps.Config.Messages.SummarizeChannel
}
