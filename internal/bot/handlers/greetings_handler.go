package handlers

import (
	"context"
	"fmt"

	"github.com/edgard/slackai/internal/compose"
	"github.com/edgard/slackai/internal/dispatch"
	"github.com/edgard/slackai/internal/event"
	"github.com/edgard/slackai/internal/logger"
)

// NewGreetingsHandler returns a handler that welcomes users who greet the
// bot in a channel, replying in a thread under their message.
func NewGreetingsHandler(deps HandlerDeps) dispatch.HandlerFunc {
	return greetingsHandler{deps}.Handle
}

type greetingsHandler struct {
	deps HandlerDeps
}

func (h greetingsHandler) Handle(ctx context.Context, ev event.Event) {
	deps := h.deps
	log := logger.FromContext(ctx, deps.Logger).With("handler", "greetings")
	log.InfoContext(ctx, "Handling greeting", "ts", ev.Timestamp)

	text, err := deps.GeminiClient.GeneratePrompt(ctx, deps.Config.Messages.GreetingPrompt, deps.Config.Gemini.Reply.Generation())
	if err != nil {
		log.ErrorContext(ctx, "Failed to generate welcome message", "error", err)
		text = deps.Composer.FallbackText()
	}

	sendReply(ctx, deps, log, fmt.Sprintf("<@%s> %s", ev.User, text), compose.ThreadReplyTo(ev.Channel, ev.Timestamp))
}
