package handlers

import (
	"context"

	"github.com/edgard/slackai/internal/dispatch"
	"github.com/edgard/slackai/internal/event"
	"github.com/edgard/slackai/internal/logger"
)

// RegisteredHandler represents a flow handler with its middleware.
type RegisteredHandler struct {
	Kind       event.Kind
	Handler    dispatch.HandlerFunc
	Middleware []Middleware
}

// Wrapped returns the handler with its middleware applied, outermost first.
func (r RegisteredHandler) Wrapped() dispatch.HandlerFunc {
	h := r.Handler
	for i := len(r.Middleware) - 1; i >= 0; i-- {
		h = r.Middleware[i](h)
	}
	return h
}

// RegisterAllFlows initializes and returns the handler for every event kind.
func RegisterAllFlows(deps HandlerDeps) map[event.Kind]RegisteredHandler {
	handlers := make(map[event.Kind]RegisteredHandler)

	handlers[event.KindGreetings] = RegisteredHandler{
		Kind:    event.KindGreetings,
		Handler: NewGreetingsHandler(deps),
	}
	handlers[event.KindThreadReply] = RegisteredHandler{
		Kind:       event.KindThreadReply,
		Handler:    NewThreadReplyHandler(deps),
		Middleware: []Middleware{RequireParticipation(deps)},
	}
	handlers[event.KindSummarizeThread] = RegisteredHandler{
		Kind:    event.KindSummarizeThread,
		Handler: NewSummarizeThreadHandler(deps),
	}
	handlers[event.KindSummarizeChannel] = RegisteredHandler{
		Kind:    event.KindSummarizeChannel,
		Handler: NewSummarizeChannelHandler(deps),
	}

	return handlers
}

// Router dispatches events to the registered flow for their kind.
type Router struct {
	deps     HandlerDeps
	handlers map[event.Kind]dispatch.HandlerFunc
}

// NewRouter builds a Router over RegisterAllFlows.
func NewRouter(deps HandlerDeps) *Router {
	r := &Router{deps: deps, handlers: make(map[event.Kind]dispatch.HandlerFunc)}
	for kind, h := range RegisterAllFlows(deps) {
		r.handlers[kind] = h.Wrapped()
	}
	return r
}

// Handle implements dispatch.Handler.
func (r *Router) Handle(ctx context.Context, ev event.Event) {
	h, ok := r.handlers[ev.Kind]
	if !ok {
		logger.FromContext(ctx, r.deps.Logger).WarnContext(ctx, "No handler registered for event kind", "kind", ev.Kind)
		return
	}
	h(ctx, ev)
}
