package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/slackai/internal/compose"
	"github.com/edgard/slackai/internal/config"
	"github.com/edgard/slackai/internal/gate"
	"github.com/edgard/slackai/internal/gemini"
	"github.com/edgard/slackai/internal/history"
	"github.com/edgard/slackai/internal/slackapi"
	"github.com/edgard/slackai/internal/turns"
	"github.com/edgard/slackai/internal/window"
)

// IdentityProvider resolves the bot's own Slack identity.
type IdentityProvider interface {
	Identity(ctx context.Context) (slackapi.Identity, error)
}

// HandlerDeps provides dependencies for the event flow handlers.
type HandlerDeps struct {
	Logger       *slog.Logger
	Config       *config.Config
	Identity     IdentityProvider
	Fetcher      *history.Fetcher
	Aggregator   *turns.Aggregator
	Selector     *window.Selector
	Gate         *gate.Gate
	Composer     *compose.Composer
	GeminiClient gemini.Client
}
