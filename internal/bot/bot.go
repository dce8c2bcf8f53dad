// Package bot implements component wiring, lifecycle management and
// orchestration for the Slack assistant.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/slackai/internal/bot/handlers"
	"github.com/edgard/slackai/internal/compose"
	"github.com/edgard/slackai/internal/config"
	"github.com/edgard/slackai/internal/dispatch"
	"github.com/edgard/slackai/internal/event"
	"github.com/edgard/slackai/internal/gate"
	"github.com/edgard/slackai/internal/gemini"
	"github.com/edgard/slackai/internal/history"
	"github.com/edgard/slackai/internal/server"
	"github.com/edgard/slackai/internal/slackapi"
	"github.com/edgard/slackai/internal/turns"
	"github.com/edgard/slackai/internal/window"
)

// Runner is a long running component stopped by context cancellation.
type Runner interface {
	Run(ctx context.Context) error
}

// Bot represents the main bot application and manages its components' lifecycle.
type Bot struct {
	logger     *slog.Logger
	server     Runner
	dispatcher Runner
}

// NewBot creates a new instance of the bot from its long running components.
func NewBot(logger *slog.Logger, server, dispatcher Runner) *Bot {
	return &Bot{
		logger:     logger.With("component", "bot_orchestrator"),
		server:     server,
		dispatcher: dispatcher,
	}
}

// Build wires every component from cfg: the Slack client, the Gemini client,
// the context assembly pipeline, the flow handlers, the dispatcher and the
// HTTP ingress.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Bot, error) {
	slackClient := slackapi.New(cfg.Slack, cfg.History.PageSize, logger)

	geminiClient, err := gemini.NewClient(ctx, cfg.Gemini, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	classifier, err := event.NewClassifier(cfg.Slack.GreetingPattern, cfg.Slack.SummarizeCommand, cfg.Slack.SummarizeThreadCallback)
	if err != nil {
		return nil, fmt.Errorf("failed to create event classifier: %w", err)
	}

	deps := handlers.HandlerDeps{
		Logger:       logger,
		Config:       cfg,
		Identity:     slackClient,
		Fetcher:      history.NewFetcher(slackClient, cfg.History.MaxPages, logger),
		Aggregator:   turns.NewAggregator(slackClient, logger),
		Selector:     window.NewSelector(geminiClient, cfg.Gemini.Lookback.Generation(), cfg.Window.MaxHours, logger),
		Gate:         gate.New(slackClient, logger),
		Composer:     compose.NewComposer(slackClient, cfg.Messages.UnableToRespond, logger),
		GeminiClient: geminiClient,
	}
	router := handlers.NewRouter(deps)

	dispatcher := dispatch.New(router, cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, cfg.Dispatch.EventTimeout, logger)
	srv := server.New(cfg, classifier, slackClient, dispatcher, router, logger)

	if id, err := slackClient.Identity(ctx); err != nil {
		logger.Warn("Could not resolve bot identity at startup, will retry on demand", "error", err)
	} else {
		logger.Info("Bot identity verified", "user_id", id.UserID, "name", id.Name)
	}

	return NewBot(logger, srv, dispatcher), nil
}

// Run starts the bot and all its components, handling graceful shutdown on context cancellation.
// It returns an error if any component fails during startup or execution.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.dispatcher.Run(gCtx); err != nil {
			b.logger.Error("Dispatcher failed", "error", err)
			return fmt.Errorf("dispatcher failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := b.server.Run(gCtx)
		if err != nil {
			b.logger.Error("HTTP server failed", "error", err)
			return err
		}
		if gCtx.Err() == nil {
			b.logger.Warn("HTTP server stopped unexpectedly without context cancellation.")
			return fmt.Errorf("http server stopped unexpectedly")
		}
		return nil
	})

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}
