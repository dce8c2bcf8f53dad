// Package server exposes the Slack ingress endpoints. Requests are verified,
// classified into events and acknowledged immediately; the events run on the
// dispatcher.
package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/edgard/slackai/internal/config"
	"github.com/edgard/slackai/internal/dispatch"
	"github.com/edgard/slackai/internal/event"
	"github.com/edgard/slackai/internal/logger"
	"github.com/edgard/slackai/internal/slackapi"
)

const maxBodyBytes = 1 << 20

// IdentityProvider resolves the bot's own Slack identity.
type IdentityProvider interface {
	Identity(ctx context.Context) (slackapi.Identity, error)
}

// Enqueuer accepts events for asynchronous handling.
type Enqueuer interface {
	Enqueue(ev event.Event) error
}

// Server is the HTTP ingress.
type Server struct {
	cfg        *config.Config
	classifier *event.Classifier
	identity   IdentityProvider
	queue      Enqueuer
	inline     dispatch.Handler
	log        *slog.Logger
}

// New creates a Server. Slack requests are enqueued on queue; Pub/Sub push
// deliveries are handled synchronously by inline.
func New(cfg *config.Config, classifier *event.Classifier, identity IdentityProvider, queue Enqueuer, inline dispatch.Handler, log *slog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		classifier: classifier,
		identity:   identity,
		queue:      queue,
		inline:     inline,
		log:        log.With("component", "http_server"),
	}
}

// Handler returns the routed and logged HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHello)
	mux.HandleFunc("POST /{$}", s.handlePubSub)
	mux.HandleFunc("POST /slack/events", s.handleEvents)
	mux.HandleFunc("POST /slack/commands", s.handleCommands)
	mux.HandleFunc("POST /slack/interactions", s.handleInteractions)
	return logger.Middleware(s.log)(mux)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutdown signal received, stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.log.Info("HTTP server stopped.")
	return nil
}

func (s *Server) handleHello(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "HELLO World!")
}

// readVerified reads the request body and checks the Slack signature.
func (s *Server) readVerified(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if s.cfg.Slack.SkipVerification {
		return body, nil
	}

	sv, err := slack.NewSecretsVerifier(r.Header, s.cfg.Slack.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("signature headers: %w", err)
	}
	if _, err := sv.Write(body); err != nil {
		return nil, fmt.Errorf("signature hash: %w", err)
	}
	if err := sv.Ensure(); err != nil {
		return nil, fmt.Errorf("signature mismatch: %w", err)
	}
	return body, nil
}

func (s *Server) botUserID(ctx context.Context) string {
	id, err := s.identity.Identity(ctx)
	if err != nil {
		logger.FromContext(ctx, s.log).WarnContext(ctx, "Bot identity unavailable, relying on bot_id to skip own messages", "error", err)
		return ""
	}
	return id.UserID
}

// enqueue validates ev and hands it to the dispatcher.
func (s *Server) enqueue(ctx context.Context, ev event.Event) error {
	log := logger.FromContext(ctx, s.log)
	if err := ev.Validate(); err != nil {
		log.WarnContext(ctx, "Dropping malformed event", "error", err, "kind", ev.Kind)
		return err
	}
	if err := s.queue.Enqueue(ev); err != nil {
		log.ErrorContext(ctx, "Failed to enqueue event", "error", err, "kind", ev.Kind)
		return err
	}
	log.DebugContext(ctx, "Enqueued event", "kind", ev.Kind, "channel", ev.Channel)
	return nil
}

// parentUser carries the message field slackevents does not decode.
type parentUser struct {
	Event struct {
		ParentUserID string `json:"parent_user_id"`
	} `json:"event"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx, s.log).With("handler", "events")

	body, err := s.readVerified(w, r)
	if err != nil {
		log.WarnContext(ctx, "Rejected events request", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	apiEvent, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		log.WarnContext(ctx, "Failed to parse events payload", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch apiEvent.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, challenge.Challenge)
		return
	case slackevents.CallbackEvent:
	default:
		w.WriteHeader(http.StatusOK)
		return
	}

	if retry := r.Header.Get("X-Slack-Retry-Num"); retry != "" {
		log.DebugContext(ctx, "Ignoring Slack delivery retry", "retry", retry, "reason", r.Header.Get("X-Slack-Retry-Reason"))
		w.WriteHeader(http.StatusOK)
		return
	}

	if msg, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok {
		var extra parentUser
		_ = json.Unmarshal(body, &extra)

		ev, matched := s.classifier.Message(event.Message{
			Channel:         msg.Channel,
			User:            msg.User,
			BotID:           msg.BotID,
			SubType:         msg.SubType,
			Text:            msg.Text,
			Timestamp:       msg.TimeStamp,
			ThreadTimestamp: msg.ThreadTimeStamp,
			ParentUserID:    extra.Event.ParentUserID,
		}, s.botUserID(ctx))
		if matched {
			_ = s.enqueue(ctx, ev)
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx, s.log).With("handler", "commands")

	body, err := s.readVerified(w, r)
	if err != nil {
		log.WarnContext(ctx, "Rejected command request", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		log.WarnContext(ctx, "Failed to parse slash command", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ev, ok := s.classifier.Command(cmd)
	if !ok {
		log.InfoContext(ctx, "Unknown slash command", "command", cmd.Command)
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.enqueue(ctx, ev); err != nil {
		_, _ = io.WriteString(w, s.cfg.Messages.UnableToRespond)
		return
	}
	_, _ = io.WriteString(w, s.cfg.Messages.SlashAck)
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx, s.log).With("handler", "interactions")

	body, err := s.readVerified(w, r)
	if err != nil {
		log.WarnContext(ctx, "Rejected interaction request", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(form.Get("payload")), &cb); err != nil {
		log.WarnContext(ctx, "Failed to parse interaction payload", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if ev, ok := s.classifier.Shortcut(cb); ok {
		_ = s.enqueue(ctx, ev)
	} else {
		log.DebugContext(ctx, "Ignoring interaction", "type", cb.Type, "callback_id", cb.CallbackID)
	}
	w.WriteHeader(http.StatusOK)
}

// pushEnvelope is a Pub/Sub push delivery.
type pushEnvelope struct {
	Message *struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// handlePubSub handles a Pub/Sub push delivery of an encoded event inline.
// Every delivery is acknowledged with 204 so malformed messages are not
// redelivered.
func (s *Server) handlePubSub(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx, s.log).With("handler", "pubsub")
	defer w.WriteHeader(http.StatusNoContent)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.WarnContext(ctx, "Failed to read push body", "error", err)
		return
	}

	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Message == nil || env.Subscription == "" {
		log.WarnContext(ctx, "Ignoring request that is not a Pub/Sub push envelope")
		return
	}

	data, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		log.WarnContext(ctx, "Invalid base64 in push message", "error", err, "message_id", env.Message.MessageID)
		return
	}

	ev, err := event.Decode([]byte(strings.TrimSpace(string(data))))
	if err != nil {
		log.WarnContext(ctx, "Dropping malformed pushed event", "error", err, "message_id", env.Message.MessageID)
		return
	}

	log.InfoContext(ctx, "Handling pushed event", "kind", ev.Kind, "message_id", env.Message.MessageID)
	evCtx, cancel := context.WithTimeout(ctx, s.cfg.Dispatch.EventTimeout)
	defer cancel()
	s.inline.Handle(evCtx, ev)
}
