package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/slackai/internal/config"
	"github.com/edgard/slackai/internal/dispatch"
	"github.com/edgard/slackai/internal/event"
	"github.com/edgard/slackai/internal/slackapi"
)

const signingSecret = "8f742231b10e8888abcd99yyyzzz85a5"

type fakeQueue struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (q *fakeQueue) Enqueue(ev event.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, ev)
	return nil
}

type fakeIdentity struct{}

func (fakeIdentity) Identity(context.Context) (slackapi.Identity, error) {
	return slackapi.Identity{UserID: "UBOT", BotID: "BBOT"}, nil
}

type testServer struct {
	handler http.Handler
	queue   *fakeQueue
	inline  *[]event.Event
}

func newTestServer(t *testing.T, skipVerification bool) *testServer {
	t.Helper()
	cfg := &config.Config{
		Slack: config.SlackConfig{
			SigningSecret:           signingSecret,
			SkipVerification:        skipVerification,
			SummarizeCommand:        config.DefaultSummarizeCommand,
			SummarizeThreadCallback: config.DefaultSummarizeThreadCallback,
			GreetingPattern:         config.DefaultGreetingPattern,
		},
		Dispatch: config.DispatchConfig{EventTimeout: time.Minute},
		Messages: config.DefaultMessages,
	}
	classifier, err := event.NewClassifier(cfg.Slack.GreetingPattern, cfg.Slack.SummarizeCommand, cfg.Slack.SummarizeThreadCallback)
	require.NoError(t, err)

	var inline []event.Event
	handler := dispatch.HandlerFunc(func(_ context.Context, ev event.Event) { inline = append(inline, ev) })
	queue := &fakeQueue{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(cfg, classifier, fakeIdentity{}, queue, handler, log)
	return &testServer{handler: srv.Handler(), queue: queue, inline: &inline}
}

func signedRequest(t *testing.T, path, contentType, body string) *http.Request {
	t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(signingSecret))
	_, err := mac.Write([]byte("v0:" + ts + ":" + body))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func callbackBody(inner string) string {
	return `{"token":"x","team_id":"T1","api_app_id":"A1","type":"event_callback","event_id":"Ev1","event_time":1,"event":` + inner + `}`
}

func TestHello(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HELLO World!", rec.Body.String())
}

func TestEventsURLVerification(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)
	body := `{"token":"x","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P","type":"url_verification"}`
	rec := s.do(signedRequest(t, "/slack/events", "application/json", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P", rec.Body.String())
}

func TestEventsRejectsBadSignature(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)
	req := signedRequest(t, "/slack/events", "application/json", callbackBody(`{"type":"message","channel":"C1","user":"U1","text":"hey ai","ts":"1.0"}`))
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")

	rec := s.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, s.queue.events)
}

func TestEventsSkipVerification(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(callbackBody(`{"type":"message","channel":"C1","user":"U1","text":"hey ai","ts":"1.000000"}`)))
	rec := s.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, s.queue.events, 1)
	assert.Equal(t, event.KindGreetings, s.queue.events[0].Kind)
}

func TestEventsClassifiesMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		inner string
		want  *event.Event
	}{
		{
			name:  "greeting",
			inner: `{"type":"message","channel":"C1","user":"U1","text":"Howdy AI","ts":"1.000000"}`,
			want:  &event.Event{Kind: event.KindGreetings, Channel: "C1", User: "U1", Timestamp: "1.000000", Text: "Howdy AI"},
		},
		{
			name:  "thread reply",
			inner: `{"type":"message","channel":"C1","user":"U1","text":"thanks","ts":"2.000000","thread_ts":"1.000000","parent_user_id":"U2"}`,
			want:  &event.Event{Kind: event.KindThreadReply, Channel: "C1", User: "U1", Timestamp: "2.000000", ThreadTimestamp: "1.000000", ParentUserID: "U2", Text: "thanks"},
		},
		{
			name:  "bot message",
			inner: `{"type":"message","channel":"C1","user":"UBOT","bot_id":"BBOT","text":"hey ai","ts":"1.000000"}`,
		},
		{
			name:  "chatter",
			inner: `{"type":"message","channel":"C1","user":"U1","text":"lunch","ts":"1.000000"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, false)
			rec := s.do(signedRequest(t, "/slack/events", "application/json", callbackBody(tc.inner)))
			assert.Equal(t, http.StatusOK, rec.Code)

			if tc.want == nil {
				assert.Empty(t, s.queue.events)
				return
			}
			require.Len(t, s.queue.events, 1)
			assert.Equal(t, *tc.want, s.queue.events[0])
		})
	}
}

func TestEventsIgnoresRetries(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)
	req := signedRequest(t, "/slack/events", "application/json", callbackBody(`{"type":"message","channel":"C1","user":"U1","text":"hey ai","ts":"1.000000"}`))
	req.Header.Set("X-Slack-Retry-Num", "1")

	rec := s.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, s.queue.events)
}

func TestSlashCommand(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)
	form := url.Values{
		"command":    {"/summarize"},
		"text":       {"the last 2 days"},
		"channel_id": {"C1"},
		"user_id":    {"U1"},
		"team_id":    {"T1"},
	}
	rec := s.do(signedRequest(t, "/slack/commands", "application/x-www-form-urlencoded", form.Encode()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.DefaultMessages.SlashAck, rec.Body.String())
	require.Len(t, s.queue.events, 1)
	assert.Equal(t, event.Event{Kind: event.KindSummarizeChannel, Channel: "C1", User: "U1", Text: "the last 2 days"}, s.queue.events[0])
}

func TestSlashCommandQueueFull(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)
	s.queue.err = dispatch.ErrQueueFull
	form := url.Values{"command": {"/summarize"}, "channel_id": {"C1"}, "user_id": {"U1"}}
	rec := s.do(signedRequest(t, "/slack/commands", "application/x-www-form-urlencoded", form.Encode()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.DefaultMessages.UnableToRespond, rec.Body.String())
}

func TestMessageShortcut(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)
	payload := map[string]any{
		"type":        "message_action",
		"callback_id": "summarize_thread",
		"channel":     map[string]any{"id": "C1"},
		"user":        map[string]any{"id": "U1"},
		"message":     map[string]any{"ts": "5.000000", "thread_ts": "1.000000"},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	form := url.Values{"payload": {string(raw)}}

	rec := s.do(signedRequest(t, "/slack/interactions", "application/x-www-form-urlencoded", form.Encode()))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, s.queue.events, 1)
	assert.Equal(t, event.Event{Kind: event.KindSummarizeThread, Channel: "C1", User: "U1", Timestamp: "5.000000", ThreadTimestamp: "1.000000"}, s.queue.events[0])
}

func pushBody(t *testing.T, data []byte) string {
	t.Helper()
	env := map[string]any{
		"message":      map[string]any{"data": base64.StdEncoding.EncodeToString(data), "messageId": "m1"},
		"subscription": "projects/demo/subscriptions/slack-messages",
	}
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return string(raw)
}

func TestPubSubPushHandledInline(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)
	data := []byte(`{"entrypoint":"greetings","channel":"C1","user":"U1","ts":"1.000000","text":"hey ai"}`)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(pushBody(t, data)))
	req.Header.Set("Content-Type", "application/json")

	rec := s.do(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, *s.inline, 1)
	assert.Equal(t, event.KindGreetings, (*s.inline)[0].Kind)
	assert.Empty(t, s.queue.events)
}

func TestPubSubMalformedIsAcknowledged(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "not an envelope", body: `{"hello":"world"}`},
		{name: "bad base64", body: `{"message":{"data":"***"},"subscription":"s"}`},
		{name: "invalid event", body: pushBody(t, []byte(`{"entrypoint":"greetings"}`))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, false)
			rec := s.do(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body)))
			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Empty(t, *s.inline)
		})
	}
}

func TestEnqueueFailureStillAcksEvents(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)
	s.queue.err = errors.New("stopped")
	rec := s.do(signedRequest(t, "/slack/events", "application/json", callbackBody(`{"type":"message","channel":"C1","user":"U1","text":"hey ai","ts":"1.000000"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
