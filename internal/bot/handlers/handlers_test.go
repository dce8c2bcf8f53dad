package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/slackai/internal/compose"
	"github.com/edgard/slackai/internal/config"
	"github.com/edgard/slackai/internal/conversation"
	"github.com/edgard/slackai/internal/event"
	"github.com/edgard/slackai/internal/gate"
	"github.com/edgard/slackai/internal/history"
	"github.com/edgard/slackai/internal/slackapi"
	"github.com/edgard/slackai/internal/turns"
	"github.com/edgard/slackai/internal/window"
)

const botUserID = "UBOT"

type fakeSource struct {
	mu       sync.Mutex
	lead     []conversation.RawMessage
	channel  []conversation.RawMessage
	thread   []conversation.RawMessage
	fetchErr error
	leadErr  error
	queries  []history.Query
	replies  int
}

func (f *fakeSource) History(_ context.Context, q history.Query) (history.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if q.Limit == 1 && q.Inclusive {
		return history.Page{Messages: f.lead}, f.leadErr
	}
	if f.fetchErr != nil {
		return history.Page{}, f.fetchErr
	}
	return history.Page{Messages: f.channel}, nil
}

func (f *fakeSource) Replies(_ context.Context, q history.Query) (history.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	f.replies++
	if f.fetchErr != nil {
		return history.Page{}, f.fetchErr
	}
	return history.Page{Messages: f.thread}, nil
}

type post struct {
	kind    string
	channel string
	thread  string
	user    string
	text    string
}

type fakePoster struct {
	mu    sync.Mutex
	posts []post
}

func (p *fakePoster) PostMessage(_ context.Context, channel, threadTS, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, post{kind: "message", channel: channel, thread: threadTS, text: text})
	return nil
}

func (p *fakePoster) PostEphemeral(_ context.Context, channel, user, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, post{kind: "ephemeral", channel: channel, user: user, text: text})
	return nil
}

type fakeGemini struct {
	reply     string
	replyErr  error
	prompt    func(prompt string) (string, error)
	generated []conversation.TurnSequence
	prompts   []string
}

func (g *fakeGemini) Generate(_ context.Context, turns conversation.TurnSequence, _ conversation.GenerationConfig) (string, error) {
	g.generated = append(g.generated, turns)
	return g.reply, g.replyErr
}

func (g *fakeGemini) GeneratePrompt(_ context.Context, prompt string, _ conversation.GenerationConfig) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.prompt == nil {
		return "", errors.New("no prompt fake configured")
	}
	return g.prompt(prompt)
}

type fakeIdentity struct{ err error }

func (f fakeIdentity) Identity(context.Context) (slackapi.Identity, error) {
	return slackapi.Identity{UserID: botUserID}, f.err
}

type fixture struct {
	source *fakeSource
	poster *fakePoster
	gemini *fakeGemini
	router *Router
}

func newFixture(t *testing.T, source *fakeSource, gen *fakeGemini) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		Gemini: config.GeminiConfig{
			Reply:    config.DefaultReply,
			Lookback: config.DefaultLookback,
		},
		History:  config.HistoryConfig{MaxPages: 5, FetchTimeout: time.Second},
		Window:   config.WindowConfig{MaxHours: 720},
		Messages: config.DefaultMessages,
	}
	poster := &fakePoster{}
	deps := HandlerDeps{
		Logger:       log,
		Config:       cfg,
		Identity:     fakeIdentity{},
		Fetcher:      history.NewFetcher(source, cfg.History.MaxPages, log),
		Aggregator:   turns.NewAggregator(nil, log),
		Selector:     window.NewSelector(gen, cfg.Gemini.Lookback.Generation(), cfg.Window.MaxHours, log),
		Gate:         gate.New(source, log),
		Composer:     compose.NewComposer(poster, cfg.Messages.UnableToRespond, log),
		GeminiClient: gen,
	}
	return &fixture{source: source, poster: poster, gemini: gen, router: NewRouter(deps)}
}

func msg(ts, user string, bot bool, text string) conversation.RawMessage {
	return conversation.RawMessage{Timestamp: ts, Author: conversation.Author{ID: user, IsBot: bot}, Text: text}
}

func threadReplyEvent() event.Event {
	return event.Event{Kind: event.KindThreadReply, Channel: "C1", User: "U1", Timestamp: "3.000000", ThreadTimestamp: "1.000000", ParentUserID: "U2", Text: "and?"}
}

func TestRegisterAllFlowsCoversEveryKind(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeSource{}, &fakeGemini{})
	for _, kind := range []event.Kind{event.KindGreetings, event.KindThreadReply, event.KindSummarizeThread, event.KindSummarizeChannel} {
		_, ok := f.router.handlers[kind]
		assert.True(t, ok, "handler for %s", kind)
	}
}

func TestGreetingsRepliesInThreadWithMention(t *testing.T) {
	t.Parallel()

	gen := &fakeGemini{prompt: func(string) (string, error) { return "Welcome **friend**!", nil }}
	f := newFixture(t, &fakeSource{}, gen)

	f.router.Handle(context.Background(), event.Event{Kind: event.KindGreetings, Channel: "C1", User: "U1", Timestamp: "9.000000", Text: "hey ai"})

	require.Len(t, f.poster.posts, 1)
	p := f.poster.posts[0]
	assert.Equal(t, post{kind: "message", channel: "C1", thread: "9.000000", text: "<@U1> Welcome *friend*!"}, p)
	assert.Equal(t, []string{config.DefaultMessages.GreetingPrompt}, gen.prompts)
}

func TestGreetingsGenerationFailureSendsFallback(t *testing.T) {
	t.Parallel()

	gen := &fakeGemini{prompt: func(string) (string, error) { return "", &conversation.GenerationError{Op: "generate_prompt"} }}
	f := newFixture(t, &fakeSource{}, gen)

	f.router.Handle(context.Background(), event.Event{Kind: event.KindGreetings, Channel: "C1", User: "U1", Timestamp: "9.000000"})

	require.Len(t, f.poster.posts, 1)
	assert.Equal(t, "<@U1> "+config.DefaultMessages.UnableToRespond, f.poster.posts[0].text)
}

func TestThreadReplyAnswersWithThreadContext(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		lead: []conversation.RawMessage{{Timestamp: "1.000000", ReplyUsers: []string{"U2", botUserID}}},
		thread: []conversation.RawMessage{
			msg("1.000000", "U2", false, "question"),
			msg("2.000000", "B1", true, "answer"),
			msg("3.000000", "U1", false, "and?"),
		},
	}
	gen := &fakeGemini{reply: "more detail"}
	f := newFixture(t, source, gen)

	f.router.Handle(context.Background(), threadReplyEvent())

	require.Len(t, gen.generated, 1)
	turnSeq := gen.generated[0]
	require.Len(t, turnSeq, 3)
	assert.Equal(t, conversation.RoleUser, turnSeq[0].Role)
	assert.Equal(t, conversation.RoleModel, turnSeq[1].Role)
	assert.Equal(t, conversation.RoleUser, turnSeq[2].Role)

	require.Len(t, f.poster.posts, 1)
	assert.Equal(t, post{kind: "message", channel: "C1", thread: "1.000000", text: "more detail"}, f.poster.posts[0])

	require.NotEmpty(t, source.queries)
	lead := source.queries[0]
	assert.Equal(t, history.Query{Channel: "C1", Latest: "1.000000", Inclusive: true, Limit: 1}, lead, "gate reads the lead first")
}

func TestThreadReplySkippedWhenBotNotParticipant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source *fakeSource
	}{
		{name: "not among repliers", source: &fakeSource{lead: []conversation.RawMessage{{Timestamp: "1.000000", ReplyUsers: []string{"U2"}}}}},
		{name: "no reply list", source: &fakeSource{lead: []conversation.RawMessage{{Timestamp: "1.000000"}}}},
		{name: "no lead", source: &fakeSource{}},
		{name: "lead read fails", source: &fakeSource{leadErr: errors.New("boom")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tc.source.thread = []conversation.RawMessage{msg("1.000000", "U2", false, "question")}
			gen := &fakeGemini{reply: "unused"}
			f := newFixture(t, tc.source, gen)

			f.router.Handle(context.Background(), threadReplyEvent())

			assert.Zero(t, tc.source.replies, "no history is aggregated")
			assert.Empty(t, gen.generated)
			assert.Empty(t, f.poster.posts)
		})
	}
}

func TestThreadReplyGenerationFailureSendsFallback(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		lead:   []conversation.RawMessage{{Timestamp: "1.000000", ReplyUsers: []string{botUserID}}},
		thread: []conversation.RawMessage{msg("1.000000", "U2", false, "question")},
	}
	gen := &fakeGemini{replyErr: &conversation.GenerationError{Op: "generate", Err: errors.New("quota")}}
	f := newFixture(t, source, gen)

	f.router.Handle(context.Background(), threadReplyEvent())

	require.Len(t, f.poster.posts, 1)
	assert.Equal(t, config.DefaultMessages.UnableToRespond, f.poster.posts[0].text)
	assert.NotEmpty(t, strings.TrimSpace(f.poster.posts[0].text))
}

func TestSummarizeThreadIsEphemeral(t *testing.T) {
	t.Parallel()

	source := &fakeSource{thread: []conversation.RawMessage{
		msg("1.000000", "U2", false, "plan"),
		msg("2.000000", "U3", false, "agree"),
	}}
	gen := &fakeGemini{reply: "- plan agreed"}
	f := newFixture(t, source, gen)

	f.router.Handle(context.Background(), event.Event{Kind: event.KindSummarizeThread, Channel: "C1", User: "U9", Timestamp: "2.000000", ThreadTimestamp: "1.000000"})

	require.Len(t, gen.generated, 1)
	turnSeq := gen.generated[0]
	require.Len(t, turnSeq, 1, "instruction merges into the trailing user turn")
	last := turnSeq[0].Parts[len(turnSeq[0].Parts)-1]
	assert.Equal(t, config.DefaultMessages.SummarizeThread, last.Text)

	require.Len(t, f.poster.posts, 1)
	assert.Equal(t, post{kind: "ephemeral", channel: "C1", user: "U9", text: "- plan agreed"}, f.poster.posts[0])
}

func TestSummarizeChannelUsesLookbackWindow(t *testing.T) {
	t.Parallel()

	source := &fakeSource{channel: []conversation.RawMessage{msg("1699999000.000000", "U2", false, "status")}}
	gen := &fakeGemini{
		prompt: func(string) (string, error) { return "24", nil },
		reply:  "all good",
	}
	f := newFixture(t, source, gen)

	f.router.Handle(context.Background(), event.Event{Kind: event.KindSummarizeChannel, Channel: "C1", User: "U9", Timestamp: "1700086400.000000", Text: "summarize the last day"})

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "summarize the last day")

	require.NotEmpty(t, source.queries)
	assert.Equal(t, "1700000000.000000", source.queries[0].Oldest)

	require.Len(t, f.poster.posts, 1)
	assert.Equal(t, "ephemeral", f.poster.posts[0].kind)
	assert.Equal(t, "all good", f.poster.posts[0].text)
}

func TestSummarizeChannelWithoutAccessSendsDirectMessage(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fetchErr: &conversation.HistoryAccessError{Channel: "C1", Code: "not_in_channel"}}
	gen := &fakeGemini{prompt: func(string) (string, error) { return "1", nil }, reply: "unused"}
	f := newFixture(t, source, gen)

	f.router.Handle(context.Background(), event.Event{Kind: event.KindSummarizeChannel, Channel: "C1", User: "U9"})

	assert.Empty(t, gen.generated)
	require.Len(t, f.poster.posts, 1)
	assert.Equal(t, post{kind: "message", channel: "U9", text: config.DefaultMessages.NoAccess}, f.poster.posts[0])
}

func TestSummarizeEmptyWindow(t *testing.T) {
	t.Parallel()

	gen := &fakeGemini{prompt: func(string) (string, error) { return "1", nil }}
	f := newFixture(t, &fakeSource{}, gen)

	f.router.Handle(context.Background(), event.Event{Kind: event.KindSummarizeChannel, Channel: "C1", User: "U9"})

	assert.Empty(t, gen.generated)
	require.Len(t, f.poster.posts, 1)
	assert.Equal(t, config.DefaultMessages.NothingToSummarize, f.poster.posts[0].text)
}

func TestSummarizeFetchFailureSendsFallback(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fetchErr: errors.New("ratelimited")}
	f := newFixture(t, source, &fakeGemini{})

	f.router.Handle(context.Background(), event.Event{Kind: event.KindSummarizeThread, Channel: "C1", User: "U9", Timestamp: "1.000000", ThreadTimestamp: "1.000000"})

	require.Len(t, f.poster.posts, 1)
	assert.Equal(t, post{kind: "ephemeral", channel: "C1", user: "U9", text: config.DefaultMessages.UnableToRespond}, f.poster.posts[0])
}

func TestRouterIgnoresUnknownKind(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeSource{}, &fakeGemini{})
	f.router.Handle(context.Background(), event.Event{Kind: "wave"})
	assert.Empty(t, f.poster.posts)
}
