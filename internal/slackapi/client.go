// Package slackapi adapts the Slack Web API to the history, attachment and
// posting interfaces used by the bot flows.
package slackapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/slack-go/slack"

	"github.com/edgard/slackai/internal/config"
	"github.com/edgard/slackai/internal/conversation"
	"github.com/edgard/slackai/internal/history"
)

const identityKey = "self"

// accessCodes are Slack error codes that mean the bot cannot read the
// requested conversation.
var accessCodes = map[string]bool{
	"not_in_channel":    true,
	"channel_not_found": true,
	"missing_scope":     true,
	"not_authed":        true,
	"invalid_auth":      true,
	"thread_not_found":  true,
	"access_denied":     true,
}

// Identity is the bot's own Slack identity.
type Identity struct {
	UserID string
	BotID  string
	Name   string
}

// Client wraps a slack-go client.
type Client struct {
	api                *slack.Client
	pageSize           int
	maxAttachmentBytes int64
	attachmentTimeout  time.Duration
	identity           *cache.Cache
	log                *slog.Logger
}

// New creates a Slack client from configuration. Extra options are passed to
// slack-go, e.g. slack.OptionAPIURL in tests.
func New(cfg config.SlackConfig, pageSize int, log *slog.Logger, opts ...slack.Option) *Client {
	opts = append([]slack.Option{slack.OptionHTTPClient(&http.Client{Timeout: 30 * time.Second})}, opts...)
	ttl := cfg.IdentityTTL
	if ttl <= 0 {
		ttl = config.DefaultIdentityTTL
	}
	return &Client{
		api:                slack.New(cfg.BotToken, opts...),
		pageSize:           pageSize,
		maxAttachmentBytes: cfg.MaxAttachmentBytes,
		attachmentTimeout:  cfg.AttachmentTimeout,
		identity:           cache.New(ttl, 2*ttl),
		log:                log.With("component", "slack_client"),
	}
}

// Identity returns the bot identity from auth.test, cached for the
// configured TTL.
func (c *Client) Identity(ctx context.Context) (Identity, error) {
	if v, ok := c.identity.Get(identityKey); ok {
		return v.(Identity), nil
	}

	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("slack auth.test failed: %w", err)
	}
	id := Identity{UserID: resp.UserID, BotID: resp.BotID, Name: resp.User}
	c.identity.Set(identityKey, id, cache.DefaultExpiration)
	c.log.InfoContext(ctx, "Resolved bot identity", "user_id", id.UserID, "bot_id", id.BotID, "name", id.Name)
	return id, nil
}

// History reads one page of conversations.history.
func (c *Client) History(ctx context.Context, q history.Query) (history.Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = c.pageSize
	}
	resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: q.Channel,
		Cursor:    q.Cursor,
		Inclusive: q.Inclusive,
		Latest:    q.Latest,
		Oldest:    q.Oldest,
		Limit:     limit,
	})
	if err != nil {
		return history.Page{}, classify(q.Channel, err)
	}

	return history.Page{
		Messages:   toRawMessages(resp.Messages),
		HasMore:    resp.HasMore,
		NextCursor: resp.ResponseMetaData.NextCursor,
	}, nil
}

// Replies reads one page of conversations.replies.
func (c *Client) Replies(ctx context.Context, q history.Query) (history.Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = c.pageSize
	}
	msgs, hasMore, next, err := c.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: q.Channel,
		Timestamp: q.Thread,
		Cursor:    q.Cursor,
		Inclusive: q.Inclusive,
		Latest:    q.Latest,
		Oldest:    q.Oldest,
		Limit:     limit,
	})
	if err != nil {
		return history.Page{}, classify(q.Channel, err)
	}

	return history.Page{Messages: toRawMessages(msgs), HasMore: hasMore, NextCursor: next}, nil
}

// Fetch downloads a private file with the bot token.
func (c *Client) Fetch(ctx context.Context, url, mimeType string) ([]byte, string, error) {
	if url == "" {
		return nil, "", errors.New("attachment has no download url")
	}
	if c.attachmentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.attachmentTimeout)
		defer cancel()
	}

	w := &limitedBuffer{max: c.maxAttachmentBytes}
	if err := c.api.GetFileContext(ctx, url, w); err != nil {
		return nil, "", fmt.Errorf("download %s: %w", url, err)
	}
	if len(w.buf) == 0 {
		return nil, "", fmt.Errorf("download %s: empty body", url)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(w.buf)
	}
	return w.buf, mimeType, nil
}

// PostMessage posts text to channel, in the thread threadTS when set.
func (c *Client) PostMessage(ctx context.Context, channel, threadTS, text string) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, ts, err := c.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return fmt.Errorf("chat.postMessage to %s: %w", channel, err)
	}
	c.log.DebugContext(ctx, "Posted message", "channel", channel, "thread_ts", threadTS, "ts", ts)
	return nil
}

// PostEphemeral posts text visible only to user.
func (c *Client) PostEphemeral(ctx context.Context, channel, user, text string) error {
	ts, err := c.api.PostEphemeralContext(ctx, channel, user, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("chat.postEphemeral to %s in %s: %w", user, channel, err)
	}
	c.log.DebugContext(ctx, "Posted ephemeral message", "channel", channel, "user", user, "ts", ts)
	return nil
}

func classify(channel string, err error) error {
	code := err.Error()
	var slackErr slack.SlackErrorResponse
	if errors.As(err, &slackErr) {
		code = slackErr.Err
	}
	if accessCodes[code] {
		return &conversation.HistoryAccessError{Channel: channel, Code: code, Err: err}
	}
	return fmt.Errorf("slack read %s: %w", channel, err)
}

func toRawMessages(msgs []slack.Message) []conversation.RawMessage {
	out := make([]conversation.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toRawMessage(m))
	}
	return out
}

func toRawMessage(m slack.Message) conversation.RawMessage {
	author := conversation.Author{ID: m.User}
	if m.BotID != "" || m.SubType == "bot_message" {
		author.IsBot = true
		if author.ID == "" {
			author.ID = m.BotID
		}
	}

	var atts []conversation.Attachment
	for _, f := range m.Files {
		url := f.URLPrivateDownload
		if url == "" {
			url = f.URLPrivate
		}
		atts = append(atts, conversation.Attachment{URL: url, MIMEType: f.Mimetype, Name: f.Name})
	}

	return conversation.RawMessage{
		Timestamp:           m.Timestamp,
		Author:              author,
		Text:                m.Text,
		Attachments:         atts,
		ThreadRootTimestamp: m.ThreadTimestamp,
		ReplyUsers:          m.ReplyUsers,
	}
}

// limitedBuffer collects a download and fails once max bytes are exceeded.
type limitedBuffer struct {
	buf []byte
	max int64
}

var errTooLarge = errors.New("attachment exceeds size limit")

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.max > 0 && int64(len(b.buf)+len(p)) > b.max {
		return 0, errTooLarge
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

var _ io.Writer = (*limitedBuffer)(nil)
