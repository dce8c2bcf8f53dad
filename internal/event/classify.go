package event

import (
	"fmt"
	"regexp"

	"github.com/slack-go/slack"
)

// Message is the subset of a Slack message event used for classification.
type Message struct {
	Channel         string
	User            string
	BotID           string
	SubType         string
	Text            string
	Timestamp       string
	ThreadTimestamp string
	ParentUserID    string
}

// Subtypes that still carry a human authored message.
var humanSubTypes = map[string]bool{
	"":                 true,
	"thread_broadcast": true,
	"file_share":       true,
}

// Classifier maps raw Slack interactions onto bot events.
type Classifier struct {
	greeting       *regexp.Regexp
	command        string
	threadCallback string
}

// NewClassifier compiles the greeting pattern and records the slash command
// and message shortcut callback that trigger summaries.
func NewClassifier(greetingPattern, command, threadCallback string) (*Classifier, error) {
	re, err := regexp.Compile(greetingPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid greeting pattern %q: %w", greetingPattern, err)
	}
	return &Classifier{greeting: re, command: command, threadCallback: threadCallback}, nil
}

// Message classifies a channel message. Replies in a thread become
// thread_reply events; top level messages matching the greeting pattern
// become greetings. Bot authored messages and edits are ignored.
func (c *Classifier) Message(m Message, botUserID string) (Event, bool) {
	if m.BotID != "" || !humanSubTypes[m.SubType] || m.User == "" {
		return Event{}, false
	}
	if botUserID != "" && m.User == botUserID {
		return Event{}, false
	}

	if m.ThreadTimestamp != "" && m.ParentUserID != "" {
		return Event{
			Kind:            KindThreadReply,
			Channel:         m.Channel,
			User:            m.User,
			Timestamp:       m.Timestamp,
			ThreadTimestamp: m.ThreadTimestamp,
			Text:            m.Text,
			ParentUserID:    m.ParentUserID,
		}, true
	}

	if m.ThreadTimestamp == "" && c.greeting.MatchString(m.Text) {
		return Event{
			Kind:      KindGreetings,
			Channel:   m.Channel,
			User:      m.User,
			Timestamp: m.Timestamp,
			Text:      m.Text,
		}, true
	}
	return Event{}, false
}

// Command classifies a slash command.
func (c *Classifier) Command(cmd slack.SlashCommand) (Event, bool) {
	if cmd.Command != c.command {
		return Event{}, false
	}
	return Event{
		Kind:    KindSummarizeChannel,
		Channel: cmd.ChannelID,
		User:    cmd.UserID,
		Text:    cmd.Text,
	}, true
}

// Shortcut classifies a message shortcut invocation.
func (c *Classifier) Shortcut(cb slack.InteractionCallback) (Event, bool) {
	if cb.Type != slack.InteractionTypeMessageAction || cb.CallbackID != c.threadCallback {
		return Event{}, false
	}
	root := cb.Message.ThreadTimestamp
	if root == "" {
		root = cb.Message.Timestamp
	}
	return Event{
		Kind:            KindSummarizeThread,
		Channel:         cb.Channel.ID,
		User:            cb.User.ID,
		Timestamp:       cb.Message.Timestamp,
		ThreadTimestamp: root,
	}, true
}
