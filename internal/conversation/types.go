// Package conversation defines the request-scoped value types shared by the
// history, turn aggregation, window selection and reply composition stages.
package conversation

// Role identifies the speaker of a Turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Author identifies who wrote a RawMessage.
type Author struct {
	ID    string
	IsBot bool
}

// Attachment is a file reference carried by a message. The bytes are fetched
// lazily during aggregation.
type Attachment struct {
	URL      string
	MIMEType string
	Name     string
}

// RawMessage is one platform message as fetched. Timestamp doubles as the
// sort key and the identity of the message.
type RawMessage struct {
	Timestamp           string
	Author              Author
	Text                string
	Attachments         []Attachment
	ThreadRootTimestamp string
	ReplyUsers          []string
}

// Role returns the conversational role the message maps to.
func (m RawMessage) Role() Role {
	if m.Author.IsBot {
		return RoleModel
	}
	return RoleUser
}

// HistoryWindow describes which slice of history to fetch: a full thread when
// ThreadRootTimestamp is set, otherwise the channel from Oldest up to now.
type HistoryWindow struct {
	Channel             string
	ThreadRootTimestamp string
	Oldest              string
}

// ThreadWindow returns a window covering every reply of a thread.
func ThreadWindow(channel, root string) HistoryWindow {
	return HistoryWindow{Channel: channel, ThreadRootTimestamp: root}
}

// ChannelWindow returns a window covering a channel from oldest up to now.
func ChannelWindow(channel, oldest string) HistoryWindow {
	return HistoryWindow{Channel: channel, Oldest: oldest}
}

// IsThread reports whether the window targets a thread.
func (w HistoryWindow) IsThread() bool {
	return w.ThreadRootTimestamp != ""
}

// Part is a piece of a Turn: either text or binary content with a MIME type.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// IsText reports whether the part carries text.
func (p Part) IsText() bool {
	return p.Data == nil
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// BlobPart builds a binary part.
func BlobPart(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

// Turn is one role-tagged conversational unit. Parts is never empty for a
// Turn returned by the aggregator.
type Turn struct {
	Role  Role
	Parts []Part
}

// TurnSequence is an ordered list of turns where no two adjacent turns share
// a role.
type TurnSequence []Turn

// WithInstruction returns a copy of the sequence with text appended as a
// trailing user part. A trailing user turn is extended rather than followed
// by a second user turn.
func (s TurnSequence) WithInstruction(text string) TurnSequence {
	out := make(TurnSequence, len(s), len(s)+1)
	copy(out, s)
	if len(out) > 0 && out[len(out)-1].Role == RoleUser {
		last := out[len(out)-1]
		parts := make([]Part, len(last.Parts), len(last.Parts)+1)
		copy(parts, last.Parts)
		out[len(out)-1] = Turn{Role: RoleUser, Parts: append(parts, TextPart(text))}
		return out
	}
	return append(out, Turn{Role: RoleUser, Parts: []Part{TextPart(text)}})
}

// LookbackSpec is the derived channel history duration in hours.
type LookbackSpec struct {
	Hours float64
}

// DefaultLookbackHours is used whenever the lookback cannot be derived.
const DefaultLookbackHours = 1.0

// GenerationConfig tunes a single model call.
type GenerationConfig struct {
	Temperature float32
	MaxTokens   int32
	TopP        float32
	TopK        float32
}
