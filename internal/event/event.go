// Package event defines the validated bot events produced at ingress and
// consumed by the flow handlers.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Kind names the flow an event is routed to.
type Kind string

// Event kinds. The string values are the wire "entrypoint" names.
const (
	KindGreetings        Kind = "greetings"
	KindThreadReply      Kind = "thread_reply"
	KindSummarizeThread  Kind = "summarize_thread_request"
	KindSummarizeChannel Kind = "summarize_channel_request"
)

// Event is a classified Slack interaction.
type Event struct {
	Kind            Kind   `json:"entrypoint"               validate:"required,oneof=greetings thread_reply summarize_thread_request summarize_channel_request"`
	Channel         string `json:"channel"                  validate:"required"`
	User            string `json:"user"                     validate:"required"`
	Timestamp       string `json:"ts,omitempty"             validate:"required_unless=Kind summarize_channel_request"`
	ThreadTimestamp string `json:"thread_ts,omitempty"      validate:"excluded_if=Kind greetings"`
	Text            string `json:"text,omitempty"`
	ParentUserID    string `json:"parent_user_id,omitempty"`
}

// ThreadRoot returns the timestamp of the thread the event belongs to, or
// the event's own timestamp when it is not in a thread.
func (e Event) ThreadRoot() string {
	if e.ThreadTimestamp != "" {
		return e.ThreadTimestamp
	}
	return e.Timestamp
}

// MalformedEventError reports an event that failed decoding or validation.
type MalformedEventError struct {
	Reason string
	Err    error
}

func (e *MalformedEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed event: %s: %v", e.Reason, e.Err)
	}
	return "malformed event: " + e.Reason
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the event against the per-kind field requirements.
func (e Event) Validate() error {
	if err := validate.Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+":"+fe.Tag())
			}
			return &MalformedEventError{Reason: "invalid fields " + strings.Join(fields, ","), Err: err}
		}
		return &MalformedEventError{Reason: "validation failed", Err: err}
	}
	if e.Kind == KindThreadReply && (e.ThreadTimestamp == "" || e.ParentUserID == "") {
		return &MalformedEventError{Reason: "thread_reply requires thread_ts and parent_user_id"}
	}
	if e.Kind == KindSummarizeThread && e.ThreadRoot() == "" {
		return &MalformedEventError{Reason: "summarize_thread_request requires a thread root"}
	}
	return nil
}

// Decode parses and validates a JSON encoded event.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, &MalformedEventError{Reason: "invalid json", Err: err}
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
