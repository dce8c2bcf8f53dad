package conversation

import "fmt"

// HistoryAccessError reports that the platform refused a history read, for
// example because the bot is not a member of the channel.
type HistoryAccessError struct {
	Channel string
	Code    string
	Err     error
}

func (e *HistoryAccessError) Error() string {
	return fmt.Sprintf("history access denied for channel %s: %s", e.Channel, e.Code)
}

func (e *HistoryAccessError) Unwrap() error { return e.Err }

// GenerationError reports a failed or empty model call.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: generation failed", e.Op)
	}
	return fmt.Sprintf("%s: generation failed: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// AttachmentFetchError reports a single attachment that could not be
// retrieved. It is recoverable: aggregation skips the attachment.
type AttachmentFetchError struct {
	URL string
	Err error
}

func (e *AttachmentFetchError) Error() string {
	return fmt.Sprintf("fetch attachment %s: %v", e.URL, e.Err)
}

func (e *AttachmentFetchError) Unwrap() error { return e.Err }
