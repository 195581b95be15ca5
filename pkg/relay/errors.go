package relay

import (
	"errors"
	"fmt"

	"github.com/tinyland-inc/crossbridge/pkg/bridge"
)

var errAttachmentTooLarge = errors.New("attachment exceeds size limit")

// AttachmentFetchError means a source attachment could not be read. The
// attachment is omitted and the rest of the message is still relayed.
type AttachmentFetchError struct {
	Filename string
	Err      error
}

func (e *AttachmentFetchError) Error() string {
	return fmt.Sprintf("fetch attachment %q: %v", e.Filename, e.Err)
}

func (e *AttachmentFetchError) Unwrap() error { return e.Err }

// SendError is a failed delivery to one target. Other targets are unaffected
// and the send is not retried.
type SendError struct {
	Target bridge.ChannelID
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to channel %s: %v", e.Target, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
