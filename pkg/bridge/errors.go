package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrSelfLink is returned when both endpoints of a bridge are the same channel.
	ErrSelfLink = errors.New("cannot bridge a channel to itself")
	// ErrDuplicateBridge is returned when the pair is already linked in either orientation.
	ErrDuplicateBridge = errors.New("channels are already bridged")
)

// ChannelUnresolvableError reports a channel the platform cannot currently see.
type ChannelUnresolvableError struct {
	Channel ChannelID
}

func (e *ChannelUnresolvableError) Error() string {
	return fmt.Sprintf("channel %s cannot be resolved", e.Channel)
}

// PersistenceError wraps a failure of the underlying Store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("bridge store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsUserError reports whether err is a validation failure that should be shown
// to the person who issued the command rather than logged as a fault.
func IsUserError(err error) bool {
	return errors.Is(err, ErrSelfLink) || errors.Is(err, ErrDuplicateBridge)
}
