// Package bus decouples platform event delivery from relay processing.
// The platform adapter publishes one InboundMessage per received message;
// the relay engine consumes them from its worker pool.
package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed MessageBus.
var ErrBusClosed = errors.New("message bus closed")

const defaultQueueSize = 100

type MessageBus struct {
	inbound chan InboundMessage
	done    chan struct{}
	closed  atomic.Bool
}

// NewMessageBus creates a bus buffering up to size messages. A non-positive
// size uses the default.
func NewMessageBus(size int) *MessageBus {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &MessageBus{
		inbound: make(chan InboundMessage, size),
		done:    make(chan struct{}),
	}
}

func (mb *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	if mb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case mb.inbound <- msg:
		return nil
	case <-mb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeInbound returns the next message. After Close it keeps handing out
// buffered messages and reports false once the buffer is empty.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-mb.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	case <-mb.done:
		select {
		case msg := <-mb.inbound:
			return msg, true
		default:
			return InboundMessage{}, false
		}
	}
}

// Pending returns the number of queued, unconsumed messages.
func (mb *MessageBus) Pending() int { return len(mb.inbound) }

func (mb *MessageBus) Close() {
	if mb.closed.CompareAndSwap(false, true) {
		close(mb.done)
	}
}
