package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishConsume(t *testing.T) {
	mb := NewMessageBus(4)
	ctx := context.Background()

	require.NoError(t, mb.PublishInbound(ctx, InboundMessage{Source: 100, Content: "hello"}))
	assert.Equal(t, 1, mb.Pending())

	msg, ok := mb.ConsumeInbound(ctx)
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, 0, mb.Pending())
}

func TestPublishAfterClose(t *testing.T) {
	mb := NewMessageBus(1)
	mb.Close()
	mb.Close()

	err := mb.PublishInbound(context.Background(), InboundMessage{})
	assert.ErrorIs(t, err, ErrBusClosed)

	_, ok := mb.ConsumeInbound(context.Background())
	assert.False(t, ok)
}

func TestConsumeDrainsAfterClose(t *testing.T) {
	mb := NewMessageBus(4)
	ctx := context.Background()
	require.NoError(t, mb.PublishInbound(ctx, InboundMessage{Content: "one"}))
	require.NoError(t, mb.PublishInbound(ctx, InboundMessage{Content: "two"}))
	mb.Close()

	msg, ok := mb.ConsumeInbound(ctx)
	require.True(t, ok)
	assert.Equal(t, "one", msg.Content)
	msg, ok = mb.ConsumeInbound(ctx)
	require.True(t, ok)
	assert.Equal(t, "two", msg.Content)

	_, ok = mb.ConsumeInbound(ctx)
	assert.False(t, ok)
}

func TestPublishBlocksUntilContextDone(t *testing.T) {
	mb := NewMessageBus(1)
	require.NoError(t, mb.PublishInbound(context.Background(), InboundMessage{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := mb.PublishInbound(ctx, InboundMessage{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConsumeReturnsOnCancel(t *testing.T) {
	mb := NewMessageBus(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := mb.ConsumeInbound(ctx)
	assert.False(t, ok)
}
