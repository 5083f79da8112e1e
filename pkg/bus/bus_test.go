package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusBus_FanOut(t *testing.T) {
	sb := NewStatusBus()
	defer sb.Close()

	_, a := sb.Subscribe(4)
	_, b := sb.Subscribe(4)

	sb.Publish(StatusEvent{Type: EventState, State: "open"})

	for _, ch := range []<-chan StatusEvent{a, b} {
		evt := <-ch
		assert.Equal(t, "open", evt.State)
		assert.False(t, evt.Time.IsZero())
	}
}

func TestStatusBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	sb := NewStatusBus()
	defer sb.Close()

	_, ch := sb.Subscribe(1)
	sb.Publish(StatusEvent{Type: EventState, State: "connecting"})
	sb.Publish(StatusEvent{Type: EventState, State: "open"})

	evt := <-ch
	assert.Equal(t, "connecting", evt.State)
	assert.Equal(t, uint64(1), sb.Dropped())

	last, ok := sb.Last()
	require.True(t, ok)
	assert.Equal(t, "open", last.State)
}

func TestStatusBus_UnsubscribeClosesChannel(t *testing.T) {
	sb := NewStatusBus()
	id, ch := sb.Subscribe(1)
	sb.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	sb.Unsubscribe(id)
}

func TestStatusBus_CloseIsIdempotent(t *testing.T) {
	sb := NewStatusBus()
	_, ch := sb.Subscribe(1)

	sb.Close()
	sb.Close()
	sb.Publish(StatusEvent{Type: EventState})

	_, open := <-ch
	assert.False(t, open)

	_, late := sb.Subscribe(1)
	_, open = <-late
	assert.False(t, open)

	_, ok := sb.Last()
	assert.False(t, ok)
}
