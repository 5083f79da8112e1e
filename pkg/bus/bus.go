package bus

import (
	"sync"
	"time"
)

// StatusBus fans status events out to every subscriber. A subscriber that
// falls behind loses events instead of blocking the publisher.
type StatusBus struct {
	subs    map[uint64]chan StatusEvent
	nextID  uint64
	last    *StatusEvent
	dropped uint64
	closed  bool
	mu      sync.RWMutex
}

var _ Broker = (*StatusBus)(nil)

func NewStatusBus() *StatusBus {
	return &StatusBus{
		subs: make(map[uint64]chan StatusEvent),
	}
}

func (sb *StatusBus) Publish(evt StatusEvent) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.closed {
		return
	}
	sb.last = &evt
	for _, ch := range sb.subs {
		select {
		case ch <- evt:
		default:
			sb.dropped++
		}
	}
}

func (sb *StatusBus) Subscribe(buffer int) (uint64, <-chan StatusEvent) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan StatusEvent, buffer)

	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.closed {
		close(ch)
		return 0, ch
	}
	sb.nextID++
	sb.subs[sb.nextID] = ch
	return sb.nextID, ch
}

func (sb *StatusBus) Unsubscribe(id uint64) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if ch, ok := sb.subs[id]; ok {
		delete(sb.subs, id)
		close(ch)
	}
}

// Last returns the most recently published event.
func (sb *StatusBus) Last() (StatusEvent, bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	if sb.last == nil {
		return StatusEvent{}, false
	}
	return *sb.last, true
}

func (sb *StatusBus) Dropped() uint64 {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.dropped
}

func (sb *StatusBus) Close() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.closed {
		return
	}
	sb.closed = true
	for id, ch := range sb.subs {
		delete(sb.subs, id)
		close(ch)
	}
}
