package monitor

import (
	"sync"

	"github.com/wallet-monitor/internal/types"
)

const defaultSubscriberBuffer = 64

// EventBus fans status events out to subscribers. Publishing never blocks:
// a subscriber that falls behind loses events rather than stalling checks.
type EventBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan types.StatusEvent
}

// Subscription is a live event feed. Close it when done to release the
// channel.
type Subscription struct {
	C      <-chan types.StatusEvent
	cancel func()
}

// Close unsubscribes and closes the event channel.
func (s *Subscription) Close() {
	s.cancel()
}

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan types.StatusEvent)}
}

// Subscribe registers a new subscriber.
func (b *EventBus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan types.StatusEvent, defaultSubscriberBuffer)
	b.subs[id] = ch

	return &Subscription{
		C: ch,
		cancel: func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		},
	}
}

// Publish delivers an event to every subscriber, dropping it for any
// subscriber whose buffer is full.
func (b *EventBus) Publish(event types.StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *EventBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
