// Package queue implements the per-worker-type task queues with bounded
// concurrency, FIFO admission, retry with backoff, and lifecycle events.
package queue

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harperlabs/concierge/pkg/models"
)

// subscriber is one registered event consumer with its own buffer.
type subscriber struct {
	id      int
	ch      chan models.Event
	dropped atomic.Uint64
}

// EventBroker fans lifecycle events out to an explicit subscriber list.
// Each subscriber gets its own buffered channel; a slow subscriber only
// drops its own events. Within one subscriber, progress events for a
// given task arrive in emission order, so observed percents are
// non-decreasing.
type EventBroker struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	closed bool

	droppedTotal atomic.Uint64
}

// NewEventBroker creates an EventBroker with no subscribers.
func NewEventBroker() *EventBroker {
	return &EventBroker{subs: make(map[int]*subscriber)}
}

// Subscribe registers a consumer and returns its event channel plus an
// unsubscribe function. The channel is closed on unsubscribe or broker
// close.
func (b *EventBroker) Subscribe(buffer int) (<-chan models.Event, func()) {
	if buffer <= 0 {
		buffer = 100
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{id: b.nextID, ch: make(chan models.Event, buffer)}
	b.nextID++

	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[sub.id] = sub

	return sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[sub.id]; ok {
			delete(b.subs, sub.id)
			close(sub.ch)
		}
	}
}

// Emit delivers an event to every subscriber. If a subscriber's buffer
// is full the event is dropped for that subscriber and counted.
func (b *EventBroker) Emit(event models.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			count := sub.dropped.Add(1)
			total := b.droppedTotal.Add(1)
			if count%10 == 1 { // Log every 10th drop to avoid spam
				log.Printf("[events] WARNING: subscriber %d buffer full, dropped event (total dropped: %d): type=%s task=%s",
					sub.id, total, event.Type, event.TaskID)
			}
		}
	}
}

// DroppedCount returns the total events dropped across all subscribers.
func (b *EventBroker) DroppedCount() uint64 {
	return b.droppedTotal.Load()
}

// SubscriberCount returns the number of registered subscribers.
func (b *EventBroker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Emit becomes a no-op.
func (b *EventBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
