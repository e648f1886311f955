// Package bus provides the in-process event bus that fans call lifecycle
// events out to subscribers (WebSocket sessions, tests, future consumers).
//
// Delivery is best effort: each subscriber owns a buffered channel, and a
// publish never blocks on a slow consumer. A subscriber that lets its buffer
// fill up is dropped and its channel closed; readers observe the close and
// re-subscribe if they still care. There is no persistence and no replay.
package bus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/voicegate/internal/logger"
	"github.com/marmos91/voicegate/pkg/call"
)

// subscriberBuffer is the per-subscriber channel capacity. A WebSocket
// session that falls more than this many events behind is dropped.
const subscriberBuffer = 64

// Bus fans published events out to all current subscribers.
//
// All methods are safe for concurrent use. Publish holds the bus lock for
// the duration of the fan-out, so events published from a single goroutine
// arrive at every surviving subscriber in publish order.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan call.Event
	closed      bool
	metrics     BusMetrics
}

// New creates an empty bus. metrics may be nil to disable instrumentation.
func New(metrics BusMetrics) *Bus {
	return &Bus{
		subscribers: make(map[string]chan call.Event),
		metrics:     metrics,
	}
}

// Subscribe registers a new subscriber and returns its ID together with the
// channel events will arrive on. The channel is closed when the subscriber
// is dropped, unsubscribed, or the bus shuts down.
func (b *Bus) Subscribe() (string, <-chan call.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan call.Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return "", ch
	}

	id := uuid.NewString()
	b.subscribers[id] = ch
	b.recordSubscriberCount()

	logger.Debug("event subscriber registered",
		"subscriber_id", id,
		"subscribers", len(b.subscribers))

	return id, ch
}

// Unsubscribe removes the subscriber and closes its channel. Unknown IDs are
// ignored, so it is safe to call after the subscriber was already dropped.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[id]
	if !ok {
		return
	}

	delete(b.subscribers, id)
	close(ch)
	b.recordSubscriberCount()

	logger.Debug("event subscriber removed",
		"subscriber_id", id,
		"subscribers", len(b.subscribers))
}

// Publish delivers ev to every subscriber. It never blocks: a subscriber
// whose buffer is full is dropped on the spot, mirroring how a WebSocket hub
// sheds clients that stop reading. Publishing on a closed bus is a no-op.
func (b *Bus) Publish(ev call.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	if b.metrics != nil {
		b.metrics.RecordPublish(string(ev.Kind()))
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			delete(b.subscribers, id)
			close(ch)
			if b.metrics != nil {
				b.metrics.RecordDrop()
			}
			logger.Warn("dropping slow event subscriber",
				"subscriber_id", id,
				"buffer", subscriberBuffer,
				"event", string(ev.Kind()))
		}
	}
	b.recordSubscriberCount()
}

// Close drops every subscriber and rejects further publishes. Safe to call
// more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
	b.recordSubscriberCount()
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// recordSubscriberCount pushes the current count to metrics. Callers must
// hold b.mu.
func (b *Bus) recordSubscriberCount() {
	if b.metrics != nil {
		b.metrics.SetSubscriberCount(len(b.subscribers))
	}
}
