// Package relay fans chart, gallery and snapshot events out to SSE clients.
package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const subscriberBufSize = 256

// Feed names published by the service.
const (
	FeedChart    = "chart"
	FeedGallery  = "gallery"
	FeedSnapshot = "snapshot"
)

// Event is one message on a feed. Payload is pre-encoded JSON.
type Event struct {
	ID      uint64
	Feed    string
	Payload string
	At      time.Time
}

// Broker fans out events to all subscribers. Slow subscribers lose events
// rather than blocking publishers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextSub     atomic.Int64
	nextEvent   atomic.Uint64
	dropped     atomic.Uint64
	now         func() time.Time
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
		now:         time.Now,
	}
}

// Subscribe registers a client and returns its id and event channel.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextSub.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a client and closes its channel. Unknown ids are ignored.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish stamps evt with an id and time and offers it to every subscriber.
func (b *Broker) Publish(evt Event) {
	evt.ID = b.nextEvent.Add(1)
	if evt.At.IsZero() {
		evt.At = b.now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// PublishJSON encodes v and publishes it on feed.
func (b *Broker) PublishJSON(feed string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("relay: encode %s event: %w", feed, err)
	}
	b.Publish(Event{Feed: feed, Payload: string(payload)})
	return nil
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped counts deliveries skipped because a subscriber's buffer was full.
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}
