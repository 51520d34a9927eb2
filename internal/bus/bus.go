// Package bus provides an in-process topic bus. Broadcasts from the
// scheduler are published here, and message triggers subscribe to topics.
package bus

import (
	"sync"
	"time"

	"github.com/vega-swarm/vega/pkg/types"
)

// Bus is a topic-keyed publish/subscribe hub. Delivery is non-blocking;
// a subscriber that falls behind loses messages rather than stalling the
// publisher.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan types.BusMessage
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[int]chan types.BusMessage)}
}

// Subscribe returns a channel of messages for the topic and a cancel
// function. The channel is closed when the subscription is cancelled.
func (b *Bus) Subscribe(topic string) (<-chan types.BusMessage, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan types.BusMessage, 16)

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan types.BusMessage)
	}
	b.subs[topic][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[topic]; ok {
			if c, ok := set[id]; ok {
				delete(set, id)
				close(c)
			}
			if len(set) == 0 {
				delete(b.subs, topic)
			}
		}
	}
	return ch, cancel
}

// Publish delivers the message to every subscriber of the topic and
// returns the number of subscribers it reached.
func (b *Bus) Publish(topic string, msg types.BusMessage) int {
	msg.Topic = topic
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
			delivered++
		default:
			// Subscriber is full, drop rather than block the publisher.
		}
	}
	return delivered
}

// Subscribers returns the current subscriber count for a topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
