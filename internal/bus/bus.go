// Package bus provides the in-process event bus carrying playback-state
// notifications from the session to observers (notification surface, UI).
package bus

import (
	"sync"
)

// Event is implemented by every notification published on the bus.
// The set of concrete event types is closed; see the playback package.
type Event interface {
	EventName() string
}

const eventBufferSize = 16

// Subscription receives events from the bus.
//
// Events are delivered in emission order. A subscriber that falls more than
// eventBufferSize events behind loses the oldest pending events rather than
// blocking publishers.
type Subscription struct {
	Events <-chan Event
	Done   <-chan struct{}

	bus    *Bus
	ch     chan Event
	doneCh chan struct{}
}

func newSubscription(b *Bus) *Subscription {
	s := &Subscription{
		bus:    b,
		ch:     make(chan Event, eventBufferSize),
		doneCh: make(chan struct{}),
	}
	s.Events = s.ch
	s.Done = s.doneCh
	return s
}

// Close unsubscribes from the bus. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.Unsubscribe(s)
}

// send delivers an event without blocking the publisher.
func (s *Subscription) send(e Event) {
	select {
	case s.ch <- e:
	default:
		// Drop oldest to make room, then retry once.
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- e:
		default:
		}
	}
}

func (s *Subscription) close() {
	close(s.doneCh)
}

// Bus is a single-process publish/subscribe channel.
//
// Late subscribers receive the most recently published event on subscribe
// (replay-1). This is a deliberate policy: the notification surface must be
// able to render current state even if it attaches after playback started.
type Bus struct {
	mu     sync.Mutex
	subs   []*Subscription
	last   Event
	closed bool
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber. If an event has already been
// published, it is replayed immediately to the new subscription.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newSubscription(b)
	if b.closed {
		sub.close()
		return sub
	}
	if b.last != nil {
		sub.send(b.last)
	}
	b.subs = append(b.subs, sub)
	return sub
}

// Unsubscribe removes a subscription. Safe to call more than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			s.close()
			return
		}
	}
}

// Publish delivers an event to all current subscribers in emission order.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last = e
	for _, s := range b.subs {
		s.send(e)
	}
}

// Close shuts down the bus and signals all subscribers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		s.close()
	}
	b.subs = nil
}
