package events

import (
	"sync"
)

// DefaultCapacity is the per-subscriber buffer size.
const DefaultCapacity = 100

// Bus is a multi-producer, multi-consumer broadcast channel. Each subscriber
// gets its own bounded buffer; when it fills, the oldest event is dropped and
// the subscription's lag counter is incremented. Publish never blocks.
type Bus struct {
	mu       sync.RWMutex
	subs     map[*Subscription]struct{}
	capacity int
	closed   bool
}

// Subscription is one subscriber's view of the bus.
type Subscription struct {
	bus *Bus
	ch  chan Event

	mu     sync.Mutex
	lagged uint64
}

// NewBus creates a bus. A capacity of zero or less uses DefaultCapacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		subs:     make(map[*Subscription]struct{}),
		capacity: capacity,
	}
}

// Subscribe registers a new subscriber. Events published before Subscribe
// returns are not delivered.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		bus: b,
		ch:  make(chan Event, b.capacity),
	}
	b.mu.Lock()
	if !b.closed {
		b.subs[sub] = struct{}{}
	} else {
		close(sub.ch)
	}
	b.mu.Unlock()
	return sub
}

// Publish delivers the event to every subscriber. If a subscriber's buffer
// is full the oldest buffered event is discarded to make room.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		sub.push(e)
	}
}

// Close shuts the bus down. Subscriber channels are closed once; further
// publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}

func (s *Subscription) push(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case s.ch <- e:
			return
		default:
		}
		// Buffer full: evict the oldest event and retry.
		select {
		case <-s.ch:
			s.lagged++
		default:
		}
	}
}

// C returns the subscriber's event channel. It is closed when the bus closes
// or the subscription is cancelled.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Lagged returns how many events this subscriber has lost to buffer
// overflow.
func (s *Subscription) Lagged() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lagged
}

// Unsubscribe removes the subscription from the bus and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if s.bus.closed {
		return
	}
	if _, ok := s.bus.subs[s]; ok {
		delete(s.bus.subs, s)
		close(s.ch)
	}
}
