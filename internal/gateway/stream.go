package gateway

import "sync"

// Hub fans values out to subscribers. Each subscriber owns an independent
// buffered channel and an unsubscribe handle; delivery on one channel follows
// emission order. A subscriber that falls behind its buffer loses the oldest
// pending values rather than blocking the publisher.
type Hub[T any] struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription[T]
	nextID uint64
	closed bool
}

// Subscription is one subscriber's handle on a Hub.
type Subscription[T any] struct {
	hub  *Hub[T]
	id   uint64
	ch   chan T
	once sync.Once
}

// NewHub creates an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[uint64]*Subscription[T])}
}

// Subscribe registers a new subscriber with the given channel buffer.
// A non-positive buffer uses a default of 64.
func (h *Hub[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer <= 0 {
		buffer = 64
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription[T]{hub: h, id: h.nextID, ch: make(chan T, buffer)}
	h.nextID++
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub.id] = sub
	return sub
}

// Publish delivers v to every current subscriber. When a subscriber's buffer
// is full its oldest pending value is dropped to make room, keeping the
// publisher non-blocking.
func (h *Hub[T]) Publish(v T) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	for _, sub := range h.subs {
		select {
		case sub.ch <- v:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- v:
			default:
			}
		}
	}
}

// Close cancels all subscriptions and closes their channels.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}

// C returns the subscriber's receive channel. It is closed when the
// subscription is cancelled or the hub shuts down.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Cancel removes the subscription and closes its channel. Safe to call
// multiple times.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()

		if _, ok := s.hub.subs[s.id]; ok {
			delete(s.hub.subs, s.id)
			close(s.ch)
		}
	})
}
