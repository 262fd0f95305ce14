package hub

import "sync"

// Hub is a thread-safe multi-consumer notification primitive. Publish
// delivers a value to every registered callback in registration order.
//
// There is no buffering: a callback registered after a value was published
// never sees that value. Callbacks are expected to be non-blocking; the Hub
// does not enforce timeouts on slow subscribers.
type Hub[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// New creates an empty Hub.
func New[T any]() *Hub[T] {
	return &Hub[T]{}
}

// Subscribe registers a callback and returns its unsubscribe function.
// Returning a capability instead of removing by callback identity keeps two
// registrations of the same function independent.
func (h *Hub[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.subs = append(h.subs, subscriber[T]{id: id, fn: fn})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, s := range h.subs {
			if s.id == id {
				h.subs = append(h.subs[:i], h.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish invokes every currently-registered callback with the value, in
// registration order. Unsubscribing during an in-progress Publish is safe;
// the removed callback may still receive the in-flight value, but none after.
func (h *Hub[T]) Publish(value T) {
	h.mu.Lock()
	subs := make([]subscriber[T], len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, s := range subs {
		s.fn(value)
	}
}

// Len returns the number of registered callbacks.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
