package session

import (
	"sync"

	"github.com/aussiebroadwan/tabchat/pkg/idx"
)

// Event wraps a payload that each consumer may take at most once. One Event
// is shared by every subscriber that sees the same publication, so a
// navigation or a toast fires once per observer and not again when the same
// state is replayed to it.
type Event[T any] struct {
	content T

	mu    sync.Mutex
	taken map[idx.ID]struct{}
}

// NewEvent wraps content in a fresh, untaken Event.
func NewEvent[T any](content T) *Event[T] {
	return &Event[T]{content: content, taken: make(map[idx.ID]struct{})}
}

// Take returns the content the first time consumer asks for it. Later calls
// by the same consumer return the zero value and false, as does a nil Event.
func (e *Event[T]) Take(consumer idx.ID) (T, bool) {
	if e == nil {
		var zero T
		return zero, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, done := e.taken[consumer]; done {
		var zero T
		return zero, false
	}
	e.taken[consumer] = struct{}{}
	return e.content, true
}

// Taken reports whether consumer already took the content.
func (e *Event[T]) Taken(consumer idx.ID) bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, done := e.taken[consumer]
	return done
}

// Peek returns the content without marking it taken. A nil Event yields the
// zero value.
func (e *Event[T]) Peek() T {
	if e == nil {
		var zero T
		return zero
	}
	return e.content
}
