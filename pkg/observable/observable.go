// Package observable provides a single-value, multi-subscriber cell.
//
// A Value holds the latest published value. Subscribing replays that value
// immediately and then delivers later updates. Each subscriber owns a channel
// with room for exactly one value: when a reader falls behind, the pending
// value is replaced by the newer one, so readers always converge on the latest
// state but may skip intermediate ones. Publishing never blocks.
package observable

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/tabchat/pkg/idx"
)

// Value is a replay-latest broadcast cell. The zero value is not usable; use
// New.
type Value[T any] struct {
	mu      sync.Mutex
	current T
	subs    map[idx.ID]chan T
}

// New returns a Value holding initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{
		current: initial,
		subs:    make(map[idx.ID]chan T),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set overwrites the current value and offers it to every subscriber.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.current = val
	for _, ch := range v.subs {
		offer(ch, val)
	}
}

// Subscribe registers a new subscriber. Its channel already holds the current
// value.
func (v *Value[T]) Subscribe() *Subscription[T] {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := idx.New()
	ch := make(chan T, 1)
	ch <- v.current
	v.subs[id] = ch

	return &Subscription[T]{id: id, ch: ch, owner: v}
}

// Unsubscribe removes the subscriber and closes its channel. Unknown IDs are
// ignored.
func (v *Value[T]) Unsubscribe(id idx.ID) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch, ok := v.subs[id]
	if !ok {
		return
	}
	delete(v.subs, id)
	close(ch)
}

// Subscribers returns the number of live subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// offer delivers val without blocking, replacing an unread value. Callers hold
// the owner's lock, so no other writer can refill the slot in between.
func offer[T any](ch chan T, val T) {
	select {
	case ch <- val:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}
	ch <- val
}

// Subscription is one subscriber's view of a Value.
type Subscription[T any] struct {
	id    idx.ID
	ch    chan T
	owner *Value[T]
}

// ID identifies the subscription. It is also the key one-shot events use to
// remember who has consumed them.
func (s *Subscription[T]) ID() idx.ID { return s.id }

// C returns the delivery channel. It is closed on Close.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Next blocks until a value is available, the subscription is closed, or ctx
// is done.
func (s *Subscription[T]) Next(ctx context.Context) (T, bool) {
	var zero T
	select {
	case val, ok := <-s.ch:
		return val, ok
	case <-ctx.Done():
		return zero, false
	}
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.owner.Unsubscribe(s.id)
}
