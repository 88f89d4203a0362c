// Package cache provides in-process TTL caches.
//
// Slot holds a single value refreshed through double-checked locking.
// Keyed holds many values, each with a fixed time-to-live from insertion.
// Expiry is lazy in both: nothing runs in the background.
package cache

import (
	"context"
	"sync"
	"time"
)

// Clock returns the current time. Tests replace it.
type Clock func() time.Time

// ComputeFunc produces a fresh value and the instant it stops being valid.
type ComputeFunc[T any] func(ctx context.Context) (T, time.Time, error)

type slotEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// Slot is a single-value cache with a per-value expiry.
type Slot[T any] struct {
	mu    sync.RWMutex
	entry *slotEntry[T]
	now   Clock
}

// NewSlot creates an empty Slot using the wall clock.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{now: time.Now}
}

// NewSlotWithClock creates an empty Slot using the given clock.
func NewSlotWithClock[T any](clock Clock) *Slot[T] {
	return &Slot[T]{now: clock}
}

// GetOrCompute returns the cached value while it is valid. Otherwise it takes
// the write lock, checks again, and only then calls compute.
//
// Callers that race past the read check wait on the write lock and reuse the
// winner's value. A compute error is returned as is and leaves the slot unchanged.
func (s *Slot[T]) GetOrCompute(ctx context.Context, compute ComputeFunc[T]) (T, error) {
	if v, ok := s.Peek(); ok {
		return v, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != nil && s.now().Before(s.entry.expiresAt) {
		return s.entry.value, nil
	}

	value, expiresAt, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	s.entry = &slotEntry[T]{value: value, expiresAt: expiresAt}
	return value, nil
}

// Peek returns the cached value if it is still valid.
func (s *Slot[T]) Peek() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entry == nil || !s.now().Before(s.entry.expiresAt) {
		var zero T
		return zero, false
	}
	return s.entry.value, true
}

// Invalidate drops the cached value.
func (s *Slot[T]) Invalidate() {
	s.mu.Lock()
	s.entry = nil
	s.mu.Unlock()
}
