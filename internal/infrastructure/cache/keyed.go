package cache

import (
	"sync"
	"time"
)

type keyedEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// Keyed is a concurrent map whose entries expire a fixed TTL after insertion.
// Independent keys never contend on a shared lock.
type Keyed[K comparable, V any] struct {
	entries sync.Map
	ttl     time.Duration
	now     Clock
}

// NewKeyed creates a Keyed cache with the given TTL.
func NewKeyed[K comparable, V any](ttl time.Duration) *Keyed[K, V] {
	return NewKeyedWithClock[K, V](ttl, time.Now)
}

// NewKeyedWithClock creates a Keyed cache using the given clock.
func NewKeyedWithClock[K comparable, V any](ttl time.Duration, clock Clock) *Keyed[K, V] {
	return &Keyed[K, V]{ttl: ttl, now: clock}
}

// Get returns the value for key if present and not expired.
// An expired entry is removed on the way out.
func (c *Keyed[K, V]) Get(key K) (V, bool) {
	var zero V

	raw, ok := c.entries.Load(key)
	if !ok {
		return zero, false
	}

	entry := raw.(*keyedEntry[V])
	if !c.now().Before(entry.expiresAt) {
		// Only delete the entry we saw, not a fresher one stored meanwhile.
		c.entries.CompareAndDelete(key, raw)
		return zero, false
	}
	return entry.value, true
}

// Insert stores value under key, replacing any previous entry.
func (c *Keyed[K, V]) Insert(key K, value V) {
	c.entries.Store(key, &keyedEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)})
}

// Len returns the number of live entries and purges expired ones.
func (c *Keyed[K, V]) Len() int {
	now := c.now()
	n := 0
	c.entries.Range(func(key, raw any) bool {
		if now.Before(raw.(*keyedEntry[V]).expiresAt) {
			n++
		} else {
			c.entries.CompareAndDelete(key, raw)
		}
		return true
	})
	return n
}
