package cache

import (
	"sync"
	"time"
)

// TTLCache is an in-process expiring key/value store.
//
// Concurrent access on independent keys is safe. Racing writes to the
// same key are last-write-wins, which is acceptable because every
// population in this codebase is idempotent (re-fetching the same
// reference data yields the same value).
type TTLCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]

	// now is replaceable in tests for deterministic expiry.
	now func() time.Time
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New creates an empty TTLCache.
func New[V any]() *TTLCache[V] {
	return &TTLCache[V]{
		entries: make(map[string]entry[V]),
		now:     time.Now,
	}
}

// Set stores value under key with the given TTL, overwriting any
// existing entry. Overwriting resets the expiry.
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// Get returns the value stored under key if it has not expired.
// An expired entry is treated as absent and removed. Absence is not
// an error.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	now := c.now()
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}

	if !now.Before(e.expiresAt) {
		// Lazy eviction. Re-check under the write lock because a
		// concurrent Set may have refreshed the entry.
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}

	return e.value, true
}

// Len returns the number of stored entries, including any that have
// expired but not yet been evicted.
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
