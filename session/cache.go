// Package session holds the per-session client engine: an optimistic cache
// that shows a mutation's expected outcome before the server confirms it, a
// coordinator running the stage/call/commit-or-rollback cycle, and a listener
// that refetches state when other sessions change it.
package session

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long a cache entry stays valid without being
// refreshed by a stage or commit.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry[T any] struct {
	value     T
	timestamp time.Time
}

// Cache is an in-memory per-entity cache holding the last known value for
// each key. Entries older than the TTL are treated as missing and evicted on
// read. One instance is constructed per session; there is no shared
// package-level state.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[string]cacheEntry[T]
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a cache with the given TTL; ttl <= 0 selects the default.
func NewCache[T any](ttl time.Duration) *Cache[T] {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache[T]{
		entries: make(map[string]cacheEntry[T]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value for key. A stale entry counts as a miss and
// is evicted as a side effect.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if c.now().Sub(entry.timestamp) > c.ttl {
		delete(c.entries, key)
		var zero T
		return zero, false
	}
	return entry.value, true
}

// Stage overwrites the entry with an optimistic value before the server has
// confirmed it, resetting the entry's timestamp.
func (c *Cache[T]) Stage(key string, value T) {
	c.put(key, value)
}

// Commit replaces the entry with the authoritative value returned by the
// persistence call, resetting the entry's timestamp.
func (c *Cache[T]) Commit(key string, value T) {
	c.put(key, value)
}

// Rollback restores the entry to its pre-stage value. A nil previous value
// means the entry did not exist before staging and is evicted.
func (c *Cache[T]) Rollback(key string, previous *T) {
	if previous == nil {
		c.Evict(key)
		return
	}
	c.put(key, *previous)
}

// Evict removes the entry for key, if any.
func (c *Cache[T]) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Sweep removes every entry older than the TTL and returns how many were
// dropped. Cadence is up to the caller; only the staleness predicate matters.
func (c *Cache[T]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	dropped := 0
	for key, entry := range c.entries {
		if now.Sub(entry.timestamp) > c.ttl {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Clear drops every entry.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry[T])
}

// Keys returns the ids of every entry, stale ones included.
func (c *Cache[T]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

// Len reports the number of live entries, stale ones included.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[T]) put(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry[T]{value: value, timestamp: c.now()}
}
