// Package cache provides a TTL result cache with age-based bulk eviction.
//
// Entries expire after a fixed time-to-live independent of access patterns,
// and crossing the size limit evicts the oldest fraction of entries by
// creation time. Access never refreshes age; this trades perfect recency for
// throughput on the search hot path.
package cache

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// entry is a cached value with its creation timestamp.
type entry[V any] struct {
	value     V
	createdAt time.Time
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
	Size        int   `json:"size"`
	MaxSize     int   `json:"max_size"`
}

// Cache is a concurrency-safe TTL cache.
//
// Eviction policy: after a Put pushes the size past maxSize, the oldest
// floor(maxSize*evictionRatio) entries by creation time are removed in one
// sweep. Expired entries are removed lazily on Get.
type Cache[V any] struct {
	ttl           time.Duration
	maxSize       int
	evictionRatio float64
	now           func() time.Time

	mu      sync.RWMutex
	entries map[string]entry[V]

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithClock overrides the time source. Test seam.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a cache with the given TTL, size limit, and eviction ratio.
// Non-positive or out-of-range arguments fall back to defaults
// (30s TTL, 5000 entries, ratio 0.2).
func New[V any](ttl time.Duration, maxSize int, evictionRatio float64, opts ...Option[V]) *Cache[V] {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxSize <= 0 {
		maxSize = 5000
	}
	if evictionRatio <= 0 || evictionRatio > 1 {
		evictionRatio = 0.2
	}

	c := &Cache[V]{
		ttl:           ttl,
		maxSize:       maxSize,
		evictionRatio: evictionRatio,
		now:           time.Now,
		entries:       make(map[string]entry[V]),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns the cached value for key, if present and unexpired.
// An expired entry is removed and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	if c.now().Sub(e.createdAt) > c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; another Get may have already
		// removed it, or a Put may have replaced it with a fresh entry.
		if cur, ok := c.entries[key]; ok && c.now().Sub(cur.createdAt) > c.ttl {
			delete(c.entries, key)
			c.expirations.Add(1)
		}
		c.mu.Unlock()

		c.misses.Add(1)
		var zero V
		return zero, false
	}

	c.hits.Add(1)
	return e.value, true
}

// Put stores value under key, then evicts the oldest entries if the cache
// has grown past its size limit.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{value: value, createdAt: c.now()}

	if len(c.entries) > c.maxSize {
		c.evictOldestLocked()
	}
}

// evictOldestLocked removes the oldest evictionRatio fraction of maxSize.
// Caller must hold the write lock.
func (c *Cache[V]) evictOldestLocked() {
	n := int(float64(c.maxSize) * c.evictionRatio)
	if n < 1 {
		n = 1
	}
	if n > len(c.entries) {
		n = len(c.entries)
	}

	type aged struct {
		key       string
		createdAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, createdAt: e.createdAt})
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].createdAt.Before(all[j].createdAt)
	})

	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
	c.evictions.Add(int64(n))
}

// Invalidate removes a single key.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateNamespace removes every key in the given namespace.
func (c *Cache[V]) InvalidateNamespace(ns string) {
	prefix := ns + ":"

	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Len returns the current entry count.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		Size:        c.Len(),
		MaxSize:     c.maxSize,
	}
}
