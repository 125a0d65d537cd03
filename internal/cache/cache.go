// Package cache provides a bounded, concurrency-safe key/value cache whose
// entries carry their own TTL and expire lazily on read.
//
// The engine keeps two instances: a range cache for whole scan results and an
// identity cache for per-host device identities.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCapacity = 1024

// Stats is a snapshot of cache usage counters.
type Stats struct {
	Keys    int     `json:"keys"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

type entry[V any] struct {
	value      V
	insertedAt time.Time
	ttl        time.Duration
}

func (e entry[V]) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.insertedAt) >= e.ttl
}

// Option configures a TTLCache.
type Option func(*options)

type options struct {
	capacity int
	now      func() time.Time
}

// WithCapacity bounds the number of entries; the least recently used entry is
// evicted once the bound is reached.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// TTLCache maps keys to values with a per-entry TTL.
type TTLCache[K comparable, V any] struct {
	name       string
	defaultTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	entries *lru.Cache[K, entry[V]]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache. defaultTTL applies when Set is called with ttl <= 0.
func New[K comparable, V any](name string, defaultTTL time.Duration, opts ...Option) *TTLCache[K, V] {
	o := options{capacity: defaultCapacity, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	// lru.New only fails for a non-positive size, which options rule out.
	entries, _ := lru.New[K, entry[V]](o.capacity)

	return &TTLCache[K, V]{
		name:       name,
		defaultTTL: defaultTTL,
		now:        o.now,
		entries:    entries,
	}
}

// Name returns the cache name used in logs and metrics.
func (c *TTLCache[K, V]) Name() string {
	return c.name
}

// Get returns the value for key. Expired entries are removed and reported as a miss.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if ok && e.expired(c.now()) {
		c.entries.Remove(key)
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Set stores value under key. A ttl <= 0 uses the cache default.
func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, entry[V]{value: value, insertedAt: c.now(), ttl: ttl})
}

// Delete removes key if present.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}

// Clear removes every entry and resets the hit and miss counters.
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats reports live (unexpired) keys and lookup counters.
func (c *TTLCache[K, V]) Stats() Stats {
	c.mu.Lock()
	now := c.now()
	live := 0
	for _, k := range c.entries.Keys() {
		if e, ok := c.entries.Peek(k); ok && !e.expired(now) {
			live++
		}
	}
	c.mu.Unlock()

	return NewStats(live, c.hits.Load(), c.misses.Load())
}

// NewStats builds a Stats value, computing the hit rate with a zero guard.
func NewStats(keys int, hits, misses uint64) Stats {
	s := Stats{Keys: keys, Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}
