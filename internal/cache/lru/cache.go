// Package lru provides a bounded in-memory cache with least-recently-used eviction
// and time-to-live expiry.
//
// Expiry is lazy: an entry older than the TTL is only removed when a Get touches it
// (or when it happens to be the eviction victim). Nothing sweeps the cache in the
// background, so Stats().Size may count stale entries that no caller has asked for.
//
// The cache is meant to be shared across callers in a process. It does not namespace
// keys; callers must include the owner (for example a user id) in every key.
package lru

import (
	"container/list"
	"sync"
	"time"
)

const (
	DefaultMaxSize = 100
	DefaultTTL     = 5 * time.Minute
)

type entry[K comparable, V any] struct {
	key        K
	value      V
	insertedAt time.Time
}

// Cache is safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	// order holds entries from most (front) to least (back) recently accessed.
	order *list.List
	items map[K]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64
}

// Stats is a point-in-time view of the cache counters.
type Stats struct {
	Size          int     `json:"size"`
	MaxSize       int     `json:"max_size"`
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	Evictions     uint64  `json:"evictions"`
	TotalRequests uint64  `json:"total_requests"`
	HitRate       float64 `json:"hit_rate"`
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates a cache holding at most maxSize entries that expire ttl after insertion.
// Non-positive arguments fall back to DefaultMaxSize and DefaultTTL.
func New[K comparable, V any](maxSize int, ttl time.Duration, opts ...Option) *Cache[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Cache[K, V]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     o.now,
		order:   list.New(),
		items:   make(map[K]*list.Element, maxSize),
	}
}

// Get returns the value stored under key. An entry older than the TTL counts as a
// miss and is removed.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}

	now := c.now()
	e := elem.Value.(*entry[K, V])
	if now.Sub(e.insertedAt) > c.ttl {
		c.removeElement(elem)
		c.misses++
		return zero, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return e.value, true
}

// Set stores value under key with a fresh insertion time. When the cache is full and
// key is new, the least recently accessed entry is evicted first.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[K, V])
		e.value = value
		e.insertedAt = now
		c.order.MoveToFront(elem)
		return
	}

	if len(c.items) >= c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
			c.evictions++
		}
	}

	e := &entry[K, V]{key: key, value: value, insertedAt: now}
	c.items[key] = c.order.PushFront(e)
}

// Delete removes key if present and reports whether it was.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return Stats{
		Size:          len(c.items),
		MaxSize:       c.maxSize,
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
		TotalRequests: total,
		HitRate:       hitRate,
	}
}

// Clear drops every entry and resets the counters.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[K]*list.Element, c.maxSize)
	c.hits = 0
	c.misses = 0
	c.evictions = 0
}

// removeElement must be called with mu held.
func (c *Cache[K, V]) removeElement(elem *list.Element) {
	e := elem.Value.(*entry[K, V])
	delete(c.items, e.key)
	c.order.Remove(elem)
}
