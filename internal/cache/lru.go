// Package cache provides the local, Redis and two-phase caches used for
// source payloads, run snapshots and per-tenant counters.
package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/opensource-finance/settle/internal/domain"
)

// ErrTenantRequired is returned by every operation called without a tenant.
var ErrTenantRequired = errors.New("tenantID is required")

// DefaultLocalSize caps an LRUCache created with a non-positive size.
const DefaultLocalSize = 10000

type entryKey struct {
	tenant string
	key    string
}

type entry struct {
	k         entryKey
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

type window struct {
	count   int64
	resetAt time.Time
}

// LRUCache is an in-process cache bounded by entry count, with per-entry
// TTL. It is the Community tier cache and L1 of the two-phase cache.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	items    map[entryKey]*list.Element
	order    *list.List // front is most recently used
	counters map[entryKey]*window

	hits, misses, evictions int64

	now func() time.Time
}

// NewLRUCache creates an LRU cache holding at most capacity entries.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = DefaultLocalSize
	}
	return &LRUCache{
		capacity: capacity,
		items:    make(map[entryKey]*list.Element),
		order:    list.New(),
		counters: make(map[entryKey]*window),
		now:      time.Now,
	}
}

// Get returns the value for key, or nil when it is absent or expired.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[entryKey{tenantID, key}]
	if !ok {
		c.misses++
		return nil, nil
	}
	e := elem.Value.(*entry)
	if e.expired(c.now()) {
		c.remove(elem)
		c.misses++
		return nil, nil
	}

	c.order.MoveToFront(elem)
	c.hits++
	return e.value, nil
}

// Set stores value under key, evicting the least recently used entries
// beyond capacity.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return ErrTenantRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	k := entryKey{tenantID, key}
	if elem, ok := c.items[k]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return nil
	}

	c.items[k] = c.order.PushFront(&entry{k: k, value: value, expiresAt: expiresAt})
	for c.order.Len() > c.capacity {
		c.remove(c.order.Back())
		c.evictions++
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[entryKey{tenantID, key}]; ok {
		c.remove(elem)
	}
	return nil
}

// IncrementCounter counts calls within a fixed window that starts at the
// first increment. Counters live apart from entries and are not evicted;
// stale ones are swept once the map outgrows the entry capacity.
func (c *LRUCache) IncrementCounter(ctx context.Context, tenantID string, key string, win time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	k := entryKey{tenantID, key}
	w, ok := c.counters[k]
	if !ok || !now.Before(w.resetAt) {
		if !ok && len(c.counters) >= c.capacity {
			c.sweepCounters(now)
		}
		c.counters[k] = &window{count: 1, resetAt: now.Add(win)}
		return 1, nil
	}

	w.count++
	return w.count, nil
}

func (c *LRUCache) sweepCounters(now time.Time) {
	for k, w := range c.counters {
		if !now.Before(w.resetAt) {
			delete(c.counters, k)
		}
	}
}

// Ping always succeeds.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every entry and counter.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[entryKey]*list.Element)
	c.order.Init()
	c.counters = make(map[entryKey]*window)
	return nil
}

// Stats returns occupancy and hit counters.
func (c *LRUCache) Stats() domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CacheStats{
		Size:      c.order.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *LRUCache) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry).k)
}
