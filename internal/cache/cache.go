package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Key addresses a cached value. Invalidation matches on key prefixes, so
// {"lot", "F1"} also drops {"lot", "F1", "history"}.
type Key []string

func (k Key) String() string {
	return strings.Join(k, "/")
}

func (k Key) hasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

type entry struct {
	key       Key
	value     any
	expiresAt time.Time
}

// QueryCache is a small in-memory TTL cache for backend reads.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// New returns a cache whose entries live for ttl. A non-positive ttl disables
// caching: Get always misses.
func New(ttl time.Duration) *QueryCache {
	return &QueryCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the clock used for expiry.
func (c *QueryCache) WithClock(now func() time.Time) *QueryCache {
	c.now = now
	return c
}

// Get returns the live value stored under key.
func (c *QueryCache) Get(key Key) (any, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	e, ok := c.entries[key.String()]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key.
func (c *QueryCache) Set(key Key, value any) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = entry{key: append(Key(nil), key...), value: value, expiresAt: c.now().Add(c.ttl)}
}

// Add stores value only when no live entry exists for key and reports
// whether it did. A disabled cache always reports true.
func (c *QueryCache) Add(key Key, value any) bool {
	if c == nil || c.ttl <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if e, ok := c.entries[key.String()]; ok && now.Before(e.expiresAt) {
		return false
	}
	c.entries[key.String()] = entry{key: append(Key(nil), key...), value: value, expiresAt: now.Add(c.ttl)}
	return true
}

// Invalidate drops every entry whose key starts with one of the prefixes and
// returns how many were removed.
func (c *QueryCache) Invalidate(prefixes ...Key) int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, e := range c.entries {
		for _, p := range prefixes {
			if e.key.hasPrefix(p) {
				delete(c.entries, id)
				removed++
				break
			}
		}
	}
	return removed
}

// Purge removes expired entries.
func (c *QueryCache) Purge() int {
	if c == nil {
		return 0
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired ones included.
func (c *QueryCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Fetch returns the cached value for key or loads, stores and returns it.
// Load errors are not cached.
func Fetch[T any](ctx context.Context, c *QueryCache, key Key, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, value)
	return value, nil
}
