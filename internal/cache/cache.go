// Package cache provides a TTL read cache.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/fairyhunter13/inventory-coordinator/internal/obs"
)

type entry[V any] struct {
	value V
	at    time.Time
}

// Cache stores values for at most ttl. Expiry is decided at read time; Sweep
// only reclaims memory.
type Cache[K comparable, V any] struct {
	ttl time.Duration
	now func() time.Time

	mu sync.RWMutex
	m  map[K]entry[V]
}

func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{ttl: ttl, now: time.Now, m: make(map[K]entry[V])}
}

// Get returns the value for key if it is younger than the TTL.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok || now.Sub(e.at) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value with a fresh timestamp.
func (c *Cache[K, V]) Put(key K, value V) {
	now := c.now()
	c.mu.Lock()
	c.m[key] = entry[V]{value: value, at: now}
	c.mu.Unlock()
}

func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache[K, V]) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.m {
		if now.Sub(e.at) >= c.ttl {
			delete(c.m, k)
			n++
		}
	}
	return n
}

// Len counts stored entries, expired or not.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Run sweeps every interval until ctx is done.
func (c *Cache[K, V]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.ttl
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.Sweep(); n > 0 {
				obs.Logger.Debug("cache_swept", "entries_removed", n)
			}
		}
	}
}
