package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/inventory-coordinator/internal/obs"
)

func newTestCache(ttl time.Duration) (*Cache[string, int], *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	c := New[string, int](ttl)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCacheTTLBoundary(t *testing.T) {
	c, now := newTestCache(30 * time.Second)
	c.Put("a", 1)

	*now = now.Add(29 * time.Second)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	*now = now.Add(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestCachePutRefreshesTimestamp(t *testing.T) {
	c, now := newTestCache(10 * time.Second)
	c.Put("a", 1)
	*now = now.Add(8 * time.Second)
	c.Put("a", 2)
	*now = now.Add(8 * time.Second)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestCacheInvalidateAndSweep(t *testing.T) {
	c, now := newTestCache(10 * time.Second)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	*now = now.Add(5 * time.Second)
	c.Put("c", 3)
	*now = now.Add(5 * time.Second)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestCacheRunStopsWithContext(t *testing.T) {
	obs.InitLogger("error")
	c := New[string, int](time.Millisecond)
	c.Put("a", 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
