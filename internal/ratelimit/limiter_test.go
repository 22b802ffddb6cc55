package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := New(limit, window)
	l.now = clk.Now
	return l, clk
}

func TestLimiterWindow(t *testing.T) {
	l, clk := newTestLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		require.True(t, l.Admit("c1"), "request %d", i)
		clk.Advance(time.Second)
	}
	assert.False(t, l.Admit("c1"))
	assert.Equal(t, 0, l.Remaining("c1"))

	// Other clients are independent.
	assert.True(t, l.Admit("c2"))

	clk.Advance(time.Minute + time.Second)
	assert.True(t, l.Admit("c1"))
}

func TestLimiterSlidesOneEntryAtATime(t *testing.T) {
	l, clk := newTestLimiter(2, 10*time.Second)
	require.True(t, l.Admit("c"))
	clk.Advance(5 * time.Second)
	require.True(t, l.Admit("c"))
	assert.False(t, l.Admit("c"))

	// First entry leaves the window, second is still inside.
	clk.Advance(5 * time.Second)
	assert.True(t, l.Admit("c"))
	assert.False(t, l.Admit("c"))
}

func TestLimiterRefusalNotRecorded(t *testing.T) {
	l, clk := newTestLimiter(1, 10*time.Second)
	require.True(t, l.Admit("c"))
	for i := 0; i < 5; i++ {
		clk.Advance(time.Second)
		assert.False(t, l.Admit("c"))
	}
	clk.Advance(5 * time.Second)
	assert.True(t, l.Admit("c"))
}

func TestLimiterPrune(t *testing.T) {
	l, clk := newTestLimiter(5, 10*time.Second)
	l.Admit("idle")
	clk.Advance(8 * time.Second)
	l.Admit("active")
	clk.Advance(3 * time.Second)

	assert.Equal(t, 1, l.Prune())
	assert.Equal(t, 1, l.Clients())
	assert.Equal(t, 4, l.Remaining("active"))
}

func TestLimiterConcurrentAdmissionsNeverExceedLimit(t *testing.T) {
	l := New(50, time.Hour)
	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit("shared") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), admitted.Load())
}
