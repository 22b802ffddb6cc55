// Package ratelimit implements per-client sliding-window admission control.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/fairyhunter13/inventory-coordinator/internal/obs"
)

// Limiter admits at most limit requests per client within any trailing
// window. The evict, count and append steps run under one mutex.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	clients map[string][]time.Time
}

// New returns a Limiter allowing limit requests per window for each client.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	return &Limiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		clients: make(map[string][]time.Time),
	}
}

// Admit reports whether clientID may proceed. Refused requests are not
// recorded.
func (l *Limiter) Admit(clientID string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := evict(l.clients[clientID], now, l.window)
	if len(ts) >= l.limit {
		l.clients[clientID] = ts
		return false
	}
	l.clients[clientID] = append(ts, now)
	return true
}

// Remaining returns how many more requests clientID may make right now.
func (l *Limiter) Remaining(clientID string) int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.limit - len(evict(l.clients[clientID], now, l.window))
	if n < 0 {
		return 0
	}
	return n
}

// Prune forgets clients without a request inside the window and returns how
// many were removed.
func (l *Limiter) Prune() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, ts := range l.clients {
		if len(evict(ts, now, l.window)) == 0 {
			delete(l.clients, id)
			removed++
		}
	}
	return removed
}

// Clients returns the number of tracked clients.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Run prunes idle clients every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.window
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := l.Prune(); n > 0 {
				obs.Logger.Debug("rate_limit_pruned", "clients_removed", n)
			}
		}
	}
}

// evict drops timestamps at least window old. ts is ordered oldest first.
func evict(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= window {
		i++
	}
	return ts[i:]
}
