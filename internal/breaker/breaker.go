// Package breaker implements a per-operation circuit breaker.
//
// A breaker is Closed until threshold failures are recorded for an operation,
// at which point it opens. The first Allow at or after the cooldown closes it
// again with a zeroed failure count and lets that call through; there is no
// separate trial state.
package breaker

import (
	"sync"
	"time"

	"github.com/fairyhunter13/inventory-coordinator/internal/obs"
)

// State of a single operation's circuit.
type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

type circuit struct {
	failures int
	openedAt time.Time
}

func (c *circuit) open() bool { return !c.openedAt.IsZero() }

// Breaker tracks circuits keyed by operation name.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	circuits map[string]*circuit
}

func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		circuits:  make(map[string]*circuit),
	}
}

func (b *Breaker) get(op string) *circuit {
	c, ok := b.circuits[op]
	if !ok {
		c = &circuit{}
		b.circuits[op] = c
	}
	return c
}

// Allow reports whether op may run. It must be consulted before the guarded
// operation is attempted.
func (b *Breaker) Allow(op string) bool {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(op)
	if !c.open() {
		return true
	}
	if now.Sub(c.openedAt) < b.cooldown {
		return false
	}
	c.failures = 0
	c.openedAt = time.Time{}
	obs.Logger.Info("circuit_closed", "operation", op)
	return true
}

// RecordFailure counts a failure attributable to downstream state. Reaching
// the threshold opens the circuit.
func (b *Breaker) RecordFailure(op string) {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(op)
	if c.open() {
		return
	}
	c.failures++
	if c.failures >= b.threshold {
		c.openedAt = now
		obs.Logger.Warn("circuit_opened", "operation", op, "failures", c.failures, "cooldown_ms", b.cooldown.Milliseconds())
	}
}

// RecordSuccess ends the current failure streak of a closed circuit.
func (b *Breaker) RecordSuccess(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.circuits[op]; ok && !c.open() {
		c.failures = 0
	}
}

// State returns the circuit state and failure count for op without
// triggering the cooldown transition.
func (b *Breaker) State(op string) (State, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.circuits[op]
	if !ok {
		return Closed, 0
	}
	if c.open() {
		return Open, c.failures
	}
	return Closed, c.failures
}

// Snapshot returns the state of every known operation.
func (b *Breaker) Snapshot() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.circuits))
	for op, c := range b.circuits {
		if c.open() {
			out[op] = Open.String()
		} else {
			out[op] = Closed.String()
		}
	}
	return out
}
