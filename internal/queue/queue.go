package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/inventory-coordinator/internal/model"
	"github.com/fairyhunter13/inventory-coordinator/internal/obs"
)

// ErrIntakeClosed is returned by Enqueue once shutdown has begun.
var ErrIntakeClosed = errors.New("reservation intake closed")

const brokerTick = 50 * time.Millisecond

// Queue buffers supplier reservations. Enqueue appends to an unbounded
// backlog; a broker goroutine moves items into a bounded channel in arrival
// order. Per-product apply order is kept by the Manager's dispatcher, not
// by the channel.
type Queue struct {
	mu      sync.Mutex
	backlog []model.SupplierEvent
	wake    chan struct{}
	out     chan model.SupplierEvent
	closed  atomic.Bool

	enqueued  atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
}

// New creates a Queue whose worker channel holds outBuffer items.
func New(outBuffer int) *Queue {
	if outBuffer <= 0 {
		outBuffer = 64
	}
	return &Queue{
		wake: make(chan struct{}, 1),
		out:  make(chan model.SupplierEvent, outBuffer),
	}
}

// Start runs the broker until ctx is done. A positive highWatermark logs a
// warning whenever the backlog grows past it.
func (q *Queue) Start(ctx context.Context, highWatermark int) {
	go q.broker(ctx, highWatermark)
}

func (q *Queue) broker(ctx context.Context, highWatermark int) {
	ticker := time.NewTicker(brokerTick)
	defer ticker.Stop()
	warned := false
	for {
		q.flush()
		if highWatermark > 0 {
			sz := q.BacklogSize()
			switch {
			case sz > highWatermark && !warned:
				obs.Logger.Warn("reservation_backlog_high", "backlog_size", sz, "high_watermark", highWatermark)
				warned = true
			case sz <= highWatermark:
				warned = false
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-ticker.C:
		}
	}
}

// flush moves as many backlog items as fit into the worker channel.
func (q *Queue) flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for n < len(q.backlog) && len(q.out) < cap(q.out) {
		q.out <- q.backlog[n]
		n++
	}
	if n > 0 {
		q.backlog = append(q.backlog[:0:0], q.backlog[n:]...)
	}
}

// Enqueue appends ev and wakes the broker. It never blocks on workers.
func (q *Queue) Enqueue(ev model.SupplierEvent) error {
	if q.closed.Load() {
		return ErrIntakeClosed
	}
	q.enqueued.Add(1)
	q.mu.Lock()
	q.backlog = append(q.backlog, ev)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Out is the channel workers consume from.
func (q *Queue) Out() <-chan model.SupplierEvent { return q.out }

// BacklogSize counts items not yet handed to the worker channel.
func (q *Queue) BacklogSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Depth counts backlog items plus items waiting in the worker channel.
func (q *Queue) Depth() int {
	return q.BacklogSize() + len(q.out)
}

// Done records a handled item; ok=false also counts it as failed.
func (q *Queue) Done(ok bool) {
	if !ok {
		q.failed.Add(1)
	}
	q.processed.Add(1)
}

// Metrics is a snapshot of queue counters.
type Metrics struct {
	Enqueued  uint64 `json:"reservations_enqueued"`
	Processed uint64 `json:"reservations_processed"`
	Failed    uint64 `json:"reservations_failed"`
	Backlog   int    `json:"backlog_size"`
	Depth     int    `json:"queue_depth"`
	Pending   int    `json:"lane_pending"`
}

func (q *Queue) Metrics() Metrics {
	return Metrics{
		Enqueued:  q.enqueued.Load(),
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
		Backlog:   q.BacklogSize(),
		Depth:     q.Depth(),
	}
}

// CloseIntake rejects all later enqueues.
func (q *Queue) CloseIntake() { q.closed.Store(true) }

func (q *Queue) IsClosed() bool { return q.closed.Load() }
