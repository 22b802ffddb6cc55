// Package queue runs supplier reservations through an autoscaling pool of
// workers so the webhook can acknowledge them without waiting.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/fairyhunter13/inventory-coordinator/internal/config"
	"github.com/fairyhunter13/inventory-coordinator/internal/model"
	"github.com/fairyhunter13/inventory-coordinator/internal/obs"
)

// Reserver applies a single reservation.
type Reserver interface {
	Reserve(ev model.SupplierEvent) error
}

// Manager owns the workers draining a Queue into a Reserver and scales
// their number with the backlog. Events for one product are applied one at
// a time in sequence order; different products proceed in parallel.
type Manager struct {
	cfg    config.Config
	q      *Queue
	sink   Reserver
	seq    Sequencer
	ready  chan model.SupplierEvent
	ctx    context.Context
	cancel context.CancelFunc

	submitMu sync.Mutex

	mu      sync.Mutex
	workers []context.CancelFunc

	// lanes holds, per product with an event in flight, the events queued
	// behind it. A key is present exactly while some worker owns the product.
	laneMu sync.Mutex
	lanes  map[string][]model.SupplierEvent
}

func NewManager(cfg config.Config, q *Queue, sink Reserver) *Manager {
	return &Manager{
		cfg:   cfg,
		q:     q,
		sink:  sink,
		ready: make(chan model.SupplierEvent),
		lanes: make(map[string][]model.SupplierEvent),
	}
}

// Start launches the broker, the dispatcher, the initial workers and the
// scaler.
func (m *Manager) Start(parent context.Context) {
	m.ctx, m.cancel = context.WithCancel(parent)
	m.q.Start(m.ctx, m.cfg.QueueHighWatermark)
	go m.dispatch()
	m.scale(m.cfg.InitialWorkerCount)
	go m.scaler()
}

// dispatch reads the queue in arrival order. An event whose product is idle
// goes to the workers; otherwise it waits in that product's lane.
func (m *Manager) dispatch() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-m.q.Out():
			if !m.claim(ev) {
				continue
			}
			select {
			case m.ready <- ev:
			case <-m.ctx.Done():
				return
			}
		}
	}
}

// claim reports whether ev opens a new lane for its product. If the product
// is already owned by a worker, ev is appended to the lane instead.
func (m *Manager) claim(ev model.SupplierEvent) bool {
	m.laneMu.Lock()
	defer m.laneMu.Unlock()
	if waiting, busy := m.lanes[ev.ProductID]; busy {
		m.lanes[ev.ProductID] = append(waiting, ev)
		return false
	}
	m.lanes[ev.ProductID] = nil
	return true
}

// next pops the event queued behind the one just applied for productID, or
// releases the lane when there is none.
func (m *Manager) next(productID string) (model.SupplierEvent, bool) {
	m.laneMu.Lock()
	defer m.laneMu.Unlock()
	waiting := m.lanes[productID]
	if len(waiting) == 0 {
		delete(m.lanes, productID)
		return model.SupplierEvent{}, false
	}
	m.lanes[productID] = waiting[1:]
	return waiting[0], true
}

// Pending counts events waiting behind another event for the same product.
func (m *Manager) Pending() int {
	m.laneMu.Lock()
	defer m.laneMu.Unlock()
	n := 0
	for _, waiting := range m.lanes {
		n += len(waiting)
	}
	return n
}

// Stop cancels the broker, the scaler and every worker.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	for _, c := range m.workers {
		c()
	}
	m.workers = nil
	m.mu.Unlock()
}

func (m *Manager) scaler() {
	t := time.NewTicker(m.cfg.ScaleInterval)
	defer t.Stop()
	idle := 0
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-t.C:
		}
		backlog := m.q.BacklogSize()
		wc := m.WorkerCount()
		switch {
		case backlog > wc*m.cfg.ScaleUpBacklogPerWorker && wc < m.cfg.WorkerMax:
			m.scale(1)
			idle = 0
		case backlog == 0:
			idle++
			if idle >= m.cfg.ScaleDownIdleTicks && wc > m.cfg.WorkerMin {
				m.scale(-1)
				idle = 0
			}
		default:
			idle = 0
		}
	}
}

// scale adds delta workers, or removes -delta when negative.
func (m *Manager) scale(delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ; delta > 0; delta-- {
		wctx, cancel := context.WithCancel(m.ctx)
		m.workers = append(m.workers, cancel)
		go m.worker(wctx)
	}
	for ; delta < 0 && len(m.workers) > 0; delta++ {
		last := len(m.workers) - 1
		m.workers[last]()
		m.workers = m.workers[:last]
	}
	obs.Logger.Info("workers_scaled", "worker_count", len(m.workers))
}

func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.ready:
			// The lane is drained even if ctx ends meanwhile so the product
			// is never left owned by a stopped worker.
			for {
				m.apply(ev)
				nxt, ok := m.next(ev.ProductID)
				if !ok {
					break
				}
				ev = nxt
			}
		}
	}
}

func (m *Manager) apply(ev model.SupplierEvent) {
	err := m.sink.Reserve(ev)
	if err != nil {
		obs.Logger.Warn("reservation_rejected",
			"sequence", ev.Sequence,
			"product_id", ev.ProductID,
			"supplier_id", ev.SupplierID,
			"error", err.Error(),
		)
	}
	m.q.Done(err == nil)
}

// Submit stamps ev with the next sequence number and queues it. Stamping
// and enqueueing happen together so sequence order is queue order.
func (m *Manager) Submit(ev model.SupplierEvent) (uint64, error) {
	m.submitMu.Lock()
	defer m.submitMu.Unlock()
	if m.q.IsClosed() {
		return 0, ErrIntakeClosed
	}
	ev.Sequence = m.seq.Next()
	if err := m.q.Enqueue(ev); err != nil {
		return 0, err
	}
	return ev.Sequence, nil
}

func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// Metrics adds the per-product pending count to the queue counters.
func (m *Manager) Metrics() Metrics {
	mt := m.q.Metrics()
	mt.Pending = m.Pending()
	return mt
}

func (m *Manager) IsShuttingDown() bool { return m.q.IsClosed() }

// CloseIntake makes later Submit calls fail with ErrIntakeClosed.
func (m *Manager) CloseIntake() { m.q.CloseIntake() }

// DrainUntil waits until every accepted reservation has been handled or ctx
// is done. It reports whether the queue drained.
func (m *Manager) DrainUntil(ctx context.Context) bool {
	for {
		mt := m.q.Metrics()
		if mt.Backlog == 0 && mt.Depth == 0 && mt.Enqueued == mt.Processed {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
