package queue

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/inventory-coordinator/internal/config"
	"github.com/fairyhunter13/inventory-coordinator/internal/model"
	"github.com/fairyhunter13/inventory-coordinator/internal/obs"
)

func TestMain(m *testing.M) {
	obs.InitLogger("error")
	os.Exit(m.Run())
}

// recorder is a Reserver that keeps every event and rejects product "bad".
type recorder struct {
	mu     sync.Mutex
	events []model.SupplierEvent
	delay  time.Duration
}

func (r *recorder) Reserve(ev model.SupplierEvent) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if ev.ProductID == "bad" {
		return model.ErrNotFound
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func ev(product string, qty int64) model.SupplierEvent {
	return model.SupplierEvent{SupplierID: "sup", ProductID: product, Quantity: qty}
}

func TestQueueNonBlockingEnqueue(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, 0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, q.Enqueue(ev("x", 1)), "enqueue %d", i)
	}
	assert.Positive(t, q.BacklogSize())
	assert.Equal(t, uint64(1000), q.Metrics().Enqueued)
}

func TestQueuePreservesOrder(t *testing.T) {
	q := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, 0)
	for i := int64(1); i <= 20; i++ {
		require.NoError(t, q.Enqueue(ev("x", i)))
	}
	for i := int64(1); i <= 20; i++ {
		select {
		case got := <-q.Out():
			assert.Equal(t, i, got.Quantity)
		case <-time.After(time.Second):
			t.Fatalf("timed out at %d", i)
		}
	}
}

func TestQueueCloseIntake(t *testing.T) {
	q := New(1)
	q.CloseIntake()
	assert.True(t, q.IsClosed())
	assert.True(t, errors.Is(q.Enqueue(ev("x", 1)), ErrIntakeClosed))
}

func startManager(t *testing.T, cfg config.Config, sink Reserver) *Manager {
	t.Helper()
	mgr := NewManager(cfg, New(16), sink)
	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	t.Cleanup(func() {
		cancel()
		mgr.Stop()
	})
	return mgr
}

func TestManagerDrainAndFailures(t *testing.T) {
	rec := &recorder{}
	mgr := startManager(t, config.Defaults(), rec)
	for i := 0; i < 100; i++ {
		seq, err := mgr.Submit(ev("ok", 1))
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), seq)
	}
	_, err := mgr.Submit(ev("bad", 1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.True(t, mgr.DrainUntil(ctx), "drain timeout")

	m := mgr.Metrics()
	assert.Equal(t, uint64(101), m.Processed)
	assert.Equal(t, uint64(1), m.Failed)
	assert.Equal(t, 100, rec.count())
}

func TestManagerRejectsAfterCloseIntake(t *testing.T) {
	mgr := startManager(t, config.Defaults(), &recorder{})
	mgr.CloseIntake()
	assert.True(t, mgr.IsShuttingDown())
	_, err := mgr.Submit(ev("x", 1))
	assert.ErrorIs(t, err, ErrIntakeClosed)
}

func TestManagerScalerUpAndDown(t *testing.T) {
	cfg := config.Defaults()
	cfg.WorkerMin = 1
	cfg.WorkerMax = 3
	cfg.InitialWorkerCount = 1
	cfg.ScaleInterval = 50 * time.Millisecond
	cfg.ScaleUpBacklogPerWorker = 1
	cfg.ScaleDownIdleTicks = 1

	mgr := startManager(t, cfg, &recorder{delay: 2 * time.Millisecond})
	for i := 0; i < 200; i++ {
		_, _ = mgr.Submit(ev("scale", 1))
	}

	require.Eventually(t, func() bool { return mgr.WorkerCount() > 1 }, 2*time.Second, 25*time.Millisecond,
		"expected scale up")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.True(t, mgr.DrainUntil(ctx), "drain timeout")

	require.Eventually(t, func() bool { return mgr.WorkerCount() == cfg.WorkerMin }, 2*time.Second, 50*time.Millisecond,
		"expected scale down to %d", cfg.WorkerMin)
}

// ledger is a Reserver that refuses to let a product's balance go negative
// and records the sequence numbers it applied per product.
type ledger struct {
	mu      sync.Mutex
	balance map[string]int64
	seqs    map[string][]uint64
}

func newLedger() *ledger {
	return &ledger{balance: map[string]int64{}, seqs: map[string][]uint64{}}
}

func (l *ledger) Reserve(ev model.SupplierEvent) error {
	if ev.Sequence%7 == 0 {
		time.Sleep(time.Millisecond)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balance[ev.ProductID]+ev.Quantity < 0 {
		return model.ErrInsufficientStock
	}
	l.balance[ev.ProductID] += ev.Quantity
	l.seqs[ev.ProductID] = append(l.seqs[ev.ProductID], ev.Sequence)
	return nil
}

func TestManagerAppliesPerProductInOrder(t *testing.T) {
	cfg := config.Defaults()
	cfg.InitialWorkerCount = 4
	cfg.WorkerMin = 4
	l := newLedger()
	mgr := startManager(t, cfg, l)

	products := []string{"a", "b", "c"}
	for i := 0; i < 300; i++ {
		for _, p := range products {
			_, err := mgr.Submit(ev(p, 1))
			require.NoError(t, err)
			_, err = mgr.Submit(ev(p, -1))
			require.NoError(t, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.True(t, mgr.DrainUntil(ctx), "drain timeout")

	m := mgr.Metrics()
	assert.Equal(t, uint64(0), m.Failed)
	assert.Equal(t, 0, m.Pending)
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range products {
		assert.Equal(t, int64(0), l.balance[p], "balance of %s", p)
		assert.IsIncreasing(t, l.seqs[p], "apply order of %s", p)
		assert.Len(t, l.seqs[p], 600)
	}
}

func TestManagerOtherProductsProceedWhileOneIsSlow(t *testing.T) {
	block := make(chan struct{})
	sink := reserverFunc(func(ev model.SupplierEvent) error {
		if ev.ProductID == "slow" {
			<-block
		}
		return nil
	})
	mgr := startManager(t, config.Defaults(), sink)
	defer close(block)

	_, err := mgr.Submit(ev("slow", 1))
	require.NoError(t, err)
	_, err = mgr.Submit(ev("slow", 1))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err = mgr.Submit(ev("fast", 1))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return mgr.Metrics().Processed == 10 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, mgr.Pending())
}

type reserverFunc func(model.SupplierEvent) error

func (f reserverFunc) Reserve(ev model.SupplierEvent) error { return f(ev) }
