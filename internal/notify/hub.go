// Package notify fans product snapshots out to per-product subscribers.
package notify

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/fairyhunter13/inventory-coordinator/internal/model"
	"github.com/fairyhunter13/inventory-coordinator/internal/obs"
)

// Hub delivers every published snapshot of a product to each subscriber of
// that product. Publish never blocks: each subscriber owns an unbounded
// mailbox drained by its own goroutine.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*Subscription
	closed bool

	published atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[string]*Subscription)}
}

// Subscribe registers a new subscriber for productID. On a closed hub the
// returned subscription is already cancelled.
func (h *Hub) Subscribe(productID string) *Subscription {
	s := newSubscription(h, productID)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.stop()
		go s.pump()
		return s
	}
	set, ok := h.subs[productID]
	if !ok {
		set = make(map[string]*Subscription)
		h.subs[productID] = set
	}
	set[s.id] = s
	h.mu.Unlock()
	go s.pump()
	obs.Logger.Debug("subscriber_added", "product_id", productID, "subscription_id", s.id)
	return s
}

// Publish queues snapshot for every current subscriber of productID.
func (h *Hub) Publish(productID string, snapshot model.Product) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	h.published.Add(1)
	for _, s := range h.subs[productID] {
		s.push(snapshot.Clone())
	}
}

// Subscribers returns the number of live subscribers for productID.
func (h *Hub) Subscribers(productID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[productID])
}

// Published returns how many snapshots were published.
func (h *Hub) Published() uint64 { return h.published.Load() }

// Close cancels every subscription. Later publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	all := h.subs
	h.subs = nil
	h.mu.Unlock()
	for _, set := range all {
		for _, s := range set {
			s.stop()
		}
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.productID]
	if !ok {
		return
	}
	delete(set, s.id)
	if len(set) == 0 {
		delete(h.subs, s.productID)
	}
}

// Subscription is a cancellable, non-restartable stream of snapshots for
// one product.
type Subscription struct {
	id        string
	productID string
	hub       *Hub

	mu      sync.Mutex
	backlog []model.Product
	notify  chan struct{}
	out     chan model.Product
	done    chan struct{}
	once    sync.Once
}

func newSubscription(h *Hub, productID string) *Subscription {
	return &Subscription{
		id:        uuid.NewString(),
		productID: productID,
		hub:       h,
		notify:    make(chan struct{}, 1),
		out:       make(chan model.Product),
		done:      make(chan struct{}),
	}
}

func (s *Subscription) ID() string        { return s.id }
func (s *Subscription) ProductID() string { return s.productID }

// C returns the delivery channel. It is closed after Cancel.
func (s *Subscription) C() <-chan model.Product { return s.out }

// Done is closed once the subscription is cancelled.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Cancel removes the subscriber from the hub and discards undelivered
// snapshots. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.hub.remove(s)
	s.stop()
}

// All yields snapshots until ctx is done or the subscription is cancelled.
// The subscription is cancelled when iteration stops.
func (s *Subscription) All(ctx context.Context) iter.Seq[model.Product] {
	return func(yield func(model.Product) bool) {
		defer s.Cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-s.out:
				if !ok || !yield(p) {
					return
				}
			}
		}
	}
}

func (s *Subscription) stop() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.backlog = nil
		s.mu.Unlock()
	})
}

func (s *Subscription) push(p model.Product) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
	}
	s.backlog = append(s.backlog, p)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pump moves backlog items to out in publish order.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.backlog) == 0 {
			s.mu.Unlock()
			select {
			case <-s.done:
				return
			case <-s.notify:
				continue
			}
		}
		next := s.backlog[0]
		s.mu.Unlock()

		select {
		case <-s.done:
			return
		case s.out <- next:
			s.mu.Lock()
			if len(s.backlog) > 0 {
				s.backlog = s.backlog[1:]
			}
			s.mu.Unlock()
		}
	}
}
