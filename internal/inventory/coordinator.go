// Package inventory coordinates versioned product updates with rate limiting,
// circuit breaking, read caching and change notifications.
//
// Callers outside the core follow one order per request: AdmitClient, then
// BreakerAllows for the operation, then the operation itself, then
// BreakerRecordFailure or BreakerRecordSuccess depending on the outcome.
// Only failures caused by stored state (not found, version conflict,
// insufficient stock) count against the breaker.
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/fairyhunter13/inventory-coordinator/internal/breaker"
	"github.com/fairyhunter13/inventory-coordinator/internal/cache"
	"github.com/fairyhunter13/inventory-coordinator/internal/config"
	"github.com/fairyhunter13/inventory-coordinator/internal/model"
	"github.com/fairyhunter13/inventory-coordinator/internal/notify"
	"github.com/fairyhunter13/inventory-coordinator/internal/obs"
	"github.com/fairyhunter13/inventory-coordinator/internal/ratelimit"
	"github.com/fairyhunter13/inventory-coordinator/internal/store"
)

// Operation names used as circuit breaker keys.
const (
	OpGetProduct    = "get_product"
	OpCreateProduct = "create_product"
	OpUpdateProduct = "update_product"
	OpBulkUpdate    = "bulk_update"
	OpLowStock      = "low_stock"
	OpStream        = "stream_product"
)

// Coordinator is the entry point of the inventory core.
type Coordinator struct {
	store    *store.Store
	locks    *store.Locks
	limiter  *ratelimit.Limiter
	breaker  *breaker.Breaker
	products *cache.Cache[string, model.Product]
	lowStock *cache.Cache[int64, []model.Product]
	hub      *notify.Hub
	cacheTTL time.Duration
	now      func() time.Time
}

func New(cfg config.Config) *Coordinator {
	return &Coordinator{
		store:    store.New(),
		locks:    store.NewLocks(),
		limiter:  ratelimit.New(cfg.RateLimit, cfg.RateWindow),
		breaker:  breaker.New(cfg.BreakerThreshold, cfg.BreakerCooldown),
		products: cache.New[string, model.Product](cfg.CacheTTL),
		lowStock: cache.New[int64, []model.Product](cfg.CacheTTL),
		hub:      notify.NewHub(),
		cacheTTL: cfg.CacheTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start runs the cache sweepers and the rate limiter pruning until ctx is
// done.
func (c *Coordinator) Start(ctx context.Context) {
	go c.products.Run(ctx, c.cacheTTL)
	go c.lowStock.Run(ctx, c.cacheTTL)
	go c.limiter.Run(ctx, 0)
}

// Close ends every open subscription.
func (c *Coordinator) Close() { c.hub.Close() }

// Create stores a new product at version 1.
func (c *Coordinator) Create(p model.Product) (model.Product, error) {
	if err := p.Validate(); err != nil {
		return model.Product{}, err
	}
	mu := c.locks.For(p.ID)
	mu.Lock()
	defer mu.Unlock()
	if _, ok := c.store.Get(p.ID); ok {
		return model.Product{}, model.ErrExists
	}
	p = p.Clone()
	p.Version = 1
	p.LastUpdated = c.now()
	c.commit(p)
	obs.Logger.Info("product_created", "product_id", p.ID, "quantity", p.Quantity)
	return p.Clone(), nil
}

// Get returns the current product, served from the read cache when fresh.
func (c *Coordinator) Get(id string) (model.Product, error) {
	if p, ok := c.products.Get(id); ok {
		return p.Clone(), nil
	}
	// Fill under the product lock so a concurrent write cannot be
	// overwritten by an older read.
	mu := c.locks.For(id)
	mu.Lock()
	defer mu.Unlock()
	p, ok := c.store.Get(id)
	if !ok {
		return model.Product{}, model.ErrNotFound
	}
	c.products.Put(id, p)
	return p.Clone(), nil
}

// Subscribe streams every committed snapshot of id until the subscription
// is cancelled. Subscribing to a product that does not exist yet is allowed.
func (c *Coordinator) Subscribe(id string) *notify.Subscription {
	return c.hub.Subscribe(id)
}

// AdmitClient applies the per-client sliding window.
func (c *Coordinator) AdmitClient(clientID string) bool {
	if c.limiter.Admit(clientID) {
		return true
	}
	obs.RateLimited.Add(1)
	obs.Logger.Warn("rate_limited", "client_id", clientID)
	return false
}

// BreakerAllows reports whether op is currently permitted.
func (c *Coordinator) BreakerAllows(op string) bool {
	if c.breaker.Allow(op) {
		return true
	}
	obs.CircuitRejections.Add(1)
	return false
}

func (c *Coordinator) BreakerRecordFailure(op string) { c.breaker.RecordFailure(op) }

func (c *Coordinator) BreakerRecordSuccess(op string) { c.breaker.RecordSuccess(op) }

// Guard runs fn behind the breaker for op. It returns ErrCircuitOpen without
// calling fn when the circuit is open, and records the outcome otherwise.
func (c *Coordinator) Guard(op string, fn func() error) error {
	if !c.BreakerAllows(op) {
		return model.ErrCircuitOpen
	}
	err := fn()
	switch {
	case err == nil:
		c.BreakerRecordSuccess(op)
	case IsStateFailure(err):
		c.BreakerRecordFailure(op)
	}
	return err
}

// IsStateFailure reports whether err was caused by stored state rather than
// by a malformed request.
func IsStateFailure(err error) bool {
	return errors.Is(err, model.ErrNotFound) ||
		errors.Is(err, model.ErrVersionConflict) ||
		errors.Is(err, model.ErrInsufficientStock)
}

// LowStock lists products whose quantity is below threshold. A negative
// threshold compares each product against its own MinQuantity. Results are
// cached for the TTL, so they may lag writes by up to that long.
func (c *Coordinator) LowStock(threshold int64) []model.Product {
	if threshold < 0 {
		threshold = -1
	}
	if cached, ok := c.lowStock.Get(threshold); ok {
		return cloneProducts(cached)
	}
	var out []model.Product
	for _, p := range c.store.List() {
		limit := threshold
		if limit < 0 {
			limit = p.MinQuantity
		}
		if p.Quantity < limit {
			out = append(out, p)
		}
	}
	c.lowStock.Put(threshold, out)
	return cloneProducts(out)
}

func cloneProducts(ps []model.Product) []model.Product {
	if ps == nil {
		return nil
	}
	out := make([]model.Product, len(ps))
	for i, p := range ps {
		out[i] = p.Clone()
	}
	return out
}

// Stats is a point-in-time view for the metrics endpoint.
type Stats struct {
	Products        int               `json:"products"`
	TrackedClients  int               `json:"tracked_clients"`
	CachedProducts  int               `json:"cached_products"`
	Notifications   uint64            `json:"notifications_published"`
	CircuitBreakers map[string]string `json:"circuit_breakers"`
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		Products:        c.store.Len(),
		TrackedClients:  c.limiter.Clients(),
		CachedProducts:  c.products.Len(),
		Notifications:   c.hub.Published(),
		CircuitBreakers: c.breaker.Snapshot(),
	}
}
