package inventory

import (
	"fmt"

	"github.com/fairyhunter13/inventory-coordinator/internal/model"
	"github.com/fairyhunter13/inventory-coordinator/internal/obs"
)

// Update applies u to product id if its stored version equals expected.
// On success the version grows by exactly one.
func (c *Coordinator) Update(id string, u model.Update, expected uint64) (model.Product, error) {
	if err := u.Validate(); err != nil {
		return model.Product{}, err
	}
	p, err := c.mutate(id, &expected, func(p *model.Product) error {
		switch u.Op {
		case model.OpAdd:
			p.Quantity += u.Quantity
		case model.OpSubtract:
			if p.Quantity < u.Quantity {
				return fmt.Errorf("%w: %s has %d, requested %d", model.ErrInsufficientStock, id, p.Quantity, u.Quantity)
			}
			p.Quantity -= u.Quantity
		}
		return nil
	})
	if err != nil {
		return model.Product{}, err
	}
	obs.UpdatesApplied.Add(1)
	obs.Logger.Info("update_applied",
		"product_id", id,
		"operation", string(u.Op),
		"amount", u.Quantity,
		"quantity", p.Quantity,
		"version", p.Version,
	)
	return p, nil
}

// mutate runs fn on a copy of the stored product while holding its lock.
// When expected is set, the stored version must match it. A successful fn is
// committed with the next version, a fresh timestamp, a cache refresh and a
// notification; a failing fn leaves the record untouched.
func (c *Coordinator) mutate(id string, expected *uint64, fn func(*model.Product) error) (model.Product, error) {
	mu := c.locks.For(id)
	mu.Lock()
	defer mu.Unlock()

	p, ok := c.store.Get(id)
	if !ok {
		return model.Product{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if expected != nil && p.Version != *expected {
		obs.VersionConflicts.Add(1)
		return model.Product{}, &model.ConflictError{ProductID: id, Expected: *expected, Current: p.Version}
	}
	if err := fn(&p); err != nil {
		return model.Product{}, err
	}
	p.Version++
	p.LastUpdated = c.now()
	c.commit(p)
	return p.Clone(), nil
}

// commit writes p and propagates it. The caller holds the product lock, so
// cache and subscribers observe commits in version order.
func (c *Coordinator) commit(p model.Product) {
	c.store.Put(p)
	c.products.Put(p.ID, p.Clone())
	c.hub.Publish(p.ID, p)
	obs.NotificationsSent.Add(1)
}
