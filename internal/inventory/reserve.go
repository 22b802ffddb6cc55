package inventory

import (
	"fmt"

	"github.com/fairyhunter13/inventory-coordinator/internal/model"
	"github.com/fairyhunter13/inventory-coordinator/internal/obs"
)

// Reserve adjusts the reserved stock of a product on behalf of a supplier.
// It is a versioned mutation like Update but takes no expected version.
func (c *Coordinator) Reserve(ev model.SupplierEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	p, err := c.mutate(ev.ProductID, nil, func(p *model.Product) error {
		if p.Reserved+ev.Quantity < 0 {
			return fmt.Errorf("%w: %s has %d reserved, release of %d requested",
				model.ErrInsufficientStock, ev.ProductID, p.Reserved, -ev.Quantity)
		}
		p.Reserved += ev.Quantity
		return nil
	})
	if err != nil {
		return err
	}
	obs.Logger.Info("reservation_applied",
		"product_id", ev.ProductID,
		"supplier_id", ev.SupplierID,
		"sequence", ev.Sequence,
		"reserved", p.Reserved,
		"version", p.Version,
	)
	return nil
}
