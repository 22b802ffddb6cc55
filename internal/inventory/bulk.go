package inventory

import (
	"github.com/fairyhunter13/inventory-coordinator/internal/model"
	"github.com/fairyhunter13/inventory-coordinator/internal/obs"
)

// BulkUpdate applies items in order through Update. It stops at the first
// failing item and returns a *model.BulkError naming it. Items before the
// failure stay committed and are returned in the map; nothing is rolled back.
func (c *Coordinator) BulkUpdate(items []model.BulkItem) (map[string]model.Product, error) {
	out := make(map[string]model.Product, len(items))
	for i, it := range items {
		p, err := c.Update(it.ProductID, it.Update, it.Version)
		if err != nil {
			obs.Logger.Warn("bulk_update_aborted",
				"index", i,
				"product_id", it.ProductID,
				"committed", len(out),
				"error", err.Error(),
			)
			return out, &model.BulkError{Index: i, ProductID: it.ProductID, Err: err}
		}
		out[it.ProductID] = p
	}
	return out, nil
}
