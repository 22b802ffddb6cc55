package inventory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/inventory-coordinator/internal/model"
)

func TestBulkUpdateAllSucceed(t *testing.T) {
	c := newTestCoordinator(t)
	seed(t, c, "A", 10)
	seed(t, c, "B", 5)

	out, err := c.BulkUpdate([]model.BulkItem{
		{ProductID: "A", Update: model.Update{Op: model.OpAdd, Quantity: 2}, Version: 1},
		{ProductID: "B", Update: model.Update{Op: model.OpSubtract, Quantity: 3}, Version: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), out["A"].Quantity)
	assert.Equal(t, uint64(2), out["A"].Version)
	assert.Equal(t, int64(2), out["B"].Quantity)
	assert.Equal(t, uint64(2), out["B"].Version)
}

func TestBulkUpdateFailFastNoRollback(t *testing.T) {
	c := newTestCoordinator(t)
	seed(t, c, "A", 10)
	seed(t, c, "B", 5)
	seed(t, c, "C", 5)

	out, err := c.BulkUpdate([]model.BulkItem{
		{ProductID: "A", Update: model.Update{Op: model.OpAdd, Quantity: 2}, Version: 1},
		{ProductID: "B", Update: model.Update{Op: model.OpSubtract, Quantity: 10}, Version: 1},
		{ProductID: "C", Update: model.Update{Op: model.OpAdd, Quantity: 1}, Version: 1},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrBulkFailure)
	assert.ErrorIs(t, err, model.ErrInsufficientStock)

	var be *model.BulkError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "B", be.ProductID)
	assert.Equal(t, 1, be.Index)

	require.Contains(t, out, "A")
	assert.NotContains(t, out, "B")

	a, _ := c.Get("A")
	assert.Equal(t, int64(12), a.Quantity, "earlier item stays committed")
	b, _ := c.Get("B")
	assert.Equal(t, uint64(1), b.Version)
	cc, _ := c.Get("C")
	assert.Equal(t, uint64(1), cc.Version, "later item not attempted")
}

func TestBulkUpdateEmpty(t *testing.T) {
	c := newTestCoordinator(t)
	out, err := c.BulkUpdate(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
