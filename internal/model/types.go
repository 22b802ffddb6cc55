// Package model defines domain types used by the service.
package model

import (
	"fmt"
	"slices"
	"time"
)

// Category is the product category. Only the values in Categories are valid.
type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryBooks       Category = "books"
	CategoryClothing    Category = "clothing"
	CategoryFood        Category = "food"
	CategoryToys        Category = "toys"
)

// Categories lists every accepted category.
var Categories = []Category{
	CategoryElectronics,
	CategoryBooks,
	CategoryClothing,
	CategoryFood,
	CategoryToys,
}

const (
	MaxIDLength   = 50
	MaxNameLength = 100
)

// Product represents the current state of a product.
type Product struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Quantity    int64     `json:"quantity" yaml:"quantity"`
	Reserved    int64     `json:"reserved" yaml:"reserved"`
	Category    Category  `json:"category" yaml:"category"`
	LastUpdated time.Time `json:"last_updated" yaml:"-"`
	Version     uint64    `json:"version" yaml:"-"`
	SupplierIDs []string  `json:"supplier_ids" yaml:"supplier_ids"`
	MinQuantity int64     `json:"min_quantity" yaml:"min_quantity"`
	MaxQuantity *int64    `json:"max_quantity,omitempty" yaml:"max_quantity,omitempty"`
}

// Clone returns a deep copy so callers never share slices or pointers with a
// stored record.
func (p Product) Clone() Product {
	c := p
	if p.SupplierIDs != nil {
		c.SupplierIDs = slices.Clone(p.SupplierIDs)
	}
	if p.MaxQuantity != nil {
		m := *p.MaxQuantity
		c.MaxQuantity = &m
	}
	return c
}

// Validate checks the static constraints of a product record.
// Version and LastUpdated are owned by the coordinator and are not checked.
func (p Product) Validate() error {
	switch {
	case p.ID == "":
		return invalid("id is required")
	case len(p.ID) > MaxIDLength:
		return invalid("id must be at most %d characters", MaxIDLength)
	case p.Name == "":
		return invalid("name is required")
	case len(p.Name) > MaxNameLength:
		return invalid("name must be at most %d characters", MaxNameLength)
	case p.Quantity < 0:
		return invalid("quantity must be >= 0")
	case p.Reserved < 0:
		return invalid("reserved must be >= 0")
	case p.MinQuantity < 0:
		return invalid("min_quantity must be >= 0")
	}
	if !slices.Contains(Categories, p.Category) {
		return invalid("category must be one of %v", Categories)
	}
	if p.MaxQuantity != nil && *p.MaxQuantity < p.MinQuantity {
		return invalid("max_quantity must be >= min_quantity")
	}
	seen := make(map[string]struct{}, len(p.SupplierIDs))
	for _, s := range p.SupplierIDs {
		if _, dup := seen[s]; dup {
			return invalid("supplier ids must be unique, %q repeated", s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// Op is the kind of quantity change.
type Op string

const (
	OpAdd      Op = "add"
	OpSubtract Op = "subtract"
)

// Update is a quantity delta applied to one product.
type Update struct {
	Op       Op    `json:"operation"`
	Quantity int64 `json:"quantity"`
}

// Validate rejects unknown operations and non-positive magnitudes.
func (u Update) Validate() error {
	if u.Op != OpAdd && u.Op != OpSubtract {
		return invalid("operation must be add or subtract")
	}
	if u.Quantity <= 0 {
		return invalid("quantity must be > 0")
	}
	return nil
}

// BulkItem is one entry of a bulk update request.
type BulkItem struct {
	ProductID string `json:"product_id"`
	Update    Update `json:"update"`
	Version   uint64 `json:"version"`
}

// SupplierEvent represents an incoming supplier reservation.
// A positive Quantity earmarks stock, a negative one releases it.
type SupplierEvent struct {
	SupplierID string `json:"supplier_id"`
	ProductID  string `json:"product_id"`
	Quantity   int64  `json:"quantity"`
	Sequence   uint64 `json:"-"`
}

// Validate checks the event payload.
func (e SupplierEvent) Validate() error {
	switch {
	case e.SupplierID == "":
		return invalid("supplier_id is required")
	case e.ProductID == "":
		return invalid("product_id is required")
	case e.Quantity == 0:
		return invalid("quantity must be non-zero")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}
