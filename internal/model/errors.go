package model

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by the coordinator. Match them with errors.Is.
var (
	ErrNotFound          = errors.New("product not found")
	ErrVersionConflict   = errors.New("version conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrCircuitOpen       = errors.New("circuit breaker is open")
	ErrBulkFailure       = errors.New("bulk update failed")
	ErrInvalid           = errors.New("invalid request")
	ErrExists            = errors.New("product already exists")
)

// ConflictError reports a stale expected version together with the version
// the caller may retry with.
type ConflictError struct {
	ProductID string
	Expected  uint64
	Current   uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected %d, current %d", e.ProductID, e.Expected, e.Current)
}

func (e *ConflictError) Is(target error) bool { return target == ErrVersionConflict }

// BulkError names the first failing item of a bulk update. Items before
// Index stay committed.
type BulkError struct {
	Index     int
	ProductID string
	Err       error
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("bulk update failed at item %d (%s): %v", e.Index, e.ProductID, e.Err)
}

func (e *BulkError) Unwrap() error { return e.Err }

func (e *BulkError) Is(target error) bool { return target == ErrBulkFailure }
