// Package httpapi exposes the HTTP API layer of the service.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/inventory-coordinator/internal/model"
	"github.com/fairyhunter13/inventory-coordinator/internal/queue"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// bulkError is the payload for a failed bulk update. Applied lists the items
// committed before the failure.
type bulkError struct {
	Error     string                   `json:"error"`
	Cause     string                   `json:"cause"`
	Details   string                   `json:"details"`
	Index     int                      `json:"index"`
	ProductID string                   `json:"product_id"`
	Applied   map[string]model.Product `json:"applied"`
}

// WriteJSONError writes a JSON error payload with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, jsonError{Error: message, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a core error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, model.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "circuit_open"
	case errors.Is(err, queue.ErrIntakeClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, model.ErrBulkFailure):
		return http.StatusBadRequest, "bulk_failure"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrVersionConflict):
		return http.StatusConflict, "version_conflict"
	case errors.Is(err, model.ErrExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, model.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "insufficient_stock"
	case errors.Is(err, model.ErrInvalid):
		return http.StatusBadRequest, "validation_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	WriteJSONError(w, status, code, err.Error())
}
