package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fairyhunter13/inventory-coordinator/internal/inventory"
	"github.com/fairyhunter13/inventory-coordinator/internal/model"
	"github.com/fairyhunter13/inventory-coordinator/internal/obs"
)

// streamHandler sends every committed snapshot of a product as a
// server-sent event until the client disconnects or the service shuts down.
func (a *App) streamHandler(w http.ResponseWriter, r *http.Request) {
	if !a.admit(w, r) {
		return
	}
	if !a.Inv.BreakerAllows(inventory.OpStream) {
		writeError(w, model.ErrCircuitOpen)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteJSONError(w, http.StatusInternalServerError, "streaming_unsupported", "")
		return
	}
	id := r.PathValue("id")
	sub := a.Inv.Subscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	obs.Logger.Info("stream_opened", "product_id", id, "subscription_id", sub.ID(), "request_id", RequestIDFromContext(r.Context()))
	sent := 0
	for p := range sub.All(r.Context()) {
		b, err := json.Marshal(p)
		if err != nil {
			obs.Logger.Error("stream_encode_error", "product_id", id, "error", err)
			break
		}
		if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", p.Version, b); err != nil {
			break
		}
		flusher.Flush()
		sent++
	}
	obs.Logger.Info("stream_closed", "product_id", id, "subscription_id", sub.ID(), "events_sent", sent)
}
