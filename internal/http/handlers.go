package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/inventory-coordinator/internal/config"
	httpopenapi "github.com/fairyhunter13/inventory-coordinator/internal/http/openapi"
	"github.com/fairyhunter13/inventory-coordinator/internal/inventory"
	"github.com/fairyhunter13/inventory-coordinator/internal/model"
	"github.com/fairyhunter13/inventory-coordinator/internal/obs"
	"github.com/fairyhunter13/inventory-coordinator/internal/queue"
)

type App struct {
	Cfg     config.Config
	Inv     *inventory.Coordinator
	Manager *queue.Manager
	closing atomic.Bool
	started time.Time
}

type bulkRequest struct {
	Updates []model.BulkItem `json:"updates"`
}

type reservationAck struct {
	Status     string `json:"status"`
	RequestID  string `json:"request_id"`
	Sequence   uint64 `json:"sequence"`
	ProductID  string `json:"product_id"`
	ReceivedAt string `json:"received_at"`
	QueueDepth int    `json:"queue_depth"`
}

func NewApp(cfg config.Config, inv *inventory.Coordinator, m *queue.Manager) *App {
	return &App{Cfg: cfg, Inv: inv, Manager: m, started: time.Now()}
}

// StartShutdown rejects new reservations and ends open streams.
func (a *App) StartShutdown() {
	a.closing.Store(true)
	a.Manager.CloseIntake()
	a.Inv.Close()
}

// admit applies the client rate limit and writes 429 on refusal.
func (a *App) admit(w http.ResponseWriter, r *http.Request) bool {
	if a.Inv.AdmitClient(ClientIDFromContext(r.Context())) {
		return true
	}
	writeError(w, model.ErrRateLimited)
	return false
}

// decodeJSON reads a strict JSON body into v, writing the error response
// itself when it fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func (a *App) getProductHandler(w http.ResponseWriter, r *http.Request) {
	if !a.admit(w, r) {
		return
	}
	// Reads are gated by the breaker but a missing product is the caller's
	// problem, so nothing is recorded here.
	if !a.Inv.BreakerAllows(inventory.OpGetProduct) {
		writeError(w, model.ErrCircuitOpen)
		return
	}
	p, err := a.Inv.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *App) createProductHandler(w http.ResponseWriter, r *http.Request) {
	if !a.admit(w, r) {
		return
	}
	var in model.Product
	if !decodeJSON(w, r, &in) {
		return
	}
	var out model.Product
	err := a.Inv.Guard(inventory.OpCreateProduct, func() (err error) {
		out, err = a.Inv.Create(in)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/products/"+out.ID)
	writeJSON(w, http.StatusCreated, out)
}

func (a *App) updateProductHandler(w http.ResponseWriter, r *http.Request) {
	if !a.admit(w, r) {
		return
	}
	version, err := strconv.ParseUint(r.URL.Query().Get("version"), 10, 64)
	if err != nil || version == 0 {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "version query parameter must be a positive integer")
		return
	}
	var upd model.Update
	if !decodeJSON(w, r, &upd) {
		return
	}
	id := r.PathValue("id")
	var out model.Product
	err = a.Inv.Guard(inventory.OpUpdateProduct, func() (err error) {
		out, err = a.Inv.Update(id, upd, version)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) bulkUpdateHandler(w http.ResponseWriter, r *http.Request) {
	if !a.admit(w, r) {
		return
	}
	var req bulkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var out map[string]model.Product
	err := a.Inv.Guard(inventory.OpBulkUpdate, func() (err error) {
		out, err = a.Inv.BulkUpdate(req.Updates)
		return err
	})
	var be *model.BulkError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, out)
	case errors.As(err, &be):
		_, cause := statusFor(be.Err)
		writeJSON(w, http.StatusBadRequest, bulkError{
			Cause:     cause,
			Error:     "bulk_failure",
			Details:   be.Error(),
			Index:     be.Index,
			ProductID: be.ProductID,
			Applied:   out,
		})
	default:
		writeError(w, err)
	}
}

func (a *App) lowStockHandler(w http.ResponseWriter, r *http.Request) {
	if !a.admit(w, r) {
		return
	}
	if !a.Inv.BreakerAllows(inventory.OpLowStock) {
		writeError(w, model.ErrCircuitOpen)
		return
	}
	threshold := int64(-1)
	if v := r.URL.Query().Get("threshold"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			WriteJSONError(w, http.StatusBadRequest, "validation_error", "threshold must be a non-negative integer")
			return
		}
		threshold = n
	}
	items := a.Inv.LowStock(threshold)
	if items == nil {
		items = []model.Product{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *App) supplierWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if a.closing.Load() || a.Manager.IsShuttingDown() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	if !a.admit(w, r) {
		return
	}
	var ev model.SupplierEvent
	if !decodeJSON(w, r, &ev) {
		return
	}
	if err := ev.Validate(); err != nil {
		writeError(w, err)
		return
	}
	seq, err := a.Manager.Submit(ev)
	if err != nil {
		writeError(w, err)
		return
	}
	ack := reservationAck{
		Status:     "queued",
		RequestID:  RequestIDFromContext(r.Context()),
		Sequence:   seq,
		ProductID:  ev.ProductID,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		QueueDepth: a.Manager.Metrics().Depth,
	}
	writeJSON(w, http.StatusAccepted, ack)
	obs.Logger.Info("reservation_accepted",
		"request_id", ack.RequestID,
		"sequence", ack.Sequence,
		"product_id", ack.ProductID,
		"supplier_id", ev.SupplierID,
		"queue_depth", ack.QueueDepth,
	)
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if a.closing.Load() {
		status = "shutting_down"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (a *App) metricsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"inventory":    a.Inv.Stats(),
		"reservations": a.Manager.Metrics(),
		"worker_count": a.Manager.WorkerCount(),
		"uptime_sec":   time.Since(a.started).Seconds(),
	})
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(docsPage))
}

const docsPage = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Inventory Coordinator API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
