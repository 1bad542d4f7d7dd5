// Package handler contains the dispatch engine's optional HTTP
// admin/inspection surface — read-only views into the stop network and
// current demand/supply, plus a manual tick trigger for operators. The
// dispatch pipeline itself runs on its own tick loop; nothing here is on
// the critical path of a tick.
package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/shiva/dispatch/internal/repository"
)

// Ticker is the subset of *dispatch.Engine the admin handler needs —
// kept as an interface so the handler package does not import the
// dispatch package directly (it sits one layer below cmd/dispatcher,
// which wires the two together).
type Ticker interface {
	Tick(ctx context.Context) error
}

// AdminHandler serves read-only inspection endpoints and a manual tick
// trigger.
type AdminHandler struct {
	stops  *repository.StopRepository
	orders *repository.OrderRepository
	cabs   *repository.CabRepository
	engine Ticker
}

// NewAdminHandler creates a new admin handler wired to the dispatch
// repositories and the running engine.
func NewAdminHandler(stops *repository.StopRepository, orders *repository.OrderRepository, cabs *repository.CabRepository, engine Ticker) *AdminHandler {
	return &AdminHandler{stops: stops, orders: orders, cabs: cabs, engine: engine}
}

// ListStops handles GET /admin/stops.
func (h *AdminHandler) ListStops(w http.ResponseWriter, r *http.Request) {
	stops, err := h.stops.LoadAll(r.Context())
	if err != nil {
		log.Printf("[handler] list stops error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}
	writeJSON(w, http.StatusOK, stops)
}

// PendingOrders handles GET /admin/orders/pending.
func (h *AdminHandler) PendingOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.LoadPending(r.Context())
	if err != nil {
		log.Printf("[handler] pending orders error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// FreeCabs handles GET /admin/cabs/free.
func (h *AdminHandler) FreeCabs(w http.ResponseWriter, r *http.Request) {
	cabs, err := h.cabs.LoadFree(r.Context())
	if err != nil {
		log.Printf("[handler] free cabs error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}
	writeJSON(w, http.StatusOK, cabs)
}

// TriggerTick handles POST /admin/tick — runs one dispatch tick
// out-of-band from the ticker loop, for operator-initiated testing.
func (h *AdminHandler) TriggerTick(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Tick(r.Context()); err != nil {
		log.Printf("[handler] manual tick error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "tick_failed", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
