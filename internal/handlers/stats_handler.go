package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/matthiasrib29/StoFlow-sub015/internal/facade"
)

// StatsHandler serves daily aggregate and queue count routes
type StatsHandler struct {
	facade *facade.Service
	logger arbor.ILogger
}

// NewStatsHandler creates a stats handler
func NewStatsHandler(f *facade.Service, logger arbor.ILogger) *StatsHandler {
	return &StatsHandler{facade: f, logger: logger}
}

// GetStatsHandler handles GET /api/stats?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *StatsHandler) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	summary, err := h.facade.Stats(r.Context(), tenantID, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

// QueueCountsHandler handles GET /api/stats/queue
func (h *StatsHandler) QueueCountsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	counts, err := h.facade.QueueCounts(r.Context(), tenantID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, counts)
}
