package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/matthiasrib29/StoFlow-sub015/internal/facade"
	"github.com/matthiasrib29/StoFlow-sub015/internal/interfaces"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// BatchHandler serves batch submission and inspection routes
type BatchHandler struct {
	facade *facade.Service
	logger arbor.ILogger
}

// NewBatchHandler creates a batch handler
func NewBatchHandler(f *facade.Service, logger arbor.ILogger) *BatchHandler {
	return &BatchHandler{facade: f, logger: logger}
}

// CreateBatchHandler handles POST /api/batches
func (h *BatchHandler) CreateBatchHandler(w http.ResponseWriter, r *http.Request) {
	var req facade.CreateBatchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.TenantID == "" {
		req.TenantID = r.Header.Get("X-Tenant-ID")
	}

	batch, jobs, err := h.facade.CreateBatch(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"batch": batch,
		"jobs":  jobs,
	})
}

// ListBatchesHandler handles GET /api/batches
func (h *BatchHandler) ListBatchesHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	opts := &interfaces.BatchListOptions{
		Marketplace: models.Marketplace(r.URL.Query().Get("marketplace")),
		Status:      models.BatchStatus(r.URL.Query().Get("status")),
		Limit:       QueryInt(r, "limit", 50),
		Offset:      QueryInt(r, "offset", 0),
	}

	batches, total, err := h.facade.ListBatches(r.Context(), tenantID, opts)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batches": batches,
		"total":   total,
	})
}

// GetBatchHandler handles GET /api/batches/{id}
func (h *BatchHandler) GetBatchHandler(w http.ResponseWriter, r *http.Request, batchID string) {
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	batch, err := h.facade.GetBatch(r.Context(), tenantID, batchID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, batch)
}

// DeleteBatchHandler handles DELETE /api/batches/{id}
func (h *BatchHandler) DeleteBatchHandler(w http.ResponseWriter, r *http.Request, batchID string) {
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	if err := h.facade.DeleteBatch(r.Context(), tenantID, batchID); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// BatchJobsHandler handles GET /api/batches/{id}/jobs
func (h *BatchHandler) BatchJobsHandler(w http.ResponseWriter, r *http.Request, batchID string) {
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	jobs, total, err := h.facade.ListJobs(r.Context(), tenantID, &interfaces.JobListOptions{
		BatchID: batchID,
		Limit:   QueryInt(r, "limit", 100),
		Offset:  QueryInt(r, "offset", 0),
	})
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"total": total,
	})
}
