package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/matthiasrib29/StoFlow-sub015/internal/facade"
	"github.com/matthiasrib29/StoFlow-sub015/internal/interfaces"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// JobHandler serves job submission and lifecycle routes
type JobHandler struct {
	facade *facade.Service
	logger arbor.ILogger
}

// NewJobHandler creates a job handler
func NewJobHandler(f *facade.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{facade: f, logger: logger}
}

// CreateJobHandler handles POST /api/jobs
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	var req facade.CreateJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.TenantID == "" {
		req.TenantID = r.Header.Get("X-Tenant-ID")
	}

	job, err := h.facade.CreateJob(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, job)
}

// ListJobsHandler handles GET /api/jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	opts := &interfaces.JobListOptions{
		Marketplace: models.Marketplace(r.URL.Query().Get("marketplace")),
		Status:      models.JobStatus(r.URL.Query().Get("status")),
		BatchID:     r.URL.Query().Get("batch_id"),
		Limit:       QueryInt(r, "limit", 50),
		Offset:      QueryInt(r, "offset", 0),
	}

	jobs, total, err := h.facade.ListJobs(r.Context(), tenantID, opts)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	counts, err := h.facade.QueueCounts(r.Context(), tenantID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":             jobs,
		"total":            total,
		"counts_by_status": counts,
	})
}

// GetJobHandler handles GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	detail, err := h.facade.GetJob(r.Context(), tenantID, jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

// DeleteJobHandler handles DELETE /api/jobs/{id}
func (h *JobHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	if err := h.facade.DeleteJob(r.Context(), tenantID, jobID); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// RetryJobHandler handles POST /api/jobs/{id}/retry
func (h *JobHandler) RetryJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	h.transition(w, r, jobID, h.facade.RetryJob)
}

// PauseJobHandler handles POST /api/jobs/{id}/pause
func (h *JobHandler) PauseJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	h.transition(w, r, jobID, h.facade.PauseJob)
}

// ResumeJobHandler handles POST /api/jobs/{id}/resume
func (h *JobHandler) ResumeJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	h.transition(w, r, jobID, h.facade.ResumeJob)
}

// CancelJobHandler handles POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	h.transition(w, r, jobID, h.facade.CancelJob)
}

func (h *JobHandler) transition(w http.ResponseWriter, r *http.Request, jobID string, op func(ctx context.Context, tenantID, jobID string) (*models.Job, error)) {
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	job, err := op(r.Context(), tenantID, jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}
