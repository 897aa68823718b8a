package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/matthiasrib29/StoFlow-sub015/internal/facade"
	"github.com/matthiasrib29/StoFlow-sub015/internal/interfaces"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// TaskHandler serves task inspection routes
type TaskHandler struct {
	facade *facade.Service
	logger arbor.ILogger
}

// NewTaskHandler creates a task handler
func NewTaskHandler(f *facade.Service, logger arbor.ILogger) *TaskHandler {
	return &TaskHandler{facade: f, logger: logger}
}

// ListTasksHandler handles GET /api/tasks
func (h *TaskHandler) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	opts := &interfaces.TaskListOptions{
		JobID:  r.URL.Query().Get("job_id"),
		Status: models.TaskStatus(r.URL.Query().Get("status")),
		Type:   models.TaskType(r.URL.Query().Get("type")),
		Limit:  QueryInt(r, "limit", 100),
		Offset: QueryInt(r, "offset", 0),
	}

	tasks, total, err := h.facade.ListTasks(r.Context(), tenantID, opts)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	counts, err := h.facade.CountTasks(r.Context(), tenantID, opts)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tasks":            tasks,
		"total":            total,
		"counts_by_status": counts,
	})
}

// GetTaskHandler handles GET /api/tasks/{id}
func (h *TaskHandler) GetTaskHandler(w http.ResponseWriter, r *http.Request, taskID string) {
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	task, err := h.facade.GetTask(r.Context(), tenantID, taskID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, task)
}
