package registry

import (
	"context"
	"fmt"

	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// TaskFunc executes one step of an action. The returned map is merged
// into the job's result data on success.
type TaskFunc func(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error)

// TaskSpec declares one step of an action's execution plan
type TaskSpec struct {
	Description string
	Type        models.TaskType
	Run         TaskFunc
}

// Handler declares a marketplace action: its input contract and its
// ordered task plan. Handlers are composed from task specs, a service
// contributes behavior by supplying Run funcs rather than subclassing
// anything.
type Handler struct {
	Marketplace models.Marketplace
	ActionCode  string
	Name        string

	// RequiredInputs are keys that must be present in the job's input data
	RequiredInputs []string

	Tasks []TaskSpec
}

// Validate checks the handler declaration itself
func (h *Handler) Validate() error {
	if !models.IsValidMarketplace(h.Marketplace) {
		return fmt.Errorf("%w: invalid marketplace %q", models.ErrInvalidInput, h.Marketplace)
	}
	if h.ActionCode == "" {
		return fmt.Errorf("%w: action code is required", models.ErrInvalidInput)
	}
	if len(h.Tasks) == 0 {
		return fmt.Errorf("%w: handler %s/%s declares no tasks", models.ErrInvalidInput, h.Marketplace, h.ActionCode)
	}
	for i, spec := range h.Tasks {
		if spec.Description == "" || spec.Run == nil {
			return fmt.Errorf("%w: handler %s/%s task %d is incomplete", models.ErrInvalidInput, h.Marketplace, h.ActionCode, i+1)
		}
	}
	return nil
}

// ValidateInput checks a job's input data against the handler's contract
func (h *Handler) ValidateInput(job *models.Job) error {
	for _, key := range h.RequiredInputs {
		if _, ok := job.InputData[key]; !ok {
			return fmt.Errorf("%w: missing required input %q for %s/%s",
				models.ErrInvalidInput, key, h.Marketplace, h.ActionCode)
		}
	}
	return nil
}

// BuildTasks materializes the handler's plan into persisted task rows
// for a job. Positions are 1-based in declaration order.
func (h *Handler) BuildTasks(job *models.Job) []*models.Task {
	tasks := make([]*models.Task, 0, len(h.Tasks))
	for i, spec := range h.Tasks {
		tasks = append(tasks, models.NewTask(job.ID, i+1, spec.Description, spec.Type))
	}
	return tasks
}

// ActionType returns the handler's reference data row
func (h *Handler) ActionType() *models.ActionType {
	return &models.ActionType{
		Code:        h.ActionCode,
		Name:        h.Name,
		Marketplace: h.Marketplace,
	}
}
