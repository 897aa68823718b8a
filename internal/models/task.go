// -----------------------------------------------------------------------
// Task - atomic idempotent step inside a job, ordered by position
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSuccess    TaskStatus = "success"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusTimeout    TaskStatus = "timeout"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskType identifies the execution channel of a task
type TaskType string

const (
	TaskTypePluginHTTP TaskType = "plugin_http" // Proxied through the browser extension
	TaskTypeDirectHTTP TaskType = "direct_http" // HTTPS call made by the orchestrator
	TaskTypeDB         TaskType = "db"
	TaskTypeFile       TaskType = "file"
)

// Task represents an atomic, idempotent step inside a job. Tasks are
// totally ordered within a job by Position.
type Task struct {
	ID          string     `json:"id"`
	JobID       string     `json:"job_id"`
	Position    int        `json:"position"` // 1-based, unique within job
	Description string     `json:"description"`
	Type        TaskType   `json:"task_type"`
	Status      TaskStatus `json:"status"`

	Payload      map[string]interface{} `json:"payload,omitempty"`
	Result       map[string]interface{} `json:"result,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	RetryCount   int                    `json:"retry_count"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewTask creates a pending task at the given position
func NewTask(jobID string, position int, description string, taskType TaskType) *Task {
	return &Task{
		ID:          NewTaskID(),
		JobID:       jobID,
		Position:    position,
		Description: description,
		Type:        taskType,
		Status:      TaskStatusPending,
		CreatedAt:   time.Now(),
	}
}

// Validate validates the task
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if t.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if t.Position < 1 {
		return fmt.Errorf("position must be >= 1")
	}
	if t.Description == "" {
		return fmt.Errorf("description is required")
	}
	return nil
}

// IsComplete returns true for statuses that are absorbing under job retry.
// Failed, timeout and pending tasks are re-executed from scratch on retry.
func (t *Task) IsComplete() bool {
	return t.Status == TaskStatusSuccess || t.Status == TaskStatusCancelled
}

// MarkProcessing marks the task as picked up for execution
func (t *Task) MarkProcessing() {
	t.Status = TaskStatusProcessing
	now := time.Now()
	t.StartedAt = &now
}

// MarkSuccess records a successful execution with its result
func (t *Task) MarkSuccess(result map[string]interface{}) {
	t.Status = TaskStatusSuccess
	t.Result = result
	t.ErrorMessage = ""
	now := time.Now()
	t.CompletedAt = &now
}

// MarkFailed records a failed execution. A timeout classification maps to
// the dedicated timeout status so the dispatcher can distinguish it.
func (t *Task) MarkFailed(errorMsg string, timedOut bool) {
	if timedOut {
		t.Status = TaskStatusTimeout
	} else {
		t.Status = TaskStatusFailed
	}
	t.ErrorMessage = errorMsg
	t.RetryCount++
	now := time.Now()
	t.CompletedAt = &now
}

// MarkCancelled marks a not-yet-executed task as cancelled
func (t *Task) MarkCancelled() {
	t.Status = TaskStatusCancelled
	now := time.Now()
	t.CompletedAt = &now
}
