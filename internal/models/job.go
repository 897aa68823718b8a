// -----------------------------------------------------------------------
// Job - unit of work addressed to one marketplace with one action
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusExpired   JobStatus = "expired"
)

// Job priority levels (wire encoding: lower number = more urgent)
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityNormal   = 3
	PriorityLow      = 4
)

// DefaultJobExpiry is the window from creation after which an unfinished
// job is swept to expired. Resume extends the deadline by the same amount.
const DefaultJobExpiry = time.Hour

// Job represents a single unit of work addressed to one marketplace with
// one action. InputData is immutable after creation; ResultData is
// monotonically enriched by task execution.
type Job struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenant_id"`
	BatchID     string      `json:"batch_id,omitempty"` // Owning batch, empty for standalone jobs
	Marketplace Marketplace `json:"marketplace"`
	ActionCode  string      `json:"action_code"`
	ProductID   string      `json:"product_id,omitempty"`
	Priority    int         `json:"priority"` // 1=critical, 2=high, 3=normal, 4=low

	Status       JobStatus              `json:"status"`
	RetryCount   int                    `json:"retry_count"`
	MaxRetries   int                    `json:"max_retries"`
	InputData    map[string]interface{} `json:"input_data"`
	ResultData   map[string]interface{} `json:"result_data"`
	ErrorMessage string                 `json:"error_message,omitempty"`

	// Control flags consulted between tasks; a task in flight is never
	// aborted mid-step.
	CancelRequested bool `json:"cancel_requested,omitempty"`
	PauseRequested  bool `json:"pause_requested,omitempty"`

	// NotBefore defers visibility to workers after a retry backoff.
	NotBefore time.Time `json:"not_before"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

// NewJob creates a pending job with defaults applied
func NewJob(tenantID string, marketplace Marketplace, actionCode string, input map[string]interface{}) *Job {
	if input == nil {
		input = make(map[string]interface{})
	}
	now := time.Now()
	return &Job{
		ID:          NewJobID(),
		TenantID:    tenantID,
		Marketplace: marketplace,
		ActionCode:  actionCode,
		Priority:    PriorityNormal,
		Status:      JobStatusPending,
		MaxRetries:  3,
		InputData:   input,
		ResultData:  make(map[string]interface{}),
		NotBefore:   now,
		CreatedAt:   now,
		ExpiresAt:   now.Add(DefaultJobExpiry),
	}
}

// Validate validates the job
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.TenantID == "" {
		return fmt.Errorf("tenant ID is required")
	}
	if !IsValidMarketplace(j.Marketplace) {
		return fmt.Errorf("invalid marketplace: %s", j.Marketplace)
	}
	if j.ActionCode == "" {
		return fmt.Errorf("action code is required")
	}
	if j.Priority < PriorityCritical || j.Priority > PriorityLow {
		return fmt.Errorf("priority must be between %d and %d", PriorityCritical, PriorityLow)
	}
	if j.RetryCount > j.MaxRetries {
		return fmt.Errorf("retry count %d exceeds max retries %d", j.RetryCount, j.MaxRetries)
	}
	return nil
}

// IsTerminal returns true if the job is in an absorbing state
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusExpired:
		return true
	}
	return false
}

// CanRetry returns true if the job may be re-queued after a failure
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// MarkStarted marks the job as claimed by a worker. StartedAt is only set
// on the first transition to running so retries keep the original value.
func (j *Job) MarkStarted() {
	j.Status = JobStatusRunning
	if j.StartedAt == nil {
		now := time.Now()
		j.StartedAt = &now
	}
}

// MarkCompleted marks the job as successfully completed
func (j *Job) MarkCompleted() {
	j.Status = JobStatusCompleted
	now := time.Now()
	j.CompletedAt = &now
}

// MarkFailed marks the job as terminally failed with an error message
func (j *Job) MarkFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errorMsg
	now := time.Now()
	j.CompletedAt = &now
}

// MarkRetrying re-queues the job with an incremented retry count and a
// visibility deferral. Task states are left intact so skip-completed
// retry applies on the next execution.
func (j *Job) MarkRetrying(errorMsg string, backoff time.Duration) {
	j.RetryCount++
	j.Status = JobStatusPending
	j.ErrorMessage = errorMsg
	j.NotBefore = time.Now().Add(backoff)
}

// MarkCancelled marks the job as cancelled
func (j *Job) MarkCancelled() {
	j.Status = JobStatusCancelled
	now := time.Now()
	j.CompletedAt = &now
}

// MarkExpired marks the job as expired (terminal, counted as failure for stats)
func (j *Job) MarkExpired() {
	j.Status = JobStatusExpired
	if j.ErrorMessage == "" {
		j.ErrorMessage = "job expired before completion"
	}
	now := time.Now()
	j.CompletedAt = &now
}

// Duration returns the elapsed execution time for a finished job
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// MergeResult enriches result_data with the given values
func (j *Job) MergeResult(result map[string]interface{}) {
	if j.ResultData == nil {
		j.ResultData = make(map[string]interface{})
	}
	for k, v := range result {
		j.ResultData[k] = v
	}
}
