// -----------------------------------------------------------------------
// BatchJob - user-level grouping of jobs submitted together
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// BatchStatus represents the rollup state of a batch
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed" // All children succeeded
	BatchStatusFailed    BatchStatus = "failed"    // All children failed
	BatchStatusPartial   BatchStatus = "partial"   // Mixed outcome
)

// BatchJob groups jobs submitted as a unit. Counters roll up from child
// job terminal transitions; completed_jobs + failed_jobs never exceeds
// total_jobs.
type BatchJob struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenant_id"`
	ActionCode  string      `json:"action_code"`
	Marketplace Marketplace `json:"marketplace"`

	TotalJobs     int         `json:"total_jobs"`
	CompletedJobs int         `json:"completed_jobs"`
	FailedJobs    int         `json:"failed_jobs"`
	Status        BatchStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewBatchJob creates a pending batch for totalJobs children
func NewBatchJob(tenantID string, marketplace Marketplace, actionCode string, totalJobs int) *BatchJob {
	return &BatchJob{
		ID:          NewBatchID(),
		TenantID:    tenantID,
		ActionCode:  actionCode,
		Marketplace: marketplace,
		TotalJobs:   totalJobs,
		Status:      BatchStatusPending,
		CreatedAt:   time.Now(),
	}
}

// Validate validates the batch
func (b *BatchJob) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("batch ID is required")
	}
	if b.TenantID == "" {
		return fmt.Errorf("tenant ID is required")
	}
	if b.TotalJobs < 1 {
		return fmt.Errorf("batch must contain at least one job")
	}
	return nil
}

// RecordOutcome applies one child terminal transition to the rollup.
// Cancelled and expired children count as failures. Returns true when the
// batch reached a terminal rollup status with this outcome.
func (b *BatchJob) RecordOutcome(succeeded bool) bool {
	if succeeded {
		b.CompletedJobs++
	} else {
		b.FailedJobs++
	}

	if b.CompletedJobs+b.FailedJobs < b.TotalJobs {
		b.Status = BatchStatusRunning
		return false
	}

	switch {
	case b.FailedJobs == 0:
		b.Status = BatchStatusCompleted
	case b.CompletedJobs == 0:
		b.Status = BatchStatusFailed
	default:
		b.Status = BatchStatusPartial
	}
	now := time.Now()
	b.CompletedAt = &now
	return true
}

// IsTerminal returns true once all children reported an outcome
func (b *BatchJob) IsTerminal() bool {
	switch b.Status {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusPartial:
		return true
	}
	return false
}
