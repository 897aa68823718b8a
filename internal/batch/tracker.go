package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/matthiasrib29/StoFlow-sub015/internal/interfaces"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// Tracker rolls child job outcomes up into their batch. Counters are
// monotonic; once every child reported, the batch status is final.
type Tracker struct {
	logger arbor.ILogger

	// mu serializes rollup read-modify-writes so concurrent child
	// completions never lose a count
	mu sync.Mutex
}

// NewTracker creates a batch tracker
func NewTracker(logger arbor.ILogger) *Tracker {
	return &Tracker{logger: logger}
}

// CreateBatch persists a new batch expecting totalJobs children
func (t *Tracker) CreateBatch(ctx context.Context, store interfaces.TenantStore, marketplace models.Marketplace, actionCode string, totalJobs int) (*models.BatchJob, error) {
	batch := models.NewBatchJob(store.TenantID(), marketplace, actionCode, totalJobs)
	if err := batch.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidInput, err.Error())
	}
	if err := store.Batches().SaveBatch(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// RecordJobOutcome applies one child terminal transition to its batch.
// Jobs without a batch are ignored. Returns the updated batch, nil when
// the job is standalone.
func (t *Tracker) RecordJobOutcome(ctx context.Context, store interfaces.TenantStore, job *models.Job) (*models.BatchJob, error) {
	if job.BatchID == "" {
		return nil, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	batch, err := store.Batches().GetBatch(ctx, job.BatchID)
	if err != nil {
		return nil, err
	}
	if batch.IsTerminal() {
		return nil, fmt.Errorf("%w: batch %s already finalized", models.ErrIllegalTransition, batch.ID)
	}
	if batch.CompletedJobs+batch.FailedJobs >= batch.TotalJobs {
		return nil, fmt.Errorf("%w: batch %s counters exceed total", models.ErrInvariantViolation, batch.ID)
	}

	succeeded := job.Status == models.JobStatusCompleted
	final := batch.RecordOutcome(succeeded)
	if err := store.Batches().SaveBatch(ctx, batch); err != nil {
		return nil, err
	}

	if final {
		t.logger.Info().
			Str("batch_id", batch.ID).
			Str("status", string(batch.Status)).
			Int("completed", batch.CompletedJobs).
			Int("failed", batch.FailedJobs).
			Msg("Batch finalized")
	}
	return batch, nil
}
