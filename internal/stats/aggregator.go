package stats

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/matthiasrib29/StoFlow-sub015/internal/interfaces"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// Aggregator folds job terminal outcomes into per-day rows keyed by
// (tenant, action, marketplace, date). Expired and cancelled jobs count
// as failures.
type Aggregator struct {
	logger arbor.ILogger

	// mu serializes the read-modify-write on aggregate rows
	mu sync.Mutex
}

// NewAggregator creates a stats aggregator
func NewAggregator(logger arbor.ILogger) *Aggregator {
	return &Aggregator{logger: logger}
}

// RecordOutcome folds one finished job into its daily aggregate. The
// bucket date comes from the job's completion time.
func (a *Aggregator) RecordOutcome(ctx context.Context, store interfaces.TenantStore, job *models.Job) error {
	succeeded := job.Status == models.JobStatusCompleted

	when := time.Now()
	if job.CompletedAt != nil {
		when = *job.CompletedAt
	}
	date := models.StatsDate(when)

	a.mu.Lock()
	defer a.mu.Unlock()

	row, err := store.Stats().GetStats(ctx, job.ActionCode, job.Marketplace, date)
	if errors.Is(err, models.ErrNotFound) {
		row = &models.DailyStats{
			TenantID:    store.TenantID(),
			ActionCode:  job.ActionCode,
			Marketplace: job.Marketplace,
			Date:        date,
		}
	} else if err != nil {
		return err
	}

	row.Record(succeeded, job.Duration())
	if err := store.Stats().SaveStats(ctx, row); err != nil {
		return err
	}

	a.logger.Debug().
		Str("tenant_id", store.TenantID()).
		Str("action", job.ActionCode).
		Str("marketplace", string(job.Marketplace)).
		Str("date", date).
		Bool("succeeded", succeeded).
		Msg("Daily stats updated")
	return nil
}

// Summary aggregates a tenant's rows over an inclusive date range
type Summary struct {
	FromDate string               `json:"from_date,omitempty"`
	ToDate   string               `json:"to_date,omitempty"`
	Success  int                  `json:"success_count"`
	Failure  int                  `json:"failure_count"`
	Rows     []*models.DailyStats `json:"rows"`
}

// Summarize loads a tenant's aggregate rows and totals them
func (a *Aggregator) Summarize(ctx context.Context, store interfaces.TenantStore, fromDate, toDate string) (*Summary, error) {
	rows, err := store.Stats().ListStats(ctx, fromDate, toDate)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		FromDate: fromDate,
		ToDate:   toDate,
		Rows:     rows,
	}
	for _, row := range rows {
		summary.Success += row.SuccessCount
		summary.Failure += row.FailureCount
	}
	return summary, nil
}
