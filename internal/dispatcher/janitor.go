package dispatcher

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Janitor periodically sweeps non-terminal jobs whose expiry window
// passed, finalizing them as expired
type Janitor struct {
	dispatcher *Dispatcher
	schedule   string
	logger     arbor.ILogger
	cron       *cron.Cron
}

// NewJanitor creates the expiry sweeper on the given cron schedule
func NewJanitor(d *Dispatcher, schedule string, logger arbor.ILogger) *Janitor {
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &Janitor{
		dispatcher: d,
		schedule:   schedule,
		logger:     logger,
	}
}

// Start schedules the sweep
func (j *Janitor) Start() error {
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(j.schedule, func() {
		j.Sweep(context.Background())
	}); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Debug().Str("schedule", j.schedule).Msg("Expiry janitor started")
	return nil
}

// Stop halts the schedule, waiting for a running sweep
func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// Sweep expires overdue jobs across all tenants and returns the number
// of jobs expired
func (j *Janitor) Sweep(ctx context.Context) int {
	tenantIDs, err := j.dispatcher.storage.TenantIDs(ctx)
	if err != nil {
		j.logger.Warn().Err(err).Msg("Janitor failed to list tenants")
		return 0
	}

	total := 0
	now := time.Now()
	for _, tenantID := range tenantIDs {
		store, err := j.dispatcher.storage.Tenant(ctx, tenantID)
		if err != nil {
			j.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("Janitor failed to bind tenant store")
			continue
		}

		expired, err := store.Jobs().ExpiredJobs(ctx, now)
		if err != nil {
			j.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("Janitor failed to query expired jobs")
			continue
		}

		for _, job := range expired {
			job.MarkExpired()
			if err := store.Jobs().SaveJob(ctx, job); err != nil {
				j.logger.Error().Err(err).Str("job_id", job.ID).Msg("Janitor failed to expire job")
				continue
			}
			j.dispatcher.finalize(ctx, store, job)
			j.logger.Info().
				Str("job_id", job.ID).
				Str("tenant_id", tenantID).
				Str("action", job.ActionCode).
				Msg("Job expired")
			total++
		}
	}
	return total
}
