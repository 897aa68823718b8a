package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/matthiasrib29/StoFlow-sub015/internal/batch"
	"github.com/matthiasrib29/StoFlow-sub015/internal/common"
	"github.com/matthiasrib29/StoFlow-sub015/internal/interfaces"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
	"github.com/matthiasrib29/StoFlow-sub015/internal/orchestrator"
	"github.com/matthiasrib29/StoFlow-sub015/internal/stats"
)

// Dispatcher runs the worker pool. Workers poll tenants round-robin,
// claim the best visible pending job within rate caps, execute it via
// the orchestrator and apply the retry policy to failures.
type Dispatcher struct {
	config  *common.DispatcherConfig
	storage interfaces.StorageManager
	orch    *orchestrator.Orchestrator
	gate    *RateGate
	batches *batch.Tracker
	stats   *stats.Aggregator
	logger  arbor.ILogger

	pollInterval time.Duration
	backoffBase  time.Duration
	backoffCap   time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	janitor *Janitor
}

// NewDispatcher creates a dispatcher; call Start to launch the workers
func NewDispatcher(
	config *common.Config,
	storage interfaces.StorageManager,
	orch *orchestrator.Orchestrator,
	gate *RateGate,
	batches *batch.Tracker,
	aggregator *stats.Aggregator,
	logger arbor.ILogger,
) *Dispatcher {
	d := &Dispatcher{
		config:       &config.Dispatcher,
		storage:      storage,
		orch:         orch,
		gate:         gate,
		batches:      batches,
		stats:        aggregator,
		logger:       logger,
		pollInterval: common.ParseDuration(config.Dispatcher.PollInterval, time.Second),
		backoffBase:  common.ParseDuration(config.Dispatcher.BackoffBase, 60*time.Second),
		backoffCap:   common.ParseDuration(config.Dispatcher.BackoffCap, time.Hour),
	}
	d.janitor = NewJanitor(d, config.Dispatcher.JanitorSchedule, logger)
	return d
}

// Backoff returns the retry delay for the given attempt: the base
// doubled per prior retry, capped
func Backoff(retryCount int, base, cap time.Duration) time.Duration {
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}

// Start launches the worker pool and the expiry janitor
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	concurrency := d.config.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	for i := 0; i < concurrency; i++ {
		d.wg.Add(1)
		go d.worker(runCtx, i)
	}

	if err := d.janitor.Start(); err != nil {
		cancel()
		d.cancel = nil
		return err
	}

	d.logger.Info().Int("workers", concurrency).Msg("Dispatcher started")
	return nil
}

// Stop stops the workers and janitor, waiting for in-flight jobs
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	d.janitor.Stop()
	d.wg.Wait()
	d.logger.Info().Msg("Dispatcher stopped")
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	for {
		claimed := d.pollOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if claimed {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.pollInterval):
		}
	}
}

// pollOnce sweeps all tenants once, running up to the per-tenant claim
// batch per tenant. Returns true when any job ran.
func (d *Dispatcher) pollOnce(ctx context.Context) bool {
	tenantIDs, err := d.storage.TenantIDs(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Failed to list tenants for poll round")
		return false
	}

	perTenant := d.config.ClaimBatchTenant
	if perTenant <= 0 {
		perTenant = 1
	}

	ran := false
	for _, tenantID := range tenantIDs {
		if ctx.Err() != nil {
			return ran
		}

		store, err := d.storage.Tenant(ctx, tenantID)
		if err != nil {
			d.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to bind tenant store")
			continue
		}

		for i := 0; i < perTenant; i++ {
			job, err := store.Jobs().ClaimNext(ctx, time.Now(), func(j *models.Job) bool {
				return d.gate.Allow(tenantID, j.Marketplace)
			})
			if err != nil {
				d.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("Claim failed")
				break
			}
			if job == nil {
				break
			}

			d.runJob(ctx, store, job)
			ran = true
		}
	}
	return ran
}

// runJob executes a claimed job and applies the outcome policy
func (d *Dispatcher) runJob(ctx context.Context, store interfaces.TenantStore, job *models.Job) {
	log := d.logger.WithCorrelationId(job.ID)
	log.Info().
		Str("tenant_id", job.TenantID).
		Str("marketplace", string(job.Marketplace)).
		Str("action", job.ActionCode).
		Int("retry_count", job.RetryCount).
		Msg("Job started")

	err := d.orch.ExecuteJob(ctx, store, job)
	if err == nil {
		switch job.Status {
		case models.JobStatusCompleted:
			log.Info().Str("duration", job.Duration().String()).Msg("Job completed")
			d.finalize(ctx, store, job)
		case models.JobStatusCancelled:
			d.finalize(ctx, store, job)
		case models.JobStatusPaused:
			// Waits for an explicit resume
		}
		return
	}

	d.applyFailure(ctx, store, job, err)
}

// applyFailure classifies a job execution error and transitions the job
func (d *Dispatcher) applyFailure(ctx context.Context, store interfaces.TenantStore, job *models.Job, execErr error) {
	log := d.logger.WithCorrelationId(job.ID)

	switch {
	case errors.Is(execErr, models.ErrCancelled):
		job.MarkCancelled()
	case models.Terminal(execErr):
		job.MarkFailed(execErr.Error())
		log.Warn().Str("error", execErr.Error()).Msg("Job failed terminally")
	case models.Retryable(execErr) && job.CanRetry():
		delay := Backoff(job.RetryCount, d.backoffBase, d.backoffCap)
		job.MarkRetrying(execErr.Error(), delay)
		if err := store.Jobs().SaveJob(ctx, job); err != nil {
			log.Error().Err(err).Msg("Failed to save retrying job")
		}
		log.Info().
			Int("retry_count", job.RetryCount).
			Str("backoff", delay.String()).
			Msg("Job re-queued with backoff")
		return
	default:
		job.MarkFailed(execErr.Error())
		log.Warn().
			Str("error", execErr.Error()).
			Int("retry_count", job.RetryCount).
			Msg("Job failed, retries exhausted")
	}

	if err := store.Jobs().SaveJob(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to save finished job")
		return
	}
	d.finalize(ctx, store, job)
}

// finalize records a terminal job in stats and its batch rollup
func (d *Dispatcher) finalize(ctx context.Context, store interfaces.TenantStore, job *models.Job) {
	if err := d.stats.RecordOutcome(ctx, store, job); err != nil {
		d.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record job stats")
	}
	if _, err := d.batches.RecordJobOutcome(ctx, store, job); err != nil {
		d.logger.Warn().Err(err).Str("job_id", job.ID).Str("batch_id", job.BatchID).Msg("Failed to roll up batch outcome")
	}
}
