package facade

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/matthiasrib29/StoFlow-sub015/internal/batch"
	"github.com/matthiasrib29/StoFlow-sub015/internal/common"
	"github.com/matthiasrib29/StoFlow-sub015/internal/interfaces"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
	"github.com/matthiasrib29/StoFlow-sub015/internal/orchestrator"
	"github.com/matthiasrib29/StoFlow-sub015/internal/registry"
	"github.com/matthiasrib29/StoFlow-sub015/internal/stats"
)

// Service is the single entry point callers use to submit and control
// work. It validates input, owns the job lifecycle transitions the
// dispatcher does not, and shields callers from storage details.
type Service struct {
	storage  interfaces.StorageManager
	registry *registry.Registry
	orch     *orchestrator.Orchestrator
	batches  *batch.Tracker
	stats    *stats.Aggregator
	bridge   interfaces.PluginBridge
	config   *common.Config
	logger   arbor.ILogger
	validate *validator.Validate
}

// NewService creates the facade
func NewService(
	storage interfaces.StorageManager,
	reg *registry.Registry,
	orch *orchestrator.Orchestrator,
	batches *batch.Tracker,
	aggregator *stats.Aggregator,
	bridge interfaces.PluginBridge,
	config *common.Config,
	logger arbor.ILogger,
) *Service {
	return &Service{
		storage:  storage,
		registry: reg,
		orch:     orch,
		batches:  batches,
		stats:    aggregator,
		bridge:   bridge,
		config:   config,
		logger:   logger,
		validate: validator.New(),
	}
}

// CreateJobRequest is the submission payload for a single job
type CreateJobRequest struct {
	TenantID    string                 `json:"tenant_id" validate:"required"`
	Marketplace models.Marketplace     `json:"marketplace" validate:"required"`
	ActionCode  string                 `json:"action_code" validate:"required"`
	ProductID   string                 `json:"product_id,omitempty"`
	Priority    int                    `json:"priority,omitempty" validate:"omitempty,min=1,max=4"`
	MaxRetries  *int                   `json:"max_retries,omitempty"`
	InputData   map[string]interface{} `json:"input_data,omitempty"`
}

// CreateBatchRequest submits several jobs as one batch. All children
// share the marketplace and action; each item carries its own input.
type CreateBatchRequest struct {
	TenantID    string                   `json:"tenant_id" validate:"required"`
	Marketplace models.Marketplace       `json:"marketplace" validate:"required"`
	ActionCode  string                   `json:"action_code" validate:"required"`
	Priority    int                      `json:"priority,omitempty" validate:"omitempty,min=1,max=4"`
	Items       []map[string]interface{} `json:"items" validate:"required,min=1"`
}

// CreateJob validates, plans and enqueues one job
func (s *Service) CreateJob(ctx context.Context, req *CreateJobRequest) (*models.Job, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidInput, err.Error())
	}
	if !models.IsValidMarketplace(req.Marketplace) {
		return nil, fmt.Errorf("%w: unknown marketplace %q", models.ErrInvalidInput, req.Marketplace)
	}

	store, err := s.storage.Tenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	job := s.buildJob(req.TenantID, req.Marketplace, req.ActionCode, req.ProductID, req.Priority, req.MaxRetries, req.InputData)
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidInput, err.Error())
	}

	// Plan before save so a job never exists without its tasks
	if _, err := s.orch.PlanJob(ctx, store, job); err != nil {
		return nil, err
	}
	if err := store.Jobs().SaveJob(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("tenant_id", job.TenantID).
		Str("marketplace", string(job.Marketplace)).
		Str("action", job.ActionCode).
		Msg("Job created")
	return job, nil
}

func (s *Service) buildJob(tenantID string, marketplace models.Marketplace, actionCode, productID string, priority int, maxRetries *int, input map[string]interface{}) *models.Job {
	job := models.NewJob(tenantID, marketplace, actionCode, input)
	job.ProductID = productID
	if priority != 0 {
		job.Priority = priority
	}
	if maxRetries != nil && *maxRetries >= 0 {
		job.MaxRetries = *maxRetries
	} else if s.config.Dispatcher.DefaultMaxRetry > 0 {
		job.MaxRetries = s.config.Dispatcher.DefaultMaxRetry
	}
	expiry := common.ParseDuration(s.config.Dispatcher.JobExpiry, models.DefaultJobExpiry)
	job.ExpiresAt = job.CreatedAt.Add(expiry)
	return job
}

// CreateBatch validates and enqueues a batch of jobs. Creation is all
// or nothing: a child that fails validation aborts the whole request
// before anything runs.
func (s *Service) CreateBatch(ctx context.Context, req *CreateBatchRequest) (*models.BatchJob, []*models.Job, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", models.ErrInvalidInput, err.Error())
	}
	if !models.IsValidMarketplace(req.Marketplace) {
		return nil, nil, fmt.Errorf("%w: unknown marketplace %q", models.ErrInvalidInput, req.Marketplace)
	}

	store, err := s.storage.Tenant(ctx, req.TenantID)
	if err != nil {
		return nil, nil, err
	}

	handler, err := s.registry.Resolve(req.Marketplace, req.ActionCode)
	if err != nil {
		return nil, nil, err
	}

	// Validate every child before creating anything
	jobs := make([]*models.Job, 0, len(req.Items))
	for i, input := range req.Items {
		job := s.buildJob(req.TenantID, req.Marketplace, req.ActionCode, "", req.Priority, nil, input)
		if productID, ok := input["product_id"].(string); ok {
			job.ProductID = productID
		}
		if err := handler.ValidateInput(job); err != nil {
			return nil, nil, fmt.Errorf("item %d: %w", i, err)
		}
		jobs = append(jobs, job)
	}

	batchJob, err := s.batches.CreateBatch(ctx, store, req.Marketplace, req.ActionCode, len(jobs))
	if err != nil {
		return nil, nil, err
	}

	for _, job := range jobs {
		job.BatchID = batchJob.ID
		if _, err := s.orch.PlanJob(ctx, store, job); err != nil {
			return nil, nil, err
		}
		if err := store.Jobs().SaveJob(ctx, job); err != nil {
			return nil, nil, err
		}
	}

	s.logger.Info().
		Str("batch_id", batchJob.ID).
		Str("tenant_id", req.TenantID).
		Int("jobs", len(jobs)).
		Msg("Batch created")
	return batchJob, jobs, nil
}

// JobDetail bundles a job with its task states and rollup
type JobDetail struct {
	Job        *models.Job               `json:"job"`
	Tasks      []*models.Task            `json:"tasks"`
	TaskCounts map[models.TaskStatus]int `json:"counts_by_status"`
	Progress   int                       `json:"progress_percent"`
}

// GetJob returns a job with its tasks, per-status counts and progress
func (s *Service) GetJob(ctx context.Context, tenantID, jobID string) (*JobDetail, error) {
	store, err := s.storage.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	job, err := store.Jobs().GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	tasks, err := store.Tasks().GetTasksForJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	counts, err := store.Tasks().CountByStatus(ctx, &interfaces.TaskListOptions{JobID: jobID})
	if err != nil {
		return nil, err
	}

	progress := 0
	if len(tasks) > 0 {
		complete := 0
		for _, t := range tasks {
			if t.IsComplete() {
				complete++
			}
		}
		progress = complete * 100 / len(tasks)
	}
	return &JobDetail{Job: job, Tasks: tasks, TaskCounts: counts, Progress: progress}, nil
}

// maxListLimit caps page sizes on all listing operations
const maxListLimit = 100

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// ListJobs returns a tenant's jobs with the total match count
func (s *Service) ListJobs(ctx context.Context, tenantID string, opts *interfaces.JobListOptions) ([]*models.Job, int, error) {
	store, err := s.storage.Tenant(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}
	opts.Limit = clampLimit(opts.Limit)
	return store.Jobs().ListJobs(ctx, opts)
}

// ListTasks returns tasks, usually scoped to one job
func (s *Service) ListTasks(ctx context.Context, tenantID string, opts *interfaces.TaskListOptions) ([]*models.Task, int, error) {
	store, err := s.storage.Tenant(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}
	opts.Limit = clampLimit(opts.Limit)
	return store.Tasks().ListTasks(ctx, opts)
}

// CountTasks returns task counts grouped by status, honoring the
// non-status filters in opts
func (s *Service) CountTasks(ctx context.Context, tenantID string, opts *interfaces.TaskListOptions) (map[models.TaskStatus]int, error) {
	store, err := s.storage.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return store.Tasks().CountByStatus(ctx, opts)
}

// GetTask returns one task
func (s *Service) GetTask(ctx context.Context, tenantID, taskID string) (*models.Task, error) {
	store, err := s.storage.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return store.Tasks().GetTask(ctx, taskID)
}

// DeleteJob removes a non-running job and its tasks
func (s *Service) DeleteJob(ctx context.Context, tenantID, jobID string) error {
	store, err := s.storage.Tenant(ctx, tenantID)
	if err != nil {
		return err
	}
	job, err := store.Jobs().GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == models.JobStatusRunning {
		return fmt.Errorf("%w: cannot delete a running job", models.ErrIllegalTransition)
	}

	if err := store.Tasks().DeleteTasksForJob(ctx, jobID); err != nil {
		return err
	}
	if err := store.Jobs().DeleteJob(ctx, jobID); err != nil {
		return err
	}
	s.logger.Info().Str("job_id", jobID).Msg("Job deleted")
	return nil
}

// DeleteBatch removes a batch and cascades to its jobs and their tasks.
// Refused while any child job is still running.
func (s *Service) DeleteBatch(ctx context.Context, tenantID, batchID string) error {
	store, err := s.storage.Tenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if _, err := store.Batches().GetBatch(ctx, batchID); err != nil {
		return err
	}

	jobs, _, err := store.Jobs().ListJobs(ctx, &interfaces.JobListOptions{BatchID: batchID})
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if job.Status == models.JobStatusRunning {
			return fmt.Errorf("%w: batch has a running job", models.ErrIllegalTransition)
		}
	}
	for _, job := range jobs {
		if err := store.Tasks().DeleteTasksForJob(ctx, job.ID); err != nil {
			return err
		}
		if err := store.Jobs().DeleteJob(ctx, job.ID); err != nil {
			return err
		}
	}
	if err := store.Batches().DeleteBatch(ctx, batchID); err != nil {
		return err
	}
	s.logger.Info().Str("batch_id", batchID).Int("jobs", len(jobs)).Msg("Batch deleted")
	return nil
}

// RetryJob re-queues a failed job that still has retry budget. The count
// is kept, a manual retry spends from the same budget as automatic ones.
// Succeeded tasks stay absorbed, only the unfinished remainder re-runs.
func (s *Service) RetryJob(ctx context.Context, tenantID, jobID string) (*models.Job, error) {
	store, err := s.storage.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	job, err := store.Jobs().GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != models.JobStatusFailed {
		return nil, fmt.Errorf("%w: cannot retry job in status %s", models.ErrIllegalTransition, job.Status)
	}
	if !job.CanRetry() {
		return nil, fmt.Errorf("%w: job %s has exhausted its retry budget (%d/%d)",
			models.ErrIllegalTransition, job.ID, job.RetryCount, job.MaxRetries)
	}

	job.Status = models.JobStatusPending
	job.ErrorMessage = ""
	job.CancelRequested = false
	job.NotBefore = time.Now()
	expiry := common.ParseDuration(s.config.Dispatcher.JobExpiry, models.DefaultJobExpiry)
	job.ExpiresAt = time.Now().Add(expiry)

	if err := store.Jobs().SaveJob(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info().Str("job_id", job.ID).Msg("Job manually re-queued")
	return job, nil
}

// PauseJob pauses a pending job immediately, or flags a running job to
// pause at the next task boundary
func (s *Service) PauseJob(ctx context.Context, tenantID, jobID string) (*models.Job, error) {
	store, err := s.storage.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	job, err := store.Jobs().GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case models.JobStatusPending:
		job.Status = models.JobStatusPaused
	case models.JobStatusRunning:
		job.PauseRequested = true
	default:
		return nil, fmt.Errorf("%w: cannot pause job in status %s", models.ErrIllegalTransition, job.Status)
	}

	if err := store.Jobs().SaveJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ResumeJob re-queues a paused job with a refreshed expiry window
func (s *Service) ResumeJob(ctx context.Context, tenantID, jobID string) (*models.Job, error) {
	store, err := s.storage.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	job, err := store.Jobs().GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != models.JobStatusPaused {
		return nil, fmt.Errorf("%w: cannot resume job in status %s", models.ErrIllegalTransition, job.Status)
	}

	job.Status = models.JobStatusPending
	job.PauseRequested = false
	job.NotBefore = time.Now()
	expiry := common.ParseDuration(s.config.Dispatcher.JobExpiry, models.DefaultJobExpiry)
	job.ExpiresAt = time.Now().Add(expiry)

	if err := store.Jobs().SaveJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// CancelJob cancels a pending or paused job immediately; a running job
// is flagged and cancels at the next task boundary
func (s *Service) CancelJob(ctx context.Context, tenantID, jobID string) (*models.Job, error) {
	store, err := s.storage.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	job, err := store.Jobs().GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case models.JobStatusPending, models.JobStatusPaused:
		tasks, err := store.Tasks().GetTasksForJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		for _, task := range tasks {
			if task.IsComplete() {
				continue
			}
			task.MarkCancelled()
			if err := store.Tasks().SaveTask(ctx, task); err != nil {
				return nil, err
			}
		}
		job.MarkCancelled()
		if err := store.Jobs().SaveJob(ctx, job); err != nil {
			return nil, err
		}
		s.finalize(ctx, store, job)
	case models.JobStatusRunning:
		job.CancelRequested = true
		if err := store.Jobs().SaveJob(ctx, job); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: cannot cancel job in status %s", models.ErrIllegalTransition, job.Status)
	}

	return job, nil
}

// finalize mirrors the dispatcher's terminal bookkeeping for jobs the
// facade finishes directly
func (s *Service) finalize(ctx context.Context, store interfaces.TenantStore, job *models.Job) {
	if err := s.stats.RecordOutcome(ctx, store, job); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record job stats")
	}
	if _, err := s.batches.RecordJobOutcome(ctx, store, job); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to roll up batch outcome")
	}
}

// GetBatch returns a batch with its rollup counters
func (s *Service) GetBatch(ctx context.Context, tenantID, batchID string) (*models.BatchJob, error) {
	store, err := s.storage.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return store.Batches().GetBatch(ctx, batchID)
}

// ListBatches returns a tenant's batches
func (s *Service) ListBatches(ctx context.Context, tenantID string, opts *interfaces.BatchListOptions) ([]*models.BatchJob, int, error) {
	store, err := s.storage.Tenant(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}
	opts.Limit = clampLimit(opts.Limit)
	return store.Batches().ListBatches(ctx, opts)
}

// Stats summarizes a tenant's daily aggregates over a date range
func (s *Service) Stats(ctx context.Context, tenantID, fromDate, toDate string) (*stats.Summary, error) {
	store, err := s.storage.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.stats.Summarize(ctx, store, fromDate, toDate)
}

// QueueCounts returns a tenant's job counts per status
func (s *Service) QueueCounts(ctx context.Context, tenantID string) (map[models.JobStatus]int, error) {
	store, err := s.storage.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return store.Jobs().CountByStatus(ctx, nil)
}

// PollPluginTasks is the extension's long-poll entry point. The boolean
// reports whether requests are still awaiting a report.
func (s *Service) PollPluginTasks(ctx context.Context, tenantID string, timeoutSecs int) ([]*models.PluginRequest, bool, error) {
	maxHold := int(common.ParseDuration(s.config.Bridge.LongPollTimeout, 30*time.Second).Seconds())
	if timeoutSecs <= 0 || timeoutSecs > maxHold {
		timeoutSecs = maxHold
	}
	return s.bridge.Poll(ctx, tenantID, timeoutSecs)
}

// ReportPluginResult forwards the extension's response to the bridge
func (s *Service) ReportPluginResult(ctx context.Context, tenantID string, resp *models.PluginResponse) error {
	return s.bridge.Report(ctx, tenantID, resp)
}

// NotifyPluginDisconnect marks the tenant's bridged session lost
func (s *Service) NotifyPluginDisconnect(ctx context.Context, tenantID string) error {
	if err := s.bridge.NotifyDisconnect(ctx, tenantID); err != nil {
		return err
	}
	conn := &models.MarketplaceConnection{
		TenantID:    tenantID,
		Marketplace: models.MarketplaceVinted,
		IsConnected: false,
	}
	return s.storage.Connections().SaveConnection(ctx, conn)
}

// ListActionTypes returns the declared actions
func (s *Service) ListActionTypes(ctx context.Context) ([]*models.ActionType, error) {
	return s.storage.ActionTypes().ListActionTypes(ctx)
}

// ListConnections returns a tenant's marketplace connections
func (s *Service) ListConnections(ctx context.Context, tenantID string) ([]*models.MarketplaceConnection, error) {
	return s.storage.Connections().ListConnections(ctx, tenantID)
}

// SaveConnection upserts a tenant's marketplace connection
func (s *Service) SaveConnection(ctx context.Context, conn *models.MarketplaceConnection) error {
	return s.storage.Connections().SaveConnection(ctx, conn)
}
