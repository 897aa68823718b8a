package facade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthiasrib29/StoFlow-sub015/internal/batch"
	"github.com/matthiasrib29/StoFlow-sub015/internal/bridge"
	"github.com/matthiasrib29/StoFlow-sub015/internal/common"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
	"github.com/matthiasrib29/StoFlow-sub015/internal/orchestrator"
	"github.com/matthiasrib29/StoFlow-sub015/internal/registry"
	"github.com/matthiasrib29/StoFlow-sub015/internal/stats"
	badgerstore "github.com/matthiasrib29/StoFlow-sub015/internal/storage/badger"
)

func newTestService(t *testing.T) (*Service, *badgerstore.Manager) {
	t.Helper()
	logger := common.GetLogger()

	manager, err := badgerstore.NewManager(logger, t.TempDir(), false)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	reg := registry.NewRegistry(logger)
	require.NoError(t, reg.Register(&registry.Handler{
		Marketplace:    models.MarketplaceVinted,
		ActionCode:     models.ActionPublish,
		Name:           "Publish product",
		RequiredInputs: []string{"product_id"},
		Tasks: []registry.TaskSpec{
			{Description: "build payload", Type: models.TaskTypeDB, Run: func(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
				return nil, nil
			}},
			{Description: "push listing", Type: models.TaskTypePluginHTTP, Run: func(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
				return nil, nil
			}},
		},
	}))

	config := common.NewDefaultConfig()
	orch := orchestrator.NewOrchestrator(reg, logger)
	svc := NewService(
		manager,
		reg,
		orch,
		batch.NewTracker(logger),
		stats.NewAggregator(logger),
		bridge.NewBridge(logger, 10, time.Second),
		config,
		logger,
	)
	return svc, manager
}

func validRequest() *CreateJobRequest {
	return &CreateJobRequest{
		TenantID:    "tenant_a",
		Marketplace: models.MarketplaceVinted,
		ActionCode:  models.ActionPublish,
		ProductID:   "prod_1",
		InputData:   map[string]interface{}{"product_id": "prod_1"},
	}
}

func TestCreateJobPlansTasks(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	job, err := svc.CreateJob(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, models.PriorityNormal, job.Priority)
	assert.Equal(t, 3, job.MaxRetries)

	detail, err := svc.GetJob(ctx, "tenant_a", job.ID)
	require.NoError(t, err)
	require.Len(t, detail.Tasks, 2)
	assert.Equal(t, models.TaskStatusPending, detail.Tasks[0].Status)
}

func TestCreateJobValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	req := validRequest()
	req.TenantID = ""
	_, err := svc.CreateJob(ctx, req)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))

	req = validRequest()
	req.Marketplace = "amazon"
	_, err = svc.CreateJob(ctx, req)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))

	req = validRequest()
	req.ActionCode = "unknown"
	_, err = svc.CreateJob(ctx, req)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	// Handler input contract enforced at creation
	req = validRequest()
	req.InputData = nil
	_, err = svc.CreateJob(ctx, req)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestCreateBatchAllOrNothing(t *testing.T) {
	ctx := context.Background()
	svc, manager := newTestService(t)

	req := &CreateBatchRequest{
		TenantID:    "tenant_a",
		Marketplace: models.MarketplaceVinted,
		ActionCode:  models.ActionPublish,
		Items: []map[string]interface{}{
			{"product_id": "prod_1"},
			{}, // missing required input
		},
	}
	_, _, err := svc.CreateBatch(ctx, req)
	require.Error(t, err)

	store, err := manager.Tenant(ctx, "tenant_a")
	require.NoError(t, err)
	_, total, err := store.Jobs().ListJobs(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	req.Items[1] = map[string]interface{}{"product_id": "prod_2"}
	batchJob, jobs, err := svc.CreateBatch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, batchJob.TotalJobs)
	require.Len(t, jobs, 2)
	for _, job := range jobs {
		assert.Equal(t, batchJob.ID, job.BatchID)
	}
}

func TestCancelPendingFinalizesBatch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	batchJob, jobs, err := svc.CreateBatch(ctx, &CreateBatchRequest{
		TenantID:    "tenant_a",
		Marketplace: models.MarketplaceVinted,
		ActionCode:  models.ActionPublish,
		Items:       []map[string]interface{}{{"product_id": "prod_1"}},
	})
	require.NoError(t, err)

	cancelled, err := svc.CancelJob(ctx, "tenant_a", jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)

	detail, err := svc.GetJob(ctx, "tenant_a", jobs[0].ID)
	require.NoError(t, err)
	for _, task := range detail.Tasks {
		assert.Equal(t, models.TaskStatusCancelled, task.Status)
	}

	rolled, err := svc.GetBatch(ctx, "tenant_a", batchJob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusFailed, rolled.Status)

	// Cancelled counts as a failure in the daily stats
	summary, err := svc.Stats(ctx, "tenant_a", "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failure)
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	svc, manager := newTestService(t)

	job, err := svc.CreateJob(ctx, validRequest())
	require.NoError(t, err)

	// pending -> paused -> pending
	paused, err := svc.PauseJob(ctx, "tenant_a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPaused, paused.Status)

	resumed, err := svc.ResumeJob(ctx, "tenant_a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, resumed.Status)

	// resume of a non-paused job is refused
	_, err = svc.ResumeJob(ctx, "tenant_a", job.ID)
	assert.True(t, errors.Is(err, models.ErrIllegalTransition))

	// retry only applies to failed jobs
	_, err = svc.RetryJob(ctx, "tenant_a", job.ID)
	assert.True(t, errors.Is(err, models.ErrIllegalTransition))

	store, err := manager.Tenant(ctx, "tenant_a")
	require.NoError(t, err)
	failed, err := store.Jobs().GetJob(ctx, job.ID)
	require.NoError(t, err)
	failed.RetryCount = 1
	failed.MarkFailed("upstream gone")
	require.NoError(t, store.Jobs().SaveJob(ctx, failed))

	retried, err := svc.RetryJob(ctx, "tenant_a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, retried.Status)
	assert.Equal(t, 1, retried.RetryCount, "manual retry keeps the spent budget")
	assert.Empty(t, retried.ErrorMessage)
	assert.True(t, retried.ExpiresAt.After(time.Now()))

	// terminal jobs cannot be cancelled again
	cancelled, err := svc.CancelJob(ctx, "tenant_a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)
	_, err = svc.CancelJob(ctx, "tenant_a", job.ID)
	assert.True(t, errors.Is(err, models.ErrIllegalTransition))
}

func TestRetryRefusedOutsideBudget(t *testing.T) {
	ctx := context.Background()
	svc, manager := newTestService(t)

	job, err := svc.CreateJob(ctx, validRequest())
	require.NoError(t, err)

	store, err := manager.Tenant(ctx, "tenant_a")
	require.NoError(t, err)

	// Exhausted budget stays exhausted through manual retries
	exhausted, err := store.Jobs().GetJob(ctx, job.ID)
	require.NoError(t, err)
	exhausted.RetryCount = exhausted.MaxRetries
	exhausted.MarkFailed("upstream gone")
	require.NoError(t, store.Jobs().SaveJob(ctx, exhausted))

	_, err = svc.RetryJob(ctx, "tenant_a", job.ID)
	assert.True(t, errors.Is(err, models.ErrIllegalTransition))

	reloaded, err := store.Jobs().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, reloaded.Status)
	assert.Equal(t, reloaded.MaxRetries, reloaded.RetryCount)

	// Expired is absorbing, not retryable
	reloaded.RetryCount = 0
	reloaded.MarkExpired()
	require.NoError(t, store.Jobs().SaveJob(ctx, reloaded))

	_, err = svc.RetryJob(ctx, "tenant_a", job.ID)
	assert.True(t, errors.Is(err, models.ErrIllegalTransition))
}

func TestRunningJobControlFlags(t *testing.T) {
	ctx := context.Background()
	svc, manager := newTestService(t)

	job, err := svc.CreateJob(ctx, validRequest())
	require.NoError(t, err)

	store, err := manager.Tenant(ctx, "tenant_a")
	require.NoError(t, err)
	running, err := store.Jobs().GetJob(ctx, job.ID)
	require.NoError(t, err)
	running.MarkStarted()
	require.NoError(t, store.Jobs().SaveJob(ctx, running))

	flagged, err := svc.PauseJob(ctx, "tenant_a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, flagged.Status)
	assert.True(t, flagged.PauseRequested)

	flagged, err = svc.CancelJob(ctx, "tenant_a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, flagged.Status)
	assert.True(t, flagged.CancelRequested)
}

func TestGetJobProgress(t *testing.T) {
	ctx := context.Background()
	svc, manager := newTestService(t)

	job, err := svc.CreateJob(ctx, validRequest())
	require.NoError(t, err)

	detail, err := svc.GetJob(ctx, "tenant_a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, detail.Progress)
	assert.Equal(t, 2, detail.TaskCounts[models.TaskStatusPending])

	store, err := manager.Tenant(ctx, "tenant_a")
	require.NoError(t, err)
	tasks, err := store.Tasks().GetTasksForJob(ctx, job.ID)
	require.NoError(t, err)
	tasks[0].MarkSuccess(nil)
	require.NoError(t, store.Tasks().SaveTask(ctx, tasks[0]))

	detail, err = svc.GetJob(ctx, "tenant_a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, detail.Progress)
	assert.Equal(t, 1, detail.TaskCounts[models.TaskStatusSuccess])
	assert.Equal(t, 1, detail.TaskCounts[models.TaskStatusPending])

	counts, err := svc.CountTasks(ctx, "tenant_a", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.TaskStatusSuccess])

	fetched, err := svc.GetTask(ctx, "tenant_a", tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, fetched.Status)
}

func TestDeleteJobCascadesTasks(t *testing.T) {
	ctx := context.Background()
	svc, manager := newTestService(t)

	job, err := svc.CreateJob(ctx, validRequest())
	require.NoError(t, err)

	store, err := manager.Tenant(ctx, "tenant_a")
	require.NoError(t, err)

	// running jobs are protected
	running, err := store.Jobs().GetJob(ctx, job.ID)
	require.NoError(t, err)
	running.MarkStarted()
	require.NoError(t, store.Jobs().SaveJob(ctx, running))
	err = svc.DeleteJob(ctx, "tenant_a", job.ID)
	assert.True(t, errors.Is(err, models.ErrIllegalTransition))

	running.MarkCompleted()
	require.NoError(t, store.Jobs().SaveJob(ctx, running))
	require.NoError(t, svc.DeleteJob(ctx, "tenant_a", job.ID))

	_, err = svc.GetJob(ctx, "tenant_a", job.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	tasks, err := store.Tasks().GetTasksForJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestDeleteBatchCascades(t *testing.T) {
	ctx := context.Background()
	svc, manager := newTestService(t)

	batchJob, jobs, err := svc.CreateBatch(ctx, &CreateBatchRequest{
		TenantID:    "tenant_a",
		Marketplace: models.MarketplaceVinted,
		ActionCode:  models.ActionPublish,
		Items: []map[string]interface{}{
			{"product_id": "prod_1"},
			{"product_id": "prod_2"},
		},
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBatch(ctx, "tenant_a", batchJob.ID))

	_, err = svc.GetBatch(ctx, "tenant_a", batchJob.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	store, err := manager.Tenant(ctx, "tenant_a")
	require.NoError(t, err)
	for _, job := range jobs {
		_, err = store.Jobs().GetJob(ctx, job.ID)
		assert.True(t, errors.Is(err, models.ErrNotFound))
		tasks, err := store.Tasks().GetTasksForJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	}
}

func TestQueueCountsAndConnections(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.CreateJob(ctx, validRequest())
	require.NoError(t, err)

	counts, err := svc.QueueCounts(ctx, "tenant_a")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.JobStatusPending])

	require.NoError(t, svc.SaveConnection(ctx, &models.MarketplaceConnection{
		TenantID:    "tenant_a",
		Marketplace: models.MarketplaceVinted,
		IsConnected: true,
	}))

	require.NoError(t, svc.NotifyPluginDisconnect(ctx, "tenant_a"))
	conns, err := svc.ListConnections(ctx, "tenant_a")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.False(t, conns[0].IsConnected)
}
