package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthiasrib29/StoFlow-sub015/internal/common"
	"github.com/matthiasrib29/StoFlow-sub015/internal/interfaces"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
	"github.com/matthiasrib29/StoFlow-sub015/internal/registry"
	badgerstore "github.com/matthiasrib29/StoFlow-sub015/internal/storage/badger"
)

func newTestStore(t *testing.T) interfaces.TenantStore {
	t.Helper()
	manager, err := badgerstore.NewManager(common.GetLogger(), t.TempDir(), false)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	store, err := manager.Tenant(context.Background(), "tenant_a")
	require.NoError(t, err)
	return store
}

// countingHandler records per-position execution counts so tests can
// assert which steps ran
type countingHandler struct {
	runs map[int]int
	fail map[int]error
}

func newCountingHandler() *countingHandler {
	return &countingHandler{
		runs: make(map[int]int),
		fail: make(map[int]error),
	}
}

func (c *countingHandler) step(position int, result map[string]interface{}) registry.TaskFunc {
	return func(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
		c.runs[position]++
		if err := c.fail[position]; err != nil {
			return nil, err
		}
		return result, nil
	}
}

func (c *countingHandler) handler() *registry.Handler {
	return &registry.Handler{
		Marketplace: models.MarketplaceVinted,
		ActionCode:  models.ActionPublish,
		Name:        "Publish product",
		Tasks: []registry.TaskSpec{
			{Description: "validate product", Type: models.TaskTypeDB, Run: c.step(1, map[string]interface{}{"validated": true})},
			{Description: "upload listing", Type: models.TaskTypePluginHTTP, Run: c.step(2, map[string]interface{}{"listing_id": "lst_1"})},
			{Description: "confirm listing", Type: models.TaskTypePluginHTTP, Run: c.step(3, nil)},
		},
	}
}

func newTestOrchestrator(t *testing.T, h *registry.Handler) *Orchestrator {
	t.Helper()
	reg := registry.NewRegistry(common.GetLogger())
	require.NoError(t, reg.Register(h))
	return NewOrchestrator(reg, common.GetLogger())
}

func TestExecuteJobCompletes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	counting := newCountingHandler()
	orch := newTestOrchestrator(t, counting.handler())

	job := models.NewJob("tenant_a", models.MarketplaceVinted, models.ActionPublish, nil)
	require.NoError(t, store.Jobs().SaveJob(ctx, job))
	_, err := orch.PlanJob(ctx, store, job)
	require.NoError(t, err)

	job.MarkStarted()
	require.NoError(t, store.Jobs().SaveJob(ctx, job))
	require.NoError(t, orch.ExecuteJob(ctx, store, job))

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, true, job.ResultData["validated"])
	assert.Equal(t, "lst_1", job.ResultData["listing_id"])

	tasks, err := store.Tasks().GetTasksForJob(ctx, job.ID)
	require.NoError(t, err)
	for _, task := range tasks {
		assert.Equal(t, models.TaskStatusSuccess, task.Status)
	}
}

func TestExecuteJobSkipsCompletedOnRetry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	counting := newCountingHandler()
	counting.fail[2] = fmt.Errorf("%w: listing rejected", models.ErrUpstreamFailure)
	orch := newTestOrchestrator(t, counting.handler())

	job := models.NewJob("tenant_a", models.MarketplaceVinted, models.ActionPublish, nil)
	require.NoError(t, store.Jobs().SaveJob(ctx, job))
	_, err := orch.PlanJob(ctx, store, job)
	require.NoError(t, err)

	job.MarkStarted()
	require.NoError(t, store.Jobs().SaveJob(ctx, job))
	err = orch.ExecuteJob(ctx, store, job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUpstreamFailure))
	assert.Equal(t, 1, counting.runs[1])
	assert.Equal(t, 1, counting.runs[2])
	assert.Equal(t, 0, counting.runs[3])

	// Retry: step 1 is absorbed, steps 2 and 3 run
	delete(counting.fail, 2)
	job.MarkRetrying("listing rejected", 0)
	job.MarkStarted()
	require.NoError(t, store.Jobs().SaveJob(ctx, job))
	require.NoError(t, orch.ExecuteJob(ctx, store, job))

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, counting.runs[1])
	assert.Equal(t, 2, counting.runs[2])
	assert.Equal(t, 1, counting.runs[3])
}

func TestExecuteJobCancelBetweenTasks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	counting := newCountingHandler()
	orch := newTestOrchestrator(t, counting.handler())

	job := models.NewJob("tenant_a", models.MarketplaceVinted, models.ActionPublish, nil)
	require.NoError(t, store.Jobs().SaveJob(ctx, job))
	_, err := orch.PlanJob(ctx, store, job)
	require.NoError(t, err)

	// Step 1 flags cancellation mid-run; the running step still finishes
	base := counting.handler().Tasks[0].Run
	reg := registry.NewRegistry(common.GetLogger())
	h := counting.handler()
	h.Tasks[0].Run = func(ctx context.Context, j *models.Job, task *models.Task) (map[string]interface{}, error) {
		current, err := store.Jobs().GetJob(ctx, j.ID)
		if err != nil {
			return nil, err
		}
		current.CancelRequested = true
		if err := store.Jobs().SaveJob(ctx, current); err != nil {
			return nil, err
		}
		return base(ctx, j, task)
	}
	require.NoError(t, reg.Register(h))
	orch = NewOrchestrator(reg, common.GetLogger())

	job.MarkStarted()
	require.NoError(t, store.Jobs().SaveJob(ctx, job))
	require.NoError(t, orch.ExecuteJob(ctx, store, job))

	assert.Equal(t, models.JobStatusCancelled, job.Status)
	assert.Equal(t, 1, counting.runs[1])
	assert.Equal(t, 0, counting.runs[2])

	tasks, err := store.Tasks().GetTasksForJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, tasks[0].Status)
	assert.Equal(t, models.TaskStatusCancelled, tasks[1].Status)
	assert.Equal(t, models.TaskStatusCancelled, tasks[2].Status)
}

func TestExecuteJobPauseBetweenTasks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	counting := newCountingHandler()
	orch := newTestOrchestrator(t, counting.handler())

	job := models.NewJob("tenant_a", models.MarketplaceVinted, models.ActionPublish, nil)
	require.NoError(t, store.Jobs().SaveJob(ctx, job))
	_, err := orch.PlanJob(ctx, store, job)
	require.NoError(t, err)

	job.MarkStarted()
	job.PauseRequested = true
	require.NoError(t, store.Jobs().SaveJob(ctx, job))
	require.NoError(t, orch.ExecuteJob(ctx, store, job))

	assert.Equal(t, models.JobStatusPaused, job.Status)
	assert.False(t, job.PauseRequested)
	assert.Equal(t, 0, counting.runs[1])

	// Resumed execution starts from the first pending task
	job.Status = models.JobStatusRunning
	require.NoError(t, store.Jobs().SaveJob(ctx, job))
	require.NoError(t, orch.ExecuteJob(ctx, store, job))
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, counting.runs[1])
}

func TestExecuteJobCapturesPanic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	reg := registry.NewRegistry(common.GetLogger())
	require.NoError(t, reg.Register(&registry.Handler{
		Marketplace: models.MarketplaceVinted,
		ActionCode:  models.ActionDelete,
		Name:        "Delete product",
		Tasks: []registry.TaskSpec{
			{Description: "delete listing", Type: models.TaskTypePluginHTTP, Run: func(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
				panic("boom")
			}},
		},
	}))
	orch := NewOrchestrator(reg, common.GetLogger())

	job := models.NewJob("tenant_a", models.MarketplaceVinted, models.ActionDelete, nil)
	require.NoError(t, store.Jobs().SaveJob(ctx, job))
	_, err := orch.PlanJob(ctx, store, job)
	require.NoError(t, err)

	job.MarkStarted()
	require.NoError(t, store.Jobs().SaveJob(ctx, job))
	err = orch.ExecuteJob(ctx, store, job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	tasks, err := store.Tasks().GetTasksForJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, tasks[0].Status)
}

func TestExecuteJobTimeoutStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	reg := registry.NewRegistry(common.GetLogger())
	require.NoError(t, reg.Register(&registry.Handler{
		Marketplace: models.MarketplaceVinted,
		ActionCode:  models.ActionSync,
		Name:        "Sync products",
		Tasks: []registry.TaskSpec{
			{Description: "fetch remote products", Type: models.TaskTypePluginHTTP, Run: func(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
				return nil, fmt.Errorf("%w: extension did not answer", models.ErrTimeout)
			}},
		},
	}))
	orch := NewOrchestrator(reg, common.GetLogger())

	job := models.NewJob("tenant_a", models.MarketplaceVinted, models.ActionSync, nil)
	require.NoError(t, store.Jobs().SaveJob(ctx, job))
	_, err := orch.PlanJob(ctx, store, job)
	require.NoError(t, err)

	job.MarkStarted()
	require.NoError(t, store.Jobs().SaveJob(ctx, job))
	err = orch.ExecuteJob(ctx, store, job)
	require.Error(t, err)

	tasks, err := store.Tasks().GetTasksForJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusTimeout, tasks[0].Status)
}

func TestPlanJobValidatesInput(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	reg := registry.NewRegistry(common.GetLogger())
	require.NoError(t, reg.Register(&registry.Handler{
		Marketplace:    models.MarketplaceVinted,
		ActionCode:     models.ActionUpdate,
		Name:           "Update product",
		RequiredInputs: []string{"product_id"},
		Tasks: []registry.TaskSpec{
			{Description: "update listing", Type: models.TaskTypePluginHTTP, Run: func(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
				return nil, nil
			}},
		},
	}))
	orch := NewOrchestrator(reg, common.GetLogger())

	job := models.NewJob("tenant_a", models.MarketplaceVinted, models.ActionUpdate, nil)
	_, err := orch.PlanJob(ctx, store, job)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))

	_, err = orch.PlanJob(ctx, store, models.NewJob("tenant_a", models.MarketplaceEbay, "unknown", nil))
	assert.True(t, errors.Is(err, models.ErrNotFound))
}
