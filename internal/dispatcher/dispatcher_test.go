package dispatcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthiasrib29/StoFlow-sub015/internal/batch"
	"github.com/matthiasrib29/StoFlow-sub015/internal/common"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
	"github.com/matthiasrib29/StoFlow-sub015/internal/orchestrator"
	"github.com/matthiasrib29/StoFlow-sub015/internal/registry"
	"github.com/matthiasrib29/StoFlow-sub015/internal/stats"
	badgerstore "github.com/matthiasrib29/StoFlow-sub015/internal/storage/badger"
)

type fixture struct {
	dispatcher *Dispatcher
	manager    *badgerstore.Manager
	registry   *registry.Registry
	config     *common.Config
	fail       map[string]error // action code -> forced error
	runs       map[string]int   // action code -> run count
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := common.GetLogger()

	manager, err := badgerstore.NewManager(logger, t.TempDir(), false)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	f := &fixture{
		manager: manager,
		fail:    make(map[string]error),
		runs:    make(map[string]int),
	}

	reg := registry.NewRegistry(logger)
	for _, marketplace := range []models.Marketplace{models.MarketplaceVinted, models.MarketplaceEbay, models.MarketplaceEtsy} {
		for _, code := range []string{models.ActionPublish, models.ActionSync} {
			code := code
			require.NoError(t, reg.Register(&registry.Handler{
				Marketplace: marketplace,
				ActionCode:  code,
				Name:        code,
				Tasks: []registry.TaskSpec{
					{Description: "execute " + code, Type: models.TaskTypeDirectHTTP, Run: func(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
						f.runs[code]++
						return nil, f.fail[code]
					}},
				},
			}))
		}
	}
	f.registry = reg

	config := common.NewDefaultConfig()
	config.Dispatcher.BackoffBase = "60s"
	config.Dispatcher.BackoffCap = "1h"
	config.Marketplaces.Vinted.JobsPerMinute = 2
	config.Marketplaces.Ebay.CallsPerDay = 2
	f.config = config

	orch := orchestrator.NewOrchestrator(reg, logger)
	f.dispatcher = NewDispatcher(
		config,
		manager,
		orch,
		NewRateGate(&config.Marketplaces),
		batch.NewTracker(logger),
		stats.NewAggregator(logger),
		logger,
	)
	return f
}

func (f *fixture) submit(t *testing.T, tenantID string, marketplace models.Marketplace, code string) *models.Job {
	t.Helper()
	ctx := context.Background()
	store, err := f.manager.Tenant(ctx, tenantID)
	require.NoError(t, err)

	job := models.NewJob(tenantID, marketplace, code, nil)
	require.NoError(t, store.Jobs().SaveJob(ctx, job))

	orch := orchestrator.NewOrchestrator(f.registry, common.GetLogger())
	_, err = orch.PlanJob(ctx, store, job)
	require.NoError(t, err)
	return job
}

func (f *fixture) reload(t *testing.T, tenantID, jobID string) *models.Job {
	t.Helper()
	ctx := context.Background()
	store, err := f.manager.Tenant(ctx, tenantID)
	require.NoError(t, err)
	job, err := store.Jobs().GetJob(ctx, jobID)
	require.NoError(t, err)
	return job
}

func TestBackoff(t *testing.T) {
	base := 60 * time.Second
	cap := time.Hour

	assert.Equal(t, 60*time.Second, Backoff(0, base, cap))
	assert.Equal(t, 120*time.Second, Backoff(1, base, cap))
	assert.Equal(t, 240*time.Second, Backoff(2, base, cap))
	assert.Equal(t, 1920*time.Second, Backoff(5, base, cap))
	assert.Equal(t, cap, Backoff(6, base, cap))
	assert.Equal(t, cap, Backoff(50, base, cap))
}

func TestPollRunsJobToCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.submit(t, "tenant_a", models.MarketplaceVinted, models.ActionPublish)

	assert.True(t, f.dispatcher.pollOnce(ctx))

	got := f.reload(t, "tenant_a", job.ID)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 1, f.runs[models.ActionPublish])
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fail[models.ActionSync] = fmt.Errorf("%w: 502 from marketplace", models.ErrUpstreamFailure)
	job := f.submit(t, "tenant_a", models.MarketplaceEbay, models.ActionSync)

	before := time.Now()
	require.True(t, f.dispatcher.pollOnce(ctx))

	got := f.reload(t, "tenant_a", job.ID)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	// First retry is deferred by the base backoff
	assert.True(t, got.NotBefore.After(before.Add(50*time.Second)))

	// The deferred job is invisible to the next poll round
	assert.False(t, f.dispatcher.pollOnce(ctx))
	assert.Equal(t, 1, f.runs[models.ActionSync])
}

func TestRetriesExhaustedFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fail[models.ActionSync] = fmt.Errorf("%w: 502 from marketplace", models.ErrUpstreamFailure)
	job := f.submit(t, "tenant_a", models.MarketplaceEbay, models.ActionSync)

	store, err := f.manager.Tenant(ctx, "tenant_a")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		got := f.reload(t, "tenant_a", job.ID)
		got.NotBefore = time.Now() // make it visible immediately
		require.NoError(t, store.Jobs().SaveJob(ctx, got))
		f.dispatcher.pollOnce(ctx)
	}

	got := f.reload(t, "tenant_a", job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, 3, got.RetryCount)
	assert.Equal(t, 4, f.runs[models.ActionSync])

	// Terminal outcome lands in the daily stats
	row, err := store.Stats().GetStats(ctx, models.ActionSync, models.MarketplaceEbay, models.StatsDate(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, 1, row.FailureCount)
}

func TestSessionLostNeverRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fail[models.ActionPublish] = fmt.Errorf("%w: extension reported logout", models.ErrSessionLost)
	job := f.submit(t, "tenant_a", models.MarketplaceVinted, models.ActionPublish)

	require.True(t, f.dispatcher.pollOnce(ctx))

	got := f.reload(t, "tenant_a", job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Equal(t, 1, f.runs[models.ActionPublish])
}

func TestRateCapLeavesJobPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Daily cap is 2: the third job stays pending without consuming retries
	var jobs []*models.Job
	for i := 0; i < 3; i++ {
		jobs = append(jobs, f.submit(t, "tenant_a", models.MarketplaceEbay, models.ActionPublish))
	}

	f.dispatcher.pollOnce(ctx)
	f.dispatcher.pollOnce(ctx)
	f.dispatcher.pollOnce(ctx)

	completed, pending := 0, 0
	for _, job := range jobs {
		switch f.reload(t, "tenant_a", job.ID).Status {
		case models.JobStatusCompleted:
			completed++
		case models.JobStatusPending:
			pending++
		}
	}
	assert.Equal(t, 2, completed)
	assert.Equal(t, 1, pending)

	held := f.reload(t, "tenant_a", jobs[2].ID)
	if held.Status == models.JobStatusPending {
		assert.Equal(t, 0, held.RetryCount)
	}
}

func TestBatchRollupOnTerminalJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fail[models.ActionSync] = fmt.Errorf("%w: rejected", models.ErrSessionLost)

	store, err := f.manager.Tenant(ctx, "tenant_a")
	require.NoError(t, err)

	tracker := batch.NewTracker(common.GetLogger())
	b, err := tracker.CreateBatch(ctx, store, models.MarketplaceVinted, models.ActionPublish, 2)
	require.NoError(t, err)

	good := f.submit(t, "tenant_a", models.MarketplaceVinted, models.ActionPublish)
	bad := f.submit(t, "tenant_a", models.MarketplaceVinted, models.ActionSync)
	for _, job := range []*models.Job{good, bad} {
		job.BatchID = b.ID
		require.NoError(t, store.Jobs().SaveJob(ctx, job))
	}

	f.dispatcher.pollOnce(ctx)
	f.dispatcher.pollOnce(ctx)

	rolled, err := store.Batches().GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusPartial, rolled.Status)
	assert.Equal(t, 1, rolled.CompletedJobs)
	assert.Equal(t, 1, rolled.FailedJobs)
}

func TestJanitorExpiresOverdueJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.submit(t, "tenant_a", models.MarketplaceVinted, models.ActionPublish)

	store, err := f.manager.Tenant(ctx, "tenant_a")
	require.NoError(t, err)
	job.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Jobs().SaveJob(ctx, job))

	expired := f.dispatcher.janitor.Sweep(ctx)
	assert.Equal(t, 1, expired)

	got := f.reload(t, "tenant_a", job.ID)
	assert.Equal(t, models.JobStatusExpired, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)

	// Expired counts as a failure in the daily stats
	row, err := store.Stats().GetStats(ctx, models.ActionPublish, models.MarketplaceVinted, models.StatsDate(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, 1, row.FailureCount)
}

func TestRateGateDailyBudget(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Marketplaces.Ebay.CallsPerDay = 2
	gate := NewRateGate(&config.Marketplaces)

	assert.Equal(t, 2, gate.Remaining("tenant_a", models.MarketplaceEbay))
	assert.True(t, gate.Allow("tenant_a", models.MarketplaceEbay))
	assert.True(t, gate.Allow("tenant_a", models.MarketplaceEbay))
	assert.False(t, gate.Allow("tenant_a", models.MarketplaceEbay))
	assert.Equal(t, 0, gate.Remaining("tenant_a", models.MarketplaceEbay))

	// Budgets are per tenant
	assert.True(t, gate.Allow("tenant_b", models.MarketplaceEbay))

	// Per-minute marketplaces report no daily budget
	assert.Equal(t, -1, gate.Remaining("tenant_a", models.MarketplaceVinted))
}

func TestRateGatePerMinuteBurst(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Marketplaces.Vinted.JobsPerMinute = 3
	gate := NewRateGate(&config.Marketplaces)

	for i := 0; i < 3; i++ {
		assert.True(t, gate.Allow("tenant_a", models.MarketplaceVinted))
	}
	assert.False(t, gate.Allow("tenant_a", models.MarketplaceVinted))
	assert.True(t, gate.Allow("tenant_b", models.MarketplaceVinted))
}
