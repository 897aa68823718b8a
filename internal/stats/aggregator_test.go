package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthiasrib29/StoFlow-sub015/internal/common"
	"github.com/matthiasrib29/StoFlow-sub015/internal/interfaces"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
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

func finishedJob(status models.JobStatus, duration time.Duration) *models.Job {
	job := models.NewJob("tenant_a", models.MarketplaceVinted, models.ActionPublish, nil)
	started := time.Now().Add(-duration)
	completed := time.Now()
	job.Status = status
	job.StartedAt = &started
	job.CompletedAt = &completed
	return job
}

func TestRecordOutcomeCreatesAndUpdates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	agg := NewAggregator(common.GetLogger())

	require.NoError(t, agg.RecordOutcome(ctx, store, finishedJob(models.JobStatusCompleted, 2*time.Second)))
	require.NoError(t, agg.RecordOutcome(ctx, store, finishedJob(models.JobStatusFailed, 4*time.Second)))

	date := models.StatsDate(time.Now())
	row, err := store.Stats().GetStats(ctx, models.ActionPublish, models.MarketplaceVinted, date)
	require.NoError(t, err)
	assert.Equal(t, 1, row.SuccessCount)
	assert.Equal(t, 1, row.FailureCount)
	assert.InDelta(t, 3000.0, row.AvgDurationMs, 50.0)
}

func TestExpiredAndCancelledCountAsFailures(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	agg := NewAggregator(common.GetLogger())

	require.NoError(t, agg.RecordOutcome(ctx, store, finishedJob(models.JobStatusExpired, time.Second)))
	require.NoError(t, agg.RecordOutcome(ctx, store, finishedJob(models.JobStatusCancelled, time.Second)))

	date := models.StatsDate(time.Now())
	row, err := store.Stats().GetStats(ctx, models.ActionPublish, models.MarketplaceVinted, date)
	require.NoError(t, err)
	assert.Equal(t, 0, row.SuccessCount)
	assert.Equal(t, 2, row.FailureCount)
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	agg := NewAggregator(common.GetLogger())

	for i := 0; i < 3; i++ {
		require.NoError(t, agg.RecordOutcome(ctx, store, finishedJob(models.JobStatusCompleted, time.Second)))
	}
	require.NoError(t, agg.RecordOutcome(ctx, store, finishedJob(models.JobStatusFailed, time.Second)))

	summary, err := agg.Summarize(ctx, store, "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Success)
	assert.Equal(t, 1, summary.Failure)
	assert.Len(t, summary.Rows, 1)
}
