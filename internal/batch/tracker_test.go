package batch

import (
	"context"
	"errors"
	"testing"

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

func childJob(batchID string, status models.JobStatus) *models.Job {
	job := models.NewJob("tenant_a", models.MarketplaceVinted, models.ActionPublish, nil)
	job.BatchID = batchID
	job.Status = status
	return job
}

func TestBatchRollup(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := NewTracker(common.GetLogger())

	batch, err := tracker.CreateBatch(ctx, store, models.MarketplaceVinted, models.ActionPublish, 3)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusPending, batch.Status)

	updated, err := tracker.RecordJobOutcome(ctx, store, childJob(batch.ID, models.JobStatusCompleted))
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusRunning, updated.Status)

	updated, err = tracker.RecordJobOutcome(ctx, store, childJob(batch.ID, models.JobStatusFailed))
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusRunning, updated.Status)

	updated, err = tracker.RecordJobOutcome(ctx, store, childJob(batch.ID, models.JobStatusCompleted))
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusPartial, updated.Status)
	assert.Equal(t, 2, updated.CompletedJobs)
	assert.Equal(t, 1, updated.FailedJobs)
	assert.NotNil(t, updated.CompletedAt)
}

func TestBatchAllOutcomes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := NewTracker(common.GetLogger())

	allGood, err := tracker.CreateBatch(ctx, store, models.MarketplaceEbay, models.ActionSync, 2)
	require.NoError(t, err)
	tracker.RecordJobOutcome(ctx, store, childJob(allGood.ID, models.JobStatusCompleted))
	updated, err := tracker.RecordJobOutcome(ctx, store, childJob(allGood.ID, models.JobStatusCompleted))
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCompleted, updated.Status)

	allBad, err := tracker.CreateBatch(ctx, store, models.MarketplaceEbay, models.ActionSync, 2)
	require.NoError(t, err)
	// Cancelled and expired children count as failures
	tracker.RecordJobOutcome(ctx, store, childJob(allBad.ID, models.JobStatusCancelled))
	updated, err = tracker.RecordJobOutcome(ctx, store, childJob(allBad.ID, models.JobStatusExpired))
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusFailed, updated.Status)
}

func TestBatchOverflowRejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := NewTracker(common.GetLogger())

	batch, err := tracker.CreateBatch(ctx, store, models.MarketplaceVinted, models.ActionPublish, 1)
	require.NoError(t, err)

	_, err = tracker.RecordJobOutcome(ctx, store, childJob(batch.ID, models.JobStatusCompleted))
	require.NoError(t, err)

	_, err = tracker.RecordJobOutcome(ctx, store, childJob(batch.ID, models.JobStatusCompleted))
	assert.True(t, errors.Is(err, models.ErrIllegalTransition))
}

func TestStandaloneJobIgnored(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := NewTracker(common.GetLogger())

	updated, err := tracker.RecordJobOutcome(ctx, store, childJob("", models.JobStatusCompleted))
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestCreateBatchValidates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := NewTracker(common.GetLogger())

	_, err := tracker.CreateBatch(ctx, store, models.MarketplaceVinted, models.ActionPublish, 0)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}
