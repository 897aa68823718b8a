package badger

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/matthiasrib29/StoFlow-sub015/internal/interfaces"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// BatchStorage implements batch persistence over a tenant's Badger store
type BatchStorage struct {
	db       *BadgerDB
	tenantID string
	logger   arbor.ILogger
}

// NewBatchStorage creates a batch storage bound to one tenant's store
func NewBatchStorage(db *BadgerDB, tenantID string, logger arbor.ILogger) *BatchStorage {
	return &BatchStorage{
		db:       db,
		tenantID: tenantID,
		logger:   logger,
	}
}

// SaveBatch persists a batch
func (s *BatchStorage) SaveBatch(ctx context.Context, batch *models.BatchJob) error {
	if batch == nil {
		return fmt.Errorf("%w: batch is nil", models.ErrInvalidInput)
	}
	if batch.TenantID != s.tenantID {
		return fmt.Errorf("%w: batch %s belongs to tenant %q, store is bound to %q",
			models.ErrInvariantViolation, batch.ID, batch.TenantID, s.tenantID)
	}
	if err := s.db.Store().Upsert(batch.ID, batch); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

// GetBatch retrieves a batch by ID
func (s *BatchStorage) GetBatch(ctx context.Context, batchID string) (*models.BatchJob, error) {
	var batch models.BatchJob
	err := s.db.Store().Get(batchID, &batch)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("%w: batch %s", models.ErrNotFound, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &batch, nil
}

// ListBatches returns batches matching the options, newest first
func (s *BatchStorage) ListBatches(ctx context.Context, opts *interfaces.BatchListOptions) ([]*models.BatchJob, int, error) {
	var batches []*models.BatchJob
	if err := s.db.Store().Find(&batches, &badgerhold.Query{}); err != nil {
		return nil, 0, fmt.Errorf("failed to query batches: %w", err)
	}

	if opts != nil {
		filtered := batches[:0]
		for _, batch := range batches {
			if opts.Marketplace != "" && batch.Marketplace != opts.Marketplace {
				continue
			}
			if opts.Status != "" && batch.Status != opts.Status {
				continue
			}
			filtered = append(filtered, batch)
		}
		batches = filtered
	}

	sort.Slice(batches, func(i, j int) bool {
		return batches[i].CreatedAt.After(batches[j].CreatedAt)
	})

	total := len(batches)
	if opts != nil {
		if opts.Offset > 0 {
			if opts.Offset >= len(batches) {
				batches = nil
			} else {
				batches = batches[opts.Offset:]
			}
		}
		if opts.Limit > 0 && opts.Limit < len(batches) {
			batches = batches[:opts.Limit]
		}
	}
	return batches, total, nil
}

// DeleteBatch removes a batch record
func (s *BatchStorage) DeleteBatch(ctx context.Context, batchID string) error {
	err := s.db.Store().Delete(batchID, &models.BatchJob{})
	if err == badgerhold.ErrNotFound {
		return fmt.Errorf("%w: batch %s", models.ErrNotFound, batchID)
	}
	if err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	return nil
}
