package badger

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// StatsStorage implements daily aggregate persistence over a tenant's
// Badger store. Rows are keyed by (action, marketplace, date).
type StatsStorage struct {
	db       *BadgerDB
	tenantID string
	logger   arbor.ILogger
}

// NewStatsStorage creates a stats storage bound to one tenant's store
func NewStatsStorage(db *BadgerDB, tenantID string, logger arbor.ILogger) *StatsStorage {
	return &StatsStorage{
		db:       db,
		tenantID: tenantID,
		logger:   logger,
	}
}

// GetStats retrieves one daily aggregate row
func (s *StatsStorage) GetStats(ctx context.Context, actionCode string, marketplace models.Marketplace, date string) (*models.DailyStats, error) {
	key := models.StatsKey(s.tenantID, actionCode, marketplace, date)
	var stats models.DailyStats
	err := s.db.Store().Get(key, &stats)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("%w: stats %s", models.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &stats, nil
}

// SaveStats upserts a daily aggregate row
func (s *StatsStorage) SaveStats(ctx context.Context, stats *models.DailyStats) error {
	if stats == nil {
		return fmt.Errorf("%w: stats is nil", models.ErrInvalidInput)
	}
	if stats.TenantID != s.tenantID {
		return fmt.Errorf("%w: stats row belongs to tenant %q, store is bound to %q",
			models.ErrInvariantViolation, stats.TenantID, s.tenantID)
	}
	key := models.StatsKey(stats.TenantID, stats.ActionCode, stats.Marketplace, stats.Date)
	if err := s.db.Store().Upsert(key, stats); err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// ListStats returns aggregate rows within the inclusive date range,
// ordered by date then action
func (s *StatsStorage) ListStats(ctx context.Context, fromDate, toDate string) ([]*models.DailyStats, error) {
	var rows []*models.DailyStats
	if err := s.db.Store().Find(&rows, &badgerhold.Query{}); err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}

	// Dates are "2006-01-02" so string comparison is chronological
	filtered := rows[:0]
	for _, row := range rows {
		if fromDate != "" && row.Date < fromDate {
			continue
		}
		if toDate != "" && row.Date > toDate {
			continue
		}
		filtered = append(filtered, row)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Date != filtered[j].Date {
			return filtered[i].Date < filtered[j].Date
		}
		if filtered[i].Marketplace != filtered[j].Marketplace {
			return filtered[i].Marketplace < filtered[j].Marketplace
		}
		return filtered[i].ActionCode < filtered[j].ActionCode
	})
	return filtered, nil
}
