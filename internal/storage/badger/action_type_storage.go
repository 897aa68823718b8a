package badger

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// ActionTypeStorage persists action reference data in the shared store
type ActionTypeStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewActionTypeStorage creates an action type storage over the shared store
func NewActionTypeStorage(db *BadgerDB, logger arbor.ILogger) *ActionTypeStorage {
	return &ActionTypeStorage{
		db:     db,
		logger: logger,
	}
}

func actionTypeKey(marketplace models.Marketplace, code string) string {
	return string(marketplace) + ":" + code
}

// SeedActionTypes upserts the reference rows at startup. Seeding is
// idempotent, re-running against a populated store is a no-op update.
func (s *ActionTypeStorage) SeedActionTypes(ctx context.Context, types []*models.ActionType) error {
	for _, at := range types {
		if at.Code == "" || !models.IsValidMarketplace(at.Marketplace) {
			return fmt.Errorf("%w: action type requires code and marketplace", models.ErrInvalidInput)
		}
		key := actionTypeKey(at.Marketplace, at.Code)
		if at.ID == "" {
			at.ID = key
		}
		if err := s.db.Store().Upsert(key, at); err != nil {
			return fmt.Errorf("failed to seed action type %s: %w", key, err)
		}
	}
	s.logger.Debug().Int("count", len(types)).Msg("Action types seeded")
	return nil
}

// ListActionTypes returns all declared action types
func (s *ActionTypeStorage) ListActionTypes(ctx context.Context) ([]*models.ActionType, error) {
	var types []*models.ActionType
	if err := s.db.Store().Find(&types, &badgerhold.Query{}); err != nil {
		return nil, fmt.Errorf("failed to query action types: %w", err)
	}
	sort.Slice(types, func(i, j int) bool {
		if types[i].Marketplace != types[j].Marketplace {
			return types[i].Marketplace < types[j].Marketplace
		}
		return types[i].Code < types[j].Code
	})
	return types, nil
}

// GetActionType retrieves one action type by marketplace and code
func (s *ActionTypeStorage) GetActionType(ctx context.Context, marketplace models.Marketplace, code string) (*models.ActionType, error) {
	key := actionTypeKey(marketplace, code)
	var at models.ActionType
	err := s.db.Store().Get(key, &at)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("%w: action type %s", models.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action type: %w", err)
	}
	return &at, nil
}
