package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// ConnectionStorage persists marketplace connections in the shared store
type ConnectionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewConnectionStorage creates a connection storage over the shared store
func NewConnectionStorage(db *BadgerDB, logger arbor.ILogger) *ConnectionStorage {
	return &ConnectionStorage{
		db:     db,
		logger: logger,
	}
}

// GetConnection retrieves a tenant's connection record for a marketplace
func (s *ConnectionStorage) GetConnection(ctx context.Context, tenantID string, marketplace models.Marketplace) (*models.MarketplaceConnection, error) {
	key := models.ConnectionKey(tenantID, marketplace)
	var conn models.MarketplaceConnection
	err := s.db.Store().Get(key, &conn)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("%w: connection %s", models.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &conn, nil
}

// SaveConnection upserts a connection record
func (s *ConnectionStorage) SaveConnection(ctx context.Context, conn *models.MarketplaceConnection) error {
	if conn == nil {
		return fmt.Errorf("%w: connection is nil", models.ErrInvalidInput)
	}
	if conn.TenantID == "" || !models.IsValidMarketplace(conn.Marketplace) {
		return fmt.Errorf("%w: connection requires tenant and marketplace", models.ErrInvalidInput)
	}
	conn.UpdatedAt = time.Now()
	key := models.ConnectionKey(conn.TenantID, conn.Marketplace)
	if err := s.db.Store().Upsert(key, conn); err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

// ListConnections returns a tenant's connection records
func (s *ConnectionStorage) ListConnections(ctx context.Context, tenantID string) ([]*models.MarketplaceConnection, error) {
	var conns []*models.MarketplaceConnection
	err := s.db.Store().Find(&conns, badgerhold.Where("TenantID").Eq(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].Marketplace < conns[j].Marketplace
	})
	return conns, nil
}
