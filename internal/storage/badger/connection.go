package badger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

const tenantMarkerKey = "tenant_marker"

// tenantMarker is written on first open of a tenant store and re-verified
// on every subsequent bind. A mismatch means the directory layout was
// corrupted or a store was bound to the wrong tenant.
type tenantMarker struct {
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
}

// BadgerDB manages one Badger database directory
type BadgerDB struct {
	store  *badgerhold.Store
	path   string
	logger arbor.ILogger
}

// NewBadgerDB opens a Badger database at the given path
func NewBadgerDB(logger arbor.ILogger, path string, resetOnStartup bool) (*BadgerDB, error) {
	if resetOnStartup {
		if _, err := os.Stat(path); err == nil {
			logger.Debug().Str("path", path).Msg("Deleting existing database (reset_on_startup=true)")
			if err := os.RemoveAll(path); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("Failed to delete database directory")
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil // Disable default badger logger to use arbor

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug().Str("path", path).Msg("Badger database initialized")

	return &BadgerDB{
		store:  store,
		path:   path,
		logger: logger,
	}, nil
}

// openTenantDB opens (or creates) a tenant's private store and verifies
// the namespace binding. A marker mismatch is a tenant-isolation breach
// and aborts the bind with ErrInvariantViolation.
func openTenantDB(logger arbor.ILogger, rootPath, tenantID string) (*BadgerDB, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: empty tenant ID", models.ErrInvalidInput)
	}

	path := filepath.Join(rootPath, "tenants", tenantID)
	db, err := NewBadgerDB(logger, path, false)
	if err != nil {
		return nil, err
	}

	var marker tenantMarker
	err = db.store.Get(tenantMarkerKey, &marker)
	switch {
	case err == badgerhold.ErrNotFound:
		marker = tenantMarker{TenantID: tenantID, CreatedAt: time.Now()}
		if err := db.store.Insert(tenantMarkerKey, marker); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to write tenant marker: %w", err)
		}
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("failed to read tenant marker: %w", err)
	case marker.TenantID != tenantID:
		db.Close()
		logger.Error().
			Str("expected_tenant", tenantID).
			Str("bound_tenant", marker.TenantID).
			Str("path", path).
			Msg("Tenant store binding verification failed")
		return nil, fmt.Errorf("%w: tenant store at %s is bound to %q, expected %q",
			models.ErrInvariantViolation, path, marker.TenantID, tenantID)
	}

	return db, nil
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Close closes the database connection
func (b *BadgerDB) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}
