package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/matthiasrib29/StoFlow-sub015/internal/interfaces"
)

// tenantRecord registers a tenant in the shared store so TenantIDs can
// enumerate tenants without walking the filesystem
type tenantRecord struct {
	TenantID     string    `json:"tenant_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// tenantStore bundles the per-entity storages bound to one tenant
type tenantStore struct {
	tenantID string
	db       *BadgerDB
	jobs     *JobStorage
	tasks    *TaskStorage
	batches  *BatchStorage
	stats    *StatsStorage
}

func (t *tenantStore) TenantID() string                 { return t.tenantID }
func (t *tenantStore) Jobs() interfaces.JobStorage      { return t.jobs }
func (t *tenantStore) Tasks() interfaces.TaskStorage    { return t.tasks }
func (t *tenantStore) Batches() interfaces.BatchStorage { return t.batches }
func (t *tenantStore) Stats() interfaces.StatsStorage   { return t.stats }

// Manager owns the shared reference store and lazily opened tenant stores
type Manager struct {
	rootPath string
	shared   *BadgerDB
	logger   arbor.ILogger

	connections *ConnectionStorage
	actionTypes *ActionTypeStorage

	mu      sync.Mutex
	tenants map[string]*tenantStore
}

// NewManager opens the shared store under rootPath/shared. Tenant stores
// open on first use under rootPath/tenants/<id>.
func NewManager(logger arbor.ILogger, rootPath string, resetOnStartup bool) (*Manager, error) {
	shared, err := NewBadgerDB(logger, filepath.Join(rootPath, "shared"), resetOnStartup)
	if err != nil {
		return nil, fmt.Errorf("failed to open shared store: %w", err)
	}

	return &Manager{
		rootPath:    rootPath,
		shared:      shared,
		logger:      logger,
		connections: NewConnectionStorage(shared, logger),
		actionTypes: NewActionTypeStorage(shared, logger),
		tenants:     make(map[string]*tenantStore),
	}, nil
}

// Tenant returns the verified store binding for a tenant, opening and
// registering it on first use
func (m *Manager) Tenant(ctx context.Context, tenantID string) (interfaces.TenantStore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if store, ok := m.tenants[tenantID]; ok {
		return store, nil
	}

	db, err := openTenantDB(m.logger, m.rootPath, tenantID)
	if err != nil {
		return nil, err
	}

	record := tenantRecord{TenantID: tenantID, RegisteredAt: time.Now()}
	if err := m.shared.Store().Upsert("tenant:"+tenantID, record); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register tenant %s: %w", tenantID, err)
	}

	store := &tenantStore{
		tenantID: tenantID,
		db:       db,
		jobs:     NewJobStorage(db, tenantID, m.logger),
		tasks:    NewTaskStorage(db, tenantID, m.logger),
		batches:  NewBatchStorage(db, tenantID, m.logger),
		stats:    NewStatsStorage(db, tenantID, m.logger),
	}
	m.tenants[tenantID] = store
	m.logger.Info().Str("tenant_id", tenantID).Msg("Tenant store opened")
	return store, nil
}

// TenantIDs lists all tenants ever registered with this manager
func (m *Manager) TenantIDs(ctx context.Context) ([]string, error) {
	var records []*tenantRecord
	if err := m.shared.Store().Find(&records, &badgerhold.Query{}); err != nil {
		return nil, fmt.Errorf("failed to query tenant registry: %w", err)
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.TenantID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Connections returns the shared connection storage
func (m *Manager) Connections() interfaces.ConnectionStorage {
	return m.connections
}

// ActionTypes returns the shared action type storage
func (m *Manager) ActionTypes() interfaces.ActionTypeStorage {
	return m.actionTypes
}

// Close closes all tenant stores and the shared store
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for id, store := range m.tenants {
		if err := store.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close tenant store %s: %w", id, err)
		}
	}
	m.tenants = make(map[string]*tenantStore)

	if err := m.shared.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close shared store: %w", err)
	}
	return firstErr
}
