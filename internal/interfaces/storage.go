package interfaces

import (
	"context"
	"time"

	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// JobListOptions filters and paginates job listings
type JobListOptions struct {
	Marketplace models.Marketplace
	Status      models.JobStatus
	BatchID     string
	Limit       int
	Offset      int
}

// TaskListOptions filters and paginates task listings
type TaskListOptions struct {
	JobID  string
	Status models.TaskStatus
	Type   models.TaskType
	Limit  int
	Offset int
}

// BatchListOptions filters and paginates batch listings
type BatchListOptions struct {
	Marketplace models.Marketplace
	Status      models.BatchStatus
	Limit       int
	Offset      int
}

// JobStorage persists jobs within one tenant's namespace
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.Job, int, error)
	CountByStatus(ctx context.Context, opts *JobListOptions) (map[models.JobStatus]int, error)

	// ClaimNext atomically claims the highest-priority, oldest pending job
	// visible at now (NotBefore elapsed, not expired) that the accept
	// predicate admits, transitioning it to running. Returns nil when no
	// claimable job exists.
	ClaimNext(ctx context.Context, now time.Time, accept func(*models.Job) bool) (*models.Job, error)

	// ExpiredJobs returns pending or running jobs whose expiry passed.
	// Paused jobs are frozen and never swept.
	ExpiredJobs(ctx context.Context, now time.Time) ([]*models.Job, error)

	DeleteJob(ctx context.Context, jobID string) error
}

// TaskStorage persists tasks within one tenant's namespace
type TaskStorage interface {
	SaveTask(ctx context.Context, task *models.Task) error
	SaveTasks(ctx context.Context, tasks []*models.Task) error
	GetTask(ctx context.Context, taskID string) (*models.Task, error)

	// GetTasksForJob returns the job's tasks ordered by position
	GetTasksForJob(ctx context.Context, jobID string) ([]*models.Task, error)

	ListTasks(ctx context.Context, opts *TaskListOptions) ([]*models.Task, int, error)
	CountByStatus(ctx context.Context, opts *TaskListOptions) (map[models.TaskStatus]int, error)
	DeleteTasksForJob(ctx context.Context, jobID string) error
}

// BatchStorage persists batches within one tenant's namespace
type BatchStorage interface {
	SaveBatch(ctx context.Context, batch *models.BatchJob) error
	GetBatch(ctx context.Context, batchID string) (*models.BatchJob, error)
	ListBatches(ctx context.Context, opts *BatchListOptions) ([]*models.BatchJob, int, error)
	DeleteBatch(ctx context.Context, batchID string) error
}

// StatsStorage persists daily aggregates within one tenant's namespace
type StatsStorage interface {
	GetStats(ctx context.Context, actionCode string, marketplace models.Marketplace, date string) (*models.DailyStats, error)
	SaveStats(ctx context.Context, stats *models.DailyStats) error
	ListStats(ctx context.Context, fromDate, toDate string) ([]*models.DailyStats, error)
}

// TenantStore is a storage handle bound and verified against one tenant's
// private namespace. A binding whose namespace does not match the tenant
// fails loudly at acquisition time.
type TenantStore interface {
	TenantID() string
	Jobs() JobStorage
	Tasks() TaskStorage
	Batches() BatchStorage
	Stats() StatsStorage
}

// ConnectionStorage persists marketplace connections in the shared store,
// keyed by (tenant, marketplace)
type ConnectionStorage interface {
	GetConnection(ctx context.Context, tenantID string, marketplace models.Marketplace) (*models.MarketplaceConnection, error)
	SaveConnection(ctx context.Context, conn *models.MarketplaceConnection) error
	ListConnections(ctx context.Context, tenantID string) ([]*models.MarketplaceConnection, error)
}

// ActionTypeStorage persists reference action types in the shared store
type ActionTypeStorage interface {
	SeedActionTypes(ctx context.Context, types []*models.ActionType) error
	ListActionTypes(ctx context.Context) ([]*models.ActionType, error)
	GetActionType(ctx context.Context, marketplace models.Marketplace, code string) (*models.ActionType, error)
}

// StorageManager owns the shared reference store and the per-tenant stores
type StorageManager interface {
	// Tenant returns the verified store binding for a tenant, registering
	// the tenant on first use
	Tenant(ctx context.Context, tenantID string) (TenantStore, error)

	// TenantIDs lists all registered tenants
	TenantIDs(ctx context.Context) ([]string, error)

	Connections() ConnectionStorage
	ActionTypes() ActionTypeStorage

	Close() error
}
