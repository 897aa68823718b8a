package badger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/matthiasrib29/StoFlow-sub015/internal/interfaces"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// JobStorage implements job persistence over a tenant's Badger store
type JobStorage struct {
	db       *BadgerDB
	tenantID string
	logger   arbor.ILogger

	// claimMu serializes ClaimNext so two workers cannot claim the same
	// pending job.
	claimMu sync.Mutex
}

// NewJobStorage creates a job storage bound to one tenant's store
func NewJobStorage(db *BadgerDB, tenantID string, logger arbor.ILogger) *JobStorage {
	return &JobStorage{
		db:       db,
		tenantID: tenantID,
		logger:   logger,
	}
}

// SaveJob persists a job. Jobs belonging to another tenant are rejected,
// that would silently cross the isolation boundary.
func (s *JobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", models.ErrInvalidInput)
	}
	if job.TenantID != s.tenantID {
		return fmt.Errorf("%w: job %s belongs to tenant %q, store is bound to %q",
			models.ErrInvariantViolation, job.ID, job.TenantID, s.tenantID)
	}
	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	err := s.db.Store().Get(jobID, &job)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("%w: job %s", models.ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListJobs returns jobs matching the options, newest first, with the
// total match count before pagination
func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, int, error) {
	jobs, err := s.findJobs(opts)
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	total := len(jobs)
	jobs = paginateJobs(jobs, opts)
	return jobs, total, nil
}

func paginateJobs(jobs []*models.Job, opts *interfaces.JobListOptions) []*models.Job {
	if opts == nil {
		return jobs
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(jobs) {
			return nil
		}
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs
}

// CountByStatus returns job counts grouped by status, honoring the
// non-status filters in opts
func (s *JobStorage) CountByStatus(ctx context.Context, opts *interfaces.JobListOptions) (map[models.JobStatus]int, error) {
	scoped := &interfaces.JobListOptions{}
	if opts != nil {
		scoped.Marketplace = opts.Marketplace
		scoped.BatchID = opts.BatchID
	}
	jobs, err := s.findJobs(scoped)
	if err != nil {
		return nil, err
	}

	counts := make(map[models.JobStatus]int)
	for _, job := range jobs {
		counts[job.Status]++
	}
	return counts, nil
}

// findJobs loads all jobs matching the filter options
func (s *JobStorage) findJobs(opts *interfaces.JobListOptions) ([]*models.Job, error) {
	query := &badgerhold.Query{}
	if opts != nil {
		switch {
		case opts.Status != "":
			query = badgerhold.Where("Status").Eq(opts.Status)
		case opts.Marketplace != "":
			query = badgerhold.Where("Marketplace").Eq(opts.Marketplace)
		case opts.BatchID != "":
			query = badgerhold.Where("BatchID").Eq(opts.BatchID)
		}
	}

	var jobs []*models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	if opts == nil {
		return jobs, nil
	}

	// Remaining filters applied in memory; BadgerHold chains on a single
	// field per And are awkward with our optional filter combinations.
	filtered := jobs[:0]
	for _, job := range jobs {
		if opts.Status != "" && job.Status != opts.Status {
			continue
		}
		if opts.Marketplace != "" && job.Marketplace != opts.Marketplace {
			continue
		}
		if opts.BatchID != "" && job.BatchID != opts.BatchID {
			continue
		}
		filtered = append(filtered, job)
	}
	return filtered, nil
}

// ClaimNext atomically claims the best visible pending job admitted by
// the accept predicate and transitions it to running. Priority order
// first, FIFO within a priority level.
func (s *JobStorage) ClaimNext(ctx context.Context, now time.Time, accept func(*models.Job) bool) (*models.Job, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var candidates []*models.Job
	err := s.db.Store().Find(&candidates, badgerhold.Where("Status").Eq(models.JobStatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}

	visible := candidates[:0]
	for _, job := range candidates {
		if job.NotBefore.After(now) {
			continue
		}
		if !job.ExpiresAt.After(now) {
			continue
		}
		visible = append(visible, job)
	}

	sort.Slice(visible, func(i, j int) bool {
		if visible[i].Priority != visible[j].Priority {
			return visible[i].Priority < visible[j].Priority
		}
		return visible[i].CreatedAt.Before(visible[j].CreatedAt)
	})

	for _, job := range visible {
		if accept != nil && !accept(job) {
			continue
		}
		job.MarkStarted()
		if err := s.db.Store().Upsert(job.ID, job); err != nil {
			return nil, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
		}
		return job, nil
	}
	return nil, nil
}

// ExpiredJobs returns pending or running jobs whose expiry passed.
// Paused jobs are frozen in place; their clock resumes on resume.
func (s *JobStorage) ExpiredJobs(ctx context.Context, now time.Time) ([]*models.Job, error) {
	var candidates []*models.Job
	err := s.db.Store().Find(&candidates,
		badgerhold.Where("Status").In(models.JobStatusPending, models.JobStatusRunning))
	if err != nil {
		return nil, fmt.Errorf("failed to query expirable jobs: %w", err)
	}

	expired := candidates[:0]
	for _, job := range candidates {
		if !job.ExpiresAt.After(now) {
			expired = append(expired, job)
		}
	}
	return expired, nil
}

// DeleteJob removes a job record
func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	err := s.db.Store().Delete(jobID, &models.Job{})
	if err == badgerhold.ErrNotFound {
		return fmt.Errorf("%w: job %s", models.ErrNotFound, jobID)
	}
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}
