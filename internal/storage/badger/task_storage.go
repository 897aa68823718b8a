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

// TaskStorage implements task persistence over a tenant's Badger store
type TaskStorage struct {
	db       *BadgerDB
	tenantID string
	logger   arbor.ILogger
}

// NewTaskStorage creates a task storage bound to one tenant's store
func NewTaskStorage(db *BadgerDB, tenantID string, logger arbor.ILogger) *TaskStorage {
	return &TaskStorage{
		db:       db,
		tenantID: tenantID,
		logger:   logger,
	}
}

// SaveTask persists a single task
func (s *TaskStorage) SaveTask(ctx context.Context, task *models.Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", models.ErrInvalidInput)
	}
	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// SaveTasks persists a task list, typically a job's full plan at creation
func (s *TaskStorage) SaveTasks(ctx context.Context, tasks []*models.Task) error {
	for _, task := range tasks {
		if err := s.SaveTask(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

// GetTask retrieves a task by ID
func (s *TaskStorage) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	var task models.Task
	err := s.db.Store().Get(taskID, &task)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("%w: task %s", models.ErrNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// GetTasksForJob returns the job's tasks in execution order
func (s *TaskStorage) GetTasksForJob(ctx context.Context, jobID string) ([]*models.Task, error) {
	var tasks []*models.Task
	if err := s.db.Store().Find(&tasks, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return nil, fmt.Errorf("failed to query tasks for job %s: %w", jobID, err)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].Position < tasks[j].Position
	})
	return tasks, nil
}

// ListTasks returns tasks matching the options with the total match count
func (s *TaskStorage) ListTasks(ctx context.Context, opts *interfaces.TaskListOptions) ([]*models.Task, int, error) {
	tasks, err := s.findTasks(opts)
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].JobID != tasks[j].JobID {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].Position < tasks[j].Position
	})

	total := len(tasks)
	if opts != nil {
		if opts.Offset > 0 {
			if opts.Offset >= len(tasks) {
				tasks = nil
			} else {
				tasks = tasks[opts.Offset:]
			}
		}
		if opts.Limit > 0 && opts.Limit < len(tasks) {
			tasks = tasks[:opts.Limit]
		}
	}
	return tasks, total, nil
}

func (s *TaskStorage) findTasks(opts *interfaces.TaskListOptions) ([]*models.Task, error) {
	query := &badgerhold.Query{}
	if opts != nil && opts.JobID != "" {
		query = badgerhold.Where("JobID").Eq(opts.JobID)
	}

	var tasks []*models.Task
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	if opts == nil {
		return tasks, nil
	}
	filtered := tasks[:0]
	for _, task := range tasks {
		if opts.Status != "" && task.Status != opts.Status {
			continue
		}
		if opts.Type != "" && task.Type != opts.Type {
			continue
		}
		filtered = append(filtered, task)
	}
	return filtered, nil
}

// CountByStatus returns task counts grouped by status
func (s *TaskStorage) CountByStatus(ctx context.Context, opts *interfaces.TaskListOptions) (map[models.TaskStatus]int, error) {
	scoped := &interfaces.TaskListOptions{}
	if opts != nil {
		scoped.JobID = opts.JobID
		scoped.Type = opts.Type
	}
	tasks, err := s.findTasks(scoped)
	if err != nil {
		return nil, err
	}

	counts := make(map[models.TaskStatus]int)
	for _, task := range tasks {
		counts[task.Status]++
	}
	return counts, nil
}

// DeleteTasksForJob removes all tasks belonging to a job
func (s *TaskStorage) DeleteTasksForJob(ctx context.Context, jobID string) error {
	err := s.db.Store().DeleteMatching(&models.Task{}, badgerhold.Where("JobID").Eq(jobID))
	if err != nil {
		return fmt.Errorf("failed to delete tasks for job %s: %w", jobID, err)
	}
	return nil
}
