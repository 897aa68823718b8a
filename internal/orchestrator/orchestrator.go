package orchestrator

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/matthiasrib29/StoFlow-sub015/internal/interfaces"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
	"github.com/matthiasrib29/StoFlow-sub015/internal/registry"
)

// Orchestrator walks a job's task plan in position order. Every task
// transition is committed before the next step starts, so a crash or
// retry resumes from durable state and completed tasks are never re-run.
type Orchestrator struct {
	registry *registry.Registry
	logger   arbor.ILogger
}

// NewOrchestrator creates an orchestrator over the action registry
func NewOrchestrator(reg *registry.Registry, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		logger:   logger,
	}
}

// PlanJob materializes and persists the task plan for a freshly created
// job, after validating its input against the handler contract
func (o *Orchestrator) PlanJob(ctx context.Context, store interfaces.TenantStore, job *models.Job) ([]*models.Task, error) {
	handler, err := o.registry.Resolve(job.Marketplace, job.ActionCode)
	if err != nil {
		return nil, err
	}
	if err := handler.ValidateInput(job); err != nil {
		return nil, err
	}

	tasks := handler.BuildTasks(job)
	if err := store.Tasks().SaveTasks(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ExecuteJob runs the job's remaining tasks in order. On return the job
// has been transitioned and saved: completed, paused, cancelled, or left
// running with the failing task's error returned for the caller to
// classify. Control flags are honored between tasks only, a task in
// flight always finishes its step.
func (o *Orchestrator) ExecuteJob(ctx context.Context, store interfaces.TenantStore, job *models.Job) error {
	handler, err := o.registry.Resolve(job.Marketplace, job.ActionCode)
	if err != nil {
		return err
	}

	tasks, err := store.Tasks().GetTasksForJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if len(tasks) != len(handler.Tasks) {
		return fmt.Errorf("%w: job %s has %d tasks, handler %s/%s declares %d",
			models.ErrInvariantViolation, job.ID, len(tasks), job.Marketplace, job.ActionCode, len(handler.Tasks))
	}

	log := o.logger.WithCorrelationId(job.ID)

	for i, task := range tasks {
		if stopped, err := o.checkControlFlags(ctx, store, job, tasks[i:]); err != nil {
			return err
		} else if stopped {
			return nil
		}

		if task.IsComplete() {
			log.Debug().
				Int("position", task.Position).
				Str("status", string(task.Status)).
				Msg("Skipping completed task")
			continue
		}

		spec := handler.Tasks[task.Position-1]
		if err := o.executeTask(ctx, store, job, task, spec); err != nil {
			return err
		}
	}

	job.MarkCompleted()
	return store.Jobs().SaveJob(ctx, job)
}

// executeTask runs one task to a committed terminal state. Panics in
// handler code are captured and recorded as task failures.
func (o *Orchestrator) executeTask(ctx context.Context, store interfaces.TenantStore, job *models.Job, task *models.Task, spec registry.TaskSpec) error {
	task.MarkProcessing()
	if err := store.Tasks().SaveTask(ctx, task); err != nil {
		return err
	}

	log := o.logger.WithCorrelationId(job.ID)
	log.Debug().
		Int("position", task.Position).
		Str("description", task.Description).
		Str("type", string(task.Type)).
		Msg("Executing task")

	result, runErr := o.runStep(ctx, spec, job, task)
	if runErr != nil {
		task.MarkFailed(runErr.Error(), models.IsTimeout(runErr))
		if err := store.Tasks().SaveTask(ctx, task); err != nil {
			return err
		}
		log.Warn().
			Int("position", task.Position).
			Str("error", runErr.Error()).
			Msg("Task failed")
		return runErr
	}

	task.MarkSuccess(result)
	if err := store.Tasks().SaveTask(ctx, task); err != nil {
		return err
	}

	if len(result) > 0 {
		job.MergeResult(result)
		if err := store.Jobs().SaveJob(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runStep(ctx context.Context, spec registry.TaskSpec, job *models.Job, task *models.Task) (result map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return spec.Run(ctx, job, task)
}

// checkControlFlags reloads the job and applies a pending cancel or
// pause request. remaining includes the task about to run. Returns true
// when execution must stop here.
func (o *Orchestrator) checkControlFlags(ctx context.Context, store interfaces.TenantStore, job *models.Job, remaining []*models.Task) (bool, error) {
	current, err := store.Jobs().GetJob(ctx, job.ID)
	if err != nil {
		return false, err
	}
	job.CancelRequested = current.CancelRequested
	job.PauseRequested = current.PauseRequested

	if job.CancelRequested {
		for _, task := range remaining {
			if task.IsComplete() {
				continue
			}
			task.MarkCancelled()
			if err := store.Tasks().SaveTask(ctx, task); err != nil {
				return false, err
			}
		}
		job.MarkCancelled()
		if err := store.Jobs().SaveJob(ctx, job); err != nil {
			return false, err
		}
		o.logger.WithCorrelationId(job.ID).Info().Msg("Job cancelled between tasks")
		return true, nil
	}

	if job.PauseRequested {
		job.PauseRequested = false
		job.Status = models.JobStatusPaused
		if err := store.Jobs().SaveJob(ctx, job); err != nil {
			return false, err
		}
		o.logger.WithCorrelationId(job.ID).Info().Msg("Job paused between tasks")
		return true, nil
	}
	return false, nil
}
