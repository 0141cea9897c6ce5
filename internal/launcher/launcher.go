package launcher

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"

	"github.com/channelport/channelport-api/internal/models"
	"github.com/channelport/channelport-api/internal/repository"
	"github.com/channelport/channelport-api/internal/runs"
	"github.com/channelport/channelport-api/internal/temporal"
	"github.com/channelport/channelport-api/internal/temporal/workflows"
)

// RunNotifier announces launched runs. Implemented by the notification
// service; nil-safe via the noop default.
type RunNotifier interface {
	NotifyRunStarted(ctx context.Context, run models.TaskRun, taskName string)
}

type noopNotifier struct{}

func (noopNotifier) NotifyRunStarted(context.Context, models.TaskRun, string) {}

// Launcher creates a run and hands it to the workflow engine. Both the
// API (manual runs) and the scheduler go through here so a run always
// exists before its workflow starts.
type Launcher struct {
	tasks    repository.TaskRepository
	tracker  *runs.Tracker
	temporal client.Client
	notifier RunNotifier
	logger   zerolog.Logger
}

func New(tasks repository.TaskRepository, tracker *runs.Tracker, temporalClient client.Client, notifier RunNotifier, logger zerolog.Logger) *Launcher {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Launcher{
		tasks:    tasks,
		tracker:  tracker,
		temporal: temporalClient,
		notifier: notifier,
		logger:   logger.With().Str("component", "launcher").Logger(),
	}
}

// Launch creates a pending run for the task and starts its import
// workflow. The task is re-fetched first so a task deleted between
// scheduling and firing never launches. If the workflow cannot be
// started the run is failed immediately so it never sits pending
// forever.
func (l *Launcher) Launch(ctx context.Context, tenantID, taskID string) (models.TaskRun, error) {
	task, err := l.tasks.Get(tenantID, taskID)
	if err != nil {
		return models.TaskRun{}, errors.Wrap(err, "fetch task")
	}

	run, err := l.tracker.Start(ctx, tenantID, taskID)
	if err != nil {
		return models.TaskRun{}, errors.Wrap(err, "create run")
	}

	opts := client.StartWorkflowOptions{
		ID:        temporal.ImportWorkflowIDPrefix + run.ID,
		TaskQueue: temporal.TaskQueueName,
	}
	params := temporal.ImportParams{
		TenantID: tenantID,
		TaskID:   taskID,
		RunID:    run.ID,
	}

	we, err := l.temporal.ExecuteWorkflow(ctx, opts, workflows.ImportWorkflow, params)
	if err != nil {
		if _, failErr := l.tracker.Fail(ctx, tenantID, run.ID, "failed to start workflow: "+err.Error()); failErr != nil {
			l.logger.Error().Err(failErr).Str("run_id", run.ID).Msg("failed to fail orphaned run")
		}
		return models.TaskRun{}, errors.Wrap(err, "start import workflow")
	}

	l.logger.Info().
		Str("run_id", run.ID).
		Str("workflow_id", we.GetID()).
		Msg("import workflow started")
	l.notifier.NotifyRunStarted(ctx, run, task.Name)
	return run, nil
}

// CancelWorkflow requests cancellation of a run's workflow so queued
// chunk activities stop occupying worker slots. Best effort: callers
// mark the run terminal before this.
func (l *Launcher) CancelWorkflow(ctx context.Context, runID string) error {
	return l.temporal.CancelWorkflow(ctx, temporal.ImportWorkflowIDPrefix+runID, "")
}
