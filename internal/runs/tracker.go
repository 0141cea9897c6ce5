package runs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/channelport/channelport-api/internal/models"
	"github.com/channelport/channelport-api/internal/repository"
)

// Notifier receives run lifecycle events. Implemented by the notification
// service; nil-safe via the noop default.
type Notifier interface {
	NotifyRunCompleted(ctx context.Context, run models.TaskRun)
	NotifyRunFailed(ctx context.Context, run models.TaskRun)
}

type noopNotifier struct{}

func (noopNotifier) NotifyRunCompleted(context.Context, models.TaskRun) {}
func (noopNotifier) NotifyRunFailed(context.Context, models.TaskRun)   {}

// Tracker drives the run state machine:
// pending -> queued -> running -> completed | failed.
// Chunk results from concurrent workers fold into the run through the
// repository's atomic increments; the tracker closes the run when the
// last chunk reports in.
type Tracker struct {
	repo     repository.RunRepository
	notifier Notifier
	logger   zerolog.Logger
}

func NewTracker(repo repository.RunRepository, notifier Notifier, logger zerolog.Logger) *Tracker {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Tracker{
		repo:     repo,
		notifier: notifier,
		logger:   logger.With().Str("component", "run_tracker").Logger(),
	}
}

// Start creates a pending run for the task.
func (t *Tracker) Start(ctx context.Context, tenantID, taskID string) (models.TaskRun, error) {
	run, err := t.repo.Create(tenantID, taskID)
	if err != nil {
		return models.TaskRun{}, err
	}
	t.logger.Info().Str("run_id", run.ID).Str("task_id", taskID).Msg("run created")
	return run, nil
}

// MarkQueued records that the run was handed to the workflow engine.
func (t *Tracker) MarkQueued(ctx context.Context, tenantID, runID string) error {
	if err := t.repo.MarkQueued(tenantID, runID); err != nil {
		return err
	}
	t.appendLog(tenantID, runID, LogEntry(models.LogLevelInfo, "run queued for execution"))
	return nil
}

// Begin moves the run to running with its total record count and the
// number of chunks it was split into. A zero-chunk run (empty source)
// completes immediately.
func (t *Tracker) Begin(ctx context.Context, tenantID, runID string, total int64, chunks int) error {
	if err := t.repo.MarkRunning(tenantID, runID, total, chunks); err != nil {
		return err
	}
	t.appendLog(tenantID, runID, LogEntry(models.LogLevelInfo, "starting import: %d records in %d chunks", total, chunks))
	if chunks == 0 {
		_, err := t.complete(ctx, tenantID, runID, models.TaskRun{})
		return err
	}
	return nil
}

func (t *Tracker) appendLog(tenantID, runID string, entry models.RunLogEntry) {
	if err := t.repo.AppendLog(tenantID, runID, []models.RunLogEntry{entry}); err != nil {
		t.logger.Warn().Err(err).Str("run_id", runID).Msg("failed to append run log entry")
	}
}

// ApplyChunkResult folds one chunk's outcome into the run. When the last
// outstanding chunk reports, the run transitions to completed. Partial
// record failures never fail the run; they only show in failure_count.
func (t *Tracker) ApplyChunkResult(ctx context.Context, tenantID, runID string, result repository.ChunkResult) (models.TaskRun, error) {
	run, err := t.repo.ApplyChunkResult(tenantID, runID, result)
	if err != nil {
		return models.TaskRun{}, err
	}

	if run.Meta.PendingChunks == 0 && run.Status == models.RunStatusRunning {
		return t.complete(ctx, tenantID, runID, run)
	}
	return run, nil
}

func (t *Tracker) complete(ctx context.Context, tenantID, runID string, last models.TaskRun) (models.TaskRun, error) {
	message := fmt.Sprintf("processed %d records (%d succeeded, %d failed, %d skipped)",
		last.ProcessedCount, last.SuccessCount, last.FailureCount, last.SkippedCount)

	run, err := t.repo.Finish(tenantID, runID, models.RunStatusCompleted, message,
		LogEntry(models.LogLevelInfo, "run completed: %s", message))
	if err == repository.ErrRunTerminal {
		// Another chunk worker won the race to close the run.
		return t.repo.Get(tenantID, runID)
	}
	if err != nil {
		return models.TaskRun{}, err
	}

	t.logger.Info().
		Str("run_id", runID).
		Int64("processed", run.ProcessedCount).
		Int64("failed", run.FailureCount).
		Msg("run completed")
	t.notifier.NotifyRunCompleted(ctx, run)
	return run, nil
}

// Fail moves the run to failed with the given message. Failing an already
// terminal run is a no-op.
func (t *Tracker) Fail(ctx context.Context, tenantID, runID, message string) (models.TaskRun, error) {
	run, err := t.repo.Finish(tenantID, runID, models.RunStatusFailed, message,
		LogEntry(models.LogLevelError, "run failed: %s", message))
	if err == repository.ErrRunTerminal {
		return t.repo.Get(tenantID, runID)
	}
	if err != nil {
		return models.TaskRun{}, err
	}

	t.logger.Warn().Str("run_id", runID).Str("message", message).Msg("run failed")
	t.notifier.NotifyRunFailed(ctx, run)
	return run, nil
}

// Cancel fails a non-terminal run on user request. Cancelling a terminal
// run returns ErrRunTerminal.
func (t *Tracker) Cancel(ctx context.Context, tenantID, runID string) (models.TaskRun, error) {
	run, err := t.repo.Finish(tenantID, runID, models.RunStatusFailed, "cancelled by user",
		LogEntry(models.LogLevelWarning, "run cancelled by user"))
	if err != nil {
		return models.TaskRun{}, err
	}

	t.logger.Info().Str("run_id", runID).Msg("run cancelled")
	t.notifier.NotifyRunFailed(ctx, run)
	return run, nil
}

// LogEntry builds a timestamped run log line.
func LogEntry(level models.LogLevel, format string, args ...interface{}) models.RunLogEntry {
	return models.RunLogEntry{
		Time:    time.Now().UTC(),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	}
}
