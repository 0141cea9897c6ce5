package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/channelport/channelport-api/internal/temporal"
	"github.com/channelport/channelport-api/internal/temporal/activities"
)

// ImportWorkflow drives one task run: prepare the source, fan chunk
// activities out in parallel, and let the run tracker close the run when
// the last chunk reports. Infrastructure failures (unreachable source,
// repository errors) fail the run; per-record failures do not.
func ImportWorkflow(ctx workflow.Context, params temporal.ImportParams) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		HeartbeatTimeout:    30 * time.Second,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting import workflow", "TenantID", params.TenantID, "RunID", params.RunID)

	// Proxy struct; the implementation lives on the worker.
	var a *activities.Activities

	err := workflow.ExecuteActivity(ctx, a.MarkRunQueuedActivity, params).Get(ctx, nil)
	if err != nil {
		logger.Error("Failed to mark run queued.", "error", err)
		return err
	}

	var prepared temporal.PrepareImportResult
	defer func() {
		if prepared.SourcePath != "" && prepared.Temporary {
			// Cleanup runs on a disconnected context so the temp file goes
			// away even when the workflow is cancelled.
			cleanupCtx, _ := workflow.NewDisconnectedContext(ctx)
			if err := workflow.ExecuteActivity(cleanupCtx, a.CleanupSourceActivity, prepared.SourcePath).Get(cleanupCtx, nil); err != nil {
				logger.Error("Failed to clean up source file.", "path", prepared.SourcePath, "error", err)
			}
		}
	}()

	err = workflow.ExecuteActivity(ctx, a.PrepareImportActivity, params).Get(ctx, &prepared)
	if err != nil {
		msg := fmt.Sprintf("failed to prepare import: %v", err)
		workflow.ExecuteActivity(ctx, a.FailRunActivity, params, msg).Get(ctx, nil)
		logger.Error("Import preparation failed.", "error", err)
		return err
	}

	err = workflow.ExecuteActivity(ctx, a.BeginRunActivity, params, prepared.TotalCount, len(prepared.Chunks)).Get(ctx, nil)
	if err != nil {
		logger.Error("Failed to move run to running.", "error", err)
		return err
	}

	// Schedule every chunk before collecting; chunks execute in parallel
	// up to the worker's activity slots.
	futures := make([]workflow.Future, len(prepared.Chunks))
	for i, chunk := range prepared.Chunks {
		futures[i] = workflow.ExecuteActivity(ctx, a.ProcessChunkActivity, temporal.ChunkParams{
			TenantID:    params.TenantID,
			TaskID:      params.TaskID,
			RunID:       params.RunID,
			SourcePath:  prepared.SourcePath,
			DriverFetch: prepared.DriverFetch,
			Chunk:       chunk,
		})
	}

	var firstErr error
	for i, future := range futures {
		if err := future.Get(ctx, nil); err != nil {
			logger.Error("Chunk processing failed.", "chunk", i, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		msg := fmt.Sprintf("chunk processing failed: %v", firstErr)
		workflow.ExecuteActivity(ctx, a.FailRunActivity, params, msg).Get(ctx, nil)
		return firstErr
	}

	logger.Info("Import workflow completed.", "RunID", params.RunID)
	return nil
}
