package runs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelport/channelport-api/internal/models"
	"github.com/channelport/channelport-api/internal/repository"
)

// fakeRunStore is an in-memory RunRepository with the same transition
// guards and atomic-fold semantics as the SQL implementation.
type fakeRunStore struct {
	mu   sync.Mutex
	runs map[string]*models.TaskRun
	next int
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: map[string]*models.TaskRun{}}
}

func (s *fakeRunStore) Create(tenantID, taskID string) (models.TaskRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	run := models.TaskRun{
		ID:       fmt.Sprintf("run-%d", s.next),
		TenantID: tenantID,
		TaskID:   taskID,
		Status:   models.RunStatusPending,
	}
	s.runs[run.ID] = &run
	copied := run
	return copied, nil
}

func (s *fakeRunStore) Get(tenantID, id string) (models.TaskRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.TenantID != tenantID {
		return models.TaskRun{}, repository.ErrNotFound
	}
	return *run, nil
}

func (s *fakeRunStore) List(tenantID string, limit, offset int) ([]models.TaskRun, error) {
	return nil, nil
}

func (s *fakeRunStore) ListByTask(tenantID, taskID string, limit, offset int) ([]models.TaskRun, error) {
	return nil, nil
}

func (s *fakeRunStore) MarkQueued(tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.Status != models.RunStatusPending {
		return repository.ErrNotFound
	}
	run.Status = models.RunStatusQueued
	return nil
}

func (s *fakeRunStore) MarkRunning(tenantID, id string, total int64, pendingChunks int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if run.Status != models.RunStatusPending && run.Status != models.RunStatusQueued {
		return repository.ErrNotFound
	}
	now := time.Now()
	run.Status = models.RunStatusRunning
	run.TotalCount = total
	run.Meta.PendingChunks = pendingChunks
	run.StartedAt = &now
	return nil
}

func (s *fakeRunStore) ApplyChunkResult(tenantID, id string, result repository.ChunkResult) (models.TaskRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return models.TaskRun{}, repository.ErrNotFound
	}
	if run.Status.IsTerminal() {
		return models.TaskRun{}, repository.ErrRunTerminal
	}
	run.ProcessedCount += result.Processed
	run.SuccessCount += result.Succeeded
	run.FailureCount += result.Failed
	run.SkippedCount += result.Skipped
	run.Meta.AddSamples(result.Samples)
	run.Meta.AddErrors(result.Errors)
	if run.Meta.PendingChunks > 0 {
		run.Meta.PendingChunks--
	}
	run.Log = append(run.Log, result.Log...)
	return *run, nil
}

func (s *fakeRunStore) Finish(tenantID, id string, status models.RunStatus, message string, entries ...models.RunLogEntry) (models.TaskRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return models.TaskRun{}, repository.ErrNotFound
	}
	if run.Status.IsTerminal() {
		return models.TaskRun{}, repository.ErrRunTerminal
	}
	now := time.Now()
	run.Status = status
	if message != "" {
		run.Message = &message
	}
	run.Log = append(run.Log, entries...)
	run.FinishedAt = &now
	return *run, nil
}

func (s *fakeRunStore) AppendLog(tenantID, id string, entries []models.RunLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return repository.ErrNotFound
	}
	run.Log = append(run.Log, entries...)
	return nil
}

func (s *fakeRunStore) Stats(tenantID string, days int) (models.RunStat, error) {
	return models.RunStat{}, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []models.TaskRun
	failed    []models.TaskRun
}

func (n *recordingNotifier) NotifyRunCompleted(_ context.Context, run models.TaskRun) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, run)
}

func (n *recordingNotifier) NotifyRunFailed(_ context.Context, run models.TaskRun) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, run)
}

func newTestTracker(t *testing.T) (*Tracker, *fakeRunStore, *recordingNotifier) {
	t.Helper()
	store := newFakeRunStore()
	notifier := &recordingNotifier{}
	return NewTracker(store, notifier, zerolog.Nop()), store, notifier
}

func startRunningRun(t *testing.T, tracker *Tracker, total int64, chunks int) models.TaskRun {
	t.Helper()
	ctx := context.Background()
	run, err := tracker.Start(ctx, "tenant-1", "task-1")
	require.NoError(t, err)
	require.NoError(t, tracker.MarkQueued(ctx, "tenant-1", run.ID))
	require.NoError(t, tracker.Begin(ctx, "tenant-1", run.ID, total, chunks))
	return run
}

func TestRunCompletesWhenLastChunkReports(t *testing.T) {
	tracker, store, notifier := newTestTracker(t)
	ctx := context.Background()
	run := startRunningRun(t, tracker, 100, 2)

	mid, err := tracker.ApplyChunkResult(ctx, "tenant-1", run.ID, repository.ChunkResult{
		Processed: 50, Succeeded: 48, Failed: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, mid.Status)
	assert.Equal(t, 1, mid.Meta.PendingChunks)

	final, err := tracker.ApplyChunkResult(ctx, "tenant-1", run.ID, repository.ChunkResult{
		Processed: 50, Succeeded: 48, Failed: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, final.Status)
	assert.Equal(t, int64(100), final.ProcessedCount)
	assert.Equal(t, int64(96), final.SuccessCount)
	assert.Equal(t, int64(4), final.FailureCount)
	require.NotNil(t, final.Message)
	assert.Contains(t, *final.Message, "100 records")

	stored, err := store.Get("tenant-1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.Len(t, notifier.completed, 1)
	assert.Empty(t, notifier.failed)
}

func TestRecordFailuresDoNotFailRun(t *testing.T) {
	tracker, _, notifier := newTestTracker(t)
	run := startRunningRun(t, tracker, 10, 1)

	final, err := tracker.ApplyChunkResult(context.Background(), "tenant-1", run.ID, repository.ChunkResult{
		Processed: 10, Failed: 10,
		Errors: []string{"row 1 bad", "row 2 bad"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, final.Status)
	assert.Equal(t, int64(10), final.FailureCount)
	assert.Len(t, notifier.completed, 1)
}

func TestConcurrentChunksAllCounted(t *testing.T) {
	tracker, _, notifier := newTestTracker(t)
	ctx := context.Background()
	const chunks = 20
	run := startRunningRun(t, tracker, chunks*10, chunks)

	var wg sync.WaitGroup
	for i := 0; i < chunks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.ApplyChunkResult(ctx, "tenant-1", run.ID, repository.ChunkResult{
				Processed: 10, Succeeded: 9, Failed: 1,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := tracker.ApplyChunkResult(ctx, "tenant-1", run.ID, repository.ChunkResult{})
	assert.ErrorIs(t, err, repository.ErrRunTerminal)

	final, err = tracker.Fail(ctx, "tenant-1", run.ID, "should be ignored")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, final.Status)
	assert.Equal(t, int64(chunks*10), final.ProcessedCount)
	assert.Equal(t, int64(chunks), final.FailureCount)
	assert.Len(t, notifier.completed, 1)
	assert.Empty(t, notifier.failed)
}

func TestSamplesAndErrorsBounded(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	ctx := context.Background()
	run := startRunningRun(t, tracker, 100, 4)

	var final models.TaskRun
	for i := 0; i < 4; i++ {
		var err error
		final, err = tracker.ApplyChunkResult(ctx, "tenant-1", run.ID, repository.ChunkResult{
			Processed: 25,
			Samples: []map[string]string{
				{"sku": fmt.Sprintf("A-%d", i*2)},
				{"sku": fmt.Sprintf("A-%d", i*2+1)},
			},
			Errors: []string{
				fmt.Sprintf("err %d", i*2),
				fmt.Sprintf("err %d", i*2+1),
			},
		})
		require.NoError(t, err)
	}

	assert.Len(t, final.Meta.Samples, models.MaxRunSamples)
	assert.Len(t, final.Meta.Errors, models.MaxRunErrors)
	// Oldest entries survive; overflow is dropped, not evicted.
	assert.Equal(t, "A-0", final.Meta.Samples[0]["sku"])
	assert.Equal(t, "err 0", final.Meta.Errors[0])
}

func TestEmptySourceCompletesImmediately(t *testing.T) {
	tracker, store, notifier := newTestTracker(t)
	ctx := context.Background()

	run, err := tracker.Start(ctx, "tenant-1", "task-1")
	require.NoError(t, err)
	require.NoError(t, tracker.Begin(ctx, "tenant-1", run.ID, 0, 0))

	stored, err := store.Get("tenant-1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.Len(t, notifier.completed, 1)
}

func TestFailNotifies(t *testing.T) {
	tracker, _, notifier := newTestTracker(t)
	run := startRunningRun(t, tracker, 10, 1)

	failed, err := tracker.Fail(context.Background(), "tenant-1", run.ID, "source unavailable")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, failed.Status)
	require.NotNil(t, failed.Message)
	assert.Equal(t, "source unavailable", *failed.Message)
	assert.Len(t, notifier.failed, 1)
}

func TestLifecycleWritesRunLog(t *testing.T) {
	tracker, store, _ := newTestTracker(t)
	ctx := context.Background()
	run := startRunningRun(t, tracker, 10, 1)

	queued, err := store.Get("tenant-1", run.ID)
	require.NoError(t, err)
	require.NotEmpty(t, queued.Log)
	assert.Equal(t, models.LogLevelInfo, queued.Log[0].Level)
	assert.Contains(t, queued.Log[0].Message, "queued")
	assert.Contains(t, queued.Log[1].Message, "10 records in 1 chunks")

	final, err := tracker.ApplyChunkResult(ctx, "tenant-1", run.ID, repository.ChunkResult{Processed: 10, Succeeded: 10})
	require.NoError(t, err)
	last := final.Log[len(final.Log)-1]
	assert.Equal(t, models.LogLevelInfo, last.Level)
	assert.Contains(t, last.Message, "run completed")
}

func TestFailWritesErrorLogEntry(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	run := startRunningRun(t, tracker, 10, 1)

	failed, err := tracker.Fail(context.Background(), "tenant-1", run.ID, "source unavailable")
	require.NoError(t, err)

	// The failure reason lands both in the message field and in the log.
	require.NotNil(t, failed.Message)
	assert.Equal(t, "source unavailable", *failed.Message)
	require.NotEmpty(t, failed.Log)
	last := failed.Log[len(failed.Log)-1]
	assert.Equal(t, models.LogLevelError, last.Level)
	assert.Contains(t, last.Message, "source unavailable")
}

func TestCancelRejectsTerminalRun(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	ctx := context.Background()
	run := startRunningRun(t, tracker, 10, 1)

	cancelled, err := tracker.Cancel(ctx, "tenant-1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, cancelled.Status)
	require.NotNil(t, cancelled.Message)
	assert.Equal(t, "cancelled by user", *cancelled.Message)

	_, err = tracker.Cancel(ctx, "tenant-1", run.ID)
	assert.ErrorIs(t, err, repository.ErrRunTerminal)
}
