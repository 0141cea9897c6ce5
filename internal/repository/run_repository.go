package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/channelport/channelport-api/internal/models"
)

// ErrRunTerminal is returned when an update targets a run already in a
// terminal state.
var ErrRunTerminal = errors.New("run is in a terminal state")

// ChunkResult carries one chunk's contribution to a run. Counters are
// deltas, applied atomically on top of whatever other chunks have
// already reported.
type ChunkResult struct {
	Processed int64
	Succeeded int64
	Failed    int64
	Skipped   int64
	Samples   []map[string]string
	Errors    []string
	Log       []models.RunLogEntry
}

type RunRepository interface {
	Create(tenantID, taskID string) (models.TaskRun, error)
	Get(tenantID, id string) (models.TaskRun, error)
	List(tenantID string, limit, offset int) ([]models.TaskRun, error)
	ListByTask(tenantID, taskID string, limit, offset int) ([]models.TaskRun, error)
	// MarkQueued moves pending -> queued.
	MarkQueued(tenantID, id string) error
	// MarkRunning moves queued -> running, recording totals and the
	// number of chunks the run was split into.
	MarkRunning(tenantID, id string, totalCount int64, pendingChunks int) error
	// ApplyChunkResult folds one chunk's counters and bounded
	// samples/errors into the run, decrements pending_chunks, and returns
	// the updated run. Counter increments are issued as relative SET
	// x = x + delta updates so concurrent chunks never lose counts.
	ApplyChunkResult(tenantID, id string, result ChunkResult) (models.TaskRun, error)
	// Finish moves the run to a terminal state, appending any given log
	// entries in the same update. Updating an already terminal run
	// returns ErrRunTerminal.
	Finish(tenantID, id string, status models.RunStatus, message string, entries ...models.RunLogEntry) (models.TaskRun, error)
	AppendLog(tenantID, id string, entries []models.RunLogEntry) error
	Stats(tenantID string, days int) (models.RunStat, error)
}

type runRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) RunRepository {
	return &runRepository{db: db}
}

const runColumns = `id, tenant_id, task_id, status, total_count, processed_count,
	success_count, failure_count, skipped_count, message, log, meta,
	started_at, finished_at, created_at, updated_at`

func (r *runRepository) Create(tenantID, taskID string) (models.TaskRun, error) {
	// Pinning the insert on the tasks table rejects cross-tenant task ids.
	const query = `
		INSERT INTO tenant.task_runs (tenant_id, task_id, status, log, meta)
		SELECT $1, t.id, 'pending', '[]'::jsonb, '{"pending_chunks": 0}'::jsonb
		FROM tenant.tasks t
		WHERE t.id = $2 AND t.tenant_id = $1 AND t.deleted_at IS NULL
		RETURNING id, created_at, updated_at
	`
	run := models.TaskRun{
		TenantID: tenantID,
		TaskID:   taskID,
		Status:   models.RunStatusPending,
		Log:      []models.RunLogEntry{},
	}
	err := r.db.QueryRow(query, tenantID, taskID).Scan(&run.ID, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.TaskRun{}, ErrNotFound
	}
	if err != nil {
		return models.TaskRun{}, err
	}
	return run, nil
}

func (r *runRepository) Get(tenantID, id string) (models.TaskRun, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM tenant.task_runs
		WHERE id = $1 AND tenant_id = $2
	`, runColumns)

	run, err := scanRun(r.db.QueryRow(query, id, tenantID))
	if err == sql.ErrNoRows {
		return models.TaskRun{}, ErrNotFound
	}
	return run, err
}

func (r *runRepository) List(tenantID string, limit, offset int) ([]models.TaskRun, error) {
	return r.list(tenantID, "", limit, offset)
}

func (r *runRepository) ListByTask(tenantID, taskID string, limit, offset int) ([]models.TaskRun, error) {
	return r.list(tenantID, taskID, limit, offset)
}

func (r *runRepository) list(tenantID, taskID string, limit, offset int) ([]models.TaskRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM tenant.task_runs
		WHERE tenant_id = $1 AND ($2 = '' OR task_id::text = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, runColumns)

	rows, err := r.db.Query(query, tenantID, taskID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]models.TaskRun, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *runRepository) MarkQueued(tenantID, id string) error {
	const query = `
		UPDATE tenant.task_runs
		SET status = 'queued', updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status = 'pending'
	`
	res, err := r.db.Exec(query, id, tenantID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *runRepository) MarkRunning(tenantID, id string, totalCount int64, pendingChunks int) error {
	const query = `
		UPDATE tenant.task_runs
		SET status = 'running',
		    total_count = $1,
		    meta = jsonb_set(meta, '{pending_chunks}', to_jsonb($2::int)),
		    started_at = NOW(),
		    updated_at = NOW()
		WHERE id = $3 AND tenant_id = $4 AND status IN ('pending', 'queued')
	`
	res, err := r.db.Exec(query, totalCount, pendingChunks, id, tenantID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *runRepository) ApplyChunkResult(tenantID, id string, result ChunkResult) (models.TaskRun, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return models.TaskRun{}, err
	}
	defer tx.Rollback()

	// The row lock serializes the meta read-modify-write; the counter
	// increments are relative so they compose across chunks either way.
	lockQuery := fmt.Sprintf(`
		SELECT %s
		FROM tenant.task_runs
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, runColumns)

	run, err := scanRun(tx.QueryRow(lockQuery, id, tenantID))
	if err == sql.ErrNoRows {
		return models.TaskRun{}, ErrNotFound
	}
	if err != nil {
		return models.TaskRun{}, err
	}
	if run.Status.IsTerminal() {
		return models.TaskRun{}, ErrRunTerminal
	}

	run.Meta.AddSamples(result.Samples)
	run.Meta.AddErrors(result.Errors)
	if run.Meta.PendingChunks > 0 {
		run.Meta.PendingChunks--
	}
	run.Log = append(run.Log, result.Log...)

	metaRaw, err := json.Marshal(run.Meta)
	if err != nil {
		return models.TaskRun{}, fmt.Errorf("marshal meta: %w", err)
	}
	logRaw, err := json.Marshal(run.Log)
	if err != nil {
		return models.TaskRun{}, fmt.Errorf("marshal log: %w", err)
	}

	const update = `
		UPDATE tenant.task_runs
		SET processed_count = processed_count + $1,
		    success_count = success_count + $2,
		    failure_count = failure_count + $3,
		    skipped_count = skipped_count + $4,
		    meta = $5,
		    log = $6,
		    updated_at = NOW()
		WHERE id = $7 AND tenant_id = $8
		RETURNING processed_count, success_count, failure_count, skipped_count, updated_at
	`
	err = tx.QueryRow(update,
		result.Processed, result.Succeeded, result.Failed, result.Skipped,
		metaRaw, logRaw, id, tenantID,
	).Scan(&run.ProcessedCount, &run.SuccessCount, &run.FailureCount, &run.SkippedCount, &run.UpdatedAt)
	if err != nil {
		return models.TaskRun{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.TaskRun{}, err
	}
	return run, nil
}

func (r *runRepository) Finish(tenantID, id string, status models.RunStatus, message string, entries ...models.RunLogEntry) (models.TaskRun, error) {
	if !status.IsTerminal() {
		return models.TaskRun{}, fmt.Errorf("invalid terminal status %q", status)
	}

	logRaw := []byte("[]")
	if len(entries) > 0 {
		var err error
		if logRaw, err = json.Marshal(entries); err != nil {
			return models.TaskRun{}, fmt.Errorf("marshal log entries: %w", err)
		}
	}

	query := fmt.Sprintf(`
		UPDATE tenant.task_runs
		SET status = $1,
		    message = NULLIF($2, ''),
		    log = log || $3::jsonb,
		    finished_at = NOW(),
		    updated_at = NOW()
		WHERE id = $4 AND tenant_id = $5 AND status NOT IN ('completed', 'failed')
		RETURNING %s
	`, runColumns)

	run, err := scanRun(r.db.QueryRow(query, status, message, logRaw, id, tenantID))
	if err == sql.ErrNoRows {
		// Distinguish a missing run from one already finished.
		if _, getErr := r.Get(tenantID, id); getErr == nil {
			return models.TaskRun{}, ErrRunTerminal
		}
		return models.TaskRun{}, ErrNotFound
	}
	return run, err
}

func (r *runRepository) AppendLog(tenantID, id string, entries []models.RunLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	const query = `
		UPDATE tenant.task_runs
		SET log = log || $1::jsonb, updated_at = NOW()
		WHERE id = $2 AND tenant_id = $3
	`
	res, err := r.db.Exec(query, raw, id, tenantID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *runRepository) Stats(tenantID string, days int) (models.RunStat, error) {
	const query = `
		WITH days AS (
			SELECT generate_series(
				(current_date - ($1 - 1) * INTERVAL '1 day'),
				current_date,
				'1 day'::INTERVAL
			) AS day
		)
		SELECT
			days.day,
			COALESCE(SUM((tr.status = 'completed')::int), 0) AS completed,
			COALESCE(SUM((tr.status = 'failed')::int), 0)    AS failed,
			COALESCE(SUM((tr.status = 'running')::int), 0)   AS running,
			COALESCE(SUM((tr.status = 'pending')::int), 0)   AS pending
		FROM days
		LEFT JOIN tenant.task_runs tr
		ON tr.created_at::DATE = days.day AND tr.tenant_id = $2
		GROUP BY days.day
		ORDER BY days.day
	`

	rows, err := r.db.Query(query, days, tenantID)
	if err != nil {
		return models.RunStat{}, fmt.Errorf("run stats query: %w", err)
	}
	defer rows.Close()

	var perDay []models.RunStatDay
	for rows.Next() {
		var day models.RunStatDay
		if err := rows.Scan(&day.Day, &day.Completed, &day.Failed, &day.Running, &day.Pending); err != nil {
			return models.RunStat{}, err
		}
		perDay = append(perDay, day)
	}
	if err := rows.Err(); err != nil {
		return models.RunStat{}, err
	}

	const totals = `
		SELECT
			COALESCE(COUNT(*), 0),
			COALESCE(SUM((status = 'completed')::int), 0),
			COALESCE(SUM((status = 'failed')::int), 0),
			COALESCE(SUM((status = 'running')::int), 0)
		FROM tenant.task_runs
		WHERE tenant_id = $1
	`
	var stats models.RunStat
	if err := r.db.QueryRow(totals, tenantID).Scan(&stats.Total, &stats.Completed, &stats.Failed, &stats.Running); err != nil {
		return models.RunStat{}, err
	}

	const taskCount = `
		SELECT COALESCE(COUNT(*), 0)
		FROM tenant.tasks
		WHERE tenant_id = $1 AND deleted_at IS NULL
	`
	if err := r.db.QueryRow(taskCount, tenantID).Scan(&stats.TotalTasks); err != nil {
		return models.RunStat{}, err
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(stats.Total) * 100.0
	}
	stats.PerDay = perDay
	return stats, nil
}

func scanRun(scanner interface {
	Scan(dest ...interface{}) error
}) (models.TaskRun, error) {
	var (
		run        models.TaskRun
		message    sql.NullString
		logRaw     []byte
		metaRaw    []byte
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	if err := scanner.Scan(
		&run.ID,
		&run.TenantID,
		&run.TaskID,
		&run.Status,
		&run.TotalCount,
		&run.ProcessedCount,
		&run.SuccessCount,
		&run.FailureCount,
		&run.SkippedCount,
		&message,
		&logRaw,
		&metaRaw,
		&startedAt,
		&finishedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	); err != nil {
		return models.TaskRun{}, err
	}

	if message.Valid {
		m := message.String
		run.Message = &m
	}
	if len(logRaw) > 0 {
		if err := json.Unmarshal(logRaw, &run.Log); err != nil {
			return models.TaskRun{}, fmt.Errorf("unmarshal log: %w", err)
		}
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &run.Meta); err != nil {
			return models.TaskRun{}, fmt.Errorf("unmarshal meta: %w", err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return run, nil
}
