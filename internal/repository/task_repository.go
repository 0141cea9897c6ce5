package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/channelport/channelport-api/internal/models"
)

type TaskRepository interface {
	List(tenantID string) ([]models.Task, error)
	ListWithStats(tenantID string) ([]models.TaskStat, error)
	Get(tenantID, id string) (models.Task, error)
	Create(task models.Task) (models.Task, error)
	Update(task models.Task) (models.Task, error)
	Delete(tenantID, id string) error
	SetHeaders(tenantID, id string, headers []string, fetchedAt time.Time) error
	// ListScheduled returns active, non-manual tasks across all tenants,
	// for scheduler registration.
	ListScheduled() ([]models.Task, error)
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = `
	id, tenant_id, integration_id, catalog_id, name, task_type, resource_type,
	format, source_type, source_location, delimiter, has_header, is_active,
	fetch_mode, fetch_interval_minutes, fetch_daily_at, cron_expression,
	mappings, filters, options, last_headers, last_fetched_at, created_at, updated_at`

func (r *taskRepository) List(tenantID string) ([]models.Task, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM tenant.tasks
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`, taskColumns)

	rows, err := r.db.Query(query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) ListScheduled() ([]models.Task, error) {
	// Tasks under a deleted integration never fire.
	query := fmt.Sprintf(`
		SELECT %s
		FROM tenant.tasks
		WHERE is_active = TRUE AND fetch_mode <> 'manual' AND deleted_at IS NULL
		  AND EXISTS (
			SELECT 1 FROM tenant.integrations i
			WHERE i.id = integration_id AND i.deleted_at IS NULL
		  )
		ORDER BY created_at
	`, taskColumns)

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) Get(tenantID, id string) (models.Task, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM tenant.tasks
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL
	`, taskColumns)

	task, err := scanTask(r.db.QueryRow(query, id, tenantID))
	if err == sql.ErrNoRows {
		return models.Task{}, ErrNotFound
	}
	return task, err
}

func (r *taskRepository) Create(task models.Task) (models.Task, error) {
	task.NormalizeMappings()
	mappings, filters, options, err := marshalTaskBlobs(task)
	if err != nil {
		return models.Task{}, err
	}

	// The integration subquery pins the task to an integration owned by
	// the same tenant; a cross-tenant id yields no row.
	const query = `
		INSERT INTO tenant.tasks (
			tenant_id, integration_id, catalog_id, name, task_type, resource_type,
			format, source_type, source_location, delimiter, has_header, is_active,
			fetch_mode, fetch_interval_minutes, fetch_daily_at, cron_expression,
			mappings, filters, options
		)
		SELECT $1, i.id, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		FROM tenant.integrations i
		WHERE i.id = $2 AND i.tenant_id = $1 AND i.deleted_at IS NULL
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRow(query,
		task.TenantID, task.IntegrationID, task.CatalogID, task.Name,
		task.TaskType, task.ResourceType, task.Format, task.SourceType,
		task.SourceLocation, task.Delimiter, task.HasHeader, task.IsActive,
		task.FetchMode, task.FetchIntervalMinutes, task.FetchDailyAt, task.CronExpression,
		mappings, filters, options,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (r *taskRepository) Update(task models.Task) (models.Task, error) {
	task.NormalizeMappings()
	mappings, filters, options, err := marshalTaskBlobs(task)
	if err != nil {
		return models.Task{}, err
	}

	const query = `
		UPDATE tenant.tasks
		SET name = $1, resource_type = $2, format = $3, source_type = $4,
		    source_location = $5, delimiter = $6, has_header = $7, is_active = $8,
		    fetch_mode = $9, fetch_interval_minutes = $10, fetch_daily_at = $11,
		    cron_expression = $12, mappings = $13, filters = $14, options = $15,
		    catalog_id = NULLIF($16, '')::uuid, updated_at = NOW()
		WHERE id = $17 AND tenant_id = $18 AND deleted_at IS NULL
		RETURNING updated_at
	`
	err = r.db.QueryRow(query,
		task.Name, task.ResourceType, task.Format, task.SourceType,
		task.SourceLocation, task.Delimiter, task.HasHeader, task.IsActive,
		task.FetchMode, task.FetchIntervalMinutes, task.FetchDailyAt, task.CronExpression,
		mappings, filters, options, task.CatalogID, task.ID, task.TenantID,
	).Scan(&task.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (r *taskRepository) Delete(tenantID, id string) error {
	const query = `
		UPDATE tenant.tasks
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL
	`
	res, err := r.db.Exec(query, id, tenantID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *taskRepository) SetHeaders(tenantID, id string, headers []string, fetchedAt time.Time) error {
	const query = `
		UPDATE tenant.tasks
		SET last_headers = $1, last_fetched_at = $2, updated_at = NOW()
		WHERE id = $3 AND tenant_id = $4 AND deleted_at IS NULL
	`
	res, err := r.db.Exec(query, pq.Array(headers), fetchedAt, id, tenantID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *taskRepository) ListWithStats(tenantID string) ([]models.TaskStat, error) {
	query := fmt.Sprintf(`
		WITH ranked_runs AS (
			SELECT
				task_id,
				status,
				processed_count,
				EXTRACT(EPOCH FROM (finished_at - started_at)) AS duration_seconds,
				ROW_NUMBER() OVER(PARTITION BY task_id ORDER BY created_at DESC) AS run_rank
			FROM tenant.task_runs
			WHERE tenant_id = $1
		)
		SELECT %s,
			COALESCE(stats.total_runs, 0) AS total_runs,
			stats.last_run_status,
			COALESCE(stats.total_records_processed, 0) AS total_records_processed,
			stats.avg_duration_seconds
		FROM tenant.tasks t
		LEFT JOIN (
			SELECT
				task_id,
				COUNT(*) AS total_runs,
				MAX(CASE WHEN run_rank = 1 THEN status END) AS last_run_status,
				SUM(processed_count) AS total_records_processed,
				AVG(duration_seconds) AS avg_duration_seconds
			FROM ranked_runs
			GROUP BY task_id
		) stats ON t.id = stats.task_id
		WHERE t.tenant_id = $1 AND t.deleted_at IS NULL
		ORDER BY t.created_at DESC
	`, prefixColumns("t", taskColumns))

	rows, err := r.db.Query(query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []models.TaskStat{}
	for rows.Next() {
		var stat models.TaskStat
		var err error
		stat.Task, err = scanTaskInto(rows, func(dest []interface{}) []interface{} {
			return append(dest,
				&stat.TotalRuns,
				&stat.LastRunStatus,
				&stat.TotalRecordsProcessed,
				&stat.AvgDurationSeconds,
			)
		})
		if err != nil {
			return nil, err
		}
		results = append(results, stat)
	}
	return results, rows.Err()
}

// prefixColumns qualifies a comma-separated column list with a table
// alias for use in joined queries.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func marshalTaskBlobs(task models.Task) (mappings, filters, options []byte, err error) {
	if task.Mappings == nil {
		task.Mappings = []models.FieldMapping{}
	}
	if mappings, err = json.Marshal(task.Mappings); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal mappings: %w", err)
	}
	if task.Filters == nil {
		task.Filters = map[string]string{}
	}
	if filters, err = json.Marshal(task.Filters); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal filters: %w", err)
	}
	if task.Options == nil {
		task.Options = map[string]string{}
	}
	if options, err = json.Marshal(task.Options); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal options: %w", err)
	}
	return mappings, filters, options, nil
}

func scanTask(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Task, error) {
	return scanTaskInto(scanner, nil)
}

// scanTaskInto scans the shared task columns, letting the caller append
// extra destinations for queries that select additional columns.
func scanTaskInto(scanner interface {
	Scan(dest ...interface{}) error
}, extra func([]interface{}) []interface{}) (models.Task, error) {
	var (
		task          models.Task
		catalogID     sql.NullString
		mappingsRaw   []byte
		filtersRaw    []byte
		optionsRaw    []byte
		lastHeaders   pq.StringArray
		lastFetchedAt sql.NullTime
	)

	dest := []interface{}{
		&task.ID, &task.TenantID, &task.IntegrationID, &catalogID, &task.Name,
		&task.TaskType, &task.ResourceType, &task.Format, &task.SourceType,
		&task.SourceLocation, &task.Delimiter, &task.HasHeader, &task.IsActive,
		&task.FetchMode, &task.FetchIntervalMinutes, &task.FetchDailyAt,
		&task.CronExpression, &mappingsRaw, &filtersRaw, &optionsRaw,
		&lastHeaders, &lastFetchedAt, &task.CreatedAt, &task.UpdatedAt,
	}
	if extra != nil {
		dest = extra(dest)
	}
	if err := scanner.Scan(dest...); err != nil {
		return models.Task{}, err
	}

	if catalogID.Valid {
		task.CatalogID = catalogID.String
	}
	if len(mappingsRaw) > 0 {
		if err := json.Unmarshal(mappingsRaw, &task.Mappings); err != nil {
			return models.Task{}, fmt.Errorf("unmarshal mappings: %w", err)
		}
	}
	if len(filtersRaw) > 0 {
		if err := json.Unmarshal(filtersRaw, &task.Filters); err != nil {
			return models.Task{}, fmt.Errorf("unmarshal filters: %w", err)
		}
	}
	if len(optionsRaw) > 0 {
		if err := json.Unmarshal(optionsRaw, &task.Options); err != nil {
			return models.Task{}, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	task.LastHeaders = lastHeaders
	if lastFetchedAt.Valid {
		t := lastFetchedAt.Time
		task.LastFetchedAt = &t
	}
	return task, nil
}
