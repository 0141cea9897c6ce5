package models

import (
	"strings"
	"time"
)

type TaskType string

const (
	TaskTypeImport TaskType = "import"
	TaskTypeExport TaskType = "export"
)

type ResourceType string

const (
	ResourceTypeProducts   ResourceType = "products"
	ResourceTypeOrders     ResourceType = "orders"
	ResourceTypeCustomers  ResourceType = "customers"
	ResourceTypeCategories ResourceType = "categories"
	ResourceTypeStock      ResourceType = "stock"
)

type SourceFormat string

const (
	SourceFormatCSV  SourceFormat = "csv"
	SourceFormatXML  SourceFormat = "xml"
	SourceFormatJSON SourceFormat = "json"
)

type SourceType string

const (
	SourceTypeURL  SourceType = "url"
	SourceTypeFile SourceType = "file"
	SourceTypeAPI  SourceType = "api"
)

type FetchMode string

const (
	FetchModeManual   FetchMode = "manual"
	FetchModeInterval FetchMode = "interval"
	FetchModeDaily    FetchMode = "daily"
	FetchModeCron     FetchMode = "cron"
)

// FieldMapping maps one source field onto one target field of a catalog
// entity. Transform is an optional named transform applied in between.
type FieldMapping struct {
	SourceField string `json:"source_field"`
	TargetField string `json:"target_field"`
	TargetType  string `json:"target_type"`
	Transform   string `json:"transform,omitempty"`
}

// Task is a persisted, schedulable import/export definition bound to one
// integration and, for imports, one target catalog.
type Task struct {
	ID            string       `json:"id" db:"id"`
	TenantID      string       `json:"tenant_id" db:"tenant_id"`
	IntegrationID string       `json:"integration_id" db:"integration_id"`
	CatalogID     string       `json:"catalog_id,omitempty" db:"catalog_id"`
	Name          string       `json:"name" db:"name"`
	TaskType      TaskType     `json:"task_type" db:"task_type"`
	ResourceType  ResourceType `json:"resource_type" db:"resource_type"`
	Format        SourceFormat `json:"format" db:"format"`
	SourceType    SourceType   `json:"source_type" db:"source_type"`
	SourceLocation string      `json:"source_location" db:"source_location"`
	Delimiter     string       `json:"delimiter,omitempty" db:"delimiter"`
	HasHeader     bool         `json:"has_header" db:"has_header"`
	IsActive      bool         `json:"is_active" db:"is_active"`

	FetchMode            FetchMode `json:"fetch_mode" db:"fetch_mode"`
	FetchIntervalMinutes int       `json:"fetch_interval_minutes,omitempty" db:"fetch_interval_minutes"`
	FetchDailyAt         string    `json:"fetch_daily_at,omitempty" db:"fetch_daily_at"`
	CronExpression       string    `json:"cron_expression,omitempty" db:"cron_expression"`

	Mappings []FieldMapping    `json:"mappings" db:"mappings"`
	Filters  map[string]string `json:"filters,omitempty" db:"filters"`
	Options  map[string]string `json:"options,omitempty" db:"options"`

	LastHeaders   []string   `json:"last_headers,omitempty" db:"last_headers"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty" db:"last_fetched_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NormalizeMappings discards mapping entries whose source field is empty.
// Applied at save time so stored tasks never carry dangling mappings.
func (t *Task) NormalizeMappings() {
	kept := t.Mappings[:0]
	for _, m := range t.Mappings {
		if strings.TrimSpace(m.SourceField) == "" {
			continue
		}
		kept = append(kept, m)
	}
	t.Mappings = kept
}

// RecordPath returns the XML record path option, if configured.
func (t *Task) RecordPath() string {
	return t.Options["record_path"]
}

// DelimiterRune returns the configured CSV delimiter, comma by default.
func (t *Task) DelimiterRune() rune {
	if t.Delimiter == "" {
		return ','
	}
	return []rune(t.Delimiter)[0]
}

// TaskStat is a task definition with aggregated run statistics.
type TaskStat struct {
	Task

	TotalRuns             int64    `db:"total_runs" json:"total_runs"`
	LastRunStatus         *string  `db:"last_run_status" json:"last_run_status"`
	TotalRecordsProcessed int64    `db:"total_records_processed" json:"total_records_processed"`
	AvgDurationSeconds    *float64 `db:"avg_duration_seconds" json:"avg_duration_seconds"`
}
