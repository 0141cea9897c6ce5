package models

import (
	"time"
)

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// RunLogEntry is one timestamped line in a run's structured log.
type RunLogEntry struct {
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
}

// Samples and errors on a run are bounded. Once the cap is reached further
// entries are silently dropped; older entries are never evicted.
const (
	MaxRunSamples = 5
	MaxRunErrors  = 5
)

// RunMeta is the metadata blob on a run: outstanding chunk count plus
// bounded sample/error capture.
type RunMeta struct {
	PendingChunks int                 `json:"pending_chunks"`
	Samples       []map[string]string `json:"samples,omitempty"`
	Errors        []string            `json:"errors,omitempty"`
}

// AddSamples appends samples up to the cap, dropping the newest overflow.
func (m *RunMeta) AddSamples(samples []map[string]string) {
	for _, s := range samples {
		if len(m.Samples) >= MaxRunSamples {
			return
		}
		m.Samples = append(m.Samples, s)
	}
}

// AddErrors appends error messages up to the cap, dropping the newest overflow.
func (m *RunMeta) AddErrors(errs []string) {
	for _, e := range errs {
		if len(m.Errors) >= MaxRunErrors {
			return
		}
		m.Errors = append(m.Errors, e)
	}
}

// TaskRun is one execution of a Task.
type TaskRun struct {
	ID             string        `json:"id" db:"id"`
	TenantID       string        `json:"tenant_id" db:"tenant_id"`
	TaskID         string        `json:"task_id" db:"task_id"`
	Status         RunStatus     `json:"status" db:"status"`
	TotalCount     int64         `json:"total_count" db:"total_count"`
	ProcessedCount int64         `json:"processed_count" db:"processed_count"`
	SuccessCount   int64         `json:"success_count" db:"success_count"`
	FailureCount   int64         `json:"failure_count" db:"failure_count"`
	SkippedCount   int64         `json:"skipped_count" db:"skipped_count"`
	Message        *string       `json:"message,omitempty" db:"message"`
	Log            []RunLogEntry `json:"log" db:"log"`
	Meta           RunMeta       `json:"meta" db:"meta"`
	StartedAt      *time.Time    `json:"started_at,omitempty" db:"started_at"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty" db:"finished_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// RunStatDay holds run counts for a single day.
type RunStatDay struct {
	Day       time.Time `json:"day" db:"day"`
	Completed int       `json:"completed" db:"completed"`
	Failed    int       `json:"failed" db:"failed"`
	Running   int       `json:"running" db:"running"`
	Pending   int       `json:"pending" db:"pending"`
}

// RunStat is the aggregated run stats over a period, plus per-day details.
type RunStat struct {
	Total       int          `json:"total" db:"total"`
	Completed   int          `json:"completed" db:"completed"`
	Failed      int          `json:"failed" db:"failed"`
	Running     int          `json:"running" db:"running"`
	SuccessRate float64      `json:"success_rate" db:"success_rate"`
	TotalTasks  int          `json:"total_tasks" db:"total_tasks"`
	PerDay      []RunStatDay `json:"per_day" db:"per_day"`
}
