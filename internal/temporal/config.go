package temporal

import (
	"time"

	"github.com/channelport/channelport-api/internal/importer"
)

// TaskQueueName is the Temporal task queue import workflows run on.
const TaskQueueName = "CHANNELPORT_IMPORT"

// ImportWorkflowIDPrefix prefixes import workflow IDs; the run ID is
// appended so a run maps 1:1 to a workflow.
const ImportWorkflowIDPrefix = "channelport-import-"

// DefaultActivityTimeout bounds a single activity attempt.
const DefaultActivityTimeout = 10 * time.Minute

// ImportParams is the input of an import workflow. The run is created
// (pending) by the API before the workflow starts.
type ImportParams struct {
	TenantID string
	TaskID   string
	RunID    string
}

// PrepareImportResult carries what the preparation activity learned about
// the source: where it lives locally, how many records it holds, and how
// it was split. Chunk activities must land on the same worker host as the
// preparation for SourcePath to resolve; a single-worker deployment
// guarantees that.
type PrepareImportResult struct {
	// SourcePath is empty for driver-fetched imports (order sync).
	SourcePath string
	Temporary  bool
	TotalCount int64
	Chunks     []importer.Chunk
	// DriverFetch marks imports that pull pages from the platform driver
	// instead of parsing a resolved file.
	DriverFetch bool
}

// ChunkParams addresses one chunk of a run for processing.
type ChunkParams struct {
	TenantID    string
	TaskID      string
	RunID       string
	SourcePath  string
	DriverFetch bool
	Chunk       importer.Chunk
}
