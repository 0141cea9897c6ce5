package importer

import (
	"github.com/pkg/errors"

	"github.com/channelport/channelport-api/internal/models"
)

// Record is one raw parsed record: a flat field-name to value mapping.
type Record map[string]string

// Options carries format-specific parse settings taken from the task.
type Options struct {
	// Delimiter is the CSV field separator.
	Delimiter rune
	// HasHeader indicates the first CSV row names the fields.
	HasHeader bool
	// RecordPath locates the repeating element (XML) or array key (JSON),
	// e.g. "catalog/product" or "data.items".
	RecordPath string
}

// RecordIterator yields records lazily. The sequence is finite and
// non-restartable; Next returns io.EOF when exhausted.
type RecordIterator interface {
	Next() (Record, error)
	Close() error
}

// Parser reads a resolved source file.
type Parser interface {
	// DetectHeaders enumerates the source's field names reading only as
	// much of the file as needed.
	DetectHeaders(path string, opts Options) ([]string, error)
	// Records opens the source for lazy record iteration.
	Records(path string, opts Options) (RecordIterator, error)
}

// ParserFor dispatches a source format to its parser.
func ParserFor(format models.SourceFormat) (Parser, error) {
	switch format {
	case models.SourceFormatCSV:
		return &csvParser{}, nil
	case models.SourceFormatXML:
		return &xmlParser{}, nil
	case models.SourceFormatJSON:
		return &jsonParser{}, nil
	default:
		return nil, errors.Errorf("importer: unsupported source format %q", format)
	}
}
