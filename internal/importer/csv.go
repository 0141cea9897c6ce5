package importer

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

type csvParser struct{}

func (p *csvParser) open(path string, opts Options) (*os.File, *csv.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open csv source")
	}

	buf := bufio.NewReader(f)
	// Strip a UTF-8 BOM if present.
	if peeked, err := buf.Peek(3); err == nil && len(peeked) == 3 &&
		peeked[0] == 0xEF && peeked[1] == 0xBB && peeked[2] == 0xBF {
		_, _ = buf.Discard(3)
	}

	r := csv.NewReader(buf)
	if opts.Delimiter != 0 {
		r.Comma = opts.Delimiter
	}
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	return f, r, nil
}

func (p *csvParser) DetectHeaders(path string, opts Options) ([]string, error) {
	f, r, err := p.open(path, opts)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	row, err := r.Read()
	if err == io.EOF {
		return nil, errors.New("csv source is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read first csv row")
	}

	if opts.HasHeader {
		return row, nil
	}
	// Headerless files get positional field names.
	headers := make([]string, len(row))
	for i := range row {
		headers[i] = fmt.Sprintf("column_%d", i+1)
	}
	return headers, nil
}

type csvIterator struct {
	f       *os.File
	r       *csv.Reader
	headers []string
	// firstRow is buffered when the file has no header row, so the row
	// used for header synthesis is still yielded as data.
	firstRow []string
}

func (p *csvParser) Records(path string, opts Options) (RecordIterator, error) {
	f, r, err := p.open(path, opts)
	if err != nil {
		return nil, err
	}

	row, err := r.Read()
	if err == io.EOF {
		f.Close()
		return nil, errors.New("csv source is empty")
	}
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "read first csv row")
	}

	it := &csvIterator{f: f, r: r}
	if opts.HasHeader {
		it.headers = row
	} else {
		it.headers = make([]string, len(row))
		for i := range row {
			it.headers[i] = fmt.Sprintf("column_%d", i+1)
		}
		it.firstRow = row
	}
	return it, nil
}

func (it *csvIterator) Next() (Record, error) {
	var row []string
	if it.firstRow != nil {
		row, it.firstRow = it.firstRow, nil
	} else {
		var err error
		row, err = it.r.Read()
		if err != nil {
			return nil, err
		}
	}

	rec := make(Record, len(it.headers))
	for i, name := range it.headers {
		if i < len(row) {
			rec[name] = row[i]
		} else {
			rec[name] = ""
		}
	}
	return rec, nil
}

func (it *csvIterator) Close() error { return it.f.Close() }
