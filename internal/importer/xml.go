package importer

import (
	"encoding/xml"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

type xmlParser struct{}

// recordPathSegments splits a record path like "catalog/products/product"
// (slash or dot separated) into element names. The last segment names the
// repeating record element.
func recordPathSegments(recordPath string) []string {
	cleaned := strings.Trim(strings.ReplaceAll(recordPath, ".", "/"), "/")
	if cleaned == "" {
		return nil
	}
	return strings.Split(cleaned, "/")
}

func (p *xmlParser) DetectHeaders(path string, opts Options) ([]string, error) {
	it, err := p.Records(path, opts)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	rec, err := it.Next()
	if err == io.EOF {
		return nil, errors.New("xml source contains no records")
	}
	if err != nil {
		return nil, err
	}

	headers := make([]string, 0, len(rec))
	for name := range rec {
		headers = append(headers, name)
	}
	sort.Strings(headers)
	return headers, nil
}

type xmlIterator struct {
	f        *os.File
	dec      *xml.Decoder
	segments []string
	// stack tracks the open element names from the document root.
	stack []string
}

func (p *xmlParser) Records(path string, opts Options) (RecordIterator, error) {
	segments := recordPathSegments(opts.RecordPath)
	if len(segments) == 0 {
		return nil, errors.New("xml parsing requires a record_path option")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open xml source")
	}
	return &xmlIterator{f: f, dec: xml.NewDecoder(f), segments: segments}, nil
}

// atRecord reports whether the current element stack matches the record
// path. Matching is suffix-based so "product" matches however deep the
// element sits, while "catalog/product" pins the parent.
func (it *xmlIterator) atRecord() bool {
	if len(it.stack) < len(it.segments) {
		return false
	}
	tail := it.stack[len(it.stack)-len(it.segments):]
	for i, seg := range it.segments {
		if tail[i] != seg {
			return false
		}
	}
	return true
}

func (it *xmlIterator) Next() (Record, error) {
	for {
		tok, err := it.dec.Token()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, errors.Wrap(err, "read xml token")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			it.stack = append(it.stack, t.Name.Local)
			if it.atRecord() {
				rec, err := it.decodeRecord(&t)
				// decodeRecord consumed the record's end element.
				it.stack = it.stack[:len(it.stack)-1]
				if err != nil {
					return nil, err
				}
				return rec, nil
			}
		case xml.EndElement:
			if len(it.stack) > 0 {
				it.stack = it.stack[:len(it.stack)-1]
			}
		}
	}
}

// decodeRecord flattens the children of one record element: each child
// element becomes a field named after the element, holding its text.
// Attributes of the record element itself are included with an "@" prefix.
func (it *xmlIterator) decodeRecord(start *xml.StartElement) (Record, error) {
	rec := make(Record)
	for _, attr := range start.Attr {
		rec["@"+attr.Name.Local] = attr.Value
	}

	depth := 0
	var field string
	var text strings.Builder
	for {
		tok, err := it.dec.Token()
		if err != nil {
			return nil, errors.Wrap(err, "read xml record")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				field = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 1 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 0 {
				// End of the record element itself.
				return rec, nil
			}
			if depth == 1 {
				rec[field] = strings.TrimSpace(text.String())
			}
			depth--
		}
	}
}

func (it *xmlIterator) Close() error { return it.f.Close() }
