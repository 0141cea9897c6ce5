package importer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

type jsonParser struct{}

func (p *jsonParser) DetectHeaders(path string, opts Options) ([]string, error) {
	it, err := p.Records(path, opts)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	rec, err := it.Next()
	if err == io.EOF {
		return nil, errors.New("json source contains no records")
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

type jsonIterator struct {
	f   *os.File
	dec *json.Decoder
}

// Records streams objects out of a JSON array. The array is either the
// document root or sits under the key named by record_path; nested paths
// use slash or dot separators, same as XML.
func (p *jsonParser) Records(path string, opts Options) (RecordIterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open json source")
	}
	dec := json.NewDecoder(f)

	if err := seekJSONArray(dec, recordPathSegments(opts.RecordPath)); err != nil {
		f.Close()
		return nil, err
	}
	return &jsonIterator{f: f, dec: dec}, nil
}

// seekJSONArray advances the decoder until it has consumed the opening
// '[' of the target array.
func seekJSONArray(dec *json.Decoder, segments []string) error {
	for _, seg := range segments {
		tok, err := dec.Token()
		if err != nil {
			return errors.Wrap(err, "read json token")
		}
		if tok != json.Delim('{') {
			return errors.Errorf("json record_path segment %q: expected object, got %v", seg, tok)
		}
		if err := seekJSONKey(dec, seg); err != nil {
			return err
		}
	}

	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "read json token")
	}
	if tok != json.Delim('[') {
		return errors.Errorf("json source: expected array, got %v", tok)
	}
	return nil
}

// seekJSONKey scans an open object's keys until it finds the wanted one,
// skipping over the values of the others.
func seekJSONKey(dec *json.Decoder, key string) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return errors.Wrap(err, "read json key")
		}
		name, ok := tok.(string)
		if !ok {
			return errors.Errorf("json source: expected object key, got %v", tok)
		}
		if name == key {
			return nil
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return errors.Wrapf(err, "skip json key %q", name)
		}
	}
	return errors.Errorf("json source: key %q not found", key)
}

func (it *jsonIterator) Next() (Record, error) {
	if !it.dec.More() {
		return nil, io.EOF
	}
	var raw map[string]interface{}
	if err := it.dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode json record")
	}

	rec := make(Record, len(raw))
	for name, value := range raw {
		rec[name] = stringifyJSONValue(value)
	}
	return rec, nil
}

// stringifyJSONValue renders a decoded JSON scalar as the string a CSV
// cell would carry. Nested objects and arrays are re-marshalled so the
// field mapping layer can still address them as opaque text.
func stringifyJSONValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func (it *jsonIterator) Close() error { return it.f.Close() }
