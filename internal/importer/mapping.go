package importer

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/channelport/channelport-api/internal/models"
)

// MappedRecord is one record after field mapping: target field name to
// value, grouped under the mapping's target entity type.
type MappedRecord map[string]map[string]string

// MatchesFilters reports whether a raw record passes the task's filter
// set. Filters are conjunctive exact matches on raw source fields; an
// empty filter set matches everything.
func MatchesFilters(rec Record, filters map[string]string) bool {
	for field, want := range filters {
		if rec[field] != want {
			return false
		}
	}
	return true
}

// ApplyMappings converts one raw record through the task's field
// mappings. Each mapping reads a source field, runs the optional named
// transform, and files the value under the target entity. A missing
// source field or failed transform aborts the whole record so it counts
// as a single record-level failure.
func ApplyMappings(rec Record, mappings []models.FieldMapping) (MappedRecord, error) {
	out := make(MappedRecord)
	for _, m := range mappings {
		raw, ok := rec[m.SourceField]
		if !ok {
			return nil, errors.Errorf("source field %q not present in record", m.SourceField)
		}

		raw, err := applyTransform(raw, m.Transform)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", m.SourceField)
		}

		entity := m.TargetType
		if entity == "" {
			entity = "product"
		}
		if out[entity] == nil {
			out[entity] = make(map[string]string)
		}
		out[entity][m.TargetField] = strings.TrimSpace(raw)
	}
	return out, nil
}

// applyTransform runs a named transform. Unknown names fail loudly so a
// typo in a task definition surfaces as record errors instead of silent
// pass-through.
func applyTransform(value, name string) (string, error) {
	switch name {
	case "":
		return value, nil
	case "trim":
		return strings.TrimSpace(value), nil
	case "upper":
		return strings.ToUpper(value), nil
	case "lower":
		return strings.ToLower(value), nil
	case "comma_decimal":
		// European-style "1.234,56" to "1234.56".
		v := strings.ReplaceAll(value, ".", "")
		return strings.ReplaceAll(v, ",", "."), nil
	default:
		return "", errors.Errorf("unknown transform %q", name)
	}
}

// ParseDecimal converts a mapped money/quantity string to a decimal,
// tolerating surrounding whitespace and an empty value (zero).
func ParseDecimal(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "invalid numeric value %q", raw)
	}
	return d, nil
}
