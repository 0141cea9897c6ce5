package importer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelport/channelport-api/internal/models"
)

func TestApplyMappings(t *testing.T) {
	rec := Record{"SKU": " a-1 ", "Name": "Widget", "Price": "1.234,56"}
	mappings := []models.FieldMapping{
		{SourceField: "SKU", TargetField: "sku", TargetType: "product", Transform: "upper"},
		{SourceField: "Name", TargetField: "name", TargetType: "product"},
		{SourceField: "Price", TargetField: "price", TargetType: "product", Transform: "comma_decimal"},
	}

	mapped, err := ApplyMappings(rec, mappings)
	require.NoError(t, err)
	require.Contains(t, mapped, "product")
	assert.Equal(t, "A-1", mapped["product"]["sku"])
	assert.Equal(t, "Widget", mapped["product"]["name"])
	assert.Equal(t, "1234.56", mapped["product"]["price"])
}

func TestApplyMappingsMissingSourceField(t *testing.T) {
	_, err := ApplyMappings(Record{"sku": "A-1"}, []models.FieldMapping{
		{SourceField: "name", TargetField: "name", TargetType: "product"},
	})
	assert.Error(t, err)
}

func TestApplyMappingsUnknownTransform(t *testing.T) {
	_, err := ApplyMappings(Record{"sku": "A-1"}, []models.FieldMapping{
		{SourceField: "sku", TargetField: "sku", TargetType: "product", Transform: "rot13"},
	})
	assert.Error(t, err)
}

func TestMatchesFilters(t *testing.T) {
	rec := Record{"active": "1", "lang": "en"}

	assert.True(t, MatchesFilters(rec, nil))
	assert.True(t, MatchesFilters(rec, map[string]string{"active": "1"}))
	assert.False(t, MatchesFilters(rec, map[string]string{"active": "1", "lang": "de"}))
	assert.False(t, MatchesFilters(rec, map[string]string{"missing": "x"}))
}

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal(" 12.50 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("12.5")))

	d, err = ParseDecimal("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = ParseDecimal("abc")
	assert.Error(t, err)
}
