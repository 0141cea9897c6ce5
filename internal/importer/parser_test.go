package importer

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelport/channelport-api/internal/models"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func drain(t *testing.T, it RecordIterator) []Record {
	t.Helper()
	defer it.Close()
	var out []Record
	for {
		rec, err := it.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestParserForUnknownFormat(t *testing.T) {
	_, err := ParserFor(models.SourceFormat("yaml"))
	assert.Error(t, err)
}

func TestCSVDetectHeaders(t *testing.T) {
	path := writeTempFile(t, "products.csv", "sku;name;price\nA-1;Widget;9.90\n")

	p, err := ParserFor(models.SourceFormatCSV)
	require.NoError(t, err)

	headers, err := p.DetectHeaders(path, Options{Delimiter: ';', HasHeader: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"sku", "name", "price"}, headers)
}

func TestCSVDetectHeadersHeaderless(t *testing.T) {
	path := writeTempFile(t, "raw.csv", "A-1,Widget,9.90\n")

	p, _ := ParserFor(models.SourceFormatCSV)
	headers, err := p.DetectHeaders(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"column_1", "column_2", "column_3"}, headers)
}

func TestCSVRecords(t *testing.T) {
	path := writeTempFile(t, "products.csv",
		"\xEF\xBB\xBFsku,name,price\nA-1,Widget,9.90\nA-2,\"Gad,get\",4.50\n")

	p, _ := ParserFor(models.SourceFormatCSV)
	it, err := p.Records(path, Options{HasHeader: true})
	require.NoError(t, err)

	records := drain(t, it)
	require.Len(t, records, 2)
	assert.Equal(t, "A-1", records[0]["sku"])
	assert.Equal(t, "Gad,get", records[1]["name"])
	assert.Equal(t, "4.50", records[1]["price"])
}

func TestCSVRecordsHeaderlessKeepsFirstRow(t *testing.T) {
	path := writeTempFile(t, "raw.csv", "A-1,Widget\nA-2,Gadget\n")

	p, _ := ParserFor(models.SourceFormatCSV)
	it, err := p.Records(path, Options{})
	require.NoError(t, err)

	records := drain(t, it)
	require.Len(t, records, 2)
	assert.Equal(t, "A-1", records[0]["column_1"])
	assert.Equal(t, "Gadget", records[1]["column_2"])
}

func TestCSVShortRowPadsEmpty(t *testing.T) {
	path := writeTempFile(t, "short.csv", "sku,name,price\nA-1,Widget\n")

	p, _ := ParserFor(models.SourceFormatCSV)
	it, err := p.Records(path, Options{HasHeader: true})
	require.NoError(t, err)

	records := drain(t, it)
	require.Len(t, records, 1)
	assert.Equal(t, "", records[0]["price"])
}

const sampleXML = `<?xml version="1.0"?>
<catalog>
  <meta><generated>2026-01-01</generated></meta>
  <products>
    <product id="11">
      <sku>A-1</sku>
      <name>Widget</name>
      <price>9.90</price>
    </product>
    <product id="12">
      <sku>A-2</sku>
      <name>Gadget</name>
      <price>4.50</price>
    </product>
  </products>
</catalog>`

func TestXMLRecords(t *testing.T) {
	path := writeTempFile(t, "feed.xml", sampleXML)

	p, _ := ParserFor(models.SourceFormatXML)
	it, err := p.Records(path, Options{RecordPath: "products/product"})
	require.NoError(t, err)

	records := drain(t, it)
	require.Len(t, records, 2)
	assert.Equal(t, "A-1", records[0]["sku"])
	assert.Equal(t, "11", records[0]["@id"])
	assert.Equal(t, "4.50", records[1]["price"])
}

func TestXMLRecordPathSuffixMatch(t *testing.T) {
	path := writeTempFile(t, "feed.xml", sampleXML)

	p, _ := ParserFor(models.SourceFormatXML)
	it, err := p.Records(path, Options{RecordPath: "product"})
	require.NoError(t, err)
	assert.Len(t, drain(t, it), 2)
}

func TestXMLRequiresRecordPath(t *testing.T) {
	path := writeTempFile(t, "feed.xml", sampleXML)

	p, _ := ParserFor(models.SourceFormatXML)
	_, err := p.Records(path, Options{})
	assert.Error(t, err)
}

func TestXMLDetectHeaders(t *testing.T) {
	path := writeTempFile(t, "feed.xml", sampleXML)

	p, _ := ParserFor(models.SourceFormatXML)
	headers, err := p.DetectHeaders(path, Options{RecordPath: "product"})
	require.NoError(t, err)
	assert.Equal(t, []string{"@id", "name", "price", "sku"}, headers)
}

func TestJSONRecordsRootArray(t *testing.T) {
	path := writeTempFile(t, "feed.json",
		`[{"sku":"A-1","price":9.9,"active":true},{"sku":"A-2","price":4.5,"tags":["a","b"]}]`)

	p, _ := ParserFor(models.SourceFormatJSON)
	it, err := p.Records(path, Options{})
	require.NoError(t, err)

	records := drain(t, it)
	require.Len(t, records, 2)
	assert.Equal(t, "A-1", records[0]["sku"])
	assert.Equal(t, "9.9", records[0]["price"])
	assert.Equal(t, "true", records[0]["active"])
	assert.Equal(t, `["a","b"]`, records[1]["tags"])
}

func TestJSONRecordsNestedPath(t *testing.T) {
	path := writeTempFile(t, "feed.json",
		`{"meta":{"page":1},"data":{"items":[{"sku":"A-1"},{"sku":"A-2"}]}}`)

	p, _ := ParserFor(models.SourceFormatJSON)
	it, err := p.Records(path, Options{RecordPath: "data.items"})
	require.NoError(t, err)

	records := drain(t, it)
	require.Len(t, records, 2)
	assert.Equal(t, "A-2", records[1]["sku"])
}

func TestJSONMissingPathKey(t *testing.T) {
	path := writeTempFile(t, "feed.json", `{"data":[]}`)

	p, _ := ParserFor(models.SourceFormatJSON)
	_, err := p.Records(path, Options{RecordPath: "items"})
	assert.Error(t, err)
}

func TestSplitChunks(t *testing.T) {
	chunks := SplitChunks(250, 100)
	require.Len(t, chunks, 3)
	assert.Equal(t, Chunk{Index: 0, Offset: 0, Limit: 100}, chunks[0])
	assert.Equal(t, Chunk{Index: 2, Offset: 200, Limit: 50}, chunks[2])

	assert.Nil(t, SplitChunks(0, 100))
	assert.Equal(t, []Chunk{{Index: 0, Offset: 0, Limit: 7}}, SplitChunks(7, 0))
	assert.Equal(t, []Chunk{{Index: 0, Offset: 0, Limit: 7}}, SplitChunks(7, 100))
}

func TestCountRecords(t *testing.T) {
	path := writeTempFile(t, "count.csv", "sku\nA-1\nA-2\nA-3\n")

	p, _ := ParserFor(models.SourceFormatCSV)
	it, err := p.Records(path, Options{HasHeader: true})
	require.NoError(t, err)
	defer it.Close()

	total, err := CountRecords(it)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}
