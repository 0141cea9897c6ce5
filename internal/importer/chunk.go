package importer

import "io"

// Chunk addresses one contiguous slice of a source for parallel
// processing. Offset/Limit are record positions, not bytes.
type Chunk struct {
	Index  int `json:"index"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// SplitChunks divides total records into chunks of at most chunkSize.
// A non-positive chunkSize collapses to a single chunk; zero records
// yields no chunks at all.
func SplitChunks(total, chunkSize int) []Chunk {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 || chunkSize >= total {
		return []Chunk{{Index: 0, Offset: 0, Limit: total}}
	}

	chunks := make([]Chunk, 0, (total+chunkSize-1)/chunkSize)
	for offset := 0; offset < total; offset += chunkSize {
		limit := chunkSize
		if offset+limit > total {
			limit = total - offset
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Offset: offset, Limit: limit})
	}
	return chunks
}

// CountRecords walks an iterator to completion, returning the record
// total. Used to size a run before chunks are dispatched.
func CountRecords(it RecordIterator) (int, error) {
	total := 0
	for {
		_, err := it.Next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		total++
	}
}
