package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"documind/extract"
)

var metaKeyPattern = regexp.MustCompile(`[^a-z0-9]+`)

// sanitizeKey normalizes a column header into a metadata key.
func sanitizeKey(header string) string {
	key := metaKeyPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(header)), "_")
	key = strings.Trim(key, "_")
	if len(key) > 50 {
		key = key[:50]
	}
	return key
}

// RowChunks renders every data row of a table as its own chunk so that
// row-level facts stay retrievable. Row numbers match the spreadsheet
// view, where row 1 is the header.
func (c *Chunker) RowChunks(t extract.Table, base map[string]string) []Chunk {
	location := t.Sheet
	if location == "" {
		location = t.Name
	}
	if location == "" {
		location = "table"
	}

	chunks := make([]Chunk, 0, len(t.Data))
	for i, row := range t.Data {
		var pairs []string
		meta := cloneMeta(base)
		meta["chunk_type"] = "excel_row"
		for col, value := range row {
			if col >= len(t.Headers) {
				break
			}
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			pairs = append(pairs, fmt.Sprintf("%s: %s", t.Headers[col], value))
			if key := sanitizeKey(t.Headers[col]); key != "" {
				meta[key] = value
			}
		}
		if len(pairs) == 0 {
			continue
		}
		content := fmt.Sprintf("[%s - Row %d] %s", location, i+2, strings.Join(pairs, ", "))
		chunks = append(chunks, Chunk{Content: c.Truncate(content), Metadata: meta})
	}
	return chunks
}

// SummaryChunk is one chunk describing the table's shape, so queries
// about the sheet itself (not its rows) have something to hit.
func (c *Chunker) SummaryChunk(t extract.Table, base map[string]string) Chunk {
	location := t.Sheet
	if location == "" {
		location = t.Name
	}
	meta := cloneMeta(base)
	meta["chunk_type"] = "excel_summary"
	content := fmt.Sprintf("Sheet '%s' contains %d rows with columns: %s",
		location, t.Rows, strings.Join(t.Headers, ", "))
	return Chunk{Content: c.Truncate(content), Metadata: meta}
}

// TableChunks combines the summary chunk and the per-row chunks for all
// tables of a spreadsheet record.
func (c *Chunker) TableChunks(tables []extract.Table, base map[string]string) []Chunk {
	var chunks []Chunk
	for _, t := range tables {
		if len(t.Headers) == 0 {
			continue
		}
		chunks = append(chunks, c.SummaryChunk(t, base))
		chunks = append(chunks, c.RowChunks(t, base)...)
	}
	return chunks
}
