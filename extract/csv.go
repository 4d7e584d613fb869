package extract

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"documind/errors"
	"documind/workspace"
)

// CSVExtractor treats a CSV file as a single table. The delimiter is
// sniffed from the first line.
type CSVExtractor struct {
	ws     *workspace.Store
	logger *zap.Logger
}

var numericCellPattern = regexp.MustCompile(`^-?\d+\.?\d*$`)

func sniffDelimiter(sample string) rune {
	firstLine := sample
	if idx := strings.IndexByte(sample, '\n'); idx >= 0 {
		firstLine = sample[:idx]
	}
	best, bestCount := ',', strings.Count(firstLine, ",")
	for _, cand := range []rune{';', '\t', '|'} {
		if n := strings.Count(firstLine, string(cand)); n > bestCount {
			best, bestCount = cand, n
		}
	}
	return best
}

func (e *CSVExtractor) Extract(ctx context.Context, path string) (*Extraction, error) {
	dir, err := e.ws.Create(path)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapErrorf(errors.ErrParseFailure, "read csv %s: %v", filepath.Base(path), err)
	}

	delimiter := sniffDelimiter(string(raw))
	reader := csv.NewReader(strings.NewReader(string(raw)))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	var text strings.Builder
	fmt.Fprintf(&text, "CSV FILE: %s\n\n", filepath.Base(path))

	if err != nil {
		fmt.Fprintf(&text, "[Error reading CSV file properly]\n%s", truncateString(string(raw), 1000))
		if werr := dir.SaveText(text.String()); werr != nil {
			return nil, werr
		}
		if werr := dir.SaveMetadata(map[string]any{
			"source": "csv", "error": "Could not parse CSV", "tables_found": 0,
		}); werr != nil {
			return nil, werr
		}
		return &Extraction{Dir: dir, DocID: dir.DocID, Source: "csv"}, nil
	}

	// Drop fully empty rows before any header logic
	var rows [][]string
	for _, row := range records {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				rows = append(rows, row)
				break
			}
		}
	}

	if len(rows) == 0 {
		text.WriteString("[Empty CSV file]\n")
		if werr := dir.SaveText(text.String()); werr != nil {
			return nil, werr
		}
		if werr := dir.SaveMetadata(map[string]any{
			"source": "csv", "tables_found": 0,
		}); werr != nil {
			return nil, werr
		}
		return &Extraction{Dir: dir, DocID: dir.DocID, Source: "csv"}, nil
	}

	grid := CleanNumericTable(PreprocessTable(rows))
	headers, dataRows := SplitHeaders(grid)
	table := Table{
		Name:      filepath.Base(path),
		Rows:      len(dataRows),
		Columns:   len(headers),
		Delimiter: string(delimiter),
		Encoding:  "utf-8",
		Headers:   headers,
		Data:      dataRows,
	}
	if err := dir.SaveTables([]Table{table}); err != nil {
		return nil, err
	}

	fmt.Fprintf(&text, "[TABLE: %s]\n", filepath.Base(path))
	fmt.Fprintf(&text, "Dimensions: %d rows x %d columns\n", len(grid), len(headers))
	fmt.Fprintf(&text, "Delimiter: '%s' | Encoding: utf-8\n\n", string(delimiter))
	text.WriteString(FormatTableMarkdown(grid))
	text.WriteString("\n\n")

	if numericCols := DetectNumericColumns(grid); len(numericCols) > 0 {
		fmt.Fprintf(&text, "Numeric columns detected: %s\n\n", strings.Join(numericCols, ", "))
	}

	// Heuristic: a mostly-numeric first row means the file has no header
	hasHeader := true
	if len(grid) > 1 {
		numeric := 0
		for _, cell := range headers {
			if numericCellPattern.MatchString(strings.TrimSpace(cell)) {
				numeric++
			}
		}
		if numeric > len(headers)/2 {
			hasHeader = false
		}
	}
	fmt.Fprintf(&text, "Header row detected: %v\n", hasHeader)

	if err := dir.SaveText(text.String()); err != nil {
		return nil, err
	}
	if err := dir.SaveMetadata(map[string]any{
		"source":       "csv",
		"delimiter":    string(delimiter),
		"rows":         table.Rows,
		"columns":      table.Columns,
		"tables_found": 1,
	}); err != nil {
		return nil, err
	}

	e.logger.Info("Extracted CSV",
		zap.String("doc_id", dir.DocID),
		zap.Int("rows", table.Rows))
	return &Extraction{Dir: dir, DocID: dir.DocID, Source: "csv", Tables: []Table{table}}, nil
}

func truncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
