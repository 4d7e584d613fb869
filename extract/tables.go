package extract

import (
	"strconv"
	"strings"
)

// PreprocessTable cleans a raw cell grid: null-ish strings become empty,
// cells are trimmed, all-empty data rows are dropped (the header row
// survives), and all-empty columns are removed.
func PreprocessTable(data [][]string) [][]string {
	if len(data) == 0 {
		return nil
	}

	cleaned := make([][]string, 0, len(data))
	for _, row := range data {
		cleanedRow := make([]string, len(row))
		for i, cell := range row {
			v := strings.TrimSpace(cell)
			switch strings.ToLower(v) {
			case "none", "null", "nan":
				v = ""
			}
			cleanedRow[i] = v
		}
		cleaned = append(cleaned, cleanedRow)
	}

	if len(cleaned) > 1 {
		kept := cleaned[:1]
		for _, row := range cleaned[1:] {
			empty := true
			for _, cell := range row {
				if cell != "" {
					empty = false
					break
				}
			}
			if !empty {
				kept = append(kept, row)
			}
		}
		cleaned = kept
	}

	// Column emptiness is judged on data cells; a header label alone does
	// not keep a column alive.
	dataRows := cleaned
	if len(cleaned) > 1 {
		dataRows = cleaned[1:]
	}
	numCols := len(cleaned[0])
	colsToKeep := make([]int, 0, numCols)
	for col := 0; col < numCols; col++ {
		for _, row := range dataRows {
			if col < len(row) && row[col] != "" {
				colsToKeep = append(colsToKeep, col)
				break
			}
		}
	}
	if len(colsToKeep) == numCols {
		return cleaned
	}

	out := make([][]string, len(cleaned))
	for i, row := range cleaned {
		newRow := make([]string, 0, len(colsToKeep))
		for _, col := range colsToKeep {
			if col < len(row) {
				newRow = append(newRow, row[col])
			}
		}
		out[i] = newRow
	}
	return out
}

// CleanNumeric collapses integer-valued floats ("32.0" becomes "32").
func CleanNumeric(value string) string {
	if value == "" {
		return value
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return value
}

// CleanNumericTable applies CleanNumeric to every cell.
func CleanNumericTable(data [][]string) [][]string {
	for _, row := range data {
		for i, cell := range row {
			row[i] = CleanNumeric(cell)
		}
	}
	return data
}

// FormatTableMarkdown renders a cell grid as a markdown table, first row
// as header.
func FormatTableMarkdown(data [][]string) string {
	if len(data) == 0 {
		return ""
	}
	var b strings.Builder
	header := data[0]
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	seps := make([]string, len(header))
	for i := range seps {
		seps[i] = "---"
	}
	b.WriteString("| " + strings.Join(seps, " | ") + " |\n")
	for _, row := range data[1:] {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// DetectNumericColumns returns headers of columns where over 70% of the
// non-empty cells parse as numbers.
func DetectNumericColumns(data [][]string) []string {
	if len(data) < 2 {
		return nil
	}
	var numericCols []string
	headers := data[0]
	for col, header := range headers {
		numeric, total := 0, 0
		for _, row := range data[1:] {
			if col >= len(row) {
				continue
			}
			cell := strings.TrimSpace(row[col])
			if cell == "" {
				continue
			}
			total++
			normalized := strings.ReplaceAll(strings.ReplaceAll(cell, ",", ""), "$", "")
			if _, err := strconv.ParseFloat(normalized, 64); err == nil {
				numeric++
			}
		}
		if total > 0 && float64(numeric)/float64(total) > 0.7 {
			name := header
			if name == "" {
				name = "Column " + strconv.Itoa(col+1)
			}
			numericCols = append(numericCols, name)
		}
	}
	return numericCols
}

// SplitHeaders separates the header row from the data rows of a cleaned
// grid.
func SplitHeaders(data [][]string) (headers []string, rows [][]string) {
	if len(data) == 0 {
		return nil, nil
	}
	headers = data[0]
	if len(data) > 1 {
		rows = data[1:]
	}
	return headers, rows
}
