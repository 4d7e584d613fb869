package prompts

import (
	_ "embed"
	"strings"
)

// Embedded prompt files

//go:embed parsing.txt
var parsing string

//go:embed table_analysis_excel.txt
var tableAnalysisExcel string

//go:embed table_analysis_csv.txt
var tableAnalysisCSV string

//go:embed table_analysis_generic.txt
var tableAnalysisGeneric string

//go:embed chat_system.txt
var chatSystem string

// Parsing renders the document structuring prompt with the (already
// truncated) document content.
func Parsing(text string) string {
	return strings.ReplaceAll(parsing, "{TEXT}", text)
}

// TableAnalysisExcel renders the workbook analysis prompt. The chart
// question and output section are only included when charts exist.
func TableAnalysisExcel(tables, charts string, hasCharts bool) string {
	p := tableAnalysisExcel
	if hasCharts {
		p = strings.ReplaceAll(p, "{CHART_QUESTION}", "5. For each chart found, explain what it visualizes and what insights it provides")
		p = strings.ReplaceAll(p, "{CHART_SECTION}", `,
  "chart_analysis": [{"chart_title": "title", "chart_type": "type", "purpose": "what it shows", "key_insights": ["insight 1", "insight 2"]}]`)
	} else {
		p = strings.ReplaceAll(p, "{CHART_QUESTION}", "")
		p = strings.ReplaceAll(p, "{CHART_SECTION}", "")
	}
	p = strings.ReplaceAll(p, "{TABLES}", tables)
	return strings.ReplaceAll(p, "{CHARTS}", charts)
}

// TableAnalysisCSV renders the CSV analysis prompt.
func TableAnalysisCSV(tables string) string {
	return strings.ReplaceAll(tableAnalysisCSV, "{TABLES}", tables)
}

// TableAnalysisGeneric renders the fallback table analysis prompt.
func TableAnalysisGeneric(tables string) string {
	return strings.ReplaceAll(tableAnalysisGeneric, "{TABLES}", tables)
}

// ChatSystem is the system prompt for the query engine.
func ChatSystem() string { return chatSystem }
