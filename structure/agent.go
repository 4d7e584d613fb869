package structure

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"documind/extract"
	"documind/imaging"
	"documind/llmclient"
	"documind/prompts"
)

const (
	// Budget of document text handed to the summarization model.
	llmTextBudget = 3500
	// Tables included in the prompt digest.
	maxDigestTables = 3

	tableAnalysisTemperature = 0.3
)

// Agent produces structured records from extraction output.
type Agent struct {
	llm    *llmclient.Client
	logger *zap.Logger
}

func NewAgent(llm *llmclient.Client, logger *zap.Logger) *Agent {
	return &Agent{llm: llm, logger: logger}
}

// Input carries everything the agent needs about one extracted document.
type Input struct {
	Extraction      *extract.Extraction
	Report          *imaging.Report
	SourceID        string
	Author          string
	UserDescription string
	FileHash        string
}

// Run builds the document record: preprocessed content, LLM summary and
// language, plus table analysis for spreadsheet sources. Documents with
// no usable text, tables or image findings skip the LLM entirely.
func (a *Agent) Run(ctx context.Context, in *Input) (*Record, error) {
	ext := in.Extraction
	raw, err := ext.Dir.ReadText()
	if err != nil {
		return nil, err
	}
	clean := Preprocess(raw)

	var records []imaging.Analysis
	if in.Report != nil {
		records = in.Report.Records
	}

	rec := &Record{
		SourceID:        in.SourceID,
		Source:          ext.Source,
		Language:        "unknown",
		Author:          in.Author,
		UserDescription: in.UserDescription,
		TablesCount:     len(ext.Tables),
		FileHash:        in.FileHash,
		ImagesAnalysis:  records,
	}

	hasText := len(strings.TrimSpace(clean)) > 10
	if !hasText && len(ext.Tables) == 0 && len(records) == 0 {
		desc := strings.TrimSpace(in.UserDescription)
		if len(desc) <= 5 {
			desc = "Image file: " + in.SourceID
		}
		rec.Summary = "No extractable text found. " + desc
		a.logger.Info("Document has no analyzable content, skipping LLM",
			zap.String("source_id", in.SourceID))
		return a.finish(ext, rec)
	}

	promptText := Truncate(clean, llmTextBudget)
	if digest := tablesDigest(ext.Tables); digest != "" {
		promptText += "\n\n" + digest
	}
	if digest := imagesDigest(records); digest != "" {
		promptText += "\n\n" + digest
	}

	summary, language := a.summarize(ctx, promptText, in.SourceID)
	if summary == "" {
		summary = defaultSummary(ext, in.SourceID)
	}
	rec.Summary = summary
	if language != "" {
		rec.Language = language
	}

	if rec.IsSpreadsheet() {
		rec.Tables = ext.Tables
		rec.Charts = readCharts(ext.Dir.ChartsDir())
		analysis, err := a.AnalyzeTables(ctx, ext)
		if err != nil {
			a.logger.Warn("Table analysis failed", zap.String("source_id", in.SourceID), zap.Error(err))
		} else {
			rec.Analysis = analysis
		}
	} else {
		rec.CleanContent = cleanContentWithImages(clean, records)
	}

	return a.finish(ext, rec)
}

func (a *Agent) finish(ext *extract.Extraction, rec *Record) (*Record, error) {
	if err := ext.Dir.SaveJSON(filepath.Join("parsed", "structured.json"), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// summarize asks the LLM for language plus semantic summary. Any failure
// degrades to empty values; the caller substitutes defaults.
func (a *Agent) summarize(ctx context.Context, text, sourceID string) (summary, language string) {
	reply, err := a.llm.Chat(ctx, []llmclient.Message{
		{Role: "user", Content: prompts.Parsing(text)},
	}, nil)
	if err != nil {
		a.logger.Warn("Summarization call failed", zap.String("source_id", sourceID), zap.Error(err))
		return "", ""
	}

	payload, ok := ExtractJSON(reply)
	if !ok {
		a.logger.Warn("Summarization reply had no JSON", zap.String("source_id", sourceID))
		return "", ""
	}
	var parsed struct {
		Language string `json:"language"`
		Summary  string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return "", ""
	}
	return strings.TrimSpace(parsed.Summary), strings.ToLower(strings.TrimSpace(parsed.Language))
}

// AnalyzeTables runs the source-appropriate table analysis prompt and
// persists the result as tables/analysis.json.
func (a *Agent) AnalyzeTables(ctx context.Context, ext *extract.Extraction) (string, error) {
	if len(ext.Tables) == 0 {
		return "", nil
	}

	tablesJSON, err := json.MarshalIndent(digestForAnalysis(ext.Tables), "", "  ")
	if err != nil {
		return "", err
	}

	charts := readCharts(ext.Dir.ChartsDir())
	var prompt string
	switch ext.Source {
	case "excel":
		chartText := ""
		if len(charts) > 0 {
			chartText = "CHARTS:\n" + string(charts)
		}
		prompt = prompts.TableAnalysisExcel(string(tablesJSON), chartText, len(charts) > 0)
	case "csv":
		prompt = prompts.TableAnalysisCSV(string(tablesJSON))
	default:
		prompt = prompts.TableAnalysisGeneric(string(tablesJSON))
	}

	temp := tableAnalysisTemperature
	reply, err := a.llm.Chat(ctx, []llmclient.Message{{Role: "user", Content: prompt}}, &temp)
	if err != nil {
		return "", err
	}

	analysis, ok := ExtractJSON(reply)
	if !ok {
		analysis = strings.TrimSpace(reply)
	}
	if err := ext.Dir.SaveJSON(filepath.Join("tables", "analysis.json"), json.RawMessage(analysis)); err != nil {
		// Non-JSON replies cannot be saved raw; keep the analysis anyway.
		a.logger.Debug("Could not persist table analysis", zap.Error(err))
	}
	return analysis, nil
}

// digestForAnalysis limits table payloads so workbook-sized inputs fit a
// prompt: headers plus the first rows of each table.
func digestForAnalysis(tables []extract.Table) []map[string]any {
	const maxRows = 20
	out := make([]map[string]any, 0, len(tables))
	for _, t := range tables {
		rows := t.Data
		if len(rows) > maxRows {
			rows = rows[:maxRows]
		}
		out = append(out, map[string]any{
			"name":    t.Name,
			"sheet":   t.Sheet,
			"rows":    t.Rows,
			"columns": t.Columns,
			"headers": t.Headers,
			"data":    rows,
		})
	}
	return out
}

func tablesDigest(tables []extract.Table) string {
	if len(tables) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("TABLES FOUND:\n")
	for i, t := range tables {
		if i >= maxDigestTables {
			fmt.Fprintf(&b, "... and %d more tables\n", len(tables)-maxDigestTables)
			break
		}
		location := t.Sheet
		if location == "" && t.Page > 0 {
			location = fmt.Sprintf("page %d", t.Page)
		}
		if location == "" && t.Slide > 0 {
			location = fmt.Sprintf("slide %d", t.Slide)
		}
		fmt.Fprintf(&b, "Table %d (Location: %s, Columns: %d, Rows: %d, Headers: %s)\n",
			i+1, location, t.Columns, t.Rows, strings.Join(t.Headers, ", "))
	}
	return strings.TrimSpace(b.String())
}

func imagesDigest(records []imaging.Analysis) string {
	if len(records) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("IMAGE ANALYSIS:\n")
	for _, r := range records {
		fmt.Fprintf(&b, "[%s - %s]: %s\n", strings.ToUpper(r.Method), r.Image, r.Content)
	}
	return strings.TrimSpace(b.String())
}

// cleanContentWithImages appends the image findings to the cleaned text
// so they are retrievable alongside it.
func cleanContentWithImages(clean string, records []imaging.Analysis) string {
	if len(records) == 0 {
		return clean
	}
	var b strings.Builder
	b.WriteString(clean)
	b.WriteString("\n\n--- IMAGE ANALYSIS ---\n")
	for _, r := range records {
		fmt.Fprintf(&b, "[%s - %s]: %s\n", strings.ToUpper(r.Method), r.Image, r.Content)
	}
	return strings.TrimSpace(b.String())
}

// defaultSummary covers LLM failures with a structural description.
func defaultSummary(ext *extract.Extraction, sourceID string) string {
	switch ext.Source {
	case "excel":
		sheets := map[string]bool{}
		totalRows, maxCols := 0, 0
		for _, t := range ext.Tables {
			sheets[t.Sheet] = true
			totalRows += t.Rows
			if t.Columns > maxCols {
				maxCols = t.Columns
			}
		}
		names := make([]string, 0, len(sheets))
		for name := range sheets {
			names = append(names, name)
		}
		if len(sheets) == 1 {
			return fmt.Sprintf("Excel workbook with 1 sheet (%s) containing %d rows and %d columns of data",
				names[0], totalRows, maxCols)
		}
		return fmt.Sprintf("Excel workbook with %d sheets containing %d rows of data",
			len(sheets), totalRows)
	case "csv":
		if len(ext.Tables) > 0 {
			t := ext.Tables[0]
			return fmt.Sprintf("CSV file with %d rows and %d columns (columns: %s)",
				t.Rows, t.Columns, strings.Join(t.Headers, ", "))
		}
		return "CSV file: " + sourceID
	default:
		return "Document: " + sourceID
	}
}

func readCharts(chartsDir string) json.RawMessage {
	data, err := os.ReadFile(filepath.Join(chartsDir, "charts.json"))
	if err != nil || !json.Valid(data) {
		return nil
	}
	return json.RawMessage(data)
}
