package structure

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"documind/extract"
	"documind/workspace"
)

func emptyExtraction(t *testing.T, source string) *extract.Extraction {
	t.Helper()
	dir, err := workspace.New(t.TempDir()).Create("input.png")
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.SaveText(""); err != nil {
		t.Fatal(err)
	}
	return &extract.Extraction{Dir: dir, DocID: dir.DocID, Source: source}
}

func TestRunSkipsLLMWithoutContent(t *testing.T) {
	// nil LLM client: any call into it would panic, proving the guardrail
	// short-circuits before generation.
	agent := NewAgent(nil, zap.NewNop())

	tests := []struct {
		name        string
		description string
		wantSummary string
	}{
		{
			name:        "with user description",
			description: "Team offsite photo",
			wantSummary: "No extractable text found. Team offsite photo",
		},
		{
			name:        "without user description",
			description: "",
			wantSummary: "No extractable text found. Image file: photo.png",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := agent.Run(context.Background(), &Input{
				Extraction:      emptyExtraction(t, "image"),
				SourceID:        "photo.png",
				UserDescription: tt.description,
				FileHash:        "abc",
			})
			if err != nil {
				t.Fatal(err)
			}
			if rec.Summary != tt.wantSummary {
				t.Errorf("summary = %q, want %q", rec.Summary, tt.wantSummary)
			}
			if rec.FileHash != "abc" || rec.SourceID != "photo.png" {
				t.Errorf("record fields lost: %+v", rec)
			}
		})
	}
}

func TestRunSavesStructuredRecord(t *testing.T) {
	agent := NewAgent(nil, zap.NewNop())
	ext := emptyExtraction(t, "image")

	rec, err := agent.Run(context.Background(), &Input{
		Extraction: ext,
		SourceID:   "photo__ab12cd34",
	})
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(ext.Dir.ParsedDir(), "structured.json"))
	if err != nil {
		t.Fatalf("structured record not written: %v", err)
	}
	var saved Record
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}
	if saved.SourceID != rec.SourceID || saved.Summary != rec.Summary {
		t.Errorf("saved record = %+v, want %+v", saved, rec)
	}
}

func TestDefaultSummary(t *testing.T) {
	excel := &extract.Extraction{
		Source: "excel",
		Tables: []extract.Table{
			{Sheet: "Sales", Rows: 10, Columns: 3},
		},
	}
	got := defaultSummary(excel, "book.xlsx")
	want := "Excel workbook with 1 sheet (Sales) containing 10 rows and 3 columns of data"
	if got != want {
		t.Errorf("excel summary = %q, want %q", got, want)
	}

	multi := &extract.Extraction{
		Source: "excel",
		Tables: []extract.Table{
			{Sheet: "Q1", Rows: 5, Columns: 2},
			{Sheet: "Q2", Rows: 7, Columns: 2},
		},
	}
	got = defaultSummary(multi, "book.xlsx")
	if !strings.Contains(got, "2 sheets") || !strings.Contains(got, "12 rows") {
		t.Errorf("multi-sheet summary = %q", got)
	}

	csv := &extract.Extraction{
		Source: "csv",
		Tables: []extract.Table{
			{Rows: 4, Columns: 2, Headers: []string{"a", "b"}},
		},
	}
	got = defaultSummary(csv, "data.csv")
	want = "CSV file with 4 rows and 2 columns (columns: a, b)"
	if got != want {
		t.Errorf("csv summary = %q, want %q", got, want)
	}
}

func TestTablesDigestCapsAtThree(t *testing.T) {
	tables := make([]extract.Table, 5)
	for i := range tables {
		tables[i] = extract.Table{Sheet: "S", Rows: 1, Columns: 1, Headers: []string{"h"}}
	}
	digest := tablesDigest(tables)
	if !strings.Contains(digest, "... and 2 more tables") {
		t.Errorf("digest should cap table list:\n%s", digest)
	}
}
