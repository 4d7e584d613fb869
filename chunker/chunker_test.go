package chunker

import (
	"strings"
	"testing"

	"documind/extract"
)

func baseMeta() map[string]string {
	return map[string]string{
		"source":     "pdf",
		"session_id": "s1",
		"chunk_type": "token",
	}
}

func TestTokenChunksSingle(t *testing.T) {
	c := New(512, 64, 6000)
	chunks := c.TokenChunks("One short sentence. Another short sentence.", baseMeta())
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Metadata["session_id"] != "s1" {
		t.Errorf("metadata not carried: %v", chunks[0].Metadata)
	}
}

func TestTokenChunksSplitsAndOverlaps(t *testing.T) {
	// 40 sentences of ~10 words each, ~13 estimated tokens per sentence,
	// against a 100-token budget, must produce several chunks.
	sentence := "The quarterly revenue figures exceeded all of our internal projections significantly."
	text := strings.Repeat(sentence+" ", 40)

	c := New(100, 20, 6000)
	chunks := c.TokenChunks(text, baseMeta())
	if len(chunks) < 3 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	// Overlap means consecutive chunks share a sentence.
	for i := 1; i < len(chunks); i++ {
		first := strings.SplitN(chunks[i].Content, ".", 2)[0]
		if !strings.Contains(chunks[i-1].Content, first) {
			t.Errorf("chunk %d does not overlap its predecessor", i)
		}
	}
}

func TestTokenChunksEmpty(t *testing.T) {
	c := New(512, 64, 6000)
	if chunks := c.TokenChunks("   ", baseMeta()); chunks != nil {
		t.Errorf("expected nil for blank input, got %d chunks", len(chunks))
	}
}

func TestTruncateCapsContent(t *testing.T) {
	c := New(512, 64, 100)
	got := c.Truncate(strings.Repeat("a", 200))
	if len(got) != 103 || !strings.HasSuffix(got, "...") {
		t.Errorf("Truncate produced %d chars", len(got))
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Revenue ($)", "revenue"},
		{"First Name", "first_name"},
		{"  Q1/Q2 Totals  ", "q1_q2_totals"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeKey(tt.header); got != tt.want {
			t.Errorf("sanitizeKey(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestRowChunks(t *testing.T) {
	table := extract.Table{
		Sheet:   "Sales",
		Rows:    2,
		Columns: 2,
		Headers: []string{"Region", "Total"},
		Data: [][]string{
			{"North", "100"},
			{"South", "200"},
		},
	}
	c := New(512, 64, 6000)
	chunks := c.RowChunks(table, baseMeta())
	if len(chunks) != 2 {
		t.Fatalf("expected 2 row chunks, got %d", len(chunks))
	}
	want := "[Sales - Row 2] Region: North, Total: 100"
	if chunks[0].Content != want {
		t.Errorf("row chunk = %q, want %q", chunks[0].Content, want)
	}
	if chunks[0].Metadata["chunk_type"] != "excel_row" {
		t.Errorf("chunk_type = %q", chunks[0].Metadata["chunk_type"])
	}
	if chunks[0].Metadata["region"] != "North" {
		t.Errorf("column metadata missing: %v", chunks[0].Metadata)
	}
	if chunks[1].Content != "[Sales - Row 3] Region: South, Total: 200" {
		t.Errorf("second row = %q", chunks[1].Content)
	}
}

func TestSummaryChunk(t *testing.T) {
	table := extract.Table{
		Sheet:   "Inventory",
		Rows:    42,
		Headers: []string{"SKU", "Count"},
	}
	c := New(512, 64, 6000)
	chunk := c.SummaryChunk(table, baseMeta())
	want := "Sheet 'Inventory' contains 42 rows with columns: SKU, Count"
	if chunk.Content != want {
		t.Errorf("summary chunk = %q, want %q", chunk.Content, want)
	}
	if chunk.Metadata["chunk_type"] != "excel_summary" {
		t.Errorf("chunk_type = %q", chunk.Metadata["chunk_type"])
	}
}

func TestStructureChunks(t *testing.T) {
	md := `# Overview

This system ingests documents.

## Architecture

The pipeline has several stages.

## Deployment

Run it behind a load balancer.`

	c := New(512, 64, 6000)
	chunks := c.StructureChunks(md, baseMeta())
	if len(chunks) != 3 {
		t.Fatalf("expected 3 section chunks, got %d", len(chunks))
	}
	if !strings.Contains(chunks[1].Content, "Architecture") {
		t.Errorf("section heading lost: %q", chunks[1].Content)
	}
	if chunks[1].Metadata["section"] != "Architecture" {
		t.Errorf("section metadata = %q", chunks[1].Metadata["section"])
	}
	for _, ch := range chunks {
		if ch.Metadata["chunk_type"] != "structure" {
			t.Errorf("chunk_type = %q", ch.Metadata["chunk_type"])
		}
	}
}
