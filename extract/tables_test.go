package extract

import (
	"strings"
	"testing"
)

func TestPreprocessTable(t *testing.T) {
	grid := [][]string{
		{"Name", "Value", "Empty"},
		{" Alice ", "nan", ""},
		{"", "", ""},
		{"Bob", "42", ""},
	}
	got := PreprocessTable(grid)
	if len(got) != 3 {
		t.Fatalf("all-empty data rows should be dropped, got %d rows", len(got))
	}
	if got[1][0] != "Alice" {
		t.Errorf("cells should be trimmed, got %q", got[1][0])
	}
	if got[1][1] != "" {
		t.Errorf("null-ish values should clear, got %q", got[1][1])
	}
	// The "Empty" column has no values outside the header and goes away.
	if len(got[0]) != 2 {
		t.Errorf("empty columns should be dropped, header = %v", got[0])
	}
}

func TestPreprocessTableKeepsHeaderOnlyGrid(t *testing.T) {
	grid := [][]string{{"A", "B"}}
	got := PreprocessTable(grid)
	if len(got) != 1 || len(got[0]) != 2 {
		t.Errorf("header-only grid should survive, got %v", got)
	}
}

func TestCleanNumeric(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"32.0", "32"},
		{"32.50", "32.50"},
		{"-7.0", "-7"},
		{"hello", "hello"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanNumeric(tt.in); got != tt.want {
			t.Errorf("CleanNumeric(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTableMarkdown(t *testing.T) {
	grid := [][]string{
		{"City", "Pop"},
		{"Oslo", "700000"},
	}
	md := FormatTableMarkdown(grid)
	lines := strings.Split(md, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header, separator and one row, got %d lines", len(lines))
	}
	if lines[0] != "| City | Pop |" {
		t.Errorf("header row = %q", lines[0])
	}
	if lines[1] != "| --- | --- |" {
		t.Errorf("separator row = %q", lines[1])
	}
}

func TestDetectNumericColumns(t *testing.T) {
	grid := [][]string{
		{"Region", "Revenue"},
		{"North", "$1,200"},
		{"South", "2400"},
		{"West", "3,600"},
	}
	numeric := DetectNumericColumns(grid)
	if len(numeric) != 1 || numeric[0] != "Revenue" {
		t.Errorf("numeric columns = %v, want [Revenue]", numeric)
	}
}

func TestSplitHeaders(t *testing.T) {
	headers, rows := SplitHeaders([][]string{{"A", "B"}, {"1", "2"}})
	if len(headers) != 2 || headers[0] != "A" {
		t.Errorf("headers = %v", headers)
	}
	if len(rows) != 1 || rows[0][1] != "2" {
		t.Errorf("rows = %v", rows)
	}
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		line string
		want rune
	}{
		{"a,b,c", ','},
		{"a;b;c", ';'},
		{"a\tb\tc", '\t'},
		{"a|b|c", '|'},
		{"plain", ','},
	}
	for _, tt := range tests {
		if got := sniffDelimiter(tt.line); got != tt.want {
			t.Errorf("sniffDelimiter(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestRegistryRouting(t *testing.T) {
	if !IsMediaFile("talk.mp3") || IsMediaFile("report.pdf") {
		t.Error("media detection by extension failed")
	}
	if !IsYouTubeURL("https://youtu.be/abc") || IsYouTubeURL("https://example.com") {
		t.Error("youtube detection failed")
	}
}
