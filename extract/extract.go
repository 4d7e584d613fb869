// Package extract turns raw inputs (files, URLs, media) into workspace
// artifacts: plain text, tables, images and metadata. Each supported
// format has its own extractor registered by extension or input kind.
package extract

import (
	"context"

	"documind/workspace"
)

// InputKind classifies what an extractor consumes.
type InputKind string

const (
	KindFile    InputKind = "file"
	KindMedia   InputKind = "media"
	KindURL     InputKind = "url"
	KindYouTube InputKind = "youtube"
)

// Table is one extracted table; headers are separated from data rows.
type Table struct {
	Sheet      string     `json:"sheet,omitempty"`
	SheetIndex int        `json:"sheet_index,omitempty"`
	Name       string     `json:"name,omitempty"`
	Page       int        `json:"page,omitempty"`
	Slide      int        `json:"slide,omitempty"`
	Rows       int        `json:"rows"`
	Columns    int        `json:"columns"`
	Delimiter  string     `json:"delimiter,omitempty"`
	Encoding   string     `json:"encoding,omitempty"`
	Headers    []string   `json:"headers"`
	Data       [][]string `json:"data"`
}

// Extraction is the result of running one extractor: a populated
// workspace plus the list of image paths that may need OCR/VLM.
type Extraction struct {
	Dir    *workspace.Dir
	DocID  string
	Source string
	Images []string
	Tables []Table

	// Markdown carries heading structure when the source preserves it
	// (web pages); the chunker switches strategy on it.
	Markdown string
}

// Extractor converts one input into workspace artifacts. input is a file
// path for file/media kinds and a URL otherwise.
type Extractor interface {
	Extract(ctx context.Context, input string) (*Extraction, error)
}
