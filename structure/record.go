package structure

import (
	"encoding/json"

	"documind/extract"
	"documind/imaging"
)

// Record is the structured representation of one ingested document. It
// is what gets stored in the session object store and drives chunking.
type Record struct {
	SourceID        string             `json:"source_id"`
	Source          string             `json:"source"`
	Language        string             `json:"language"`
	Author          string             `json:"author,omitempty"`
	UserDescription string             `json:"user_description,omitempty"`
	Summary         string             `json:"summary"`
	TablesCount     int                `json:"tables_count"`
	FileHash        string             `json:"file_hash"`
	CleanContent    string             `json:"clean_content,omitempty"`
	Analysis        string             `json:"analysis,omitempty"`
	Charts          json.RawMessage    `json:"charts,omitempty"`
	Tables          []extract.Table    `json:"tables,omitempty"`
	ImagesAnalysis  []imaging.Analysis `json:"images_analysis,omitempty"`
}

// IsSpreadsheet reports whether the record came from tabular sources
// whose content lives in Tables rather than CleanContent.
func (r *Record) IsSpreadsheet() bool {
	return r.Source == "excel" || r.Source == "csv"
}
