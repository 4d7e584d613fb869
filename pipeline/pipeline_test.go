package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"documind/chunker"
	"documind/dedup"
	"documind/errors"
	"documind/extract"
	"documind/imaging"
	"documind/structure"
	"documind/vectorstore"
	"documind/workspace"
)

type memIndex struct {
	err   error
	texts []string
	metas []map[string]string
}

func (m *memIndex) Add(_ context.Context, texts []string, metas []map[string]string) error {
	if m.err != nil {
		return m.err
	}
	m.texts = append(m.texts, texts...)
	m.metas = append(m.metas, metas...)
	return nil
}

type memRecords struct {
	err      error
	appended []json.RawMessage
}

func (m *memRecords) AppendFiles(_ context.Context, _, _ string, records []json.RawMessage) error {
	if m.err != nil {
		return m.err
	}
	m.appended = append(m.appended, records...)
	return nil
}

// Dedup deps that never match, so every input runs the full pipeline.
type missIndex struct{}

func (missIndex) Exists(context.Context, vectorstore.Filter) (bool, error) { return false, nil }
func (missIndex) Get(context.Context, vectorstore.Filter) ([]vectorstore.Result, error) {
	return nil, nil
}
func (missIndex) Clone(context.Context, vectorstore.Filter, map[string]string) (int64, error) {
	return 0, nil
}

type missStore struct{}

func (missStore) FindDocumentByHash(context.Context, string) (json.RawMessage, error) {
	return nil, errors.WrapError(errors.ErrNotFound, "no match")
}
func (missStore) AppendFiles(context.Context, string, string, []json.RawMessage) error { return nil }

type countEngine struct {
	calls int32
}

func (e *countEngine) Recognize(context.Context, string) (*imaging.OCRResult, error) {
	atomic.AddInt32(&e.calls, 1)
	return &imaging.OCRResult{}, nil
}

func newTestPipeline(t *testing.T, index ChunkIndex, records RecordStore, engine imaging.Engine) *Pipeline {
	t.Helper()
	logger := zap.NewNop()
	ws := workspace.New(t.TempDir())
	registry := extract.NewRegistry(ws, nil, nil, 5, logger)
	arbiter := imaging.NewArbiter(imaging.NewPool(engine, 2), nil, 0.70, logger)
	agent := structure.NewAgent(nil, logger)
	ch := chunker.New(0, 0, 0)
	deduper := dedup.New(missStore{}, missIndex{}, logger)
	return New(registry, arbiter, agent, ch, deduper, records, index, logger)
}

func stageUpload(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessFileAssignsUniqueSourceID(t *testing.T) {
	index := &memIndex{}
	records := &memRecords{}
	pipe := newTestPipeline(t, index, records, &countEngine{})

	res, err := pipe.ProcessFile(context.Background(),
		FileInput{Path: stageUpload(t, "scan.png", 8*1024), Name: "scan.png", Type: "image/png"},
		Options{SessionID: "s1", Author: "alice"})
	if err != nil {
		t.Fatal(err)
	}

	if res.SourceID == "scan.png" {
		t.Error("source id must not be the raw filename")
	}
	if res.SourceID != res.DocID || !strings.HasPrefix(res.SourceID, "scan__") {
		t.Errorf("source id = %q, doc id = %q; want the per-ingest doc id", res.SourceID, res.DocID)
	}

	if len(records.appended) != 1 {
		t.Fatalf("records appended = %d, want 1", len(records.appended))
	}
	var rec struct {
		SourceID string `json:"source_id"`
		FileHash string `json:"file_hash"`
	}
	if err := json.Unmarshal(records.appended[0], &rec); err != nil {
		t.Fatal(err)
	}
	if rec.SourceID != res.DocID {
		t.Errorf("stored record source id = %q, want %q", rec.SourceID, res.DocID)
	}
	if rec.FileHash == "" {
		t.Error("stored record lost its file hash")
	}

	for _, meta := range index.metas {
		if meta["source_id"] != res.DocID {
			t.Errorf("chunk source id = %q, want %q", meta["source_id"], res.DocID)
		}
	}
}

func TestProcessFileVisionToggle(t *testing.T) {
	tests := []struct {
		name      string
		useVision bool
		wantCalls int32
	}{
		{"disabled skips image analysis", false, 0},
		{"enabled runs ocr", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &countEngine{}
			pipe := newTestPipeline(t, &memIndex{}, &memRecords{}, engine)

			_, err := pipe.ProcessFile(context.Background(),
				FileInput{Path: stageUpload(t, "chart.png", 8*1024), Name: "chart.png", Type: "image/png"},
				Options{SessionID: "s1", UseVision: tt.useVision})
			if err != nil {
				t.Fatal(err)
			}
			if got := atomic.LoadInt32(&engine.calls); got != tt.wantCalls {
				t.Errorf("ocr calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestIndexFailureStillPersistsRecord(t *testing.T) {
	index := &memIndex{err: fmt.Errorf("embedding server down")}
	records := &memRecords{}
	pipe := newTestPipeline(t, index, records, &countEngine{})

	res, err := pipe.ProcessFile(context.Background(),
		FileInput{Path: stageUpload(t, "scan.png", 8*1024), Name: "scan.png", Type: "image/png"},
		Options{SessionID: "s1"})
	if err != nil {
		t.Fatalf("indexing failure must not abort the item: %v", err)
	}
	if res.Status != StatusProcessed {
		t.Errorf("status = %q", res.Status)
	}
	if res.Chunks != 0 {
		t.Errorf("chunks = %d, want 0 after failed indexing", res.Chunks)
	}
	if len(records.appended) != 1 {
		t.Errorf("record must be persisted despite the indexing failure, got %d", len(records.appended))
	}
}

func TestStructuringFailureKeepsBareRecord(t *testing.T) {
	index := &memIndex{}
	records := &memRecords{}
	pipe := newTestPipeline(t, index, records, &countEngine{})

	dir, err := workspace.New(t.TempDir()).Create("broken.png")
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.SaveText(""); err != nil {
		t.Fatal(err)
	}
	// Remove parsed/ so the structuring stage cannot write its output.
	if err := os.RemoveAll(dir.ParsedDir()); err != nil {
		t.Fatal(err)
	}
	ext := &extract.Extraction{Dir: dir, DocID: dir.DocID, Source: "image"}

	res, err := pipe.finishDocument(context.Background(), ext, "hash123",
		Options{SessionID: "s1", Author: "alice"})
	if err != nil {
		t.Fatalf("structuring failure must not abort the item: %v", err)
	}
	if res.Status != StatusProcessed || res.SourceID != dir.DocID {
		t.Errorf("result = %+v", res)
	}

	if len(records.appended) != 1 {
		t.Fatalf("bare record must still be persisted, got %d", len(records.appended))
	}
	var rec struct {
		SourceID string `json:"source_id"`
		FileHash string `json:"file_hash"`
	}
	if err := json.Unmarshal(records.appended[0], &rec); err != nil {
		t.Fatal(err)
	}
	if rec.SourceID != dir.DocID || rec.FileHash != "hash123" {
		t.Errorf("bare record = %+v", rec)
	}
}
