package imaging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"documind/workspace"
)

type fakeEngine struct {
	results map[string]*OCRResult
}

func (f *fakeEngine) Recognize(_ context.Context, imagePath string) (*OCRResult, error) {
	if r, ok := f.results[filepath.Base(imagePath)]; ok {
		return r, nil
	}
	return &OCRResult{}, nil
}

func writeImage(t *testing.T, dir *workspace.Dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir.ImagesDir(), name)
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xAB}, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestDir(t *testing.T) *workspace.Dir {
	t.Helper()
	dir, err := workspace.New(t.TempDir()).Create("doc.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.SaveText("Original body."); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestAnalyzeAcceptsConfidentOCR(t *testing.T) {
	dir := newTestDir(t)
	img := writeImage(t, dir, "img_1.png", 8*1024)

	engine := &fakeEngine{results: map[string]*OCRResult{
		"img_1.png": {Text: "Quarterly revenue summary", Confidence: 0.95},
	}}
	a := NewArbiter(NewPool(engine, 1), nil, 0.70, zap.NewNop())

	report, err := a.Analyze(context.Background(), dir, []string{img}, false)
	if err != nil {
		t.Fatal(err)
	}
	if report.OCRCount != 1 || report.VLMCount != 0 {
		t.Fatalf("report = %+v", report)
	}

	text, err := dir.ReadText()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "[Image Text (img_1.png): Quarterly revenue summary]") {
		t.Errorf("content missing OCR block:\n%s", text)
	}
	if !strings.HasPrefix(text, "Original body.") {
		t.Errorf("existing content lost:\n%s", text)
	}
	if _, err := os.Stat(filepath.Join(dir.ImagesDir(), "ocr_analysis.json")); err != nil {
		t.Error("ocr_analysis.json not written")
	}
}

func TestAnalyzeRejectsLowConfidenceOrShortText(t *testing.T) {
	tests := []struct {
		name   string
		result *OCRResult
	}{
		{"low confidence", &OCRResult{Text: "a perfectly long line of text", Confidence: 0.40}},
		{"short text", &OCRResult{Text: "hi", Confidence: 0.99}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newTestDir(t)
			img := writeImage(t, dir, "img_1.png", 8*1024)

			engine := &fakeEngine{results: map[string]*OCRResult{"img_1.png": tt.result}}
			a := NewArbiter(NewPool(engine, 1), nil, 0.70, zap.NewNop())

			report, err := a.Analyze(context.Background(), dir, []string{img}, false)
			if err != nil {
				t.Fatal(err)
			}
			if report.OCRCount != 0 {
				t.Errorf("rejected image was accepted: %+v", report)
			}
			text, _ := dir.ReadText()
			if strings.Contains(text, "[Image Text") {
				t.Errorf("rejected OCR leaked into content:\n%s", text)
			}
		})
	}
}

func TestAnalyzeSkipsTinyImages(t *testing.T) {
	dir := newTestDir(t)
	img := writeImage(t, dir, "spacer.png", 512)

	engine := &fakeEngine{results: map[string]*OCRResult{
		"spacer.png": {Text: "should never be consulted", Confidence: 1.0},
	}}
	a := NewArbiter(NewPool(engine, 1), nil, 0.70, zap.NewNop())

	report, err := a.Analyze(context.Background(), dir, []string{img}, false)
	if err != nil {
		t.Fatal(err)
	}
	if report.Skipped != 1 || report.OCRCount != 0 {
		t.Errorf("report = %+v, want 1 skipped", report)
	}
}
