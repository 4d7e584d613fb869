package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateLayout(t *testing.T) {
	dir, err := New(t.TempDir()).Create("/tmp/uploads/My Report.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(dir.DocID, "My Report__") {
		t.Errorf("doc id = %q", dir.DocID)
	}
	for _, sub := range []string{
		dir.TextDir(), dir.ImagesDir(), dir.TablesDir(),
		dir.ChartsDir(), dir.ParsedDir(), dir.AudioDir(),
		filepath.Join(dir.ImagesDir(), "ocr_processed"),
		filepath.Join(dir.ImagesDir(), "vlm_processed"),
	} {
		info, err := os.Stat(sub)
		if err != nil || !info.IsDir() {
			t.Errorf("missing subdirectory %s", sub)
		}
	}
}

func TestCreateUniqueIDs(t *testing.T) {
	store := New(t.TempDir())
	a, err := store.Create("same.pdf")
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.Create("same.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if a.DocID == b.DocID {
		t.Error("two workspaces for the same input must not collide")
	}
}

func TestTextRoundTrip(t *testing.T) {
	dir, err := New(t.TempDir()).Create("doc.txt")
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.SaveText("  body  "); err != nil {
		t.Fatal(err)
	}
	got, err := dir.ReadText()
	if err != nil {
		t.Fatal(err)
	}
	if got != "body" {
		t.Errorf("ReadText = %q, want trimmed body", got)
	}
	if err := dir.AppendText("\n\nmore"); err != nil {
		t.Fatal(err)
	}
	got, _ = dir.ReadText()
	if got != "body\n\nmore" {
		t.Errorf("after append = %q", got)
	}
}

func TestReadTextMissing(t *testing.T) {
	dir, err := New(t.TempDir()).Create("doc.txt")
	if err != nil {
		t.Fatal(err)
	}
	got, err := dir.ReadText()
	if err != nil || got != "" {
		t.Errorf("missing content should read empty, got %q, %v", got, err)
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	h, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// sha256("hello")
	if h != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Errorf("HashFile = %q", h)
	}
	h2, _ := HashFile(path)
	if h != h2 {
		t.Error("hash must be deterministic")
	}
}

func TestCleanup(t *testing.T) {
	dir, err := New(t.TempDir()).Create("doc.txt")
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir.Base); !os.IsNotExist(err) {
		t.Error("workspace should be gone after cleanup")
	}
}
