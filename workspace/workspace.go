package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"documind/errors"
)

// Store manages per-document artifact directories under a common root.
type Store struct {
	root string
}

// Dir is the artifact directory for a single document. All extraction
// stages write into it; it is removed once the document is persisted.
type Dir struct {
	DocID string
	Base  string
}

func New(root string) *Store {
	return &Store{root: root}
}

// Create allocates a workspace for the given input name. The document id is
// the input's base name plus a short random suffix, so two uploads of the
// same file never collide.
func (s *Store) Create(inputName string) (*Dir, error) {
	base := strings.TrimSuffix(filepath.Base(inputName), filepath.Ext(inputName))
	if base == "" {
		base = "document"
	}
	shortID := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	docID := fmt.Sprintf("%s__%s", base, shortID)

	d := &Dir{DocID: docID, Base: filepath.Join(s.root, docID)}
	for _, sub := range []string{
		"text",
		"images",
		filepath.Join("images", "ocr_processed"),
		filepath.Join("images", "vlm_processed"),
		"tables",
		"charts",
		"parsed",
		"audio",
	} {
		if err := os.MkdirAll(filepath.Join(d.Base, sub), 0o755); err != nil {
			return nil, errors.WrapErrorf(err, "create workspace %s", docID)
		}
	}
	return d, nil
}

func (d *Dir) TextDir() string   { return filepath.Join(d.Base, "text") }
func (d *Dir) ImagesDir() string { return filepath.Join(d.Base, "images") }
func (d *Dir) TablesDir() string { return filepath.Join(d.Base, "tables") }
func (d *Dir) ChartsDir() string { return filepath.Join(d.Base, "charts") }
func (d *Dir) ParsedDir() string { return filepath.Join(d.Base, "parsed") }
func (d *Dir) AudioDir() string  { return filepath.Join(d.Base, "audio") }

// SaveText writes the document's primary text to text/content.txt,
// replacing any previous content.
func (d *Dir) SaveText(text string) error {
	path := filepath.Join(d.TextDir(), "content.txt")
	return os.WriteFile(path, []byte(strings.TrimSpace(text)), 0o644)
}

// AppendText appends a block to text/content.txt, creating it if missing.
func (d *Dir) AppendText(block string) error {
	path := filepath.Join(d.TextDir(), "content.txt")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(block)
	return err
}

// ReadText returns the current contents of text/content.txt. A missing
// file reads as empty.
func (d *Dir) ReadText() (string, error) {
	data, err := os.ReadFile(filepath.Join(d.TextDir(), "content.txt"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// SaveJSON marshals v with indentation into the given path relative to the
// workspace base. Parent directories must already exist.
func (d *Dir) SaveJSON(rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.WrapErrorf(err, "marshal %s", rel)
	}
	return os.WriteFile(filepath.Join(d.Base, rel), data, 0o644)
}

// ReadJSON unmarshals the JSON file at the given relative path into v.
func (d *Dir) ReadJSON(rel string, v any) error {
	data, err := os.ReadFile(filepath.Join(d.Base, rel))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// SaveTables writes tables/tables.json.
func (d *Dir) SaveTables(tables any) error {
	return d.SaveJSON(filepath.Join("tables", "tables.json"), tables)
}

// SaveCharts writes charts/charts.json.
func (d *Dir) SaveCharts(charts any) error {
	return d.SaveJSON(filepath.Join("charts", "charts.json"), charts)
}

// SaveMetadata writes metadata.json at the workspace base.
func (d *Dir) SaveMetadata(metadata any) error {
	return d.SaveJSON("metadata.json", metadata)
}

// CopyInto copies an external file into the named subdirectory and returns
// the destination path.
func (d *Dir) CopyInto(sub, srcPath string) (string, error) {
	dst := filepath.Join(d.Base, sub, filepath.Base(srcPath))
	src, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer src.Close()
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return "", err
	}
	return dst, nil
}

// Cleanup removes the whole workspace directory.
func (d *Dir) Cleanup() error {
	return os.RemoveAll(d.Base)
}

// HashFile returns the lowercase hex SHA-256 of a file's bytes. Used for
// content deduplication.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
