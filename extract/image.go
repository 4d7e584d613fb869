package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"documind/workspace"
)

func renameFile(src, dst string) (string, error) {
	if err := os.Rename(src, dst); err != nil {
		return src, err
	}
	return dst, nil
}

// ImageExtractor stages a standalone image for OCR/VLM analysis. The
// content text starts empty; the image arbiter fills it in.
type ImageExtractor struct {
	ws     *workspace.Store
	logger *zap.Logger
}

func (e *ImageExtractor) Extract(ctx context.Context, path string) (*Extraction, error) {
	dir, err := e.ws.Create(path)
	if err != nil {
		return nil, err
	}

	ext := filepath.Ext(path)
	staged, err := dir.CopyInto("images", path)
	if err != nil {
		return nil, err
	}
	// Normalize the staged name so downstream references are stable
	target := filepath.Join(dir.ImagesDir(), fmt.Sprintf("img_1%s", ext))
	if staged != target {
		if renamed, rerr := renameFile(staged, target); rerr == nil {
			staged = renamed
		}
	}

	if err := dir.SaveText(""); err != nil {
		return nil, err
	}
	if err := dir.SaveMetadata(map[string]any{
		"source":       "image",
		"images_found": 1,
	}); err != nil {
		return nil, err
	}

	e.logger.Info("Staged image for analysis", zap.String("doc_id", dir.DocID))
	return &Extraction{Dir: dir, DocID: dir.DocID, Source: "image", Images: []string{staged}}, nil
}
