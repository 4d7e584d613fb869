package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"documind/errors"
	"documind/workspace"
)

// PDFExtractor pulls page text out of PDFs.
type PDFExtractor struct {
	ws     *workspace.Store
	logger *zap.Logger
}

func (e *PDFExtractor) Extract(ctx context.Context, path string) (*Extraction, error) {
	dir, err := e.ws.Create(path)
	if err != nil {
		return nil, err
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, errors.WrapErrorf(errors.ErrParseFailure, "open pdf %s: %v", filepath.Base(path), err)
	}
	defer f.Close()

	var text strings.Builder
	totalPages := r.NumPage()
	pagesWithText := 0

	for pageIndex := 1; pageIndex <= totalPages; pageIndex++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Warn("Could not read pdf page",
				zap.Int("page", pageIndex), zap.Error(err))
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		pagesWithText++
		fmt.Fprintf(&text, "--- Page %d ---\n%s\n\n", pageIndex, pageText)
	}

	if err := dir.SaveText(text.String()); err != nil {
		return nil, err
	}
	if err := dir.SaveMetadata(map[string]any{
		"source":          "pdf",
		"pages":           totalPages,
		"pages_with_text": pagesWithText,
	}); err != nil {
		return nil, err
	}

	e.logger.Info("Extracted PDF",
		zap.String("doc_id", dir.DocID),
		zap.Int("pages", totalPages))
	return &Extraction{Dir: dir, DocID: dir.DocID, Source: "pdf"}, nil
}
