package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"documind/errors"
	"documind/workspace"
)

// ExcelExtractor handles .xlsx/.xls/.xlsm workbooks. Every sheet becomes
// one table; embedded pictures are exported for image analysis.
type ExcelExtractor struct {
	ws     *workspace.Store
	logger *zap.Logger
}

func (e *ExcelExtractor) Extract(ctx context.Context, path string) (*Extraction, error) {
	dir, err := e.ws.Create(path)
	if err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.WrapErrorf(errors.ErrParseFailure, "open workbook %s: %v", filepath.Base(path), err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var text strings.Builder
	fmt.Fprintf(&text, "EXCEL WORKBOOK: %s\n", filepath.Base(path))
	fmt.Fprintf(&text, "Total Sheets: %d\n\n", len(sheets))

	var tables []Table
	var images []string

	for sheetIdx, sheetName := range sheets {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fmt.Fprintf(&text, "\n%s\n", strings.Repeat("=", 60))
		fmt.Fprintf(&text, "SHEET %d: %s\n", sheetIdx+1, sheetName)
		fmt.Fprintf(&text, "%s\n\n", strings.Repeat("=", 60))

		rows, err := f.GetRows(sheetName)
		if err != nil {
			e.logger.Warn("Could not read sheet", zap.String("sheet", sheetName), zap.Error(err))
			continue
		}
		if len(rows) == 0 {
			text.WriteString("[Empty Sheet]\n")
			continue
		}

		grid := CleanNumericTable(PreprocessTable(rows))
		if len(grid) == 0 {
			text.WriteString("[Empty Sheet]\n")
			continue
		}
		headers, dataRows := SplitHeaders(grid)
		tables = append(tables, Table{
			Sheet:      sheetName,
			SheetIndex: sheetIdx + 1,
			Rows:       len(dataRows),
			Columns:    len(headers),
			Headers:    headers,
			Data:       dataRows,
		})

		fmt.Fprintf(&text, "[TABLE: %s]\n", sheetName)
		fmt.Fprintf(&text, "Dimensions: %d rows x %d columns\n\n", len(grid), len(grid[0]))
		text.WriteString(FormatTableMarkdown(grid))
		text.WriteString("\n\n")

		if numericCols := DetectNumericColumns(grid); len(numericCols) > 0 {
			fmt.Fprintf(&text, "Numeric columns detected: %s\n\n", strings.Join(numericCols, ", "))
		}

		images = append(images, e.exportPictures(f, dir, sheetName, sheetIdx+1)...)
	}

	if len(tables) > 0 {
		if err := dir.SaveTables(tables); err != nil {
			return nil, err
		}
		e.logger.Info("Extracted workbook tables",
			zap.String("doc_id", dir.DocID),
			zap.Int("sheets", len(tables)))
	}

	if err := dir.SaveText(text.String()); err != nil {
		return nil, err
	}
	if err := dir.SaveMetadata(map[string]any{
		"source":       "excel",
		"file_format":  strings.ToLower(filepath.Ext(path)),
		"sheets":       len(sheets),
		"tables_found": len(tables),
		"images_found": len(images),
	}); err != nil {
		return nil, err
	}

	return &Extraction{Dir: dir, DocID: dir.DocID, Source: "excel", Images: images, Tables: tables}, nil
}

func (e *ExcelExtractor) exportPictures(f *excelize.File, dir *workspace.Dir, sheetName string, sheetIdx int) []string {
	var saved []string
	cells, err := f.GetPictureCells(sheetName)
	if err != nil {
		return nil
	}
	imgIdx := 0
	for _, cell := range cells {
		pics, err := f.GetPictures(sheetName, cell)
		if err != nil {
			continue
		}
		for _, pic := range pics {
			imgIdx++
			name := fmt.Sprintf("sheet_%d_img_%d%s", sheetIdx, imgIdx, pic.Extension)
			path := filepath.Join(dir.ImagesDir(), name)
			if err := os.WriteFile(path, pic.File, 0o644); err != nil {
				e.logger.Warn("Could not save workbook image", zap.String("image", name), zap.Error(err))
				continue
			}
			saved = append(saved, path)
		}
	}
	return saved
}
