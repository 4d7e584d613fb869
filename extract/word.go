package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"documind/errors"
	"documind/workspace"
)

// WordExtractor reads .docx files: paragraph text and tables from
// word/document.xml, images from word/media/.
type WordExtractor struct {
	ws     *workspace.Store
	logger *zap.Logger
}

// DOCX XML structures (simplified)
type docxDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    docxBody `xml:"body"`
}

type docxBody struct {
	Paras  []docxPara  `xml:"p"`
	Tables []docxTable `xml:"tbl"`
}

type docxPara struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

type docxTable struct {
	Rows []docxTableRow `xml:"tr"`
}

type docxTableRow struct {
	Cells []docxTableCell `xml:"tc"`
}

type docxTableCell struct {
	Paras []docxPara `xml:"p"`
}

func paraText(p docxPara) string {
	var b strings.Builder
	for _, run := range p.Runs {
		for _, t := range run.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}

func (e *WordExtractor) Extract(ctx context.Context, path string) (*Extraction, error) {
	dir, err := e.ws.Create(path)
	if err != nil {
		return nil, err
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.WrapErrorf(errors.ErrParseFailure, "open docx %s: %v", filepath.Base(path), err)
	}
	defer r.Close()

	var docXML []byte
	var images []string
	imgCounter := 0

	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return nil, errors.WrapError(errors.ErrParseFailure, err.Error())
			}
			docXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, err
			}
			continue
		}
		if strings.HasPrefix(f.Name, "word/media/") {
			imgCounter++
			ext := filepath.Ext(f.Name)
			imgPath := filepath.Join(dir.ImagesDir(), fmt.Sprintf("img_%d%s", imgCounter, ext))
			if err := writeZipEntry(f, imgPath); err != nil {
				e.logger.Warn("Could not save docx image", zap.String("entry", f.Name), zap.Error(err))
				imgCounter--
				continue
			}
			images = append(images, imgPath)
		}
	}

	if docXML == nil {
		return nil, errors.WrapError(errors.ErrParseFailure, "word/document.xml not found in docx")
	}

	var doc docxDocument
	if err := xml.Unmarshal(docXML, &doc); err != nil {
		return nil, errors.WrapErrorf(errors.ErrParseFailure, "parse docx xml: %v", err)
	}

	var text strings.Builder
	for _, para := range doc.Body.Paras {
		text.WriteString(paraText(para))
		text.WriteString("\n")
	}

	var tables []Table
	for _, tbl := range doc.Body.Tables {
		var grid [][]string
		for _, row := range tbl.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				var cellText strings.Builder
				for _, p := range cell.Paras {
					if cellText.Len() > 0 {
						cellText.WriteString(" ")
					}
					cellText.WriteString(paraText(p))
				}
				cells = append(cells, strings.TrimSpace(cellText.String()))
			}
			grid = append(grid, cells)
		}
		grid = PreprocessTable(grid)
		if len(grid) == 0 {
			continue
		}
		headers, dataRows := SplitHeaders(grid)
		tables = append(tables, Table{
			Name:    fmt.Sprintf("Table %d", len(tables)+1),
			Rows:    len(dataRows),
			Columns: len(headers),
			Headers: headers,
			Data:    dataRows,
		})
		fmt.Fprintf(&text, "\n\n[TABLE %d]\n", len(tables))
		text.WriteString(FormatTableMarkdown(grid))
		text.WriteString("\n")
	}

	if len(tables) > 0 {
		if err := dir.SaveTables(tables); err != nil {
			return nil, err
		}
	}
	if err := dir.SaveText(text.String()); err != nil {
		return nil, err
	}
	if err := dir.SaveMetadata(map[string]any{
		"source":       "word",
		"images_found": len(images),
		"tables_found": len(tables),
	}); err != nil {
		return nil, err
	}

	e.logger.Info("Extracted Word document",
		zap.String("doc_id", dir.DocID),
		zap.Int("tables", len(tables)),
		zap.Int("images", len(images)))
	return &Extraction{Dir: dir, DocID: dir.DocID, Source: "word", Images: images, Tables: tables}, nil
}

func writeZipEntry(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, rc)
	return err
}
