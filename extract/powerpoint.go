package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"documind/errors"
	"documind/workspace"
)

// PowerPointExtractor reads .pptx files: per-slide text from
// ppt/slides/slideN.xml, images from ppt/media/.
type PowerPointExtractor struct {
	ws     *workspace.Store
	logger *zap.Logger
}

// PPTX XML structures (simplified)
type pptxSlide struct {
	XMLName xml.Name    `xml:"sld"`
	CSld    pptxCommon  `xml:"cSld"`
}

type pptxCommon struct {
	SpTree pptxSpTree `xml:"spTree"`
}

type pptxSpTree struct {
	Shapes []pptxShape `xml:"sp"`
}

type pptxShape struct {
	TxBody *pptxTxBody `xml:"txBody"`
}

type pptxTxBody struct {
	Paras []pptxPara `xml:"p"`
}

type pptxPara struct {
	Runs []pptxRun `xml:"r"`
}

type pptxRun struct {
	Text string `xml:"t"`
}

func slideNumber(name string) int {
	name = strings.TrimPrefix(name, "ppt/slides/slide")
	name = strings.TrimSuffix(name, ".xml")
	var num int
	fmt.Sscanf(name, "%d", &num)
	return num
}

func slideText(data []byte) string {
	var slide pptxSlide
	if err := xml.Unmarshal(data, &slide); err != nil {
		return ""
	}
	var parts []string
	for _, sp := range slide.CSld.SpTree.Shapes {
		if sp.TxBody == nil {
			continue
		}
		for _, para := range sp.TxBody.Paras {
			var line strings.Builder
			for _, run := range para.Runs {
				line.WriteString(run.Text)
			}
			if t := strings.TrimSpace(line.String()); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func (e *PowerPointExtractor) Extract(ctx context.Context, path string) (*Extraction, error) {
	dir, err := e.ws.Create(path)
	if err != nil {
		return nil, err
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.WrapErrorf(errors.ErrParseFailure, "open pptx %s: %v", filepath.Base(path), err)
	}
	defer r.Close()

	slides := make(map[int]*zip.File)
	var images []string
	imgCounter := 0

	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			if num := slideNumber(f.Name); num > 0 {
				slides[num] = f
			}
			continue
		}
		if strings.HasPrefix(f.Name, "ppt/media/") {
			imgCounter++
			ext := filepath.Ext(f.Name)
			imgPath := filepath.Join(dir.ImagesDir(), fmt.Sprintf("slide_img_%d%s", imgCounter, ext))
			if err := writeZipEntry(f, imgPath); err != nil {
				e.logger.Warn("Could not save pptx image", zap.String("entry", f.Name), zap.Error(err))
				imgCounter--
				continue
			}
			images = append(images, imgPath)
		}
	}

	nums := make([]int, 0, len(slides))
	for n := range slides {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var text strings.Builder
	fmt.Fprintf(&text, "PRESENTATION: %s\n", filepath.Base(path))
	fmt.Fprintf(&text, "Total Slides: %d\n\n", len(nums))

	slidesWithText := 0
	for _, num := range nums {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rc, err := slides[num].Open()
		if err != nil {
			continue
		}
		data := make([]byte, slides[num].UncompressedSize64)
		n, _ := io.ReadFull(rc, data)
		rc.Close()
		content := slideText(data[:n])
		if content == "" {
			continue
		}
		slidesWithText++
		fmt.Fprintf(&text, "--- Slide %d ---\n%s\n\n", num, content)
	}

	if err := dir.SaveText(text.String()); err != nil {
		return nil, err
	}
	if err := dir.SaveMetadata(map[string]any{
		"source":           "powerpoint",
		"slides":           len(nums),
		"slides_with_text": slidesWithText,
		"images_found":     len(images),
	}); err != nil {
		return nil, err
	}

	e.logger.Info("Extracted presentation",
		zap.String("doc_id", dir.DocID),
		zap.Int("slides", len(nums)),
		zap.Int("images", len(images)))
	return &Extraction{Dir: dir, DocID: dir.DocID, Source: "powerpoint", Images: images}, nil
}
