package imaging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"documind/workspace"
)

const (
	// Images below this size are icons, bullets or spacers.
	minImageBytes = 5 * 1024
	// OCR text shorter than this is noise, not content.
	minOCRTextLen = 10
	// Cap on images sent to the vision model per document.
	maxVLMImages = 10

	visionPrompt = "Describe this image in detail. Include any visible text, " +
		"data from charts or diagrams, and the overall subject. " +
		"Be factual and concise."
)

// Analysis is the outcome of analyzing a single image.
type Analysis struct {
	Method     string  `json:"method"`
	Image      string  `json:"image"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Report summarizes a document's image analysis pass.
type Report struct {
	Records  []Analysis
	OCRCount int
	VLMCount int
	Skipped  int
}

// Arbiter routes document images between OCR and the vision model. OCR
// is cheap and runs first; only images where OCR finds nothing usable
// are escalated to the VLM.
type Arbiter struct {
	ocr       *Pool
	vlm       *VLMClient
	threshold float64
	logger    *zap.Logger
}

func NewArbiter(ocr *Pool, vlm *VLMClient, threshold float64, logger *zap.Logger) *Arbiter {
	if threshold <= 0 {
		threshold = 0.70
	}
	return &Arbiter{ocr: ocr, vlm: vlm, threshold: threshold, logger: logger}
}

type candidate struct {
	path string
	name string
	size int64
}

// Analyze runs OCR on every content-sized image, escalates OCR misses
// to the vision model when enabled, appends the findings to the
// document text and persists the analysis records alongside the
// processed images.
func (a *Arbiter) Analyze(ctx context.Context, dir *workspace.Dir, images []string, useVision bool) (*Report, error) {
	report := &Report{}
	var candidates []candidate
	for _, path := range images {
		info, err := os.Stat(path)
		if err != nil {
			a.logger.Warn("Skipping unreadable image", zap.String("path", path), zap.Error(err))
			report.Skipped++
			continue
		}
		if info.Size() < minImageBytes {
			report.Skipped++
			continue
		}
		candidates = append(candidates, candidate{path: path, name: filepath.Base(path), size: info.Size()})
	}
	if len(candidates) == 0 {
		return report, nil
	}

	ocrResults := make([]*OCRResult, len(candidates))
	if a.ocr != nil {
		g, gctx := errgroup.WithContext(ctx)
		for i, c := range candidates {
			i, c := i, c
			g.Go(func() error {
				res, err := a.ocr.Recognize(gctx, c.path)
				if err != nil {
					a.logger.Warn("OCR failed", zap.String("image", c.name), zap.Error(err))
					return nil
				}
				ocrResults[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	var blocks []string
	var ocrRecords []Analysis
	var vlmQueue []candidate
	for i, c := range candidates {
		res := ocrResults[i]
		text := ""
		conf := 0.0
		if res != nil {
			text = strings.TrimSpace(res.Text)
			conf = res.Confidence
		}
		if conf >= a.threshold && len(text) >= minOCRTextLen {
			blocks = append(blocks, fmt.Sprintf("[Image Text (%s): %s]", c.name, text))
			ocrRecords = append(ocrRecords, Analysis{
				Method: "ocr", Image: c.name, Content: text, Confidence: conf,
			})
			a.copyProcessed(dir, c.path, "ocr_processed")
			report.OCRCount++
			continue
		}
		vlmQueue = append(vlmQueue, c)
	}

	var vlmRecords []Analysis
	if useVision && a.vlm != nil && len(vlmQueue) > 0 {
		// Biggest images first: they are the most likely to carry real
		// content (charts, screenshots) within the per-document cap.
		sort.Slice(vlmQueue, func(i, j int) bool { return vlmQueue[i].size > vlmQueue[j].size })
		if len(vlmQueue) > maxVLMImages {
			vlmQueue = vlmQueue[:maxVLMImages]
		}
		for _, c := range vlmQueue {
			desc, err := a.vlm.Describe(ctx, c.path, visionPrompt)
			if err != nil {
				a.logger.Warn("VLM analysis failed", zap.String("image", c.name), zap.Error(err))
				continue
			}
			if desc == "" {
				continue
			}
			blocks = append(blocks, fmt.Sprintf("[Image Description (%s): %s]", c.name, desc))
			vlmRecords = append(vlmRecords, Analysis{Method: "vlm", Image: c.name, Content: desc})
			a.copyProcessed(dir, c.path, "vlm_processed")
			report.VLMCount++
		}
	}

	if len(blocks) > 0 {
		existing, err := dir.ReadText()
		if err != nil {
			return nil, err
		}
		joined := strings.Join(blocks, "\n\n")
		if strings.TrimSpace(existing) != "" {
			joined = "\n\n" + joined
		}
		if err := dir.AppendText(joined); err != nil {
			return nil, err
		}
	}

	if len(ocrRecords) > 0 {
		if err := dir.SaveJSON(filepath.Join("images", "ocr_analysis.json"), ocrRecords); err != nil {
			return nil, err
		}
	}
	if len(vlmRecords) > 0 {
		if err := dir.SaveJSON(filepath.Join("images", "analysis.json"), vlmRecords); err != nil {
			return nil, err
		}
	}

	report.Records = append(append([]Analysis{}, ocrRecords...), vlmRecords...)
	a.logger.Info("Image analysis complete",
		zap.String("doc_id", dir.DocID),
		zap.Int("ocr", report.OCRCount),
		zap.Int("vlm", report.VLMCount),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

func (a *Arbiter) copyProcessed(dir *workspace.Dir, path, sub string) {
	if _, err := dir.CopyInto(filepath.Join("images", sub), path); err != nil {
		a.logger.Debug("Could not archive processed image", zap.String("image", path), zap.Error(err))
	}
}
