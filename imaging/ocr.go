package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"documind/errors"
)

// OCRResult is the aggregated recognition output for one image.
type OCRResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Engine recognizes text in an image file.
type Engine interface {
	Recognize(ctx context.Context, imagePath string) (*OCRResult, error)
}

// HTTPEngine talks to a PaddleOCR serving endpoint. The server takes
// base64-encoded images and returns per-line text with confidences.
type HTTPEngine struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHTTPEngine(baseURL string, logger *zap.Logger) *HTTPEngine {
	return &HTTPEngine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     logger,
	}
}

type ocrRequest struct {
	Images []string `json:"images"`
}

type ocrResponse struct {
	Results [][]struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"results"`
	Status string `json:"status"`
}

func (e *HTTPEngine) Recognize(ctx context.Context, imagePath string) (*OCRResult, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(ocrRequest{Images: []string{base64.StdEncoding.EncodeToString(data)}})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/predict/ocr_system", e.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, errors.WrapError(errors.ErrServiceUnavailable, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.WrapErrorf(errors.ErrServiceUnavailable, "ocr server status %s", resp.Status)
	}

	var or ocrResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return nil, errors.WrapError(errors.ErrParseFailure, "decode ocr response")
	}
	if len(or.Results) == 0 {
		return &OCRResult{}, nil
	}

	var lines []string
	var confSum float64
	for _, line := range or.Results[0] {
		lines = append(lines, line.Text)
		confSum += line.Confidence
	}
	result := &OCRResult{Text: strings.TrimSpace(strings.Join(lines, "\n"))}
	if n := len(or.Results[0]); n > 0 {
		result.Confidence = confSum / float64(n)
	}
	e.logger.Debug("OCR complete",
		zap.String("image", imagePath),
		zap.Int("lines", len(lines)),
		zap.Float64("confidence", result.Confidence))
	return result, nil
}
