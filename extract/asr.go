package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"documind/errors"
)

// WhisperClient calls an OpenAI-compatible transcription endpoint
// (whisper.cpp server, faster-whisper-server or similar).
type WhisperClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewWhisperClient(baseURL, model string, logger *zap.Logger) *WhisperClient {
	return &WhisperClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		logger:     logger,
	}
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (w *WhisperClient) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	mw.WriteField("model", w.model)
	mw.WriteField("response_format", "verbose_json")
	if err := mw.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/audio/transcriptions", w.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, errors.WrapError(errors.ErrServiceUnavailable, err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.WrapErrorf(errors.ErrServiceUnavailable,
			"transcription server status %s: %s", resp.Status, truncateString(string(data), 300))
	}

	var wr whisperResponse
	if err := json.Unmarshal(data, &wr); err != nil {
		return nil, errors.WrapError(errors.ErrParseFailure, "decode transcription response")
	}

	tr := &Transcription{Text: strings.TrimSpace(wr.Text), Language: wr.Language, Duration: wr.Duration}
	for _, s := range wr.Segments {
		tr.Segments = append(tr.Segments, Segment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)})
	}
	w.logger.Debug("Transcription complete",
		zap.String("file", filepath.Base(audioPath)),
		zap.Float64("duration", tr.Duration))
	return tr, nil
}
