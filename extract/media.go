package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"documind/errors"
	"documind/workspace"
)

// Segment is one timestamped span of a transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcription is the result of speech-to-text on one audio file.
type Transcription struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Transcription, error)
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true, ".webm": true,
}

// MediaExtractor transcribes audio and video files.
type MediaExtractor struct {
	ws     *workspace.Store
	asr    Transcriber
	logger *zap.Logger
}

func (e *MediaExtractor) Extract(ctx context.Context, path string) (*Extraction, error) {
	if e.asr == nil {
		return nil, errors.WrapError(errors.ErrServiceUnavailable, "no transcriber configured")
	}
	dir, err := e.ws.Create(path)
	if err != nil {
		return nil, err
	}

	sourceType := "audio"
	if videoExtensions[strings.ToLower(filepath.Ext(path))] {
		sourceType = "video"
	}
	filename := filepath.Base(path)

	e.logger.Info("Transcribing media file",
		zap.String("doc_id", dir.DocID),
		zap.String("type", sourceType))

	audioPath, err := dir.CopyInto("audio", path)
	if err != nil {
		return nil, err
	}

	tr, err := e.asr.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, errors.WrapErrorf(err, "transcribe %s", filename)
	}

	var content strings.Builder
	fmt.Fprintf(&content, "# %s Transcript\n\n", strings.ToUpper(sourceType[:1])+sourceType[1:])
	fmt.Fprintf(&content, "**File:** %s\n", filename)
	fmt.Fprintf(&content, "**Language:** %s\n", tr.Language)
	fmt.Fprintf(&content, "**Duration:** %.1f seconds\n\n", tr.Duration)
	content.WriteString("---\n\n## Transcript\n\n")
	content.WriteString(tr.Text)

	if len(tr.Segments) > 0 {
		content.WriteString("\n\n---\n\n## Timestamped Segments\n\n")
		for _, seg := range tr.Segments {
			fmt.Fprintf(&content, "[%02d:%02d] %s\n",
				int(seg.Start)/60, int(seg.Start)%60, seg.Text)
		}
		if err := dir.SaveJSON("segments.json", tr.Segments); err != nil {
			return nil, err
		}
	}

	if err := dir.SaveText(content.String()); err != nil {
		return nil, err
	}
	if err := dir.SaveMetadata(map[string]any{
		"original_file":     filename,
		"source":            sourceType,
		"language":          tr.Language,
		"duration_seconds":  tr.Duration,
		"transcript_length": len(tr.Text),
		"segment_count":     len(tr.Segments),
	}); err != nil {
		return nil, err
	}

	e.logger.Info("Media transcribed",
		zap.String("doc_id", dir.DocID),
		zap.Float64("duration", tr.Duration),
		zap.Int("chars", len(tr.Text)))
	return &Extraction{Dir: dir, DocID: dir.DocID, Source: sourceType}, nil
}
