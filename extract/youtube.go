package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"documind/errors"
	"documind/workspace"
)

// MediaDownloader fetches the audio track of a remote video into destDir
// and returns the resulting file path.
type MediaDownloader interface {
	DownloadAudio(ctx context.Context, videoURL, destDir string) (string, error)
}

// YtDlpDownloader shells out to yt-dlp for audio download.
type YtDlpDownloader struct {
	logger *zap.Logger
}

func NewYtDlpDownloader(logger *zap.Logger) *YtDlpDownloader {
	return &YtDlpDownloader{logger: logger}
}

func (d *YtDlpDownloader) DownloadAudio(ctx context.Context, videoURL, destDir string) (string, error) {
	outTemplate := filepath.Join(destDir, "audio.%(ext)s")
	cmd := exec.CommandContext(ctx, "yt-dlp",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "5",
		"--no-playlist",
		"-o", outTemplate,
		videoURL,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", errors.WrapErrorf(errors.ErrServiceUnavailable,
			"yt-dlp failed: %v: %s", err, truncateString(string(output), 300))
	}
	audioPath := filepath.Join(destDir, "audio.mp3")
	if _, err := os.Stat(audioPath); err != nil {
		return "", errors.WrapError(errors.ErrParseFailure, "yt-dlp produced no audio file")
	}
	d.logger.Debug("Downloaded audio", zap.String("url", videoURL))
	return audioPath, nil
}

// YouTubeExtractor downloads a video's audio track and transcribes it.
type YouTubeExtractor struct {
	ws     *workspace.Store
	asr    Transcriber
	dl     MediaDownloader
	logger *zap.Logger
}

func (e *YouTubeExtractor) Extract(ctx context.Context, videoURL string) (*Extraction, error) {
	if e.asr == nil || e.dl == nil {
		return nil, errors.WrapError(errors.ErrServiceUnavailable, "youtube extraction not configured")
	}

	dir, err := e.ws.Create("youtube_video")
	if err != nil {
		return nil, err
	}

	e.logger.Info("Extracting YouTube video",
		zap.String("url", videoURL),
		zap.String("doc_id", dir.DocID))

	audioPath, err := e.dl.DownloadAudio(ctx, videoURL, dir.AudioDir())
	if err != nil {
		return nil, err
	}

	tr, err := e.asr.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, errors.WrapErrorf(err, "transcribe %s", videoURL)
	}

	var content strings.Builder
	content.WriteString("# YouTube Video Transcript\n\n")
	fmt.Fprintf(&content, "**Source:** %s\n", videoURL)
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
		"source":            "youtube",
		"youtube_url":       videoURL,
		"language":          tr.Language,
		"duration_seconds":  tr.Duration,
		"transcript_length": len(tr.Text),
		"segment_count":     len(tr.Segments),
	}); err != nil {
		return nil, err
	}

	return &Extraction{Dir: dir, DocID: dir.DocID, Source: "youtube"}, nil
}
