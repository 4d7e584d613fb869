package extract

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"documind/errors"
	"documind/workspace"
)

var mediaExtensions = map[string]bool{
	".mp3": true, ".mp4": true, ".wav": true, ".m4a": true,
	".avi": true, ".mov": true, ".mkv": true, ".flac": true,
	".ogg": true, ".webm": true,
}

// IsMediaFile reports whether a path looks like audio or video.
func IsMediaFile(path string) bool {
	return mediaExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsYouTubeURL reports whether a link points at YouTube.
func IsYouTubeURL(link string) bool {
	l := strings.ToLower(link)
	return strings.Contains(l, "youtube.com") || strings.Contains(l, "youtu.be")
}

// Registry routes inputs to their extractors.
type Registry struct {
	byExt   map[string]Extractor
	url     Extractor
	youtube Extractor
	media   Extractor
}

// NewRegistry wires all built-in extractors.
func NewRegistry(ws *workspace.Store, asr Transcriber, dl MediaDownloader, scraperTimeoutSeconds int, logger *zap.Logger) *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}

	excel := &ExcelExtractor{ws: ws, logger: logger}
	for _, ext := range []string{".xlsx", ".xls", ".xlsm"} {
		r.byExt[ext] = excel
	}
	r.byExt[".csv"] = &CSVExtractor{ws: ws, logger: logger}
	r.byExt[".pdf"] = &PDFExtractor{ws: ws, logger: logger}
	r.byExt[".docx"] = &WordExtractor{ws: ws, logger: logger}
	r.byExt[".pptx"] = &PowerPointExtractor{ws: ws, logger: logger}

	img := &ImageExtractor{ws: ws, logger: logger}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".bmp", ".tiff", ".webp"} {
		r.byExt[ext] = img
	}

	r.media = &MediaExtractor{ws: ws, asr: asr, logger: logger}
	r.url = NewURLExtractor(ws, scraperTimeoutSeconds, logger)
	r.youtube = &YouTubeExtractor{ws: ws, asr: asr, dl: dl, logger: logger}
	return r
}

// ForFile picks the extractor for a file path, preferring the media
// extractor for audio/video extensions.
func (r *Registry) ForFile(path string) (Extractor, error) {
	if IsMediaFile(path) {
		return r.media, nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := r.byExt[ext]
	if !ok {
		return nil, errors.WrapErrorf(errors.ErrInvalidInput, "unsupported file type: %s", ext)
	}
	return e, nil
}

// ForLink picks the web or YouTube extractor for a URL.
func (r *Registry) ForLink(link string) Extractor {
	if IsYouTubeURL(link) {
		return r.youtube
	}
	return r.url
}
