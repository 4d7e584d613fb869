package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"documind/errors"
	"documind/workspace"
)

const maxLinkedImages = 5

// URLExtractor scrapes a web page, keeps the readable article as
// markdown (headings preserved for structure-aware chunking) and
// downloads a handful of referenced images.
type URLExtractor struct {
	ws         *workspace.Store
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

func NewURLExtractor(ws *workspace.Store, timeoutSeconds int, logger *zap.Logger) *URLExtractor {
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &URLExtractor{
		ws:         ws,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

var imgSrcPattern = regexp.MustCompile(`<img[^>]+src=["']([^"']+)["']`)

func (e *URLExtractor) Extract(ctx context.Context, link string) (*Extraction, error) {
	parsed, err := url.Parse(link)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.WrapErrorf(errors.ErrInvalidInput, "invalid url: %s", link)
	}

	dir, err := e.ws.Create(parsed.Host + parsed.Path)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Scraping URL", zap.String("url", link), zap.String("doc_id", dir.DocID))

	article, err := readability.FromURL(link, e.timeout)
	if err != nil {
		return nil, errors.WrapErrorf(errors.ErrParseFailure, "scrape %s: %v", link, err)
	}

	markdown, err := htmltomarkdown.ConvertString(article.Content)
	if err != nil {
		e.logger.Warn("HTML to markdown conversion failed, using plain text", zap.Error(err))
		markdown = article.TextContent
	}

	var content strings.Builder
	if article.Title != "" {
		fmt.Fprintf(&content, "# %s\n\n", article.Title)
	}
	if article.Excerpt != "" {
		fmt.Fprintf(&content, "**Description:** %s\n\n", article.Excerpt)
	}
	fmt.Fprintf(&content, "**Source:** %s\n\n---\n\n", link)
	content.WriteString(markdown)

	images := e.downloadImages(ctx, dir, parsed, article.Content)
	if len(images) > 0 {
		content.WriteString("\n\n---\n\n## Referenced Images\n\n")
		for i, img := range images {
			fmt.Fprintf(&content, "- Image %d: %s\n", i+1, filepath.Base(img))
		}
	}

	if err := dir.SaveText(content.String()); err != nil {
		return nil, err
	}
	if err := dir.SaveMetadata(map[string]any{
		"source":      "url",
		"url":         link,
		"title":       article.Title,
		"description": article.Excerpt,
		"text_length": len(markdown),
		"image_count": len(images),
	}); err != nil {
		return nil, err
	}

	e.logger.Info("URL extracted",
		zap.String("doc_id", dir.DocID),
		zap.Int("chars", len(markdown)),
		zap.Int("images", len(images)))
	return &Extraction{
		Dir:      dir,
		DocID:    dir.DocID,
		Source:   "url",
		Images:   images,
		Markdown: content.String(),
	}, nil
}

func (e *URLExtractor) downloadImages(ctx context.Context, dir *workspace.Dir, base *url.URL, html string) []string {
	var saved []string
	seen := map[string]bool{}
	for _, match := range imgSrcPattern.FindAllStringSubmatch(html, -1) {
		if len(saved) >= maxLinkedImages {
			break
		}
		src := match[1]
		if seen[src] || strings.HasPrefix(src, "data:") {
			continue
		}
		seen[src] = true

		ref, err := url.Parse(src)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref).String()

		path, err := e.fetchImage(ctx, dir, abs, len(saved)+1)
		if err != nil {
			e.logger.Debug("Skipping linked image", zap.String("src", abs), zap.Error(err))
			continue
		}
		saved = append(saved, path)
	}
	return saved
}

func (e *URLExtractor) fetchImage(ctx context.Context, dir *workspace.Dir, imgURL string, idx int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imgURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %s", resp.Status)
	}

	ext := filepath.Ext(strings.SplitN(imgURL, "?", 2)[0])
	if ext == "" || len(ext) > 5 {
		ext = ".jpg"
	}
	path := filepath.Join(dir.ImagesDir(), fmt.Sprintf("web_img_%d%s", idx, ext))
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, io.LimitReader(resp.Body, 10<<20)); err != nil {
		return "", err
	}
	return path, nil
}
