package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"documind/errors"
)

const (
	minVisionDimension = 50
	visionMaxTokens    = 1024
	jpegQuality        = 85
)

var supportedVLMProviders = map[string]bool{
	"groq":    true,
	"mistral": true,
	"local":   true,
}

// VLMClient sends images to an OpenAI-compatible vision model and
// returns a textual description.
type VLMClient struct {
	provider   string
	model      string
	apiURL     string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewVLMClient(provider, model, apiURL, apiKey string, timeout time.Duration, logger *zap.Logger) (*VLMClient, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !supportedVLMProviders[provider] {
		return nil, errors.WrapErrorf(errors.ErrInvalidInput, "unsupported VLM provider: %s", provider)
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &VLMClient{
		provider:   provider,
		model:      model,
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// prepareImage decodes the file and re-encodes it as JPEG. Hosted vision
// APIs are picky about formats, and a single encoding keeps the payload
// predictable. Images smaller than 50x50 are icons or spacers, not
// content.
func prepareImage(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.WrapErrorf(errors.ErrParseFailure, "decode image %s: %v", path, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() < minVisionDimension || bounds.Dy() < minVisionDimension {
		return nil, errors.WrapErrorf(errors.ErrInvalidInput,
			"image too small for analysis: %dx%d", bounds.Dx(), bounds.Dy())
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type vlmRequest struct {
	Model     string       `json:"model"`
	Messages  []vlmMessage `json:"messages"`
	MaxTokens int          `json:"max_tokens"`
}

type vlmMessage struct {
	Role    string    `json:"role"`
	Content []vlmPart `json:"content"`
}

type vlmPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *vlmImageURL `json:"image_url,omitempty"`
}

type vlmImageURL struct {
	URL string `json:"url"`
}

type vlmResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Describe asks the vision model for a description of the image.
func (c *VLMClient) Describe(ctx context.Context, imagePath, prompt string) (string, error) {
	jpegData, err := prepareImage(imagePath)
	if err != nil {
		return "", err
	}
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegData)

	payload, err := json.Marshal(vlmRequest{
		Model: c.model,
		Messages: []vlmMessage{{
			Role: "user",
			Content: []vlmPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &vlmImageURL{URL: dataURL}},
			},
		}},
		MaxTokens: visionMaxTokens,
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1/chat/completions", c.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.WrapError(errors.ErrServiceUnavailable, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.WrapErrorf(errors.ErrServiceUnavailable,
			"vision API status %s: %s", resp.Status, truncate(string(body), 300))
	}

	var vr vlmResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return "", errors.WrapError(errors.ErrParseFailure, "decode vision response")
	}
	if len(vr.Choices) == 0 {
		return "", errors.WrapError(errors.ErrLLMCommunication, "vision API returned no choices")
	}
	description := strings.TrimSpace(vr.Choices[0].Message.Content)
	c.logger.Debug("VLM description complete",
		zap.String("image", imagePath),
		zap.Int("chars", len(description)))
	return description, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
