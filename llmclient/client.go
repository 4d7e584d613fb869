package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"documind/config"
	"documind/errors"
)

// Message is one chat turn in OpenAI wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamChoice struct {
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	Index int `json:"index"`
}

type streamResponse struct {
	Choices []streamChoice `json:"choices"`
}

type chatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"` // Per-request temperature override
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *Client {
	// Use a client with the configured timeout; streaming requests rely on context
	// cancellation or server closing the stream.
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.LLMTimeout},
		logger:     logger,
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.LLMAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.LLMAPIKey)
	}
}

// Chat performs a non-streaming chat completion call.
// temperature is optional; pass nil to use the configured default.
func (c *Client) Chat(ctx context.Context, messages []Message, temperature *float64) (string, error) {
	if temperature == nil {
		temperature = &c.cfg.LLMTemperature
	}
	reqBody := chatRequest{
		Model:       c.cfg.LLMModel,
		Messages:    messages,
		Stream:      false,
		Temperature: temperature,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", strings.TrimRight(c.cfg.LLMBaseURL, "/"))

	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
		if err != nil {
			return "", fmt.Errorf("create chat request: %w", err)
		}
		c.setHeaders(req)

		resp, err = c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			// Do not retry on context cancellation/deadline
			if ctx.Err() != nil {
				break
			}
		} else if resp.StatusCode == http.StatusServiceUnavailable {
			// Model loading; retry with backoff
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			c.backoffSleep(attempt)
			continue
		} else {
			break
		}
	}
	if resp == nil {
		return "", errors.WrapErrorf(errors.ErrServiceUnavailable, "no response from LLM server: %v", lastErr)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", errors.WrapErrorf(errors.ErrLLMCommunication, "llm server status %s: %s", resp.Status, string(bodyBytes))
	}

	var cr chatResponse
	if err := json.Unmarshal(bodyBytes, &cr); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", errors.WrapError(errors.ErrLLMCommunication, "no response choices from llm server")
	}
	return cr.Choices[0].Message.Content, nil
}

// ChatStream performs a streaming chat completion call and returns a channel of chunks.
// temperature is optional; pass nil to use the configured default.
func (c *Client) ChatStream(ctx context.Context, messages []Message, temperature *float64) (<-chan string, error) {
	if temperature == nil {
		temperature = &c.cfg.LLMTemperature
	}
	reqBody := chatRequest{
		Model:       c.cfg.LLMModel,
		Messages:    messages,
		Stream:      true,
		Temperature: temperature,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", strings.TrimRight(c.cfg.LLMBaseURL, "/"))
	out := make(chan string)

	go func() {
		defer close(out)

		var resp *http.Response
		// retry loop for model loading/unavailable
		for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
			req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
			if reqErr != nil {
				c.logger.Error("create chat stream request", zap.Error(reqErr))
				return
			}
			c.setHeaders(req)
			req.Header.Set("Accept", "text/event-stream")

			r, err := c.httpClient.Do(req)
			if err != nil {
				if ctx.Err() != nil {
					// context canceled/deadline; just exit
					return
				}
				c.logger.Error("send chat stream request", zap.Error(err))
				return
			}

			if r.StatusCode == http.StatusServiceUnavailable {
				// backoff and retry
				io.Copy(io.Discard, r.Body)
				r.Body.Close()
				c.logger.Warn("LLM service unavailable, retrying", zap.Int("attempt", attempt+1))
				c.backoffSleep(attempt)
				continue
			}

			resp = r
			break
		}

		if resp == nil {
			c.logger.Error("no response received after retries for stream")
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			c.logger.Error("LLM server non-200 for stream",
				zap.String("status", resp.Status),
				zap.String("response", string(bodyBytes)))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}
			var sr streamResponse
			if err := json.Unmarshal([]byte(data), &sr); err != nil {
				continue
			}
			if len(sr.Choices) == 0 {
				continue
			}
			if chunk := sr.Choices[0].Delta.Content; chunk != "" {
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			c.logger.Error("read chat stream", zap.Error(err))
		}
	}()

	return out, nil
}

func (c *Client) backoffSleep(attempt int) {
	base := c.cfg.RetryDelay
	if base <= 0 {
		base = time.Second // config normalization should prevent this
	}
	d := base * time.Duration(1<<attempt)
	if max := 30 * time.Second; d > max {
		d = max
	}
	jitter := time.Duration(float64(d) * 0.1)
	time.Sleep(d - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter+1)))
}

// Embed generates an embedding vector for the provided text using the
// OpenAI-compatible embeddings endpoint.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := embeddingRequest{Model: c.cfg.EmbeddingModel, Input: []string{text}}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/embeddings", strings.TrimRight(c.cfg.EmbeddingBaseURL, "/"))
	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, fmt.Errorf("create embedding request: %w", err)
		}
		c.setHeaders(req)

		r, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if r.StatusCode == http.StatusServiceUnavailable {
			io.Copy(io.Discard, r.Body)
			r.Body.Close()
			c.logger.Warn("Embedding model loading, retrying")
			c.backoffSleep(attempt)
			continue
		}

		resp = r
		break
	}
	if resp == nil {
		return nil, errors.WrapErrorf(errors.ErrServiceUnavailable, "no response from embedding server: %v", lastErr)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.WrapErrorf(errors.ErrLLMCommunication, "embedding server status %s: %s", resp.Status, string(bodyBytes))
	}

	var er embeddingResponse
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(er.Data) == 0 || len(er.Data[0].Embedding) == 0 {
		return nil, errors.WrapError(errors.ErrLLMCommunication, "embedding response was empty")
	}
	return er.Data[0].Embedding, nil
}

// ToFloat64 widens an embedding for cosine math and cache storage.
func ToFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
