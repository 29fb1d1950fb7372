package llm

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks druginfo-rag/internal/llm Embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Embedder converts texts into fixed-dimension vectors, one per input, in order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingsClient is a client for an OpenAI-compatible embeddings API.
// Calls are bounded by an in-flight limit and a request rate limit shared by all callers.
type EmbeddingsClient struct {
	BaseURL      string
	APIKey       string
	Model        string
	ExpectedSize int // Expected vector size for validation
	client       *http.Client
	inflight     *semaphore.Weighted
	limiter      *rate.Limiter
}

// EmbeddingsOption configures an EmbeddingsClient.
type EmbeddingsOption func(*EmbeddingsClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) EmbeddingsOption {
	return func(c *EmbeddingsClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithConcurrency limits the number of requests in flight. n <= 0 means unlimited.
func WithConcurrency(n int) EmbeddingsOption {
	return func(c *EmbeddingsClient) {
		if n > 0 {
			c.inflight = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithRateLimit limits requests per second. rps <= 0 means unlimited.
func WithRateLimit(rps float64) EmbeddingsOption {
	return func(c *EmbeddingsClient) {
		if rps > 0 {
			burst := int(rps)
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// NewEmbeddingsClient creates a new embeddings client.
// expectedSize is the expected vector size (from QDRANT_VECTOR_SIZE config).
// All embeddings returned by EmbedTexts will be validated against this size.
func NewEmbeddingsClient(baseURL, apiKey, model string, expectedSize int, opts ...EmbeddingsOption) *EmbeddingsClient {
	c := &EmbeddingsClient{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Model:        model,
		ExpectedSize: expectedSize,
		client:       http.DefaultClient,
		limiter:      rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EmbeddingsRequest represents the request payload for embeddings API.
type EmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingData represents a single embedding in the response.
type EmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// EmbeddingsResponse represents the response from the embeddings API.
type EmbeddingsResponse struct {
	Data []EmbeddingData `json:"data"`
}

// EmbedTexts generates embeddings for the given texts.
// Returns a slice of float32 vectors, one per input text.
// Validates that all returned vectors match the expected size.
func (c *EmbeddingsClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	if c.inflight != nil {
		if err := c.inflight.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer c.inflight.Release(1)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	url := fmt.Sprintf("%s/v1/embeddings", c.BaseURL)

	body, err := json.Marshal(EmbeddingsRequest{Model: c.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, newStatusError(resp, raw)
	}

	var embeddingsResp EmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingsResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrInvalidResponse, err)
	}

	if len(embeddingsResp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrInvalidResponse, len(texts), len(embeddingsResp.Data))
	}

	// Servers may return data out of order; index is authoritative when present and valid.
	result := make([][]float32, len(embeddingsResp.Data))
	for i, data := range embeddingsResp.Data {
		if len(data.Embedding) != c.ExpectedSize {
			return nil, fmt.Errorf("%w: embedding %d has size %d, expected %d", ErrInvalidResponse, i, len(data.Embedding), c.ExpectedSize)
		}

		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}

		pos := i
		if data.Index >= 0 && data.Index < len(result) && result[data.Index] == nil {
			pos = data.Index
		}
		if result[pos] != nil {
			return nil, fmt.Errorf("%w: duplicate embedding index %d", ErrInvalidResponse, pos)
		}
		result[pos] = vec
	}

	return result, nil
}
