package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/teemow/maildex/internal/errors"
)

// maxBatchSize is the largest input list accepted per API call.
const maxBatchSize = 100

// probeText is embedded once when the vector dimension must be discovered.
const probeText = "dimension probe"

// Config holds embedding endpoint configuration.
type Config struct {
	Model      string // default "text-embedding-3-small"
	APIKey     string
	BaseURL    string // OpenAI-compatible endpoint, default "https://api.openai.com/v1"
	CacheSize  int    // LRU cache size, default 10000
	Dimensions int    // 0 means probe the endpoint at first use
}

// Embedder generates text embeddings.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for up to maxBatchSize texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int
}

// Client is an Embedder backed by an OpenAI-compatible /embeddings endpoint
// with an LRU cache in front of it.
type Client struct {
	config     Config
	httpClient *http.Client
	cache      *lru.Cache[string, []float32]
	logger     *slog.Logger
	dims       int

	// Policy governs retries of transient endpoint failures.
	Policy errors.Policy
}

var _ Embedder = (*Client)(nil)

// NewClient creates an embedding client.
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.CacheSize == 0 {
		config.CacheSize = 10000
	}
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := lru.New[string, []float32](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		cache:  cache,
		logger: logger.With(slog.String("component", "embed")),
		dims:   config.Dimensions,
		Policy: errors.DefaultPolicy(),
	}, nil
}

// Embed generates the embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := c.cache.Get(text); ok {
		return cached, nil
	}

	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts. Cached texts are not
// sent to the endpoint again; the result order matches the input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	if len(texts) > maxBatchSize {
		return nil, fmt.Errorf("batch size exceeds limit: %d > %d", len(texts), maxBatchSize)
	}

	results := make([][]float32, len(texts))
	uncachedIndices := []int{}
	uncachedTexts := []string{}

	for i, text := range texts {
		if cached, ok := c.cache.Get(text); ok {
			results[i] = cached
		} else {
			uncachedIndices = append(uncachedIndices, i)
			uncachedTexts = append(uncachedTexts, text)
		}
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	start := time.Now()
	embeddings, err := errors.RetryWithResult(ctx, c.Policy, func() ([][]float32, error) {
		return c.callAPI(ctx, uncachedTexts)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed batch: %w", err)
	}

	for i, idx := range uncachedIndices {
		c.cache.Add(texts[idx], embeddings[i])
		results[idx] = embeddings[i]
	}
	if c.dims == 0 && len(embeddings) > 0 {
		c.dims = len(embeddings[0])
	}

	c.logger.Debug("embedded batch",
		slog.Int("texts", len(texts)),
		slog.Int("cached", len(texts)-len(uncachedTexts)),
		slog.Duration("duration", time.Since(start)))

	return results, nil
}

// Dimensions returns the configured or last observed embedding dimension,
// or 0 when neither is known yet. Use ProbeDimensions to force discovery.
func (c *Client) Dimensions() int {
	return c.dims
}

// ProbeDimensions returns the embedding dimension, asking the endpoint for a
// probe embedding when the dimension is not configured. Collection creation
// needs this before any real text is embedded.
func (c *Client) ProbeDimensions(ctx context.Context) (int, error) {
	if c.dims != 0 {
		return c.dims, nil
	}
	vec, err := c.Embed(ctx, probeText)
	if err != nil {
		return 0, fmt.Errorf("failed to probe embedding dimension: %w", err)
	}
	c.dims = len(vec)
	return c.dims, nil
}

// callAPI performs one /embeddings request. Responses with retryable status
// codes are wrapped as transient so the shared retry policy applies.
func (c *Client) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]any{
		"model": c.config.Model,
		"input": texts,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		apiErr := fmt.Errorf("embeddings API returned status %d: %s", resp.StatusCode, detail)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, errors.NewTransientError(apiErr, "embedding failed")
		}
		return nil, errors.NewPermanentError(apiErr, "embedding failed")
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings response: %w", err)
	}

	embeddings := make([][]float32, len(texts))
	for _, item := range apiResp.Data {
		if item.Index < 0 || item.Index >= len(embeddings) {
			return nil, fmt.Errorf("embeddings response has invalid index %d", item.Index)
		}
		embeddings[item.Index] = item.Embedding
	}
	for i, emb := range embeddings {
		if emb == nil {
			return nil, fmt.Errorf("embeddings response is missing index %d", i)
		}
	}

	return embeddings, nil
}
