package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"docchat/internal/config"
	"docchat/internal/llmservice"
	"docchat/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultBatchSize = 100

// NewEmbedder builds a langchaingo embedder for the configured provider.
func NewEmbedder(cfg config.LLMConfig) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating embedder")

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	switch cfg.Provider {
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("init ollama embedder: %w", err)
		}
		return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batch))
	case "openai", "openrouter", "":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.APIKey(), "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
			openai.WithHTTPClient(llmservice.HTTPClient(cfg)),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init openai embedder: %w", err)
		}
		return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batch))
	default:
		return nil, models.NewValidationError("embedder", fmt.Sprintf("unknown provider %q", cfg.Provider))
	}
}

// Client batches document embeddings and keeps query embeddings usable when
// the provider fails.
type Client struct {
	embedder  embeddings.Embedder
	batchSize int

	mu         sync.Mutex
	dimension  int
	queryCache map[string][]float32
}

func NewClient(embedder embeddings.Embedder, batchSize int) *Client {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Client{
		embedder:   embedder,
		batchSize:  batchSize,
		queryCache: make(map[string][]float32),
	}
}

// EmbedDocuments returns one vector per text, in order. A failed batch fails
// the whole call so callers never store a partial file.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vectors, err := c.embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, llmservice.Classify("embed documents", err)
		}
		if len(vectors) != end-start {
			return nil, models.NewProviderError("embed documents",
				fmt.Errorf("got %d vectors for %d texts", len(vectors), end-start))
		}
		out = append(out, vectors...)
		log.Debug().Int("batch_start", start).Int("batch_size", end-start).Msg("embedded batch")
	}

	if len(out) > 0 {
		c.setDimension(len(out[0]))
	}
	return out, nil
}

// EmbedQuery falls back to the last vector seen for text, then to a zero
// vector of the known dimension. With neither available it returns the
// provider error.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := c.embedder.EmbedQuery(ctx, text)
	if err == nil && len(vector) > 0 {
		c.mu.Lock()
		c.queryCache[text] = vector
		c.dimension = len(vector)
		c.mu.Unlock()
		return vector, nil
	}
	if err == nil {
		err = fmt.Errorf("empty embedding")
	}
	typed := llmservice.Classify("embed query", err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.queryCache[text]; ok {
		log.Warn().Err(typed).Msg("query embedding failed, using cached vector")
		return cached, nil
	}
	if c.dimension > 0 {
		log.Warn().Err(typed).Int("dimension", c.dimension).Msg("query embedding failed, using zero vector")
		return make([]float32, c.dimension), nil
	}
	return nil, typed
}

// SetDimension seeds the fallback dimension before any successful call.
// Real embeddings overwrite it.
func (c *Client) SetDimension(dim int) {
	if dim > 0 {
		c.setDimension(dim)
	}
}

func (c *Client) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dimension
}

func (c *Client) setDimension(dim int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dimension = dim
}
