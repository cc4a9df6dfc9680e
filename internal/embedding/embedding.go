package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"ocr-rag/internal/config"
)

const defaultBatchSize = 32

// NewEmbedder builds the embedding client named by cfg.Provider.
func NewEmbedder(ctx context.Context, cfg *config.LLMConfig, batchSize int) (embeddings.Embedder, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("embedding_model", cfg.Model).Msg("Creating embedder")

	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		client, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		client, err = openai.New(opts...)
	case "googleai", "gemini":
		client, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.Key),
			googleai.WithDefaultEmbeddingModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s embedding client: %w", cfg.Provider, err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(batchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// EmbeddingFunc adapts an embedder to the single-text signature vector
// stores expect for queries.
func EmbeddingFunc(embedder embeddings.Embedder) func(ctx context.Context, text string) ([]float32, error) {
	return func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
}
