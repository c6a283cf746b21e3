package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"docqa/internal/config"
	"docqa/internal/models"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewEmbedder builds the embedder the config asks for.
func NewEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaEmbedder(cfg)
	case "openai":
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating ollama embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama LLM: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// new embedder against any OpenAI-compatible endpoint
func NewOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating openai embedder")

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai LLM: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// GenerateEmbedding generates embeddings for the chunks of a given file
func GenerateEmbedding(ctx context.Context, embedder *embeddings.EmbedderImpl, filename string, chunks []models.Chunk) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Str("filename", filename).Msg("No chunks generated from content")
		return nil, nil
	}

	var chunkEmbeddings []models.ChunkEmbedding
	for _, chunk := range chunks {
		vector, err := embedder.EmbedQuery(ctx, chunk.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunk %d of %s: %w", chunk.ChunkID, filename, err)
		}
		chunkEmbeddings = append(chunkEmbeddings, models.ChunkEmbedding{
			Content:        chunk.Content,
			Embedding:      vector,
			SourceFilename: filename,
			PageNumber:     chunk.PageNumber,
			ChunkID:        chunk.ChunkID,
		})
	}

	return chunkEmbeddings, nil
}
