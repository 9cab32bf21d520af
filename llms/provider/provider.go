// Package provider builds the language model and embedder selected by configuration.
package provider

import (
	"context"
	"fmt"

	"github.com/smallnest/moviegraph/config"
	"github.com/smallnest/moviegraph/llms/gemini"
	"github.com/smallnest/moviegraph/llms/openai"
	"github.com/smallnest/moviegraph/rag"
	"github.com/smallnest/moviegraph/rag/store"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Provider names accepted in llm.provider and embedding.provider.
const (
	Vertex   = "vertex"
	GoogleAI = "googleai"
	OpenAI   = "openai"
	Ollama   = "ollama"
	Mock     = "mock"
)

// chatEmbedder is a langchaingo model that can also embed text.
type chatEmbedder interface {
	llms.Model
	embeddings.EmbedderClient
}

// NewLanguageModel returns the generation model configured in cfg.LLM.
func NewLanguageModel(ctx context.Context, cfg *config.Config) (rag.LanguageModel, error) {
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	model, err := newModel(ctx, cfg, cfg.LLM.Provider, cfg.LLM.Model, "")
	if err != nil {
		return nil, fmt.Errorf("llm provider %s: %w", cfg.LLM.Provider, err)
	}
	return rag.NewLangChainLLM(model), nil
}

// NewEmbedder returns the embedder configured in cfg.Embedding. Vectors have the index's
// dimensions.
func NewEmbedder(ctx context.Context, cfg *config.Config) (rag.Embedder, error) {
	if err := cfg.ValidateEmbedding(); err != nil {
		return nil, err
	}
	dimensions := cfg.Index.Dimensions
	if cfg.Embedding.Provider == Mock {
		return store.NewMockEmbedder(dimensions), nil
	}

	model, err := newModel(ctx, cfg, cfg.Embedding.Provider, "", cfg.Embedding.Model)
	if err != nil {
		return nil, fmt.Errorf("embedding provider %s: %w", cfg.Embedding.Provider, err)
	}
	var opts []embeddings.Option
	if cfg.Catalog.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.Catalog.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(model, opts...)
	if err != nil {
		return nil, fmt.Errorf("embedding provider %s: %w", cfg.Embedding.Provider, err)
	}
	return rag.NewLangChainEmbedder(embedder, dimensions), nil
}

func newModel(ctx context.Context, cfg *config.Config, provider, model, embeddingModel string) (chatEmbedder, error) {
	switch provider {
	case Vertex, GoogleAI:
		opts := []gemini.Option{gemini.WithDimensions(cfg.Index.Dimensions)}
		if provider == GoogleAI {
			opts = append(opts, gemini.WithAPIKey(cfg.Google.APIKey))
		} else {
			opts = append(opts,
				gemini.WithBackend(gemini.BackendVertexAI),
				gemini.WithProject(cfg.Google.Project),
				gemini.WithLocation(cfg.Google.Location))
		}
		if model != "" {
			opts = append(opts, gemini.WithModel(model))
		}
		if embeddingModel != "" {
			opts = append(opts, gemini.WithEmbeddingModel(embeddingModel))
		}
		llm, err := gemini.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return llm, nil

	case OpenAI:
		opts := []openai.Option{
			openai.WithToken(cfg.OpenAI.APIKey),
			openai.WithDimensions(cfg.Index.Dimensions),
		}
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		if model != "" {
			opts = append(opts, openai.WithModel(model))
		}
		if embeddingModel != "" {
			opts = append(opts, openai.WithEmbeddingModel(embeddingModel))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, err
		}
		return llm, nil

	case Ollama:
		name := model
		if name == "" {
			name = embeddingModel
		}
		llm, err := ollama.New(ollama.WithModel(name), ollama.WithServerURL(cfg.Ollama.ServerURL))
		if err != nil {
			return nil, err
		}
		return llm, nil
	}
	return nil, fmt.Errorf("unknown provider %q", provider)
}
