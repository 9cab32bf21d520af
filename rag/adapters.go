package rag

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
)

// LangChainEmbedder adapts langchaingo's embeddings.Embedder to our Embedder interface
type LangChainEmbedder struct {
	embedder  embeddings.Embedder
	dimension int
}

var _ Embedder = (*LangChainEmbedder)(nil)

// NewLangChainEmbedder creates a new adapter for langchaingo embedders. dimension is the
// known output size of the model; 0 means unknown.
func NewLangChainEmbedder(embedder embeddings.Embedder, dimension int) *LangChainEmbedder {
	return &LangChainEmbedder{
		embedder:  embedder,
		dimension: dimension,
	}
}

// EmbedDocument embeds a single text using the underlying langchaingo embedder
func (l *LangChainEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	embedding, err := l.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return embedding, nil
}

// EmbedDocuments embeds texts in order
func (l *LangChainEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := l.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

// GetDimension returns the embedding dimension
func (l *LangChainEmbedder) GetDimension() int {
	return l.dimension
}

// LangChainLLM adapts a langchaingo llms.Model to our LanguageModel interface
type LangChainLLM struct {
	model   llms.Model
	options []llms.CallOption
}

var _ LanguageModel = (*LangChainLLM)(nil)

// NewLangChainLLM creates a new adapter. options apply to every call.
func NewLangChainLLM(model llms.Model, options ...llms.CallOption) *LangChainLLM {
	return &LangChainLLM{
		model:   model,
		options: options,
	}
}

// Generate sends prompt as a single human message
func (l *LangChainLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, l.model, prompt, l.options...)
}
