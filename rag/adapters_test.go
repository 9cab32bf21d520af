package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type echoModel struct {
	temperature float64
	err         error
}

func (m *echoModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	m.temperature = opts.Temperature

	var text string
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				text += tc.Text
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "echo: " + text}}}, nil
}

func (m *echoModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

type countingEmbedder struct {
	short bool
}

func (e *countingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	n := len(texts)
	if e.short {
		n--
	}
	vectors := make([][]float32, n)
	for i := range vectors {
		vectors[i] = []float32{float32(len(texts[i]))}
	}
	return vectors, nil
}

func (e *countingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("empty text")
	}
	return []float32{float32(len(text))}, nil
}

func TestLangChainLLM(t *testing.T) {
	model := &echoModel{}
	llm := NewLangChainLLM(model, llms.WithTemperature(0.2))

	out, err := llm.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", out)
	assert.InDelta(t, 0.2, model.temperature, 1e-9)

	model.err = errors.New("quota exceeded")
	_, err = llm.Generate(context.Background(), "hello")
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestLangChainEmbedder(t *testing.T) {
	embedder := NewLangChainEmbedder(&countingEmbedder{}, 1)
	assert.Equal(t, 1, embedder.GetDimension())

	vector, err := embedder.EmbedDocument(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, vector)

	_, err = embedder.EmbedDocument(context.Background(), "")
	assert.Error(t, err)

	vectors, err := embedder.EmbedDocuments(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, vectors)

	short := NewLangChainEmbedder(&countingEmbedder{short: true}, 1)
	_, err = short.EmbedDocuments(context.Background(), []string{"a", "bb"})
	assert.ErrorContains(t, err, "returned 1 vectors for 2 texts")
}
