// Package gemini provides a langchaingo llms.Model and embeddings client for Google Gemini
// models, served either by Vertex AI or by the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"
)

var (
	ErrEmptyResponse   = errors.New("no response")
	ErrMissingProject  = errors.New("vertex ai requires a project")
	ErrMissingAPIKey   = errors.New("gemini api requires an api key")
	ErrEmbeddingsCount = errors.New("unexpected number of embeddings")
)

// maxEmbedBatch is the number of texts sent in one embedding request.
const maxEmbedBatch = 100

// models is the part of genai.Models the LLM uses.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// LLM is a client for Gemini generation and embedding models.
type LLM struct {
	models           models
	model            string
	embeddingModel   string
	dimensions       int
	CallbacksHandler callbacks.Handler
}

var _ llms.Model = (*LLM)(nil)

// New returns a Gemini client.
//
// Vertex AI is the default backend and needs a project (WithProject, GOOGLE_CLOUD_PROJECT or
// PROJECT_ID) plus Application Default Credentials. WithAPIKey switches to the Gemini API.
//
// Example:
//
//	llm, err := gemini.New(ctx,
//		gemini.WithProject("my-project"),
//		gemini.WithLocation("us-central1"),
//	)
func New(ctx context.Context, opts ...Option) (*LLM, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	config := &genai.ClientConfig{HTTPClient: o.httpClient}
	switch o.backend {
	case BackendGeminiAPI:
		if o.apiKey == "" {
			return nil, ErrMissingAPIKey
		}
		config.Backend = genai.BackendGeminiAPI
		config.APIKey = o.apiKey
	case BackendVertexAI:
		if o.project == "" {
			return nil, ErrMissingProject
		}
		if o.location == "" {
			o.location = DefaultLocation
		}
		config.Backend = genai.BackendVertexAI
		config.Project = o.project
		config.Location = o.location
	default:
		return nil, fmt.Errorf("unknown gemini backend %q", o.backend)
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return newLLM(client.Models, o), nil
}

func newLLM(m models, o *options) *LLM {
	return &LLM{
		models:           m,
		model:            o.model,
		embeddingModel:   o.embeddingModel,
		dimensions:       o.dimensions,
		CallbacksHandler: o.callbacksHandler,
	}
}

// Dimensions returns the requested embedding size, or 0 for the model default.
func (o *LLM) Dimensions() int {
	return o.dimensions
}

// Call generates a response from the LLM for the given prompt.
func (o *LLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, o, prompt, options...)
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentStart(ctx, messages)
	}

	opts := &llms.CallOptions{}
	for _, opt := range options {
		opt(opts)
	}

	contents, system := convertMessages(messages)
	config := buildConfig(*opts)
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	model := o.model
	if opts.Model != "" {
		model = opts.Model
	}

	result, err := o.models.GenerateContent(ctx, model, contents, config)
	if err == nil && (result == nil || len(result.Candidates) == 0) {
		err = ErrEmptyResponse
	}
	if err != nil {
		if o.CallbacksHandler != nil {
			o.CallbacksHandler.HandleLLMError(ctx, err)
		}
		return nil, err
	}

	choice := &llms.ContentChoice{
		Content:        result.Text(),
		StopReason:     string(result.Candidates[0].FinishReason),
		GenerationInfo: make(map[string]any),
	}
	if usage := result.UsageMetadata; usage != nil {
		choice.GenerationInfo["prompt_tokens"] = int(usage.PromptTokenCount)
		choice.GenerationInfo["completion_tokens"] = int(usage.CandidatesTokenCount)
		choice.GenerationInfo["total_tokens"] = int(usage.TotalTokenCount)
	}
	resp := &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}

	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentEnd(ctx, resp)
	}
	return resp, nil
}

// CreateEmbedding embeds texts in order with the embedding model. It makes LLM an
// embeddings.EmbedderClient.
func (o *LLM) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	config := &genai.EmbedContentConfig{}
	if o.dimensions > 0 {
		config.OutputDimensionality = genai.Ptr(int32(o.dimensions))
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, text := range texts[start:end] {
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: text}},
			})
		}

		resp, err := o.models.EmbedContent(ctx, o.embeddingModel, contents, config)
		if err != nil {
			return nil, err
		}
		if resp == nil || len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("%w: sent %d texts", ErrEmbeddingsCount, end-start)
		}
		for _, embedding := range resp.Embeddings {
			vectors = append(vectors, embedding.Values)
		}
	}
	return vectors, nil
}

// convertMessages maps langchaingo messages to genai contents. System messages are joined
// into the returned system instruction.
func convertMessages(messages []llms.MessageContent) ([]*genai.Content, string) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		var text strings.Builder
		for _, part := range msg.Parts {
			if t, ok := part.(llms.TextContent); ok {
				text.WriteString(t.Text)
			}
		}

		switch msg.Role {
		case llms.ChatMessageTypeSystem:
			system = append(system, text.String())
			continue
		case llms.ChatMessageTypeAI:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: text.String()}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: text.String()}},
			})
		}
	}
	return contents, strings.Join(system, "\n")
}

func buildConfig(opts llms.CallOptions) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	if opts.TopP > 0 {
		config.TopP = genai.Ptr(float32(opts.TopP))
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if len(opts.StopWords) > 0 {
		config.StopSequences = opts.StopWords
	}
	return config
}
