// Package openai provides a langchaingo llms.Model and embeddings client for OpenAI and
// OpenAI-compatible endpoints.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	openaisdk "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
)

const (
	DefaultModel          = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
)

var (
	ErrEmptyResponse = errors.New("no response")
	ErrMissingToken  = errors.New("openai requires an api key")
)

type options struct {
	token            string
	baseURL          string
	model            string
	embeddingModel   string
	dimensions       int
	httpClient       *http.Client
	callbacksHandler callbacks.Handler
}

// Option is a function that configures an LLM.
type Option func(*options)

// WithToken sets the API key. Defaults to OPENAI_API_KEY.
func WithToken(token string) Option {
	return func(opts *options) {
		opts.token = token
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) Option {
	return func(opts *options) {
		opts.embeddingModel = model
	}
}

// WithDimensions requests shortened embeddings. 0 keeps the model default.
func WithDimensions(dimensions int) Option {
	return func(opts *options) {
		opts.dimensions = dimensions
	}
}

// WithHTTPClient sets the HTTP client for the LLM.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

// WithCallbacks sets the callbacks handler for the LLM.
func WithCallbacks(handler callbacks.Handler) Option {
	return func(opts *options) {
		opts.callbacksHandler = handler
	}
}

// LLM is a client for OpenAI chat and embedding models.
type LLM struct {
	client           *openaisdk.Client
	model            string
	embeddingModel   string
	dimensions       int
	CallbacksHandler callbacks.Handler
}

var _ llms.Model = (*LLM)(nil)

// New returns an OpenAI client.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		token:          os.Getenv("OPENAI_API_KEY"),
		baseURL:        os.Getenv("OPENAI_BASE_URL"),
		model:          DefaultModel,
		embeddingModel: DefaultEmbeddingModel,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.token == "" {
		return nil, ErrMissingToken
	}

	config := openaisdk.DefaultConfig(o.token)
	if o.baseURL != "" {
		config.BaseURL = strings.TrimSuffix(o.baseURL, "/")
	}
	if o.httpClient != nil {
		config.HTTPClient = o.httpClient
	}

	return &LLM{
		client:           openaisdk.NewClientWithConfig(config),
		model:            o.model,
		embeddingModel:   o.embeddingModel,
		dimensions:       o.dimensions,
		CallbacksHandler: o.callbacksHandler,
	}, nil
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

	req := openaisdk.ChatCompletionRequest{
		Model:       o.model,
		Messages:    convertMessages(messages),
		Temperature: float32(opts.Temperature),
		TopP:        float32(opts.TopP),
		MaxTokens:   opts.MaxTokens,
		Stop:        opts.StopWords,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}

	result, err := o.client.CreateChatCompletion(ctx, req)
	if err == nil && len(result.Choices) == 0 {
		err = ErrEmptyResponse
	}
	if err != nil {
		if o.CallbacksHandler != nil {
			o.CallbacksHandler.HandleLLMError(ctx, err)
		}
		return nil, err
	}

	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:    result.Choices[0].Message.Content,
			StopReason: string(result.Choices[0].FinishReason),
			GenerationInfo: map[string]any{
				"prompt_tokens":     result.Usage.PromptTokens,
				"completion_tokens": result.Usage.CompletionTokens,
				"total_tokens":      result.Usage.TotalTokens,
			},
		}},
	}

	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentEnd(ctx, resp)
	}
	return resp, nil
}

// CreateEmbedding embeds texts in order. It makes LLM an embeddings.EmbedderClient.
func (o *LLM) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openaisdk.EmbeddingRequest{
		Input:      texts,
		Model:      openaisdk.EmbeddingModel(o.embeddingModel),
		Dimensions: o.dimensions,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

func convertMessages(messages []llms.MessageContent) []openaisdk.ChatCompletionMessage {
	out := make([]openaisdk.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		var content strings.Builder
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				content.WriteString(text.Text)
			}
		}

		role := openaisdk.ChatMessageRoleUser
		switch msg.Role {
		case llms.ChatMessageTypeSystem:
			role = openaisdk.ChatMessageRoleSystem
		case llms.ChatMessageTypeAI:
			role = openaisdk.ChatMessageRoleAssistant
		}
		out = append(out, openaisdk.ChatCompletionMessage{Role: role, Content: content.String()})
	}
	return out
}
