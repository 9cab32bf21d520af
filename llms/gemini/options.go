package gemini

import (
	"net/http"
	"os"

	"github.com/tmc/langchaingo/callbacks"
)

// Default models. text-embedding-005 returns 768-dimensional vectors, matching the
// movie overview index.
const (
	DefaultModel          = "gemini-2.0-flash-001"
	DefaultEmbeddingModel = "text-embedding-005"
	DefaultDimensions     = 768
	DefaultLocation       = "us-central1"
)

// Backend selects the Google API serving the models.
type Backend string

const (
	// BackendVertexAI authenticates with Application Default Credentials against a project.
	BackendVertexAI Backend = "vertex"
	// BackendGeminiAPI authenticates with an API key.
	BackendGeminiAPI Backend = "googleai"
)

type options struct {
	backend          Backend
	apiKey           string
	project          string
	location         string
	model            string
	embeddingModel   string
	dimensions       int
	httpClient       *http.Client
	callbacksHandler callbacks.Handler
}

// Option is a function that configures an LLM.
type Option func(*options)

// WithBackend selects Vertex AI or the Gemini API.
func WithBackend(backend Backend) Option {
	return func(opts *options) {
		opts.backend = backend
	}
}

// WithAPIKey sets the Gemini API key and selects BackendGeminiAPI.
func WithAPIKey(apiKey string) Option {
	return func(opts *options) {
		opts.apiKey = apiKey
		opts.backend = BackendGeminiAPI
	}
}

// WithProject sets the Google Cloud project used by Vertex AI.
func WithProject(project string) Option {
	return func(opts *options) {
		opts.project = project
	}
}

// WithLocation sets the Vertex AI region.
func WithLocation(location string) Option {
	return func(opts *options) {
		opts.location = location
	}
}

// WithModel sets the generation model.
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

// WithDimensions sets the requested embedding size. 0 keeps the model default.
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

func defaultOptions() *options {
	return &options{
		backend:        BackendVertexAI,
		apiKey:         os.Getenv("GOOGLE_API_KEY"),
		project:        firstEnv("GOOGLE_CLOUD_PROJECT", "PROJECT_ID"),
		location:       firstEnv("GOOGLE_CLOUD_LOCATION", "LOCATION"),
		model:          DefaultModel,
		embeddingModel: DefaultEmbeddingModel,
		dimensions:     DefaultDimensions,
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}
