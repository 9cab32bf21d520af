// Package config loads moviegraph settings from defaults, an optional YAML file, a .env file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/smallnest/moviegraph/log"
	"github.com/smallnest/moviegraph/rag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MOVIEGRAPH"

// Config is the top-level moviegraph configuration.
type Config struct {
	Graph     GraphConfig     `mapstructure:"graph"`
	Index     IndexConfig     `mapstructure:"index"`
	LLM       ModelConfig     `mapstructure:"llm"`
	Embedding ModelConfig     `mapstructure:"embedding"`
	Google    GoogleConfig    `mapstructure:"google"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// GraphConfig selects and addresses the graph database.
type GraphConfig struct {
	Backend  string `mapstructure:"backend"`
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	// Name is the FalkorDB graph key.
	Name string `mapstructure:"name"`
}

// IndexConfig describes the movie vector index.
type IndexConfig struct {
	Name       string `mapstructure:"name"`
	Label      string `mapstructure:"label"`
	Property   string `mapstructure:"property"`
	Dimensions int    `mapstructure:"dimensions"`
	Similarity string `mapstructure:"similarity"`
}

// ModelConfig selects a provider and model.
type ModelConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
}

// GoogleConfig holds Vertex AI and Gemini API settings.
type GoogleConfig struct {
	Project  string `mapstructure:"project"`
	Location string `mapstructure:"location"`
	APIKey   string `mapstructure:"api_key"`
}

// OpenAIConfig holds OpenAI-compatible endpoint settings.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// OllamaConfig holds the Ollama server address.
type OllamaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// PipelineConfig tunes the query pipeline.
type PipelineConfig struct {
	TopK           int           `mapstructure:"top_k"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	MaxResultChars int           `mapstructure:"max_result_chars"`
}

// CatalogConfig tunes embedding maintenance.
type CatalogConfig struct {
	KeyProperty string `mapstructure:"key_property"`
	Concurrency int    `mapstructure:"concurrency"`
	BatchSize   int    `mapstructure:"batch_size"`
}

// JournalConfig selects the query journal backend.
type JournalConfig struct {
	Backend string        `mapstructure:"backend"`
	DSN     string        `mapstructure:"dsn"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig sets the Prometheus listen address. Empty disables the endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TracingConfig toggles OpenTelemetry spans.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// aliases binds the variable names of the original .env files.
var aliases = map[string][]string{
	"graph.uri":         {"NEO4J_URI"},
	"graph.user":        {"NEO4J_USER", "NEO4J_USERNAME"},
	"graph.password":    {"NEO4J_PASSWORD"},
	"graph.database":    {"NEO4J_DATABASE"},
	"google.project":    {"PROJECT_ID", "GOOGLE_CLOUD_PROJECT"},
	"google.location":   {"LOCATION", "GOOGLE_CLOUD_LOCATION"},
	"google.api_key":    {"GOOGLE_API_KEY"},
	"openai.api_key":    {"OPENAI_API_KEY"},
	"openai.base_url":   {"OPENAI_BASE_URL"},
	"ollama.server_url": {"OLLAMA_HOST"},
}

func setDefaults(v *viper.Viper) {
	index := rag.DefaultVectorIndex()

	v.SetDefault("graph.backend", "neo4j")
	v.SetDefault("graph.uri", "neo4j://localhost:7687")
	v.SetDefault("graph.user", "neo4j")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", "neo4j")
	v.SetDefault("graph.name", "movies")

	v.SetDefault("index.name", index.Name)
	v.SetDefault("index.label", index.Label)
	v.SetDefault("index.property", index.Property)
	v.SetDefault("index.dimensions", index.Dimensions)
	v.SetDefault("index.similarity", index.Similarity)

	v.SetDefault("llm.provider", "vertex")
	v.SetDefault("llm.model", "gemini-2.0-flash-001")
	v.SetDefault("embedding.provider", "vertex")
	v.SetDefault("embedding.model", "text-embedding-005")

	v.SetDefault("google.project", "")
	v.SetDefault("google.location", "us-central1")
	v.SetDefault("google.api_key", "")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("ollama.server_url", "http://localhost:11434")

	v.SetDefault("pipeline.top_k", rag.DefaultTopK)
	v.SetDefault("pipeline.call_timeout", 30*time.Second)
	v.SetDefault("pipeline.max_result_chars", rag.MaxResultChars)

	v.SetDefault("catalog.key_property", "tmdbId")
	v.SetDefault("catalog.concurrency", 4)
	v.SetDefault("catalog.batch_size", 100)

	v.SetDefault("journal.backend", "none")
	v.SetDefault("journal.dsn", "")
	v.SetDefault("journal.ttl", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("tracing.enabled", false)
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment without
// overriding variables that are already set. An empty path reads ./.env; a missing ./.env
// is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Debug("no .env file found, using system environment variables")
				return nil
			}
			return fmt.Errorf("loading .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from the given path (or defaults) with environment variable
// overrides (prefix MOVIEGRAPH_) and the legacy variable aliases.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range aliases {
		envs := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Validate checks the configuration every command needs for logical errors. It returns every
// problem found. Model settings are checked separately by ValidateLLM and ValidateEmbedding
// when a model is built, so graph-only commands run without model credentials.
func (c *Config) Validate() []error {
	var errs []error
	errs = append(errs, c.validateGraph()...)
	errs = append(errs, c.validateIndex()...)
	errs = append(errs, c.validatePipeline()...)
	errs = append(errs, c.validateJournal()...)

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("config: log.level: %w", err))
	}
	return errs
}

// ValidateLLM checks the llm section and the credentials its provider needs.
func (c *Config) ValidateLLM() error {
	return errors.Join(c.validateModel("llm", c.LLM)...)
}

// ValidateEmbedding checks the embedding section and the credentials its provider needs.
func (c *Config) ValidateEmbedding() error {
	return errors.Join(c.validateModel("embedding", c.Embedding)...)
}

func (c *Config) validateGraph() []error {
	var errs []error
	switch c.Graph.Backend {
	case "neo4j", "falkordb":
	default:
		errs = append(errs, fmt.Errorf("config: graph.backend must be one of [neo4j, falkordb], got %q", c.Graph.Backend))
	}
	if c.Graph.URI == "" {
		errs = append(errs, errors.New("config: graph.uri must not be empty"))
	}
	return errs
}

func (c *Config) validateIndex() []error {
	var errs []error
	if c.Index.Name == "" || c.Index.Label == "" || c.Index.Property == "" {
		errs = append(errs, errors.New("config: index.name, index.label and index.property must not be empty"))
	}
	if c.Index.Dimensions < 1 {
		errs = append(errs, fmt.Errorf("config: index.dimensions must be positive, got %d", c.Index.Dimensions))
	}
	switch strings.ToLower(c.Index.Similarity) {
	case "cosine", "euclidean":
	default:
		errs = append(errs, fmt.Errorf("config: index.similarity must be one of [cosine, euclidean], got %q", c.Index.Similarity))
	}
	return errs
}

func (c *Config) validateModel(section string, m ModelConfig) []error {
	var errs []error
	switch m.Provider {
	case "vertex":
		if c.Google.Project == "" {
			errs = append(errs, fmt.Errorf("config: %s.provider vertex requires google.project", section))
		}
	case "googleai":
		if c.Google.APIKey == "" {
			errs = append(errs, fmt.Errorf("config: %s.provider googleai requires google.api_key", section))
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			errs = append(errs, fmt.Errorf("config: %s.provider openai requires openai.api_key", section))
		}
	case "ollama":
		if c.Ollama.ServerURL == "" {
			errs = append(errs, fmt.Errorf("config: %s.provider ollama requires ollama.server_url", section))
		}
	case "mock":
		if section != "embedding" {
			errs = append(errs, fmt.Errorf("config: %s.provider mock is only available for embeddings", section))
		}
	default:
		errs = append(errs, fmt.Errorf("config: %s.provider must be one of [vertex, googleai, openai, ollama, mock], got %q", section, m.Provider))
	}
	if m.Model == "" && m.Provider != "mock" {
		errs = append(errs, fmt.Errorf("config: %s.model must not be empty", section))
	}
	return errs
}

func (c *Config) validatePipeline() []error {
	var errs []error
	if c.Pipeline.TopK < 1 {
		errs = append(errs, fmt.Errorf("config: pipeline.top_k must be positive, got %d", c.Pipeline.TopK))
	}
	if c.Pipeline.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("config: pipeline.call_timeout must not be negative, got %s", c.Pipeline.CallTimeout))
	}
	if c.Catalog.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("config: catalog.concurrency must be positive, got %d", c.Catalog.Concurrency))
	}
	return errs
}

func (c *Config) validateJournal() []error {
	switch c.Journal.Backend {
	case "none", "memory":
		return nil
	case "sqlite", "postgres", "redis":
		if c.Journal.DSN == "" {
			return []error{fmt.Errorf("config: journal.backend %s requires journal.dsn", c.Journal.Backend)}
		}
		return nil
	}
	return []error{fmt.Errorf("config: journal.backend must be one of [none, memory, sqlite, postgres, redis], got %q", c.Journal.Backend)}
}

// VectorIndex returns the configured vector index.
func (c *Config) VectorIndex() rag.VectorIndex {
	return rag.VectorIndex{
		Name:       c.Index.Name,
		Label:      c.Index.Label,
		Property:   c.Index.Property,
		Dimensions: c.Index.Dimensions,
		Similarity: c.Index.Similarity,
	}
}

// OrchestratorConfig returns the orchestrator configuration.
func (c *Config) OrchestratorConfig() rag.Config {
	return rag.Config{
		Index:          c.VectorIndex(),
		TopK:           c.Pipeline.TopK,
		CallTimeout:    c.Pipeline.CallTimeout,
		MaxResultChars: c.Pipeline.MaxResultChars,
	}
}
