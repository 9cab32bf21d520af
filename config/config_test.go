package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallnest/moviegraph/config"
	"github.com/smallnest/moviegraph/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"NEO4J_URI", "NEO4J_USER", "NEO4J_USERNAME", "NEO4J_PASSWORD", "NEO4J_DATABASE",
		"PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "LOCATION", "GOOGLE_CLOUD_LOCATION",
		"GOOGLE_API_KEY", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OLLAMA_HOST",
		"MOVIEGRAPH_GRAPH_URI", "MOVIEGRAPH_GOOGLE_PROJECT", "MOVIEGRAPH_LLM_PROVIDER",
		"MOVIEGRAPH_PIPELINE_TOP_K", "MOVIEGRAPH_JOURNAL_BACKEND", "MOVIEGRAPH_GRAPH_BACKEND",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROJECT_ID", "movies-project")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "neo4j", cfg.Graph.Backend)
	assert.Equal(t, "neo4j://localhost:7687", cfg.Graph.URI)
	assert.Equal(t, "movies-project", cfg.Google.Project)
	assert.Equal(t, "us-central1", cfg.Google.Location)
	assert.Equal(t, 5, cfg.Pipeline.TopK)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.CallTimeout)
	assert.Equal(t, "none", cfg.Journal.Backend)
	assert.Equal(t, rag.DefaultVectorIndex(), cfg.VectorIndex())
}

func TestLoad_FromFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "moviegraph.yaml")
	content := `
graph:
  backend: falkordb
  uri: falkordb://localhost:6379
  name: films
llm:
  provider: openai
  model: gpt-4o-mini
embedding:
  provider: ollama
  model: nomic-embed-text
openai:
  api_key: test-key
index:
  dimensions: 768
pipeline:
  top_k: 8
  call_timeout: 10s
journal:
  backend: sqlite
  dsn: /tmp/journal.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "falkordb", cfg.Graph.Backend)
	assert.Equal(t, "films", cfg.Graph.Name)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, 8, cfg.Pipeline.TopK)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.CallTimeout)

	oc := cfg.OrchestratorConfig()
	assert.Equal(t, 8, oc.TopK)
	assert.Equal(t, "overview_embeddings", oc.Index.Name)
}

func TestLoad_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("MOVIEGRAPH_GOOGLE_PROJECT", "prefixed")
	t.Setenv("MOVIEGRAPH_PIPELINE_TOP_K", "3")
	t.Setenv("NEO4J_URI", "neo4j+s://demo.databases.neo4j.io")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Google.Project)
	assert.Equal(t, 3, cfg.Pipeline.TopK)
	assert.Equal(t, "neo4j+s://demo.databases.neo4j.io", cfg.Graph.URI)
}

func TestLoad_PrefixedBeatsAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROJECT_ID", "legacy")
	t.Setenv("MOVIEGRAPH_GOOGLE_PROJECT", "prefixed")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Google.Project)
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	clearEnv(t)
	t.Setenv("MOVIEGRAPH_GRAPH_BACKEND", "memgraph")
	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph.backend")
}

func TestLoad_GraphOnlyNeedsNoModelCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEO4J_URI", "neo4j://graph.internal:7687")
	t.Setenv("NEO4J_USERNAME", "neo4j")
	t.Setenv("NEO4J_PASSWORD", "secret")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "neo4j://graph.internal:7687", cfg.Graph.URI)

	err = cfg.ValidateLLM()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.provider vertex requires google.project")
	err = cfg.ValidateEmbedding()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.provider vertex requires google.project")
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "movies.env")
	require.NoError(t, os.WriteFile(path, []byte("PROJECT_ID=from-env-file\nNEO4J_PASSWORD=secret\n"), 0o644))

	require.NoError(t, config.LoadEnvFile(path))
	t.Cleanup(func() {
		os.Unsetenv("PROJECT_ID")
		os.Unsetenv("NEO4J_PASSWORD")
	})

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env-file", cfg.Google.Project)
	assert.Equal(t, "secret", cfg.Graph.Password)

	assert.Error(t, config.LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		return config.Config{
			Graph:     config.GraphConfig{Backend: "neo4j", URI: "neo4j://localhost"},
			Index:     config.IndexConfig{Name: "idx", Label: "Movie", Property: "embedding", Dimensions: 768, Similarity: "cosine"},
			LLM:       config.ModelConfig{Provider: "ollama", Model: "llama3.1"},
			Ollama:    config.OllamaConfig{ServerURL: "http://localhost:11434"},
			Embedding: config.ModelConfig{Provider: "mock"},
			Pipeline:  config.PipelineConfig{TopK: 5},
			Catalog:   config.CatalogConfig{Concurrency: 1},
			Journal:   config.JournalConfig{Backend: "memory"},
			Log:       config.LogConfig{Level: "debug"},
		}
	}

	cfg := valid()
	assert.Empty(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(c *config.Config)
		want   string
	}{
		{"graph backend", func(c *config.Config) { c.Graph.Backend = "memgraph" }, "graph.backend"},
		{"graph uri", func(c *config.Config) { c.Graph.URI = "" }, "graph.uri"},
		{"dimensions", func(c *config.Config) { c.Index.Dimensions = 0 }, "index.dimensions"},
		{"similarity", func(c *config.Config) { c.Index.Similarity = "dot" }, "index.similarity"},
		{"top k", func(c *config.Config) { c.Pipeline.TopK = 0 }, "pipeline.top_k"},
		{"journal dsn", func(c *config.Config) { c.Journal.Backend = "postgres" }, "journal.dsn"},
		{"journal backend", func(c *config.Config) { c.Journal.Backend = "mongo" }, "journal.backend"},
		{"log level", func(c *config.Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			errs := cfg.Validate()
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0].Error(), tt.want)
		})
	}
}

func TestValidateModels(t *testing.T) {
	valid := func() config.Config {
		return config.Config{
			LLM:       config.ModelConfig{Provider: "ollama", Model: "llama3.1"},
			Ollama:    config.OllamaConfig{ServerURL: "http://localhost:11434"},
			Embedding: config.ModelConfig{Provider: "mock"},
		}
	}

	cfg := valid()
	assert.NoError(t, cfg.ValidateLLM())
	assert.NoError(t, cfg.ValidateEmbedding())

	tests := []struct {
		name     string
		mutate   func(c *config.Config)
		validate func(c *config.Config) error
		want     string
	}{
		{"provider", func(c *config.Config) { c.LLM.Provider = "anthropic" }, (*config.Config).ValidateLLM, "llm.provider"},
		{"openai key", func(c *config.Config) { c.Embedding = config.ModelConfig{Provider: "openai", Model: "m"} }, (*config.Config).ValidateEmbedding, "openai.api_key"},
		{"model", func(c *config.Config) { c.LLM.Model = "" }, (*config.Config).ValidateLLM, "llm.model"},
		{"mock llm", func(c *config.Config) { c.LLM = config.ModelConfig{Provider: "mock"} }, (*config.Config).ValidateLLM, "only available for embeddings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := tt.validate(&cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
