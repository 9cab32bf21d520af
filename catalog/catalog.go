// Package catalog maintains the movie embeddings the pipeline searches: it provisions the
// vector index, fills in missing embeddings, moves embeddings in and out of CSV files and
// reports graph statistics.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/moviegraph/log"
	"github.com/smallnest/moviegraph/rag"
)

// ErrIndexUnsupported is returned when the graph store cannot manage vector indexes.
var ErrIndexUnsupported = errors.New("graph store does not manage vector indexes")

// Defaults for Catalog options.
const (
	DefaultKeyProperty  = "tmdbId"
	DefaultTextProperty = "overview"
	DefaultConcurrency  = 4
	DefaultBatchSize    = 100
)

// Movie is one catalog entry as read from the graph or a CSV file.
type Movie struct {
	Key       any
	Title     string
	Overview  string
	Embedding []float32
}

// Report counts the outcome of a bulk embedding run.
type Report struct {
	// Total is the number of movies considered.
	Total int
	// Embedded is the number of movies whose vector was produced (and stored, when the run
	// writes to the graph).
	Embedded int
	// Skipped is the number of movies without text to embed.
	Skipped int
	// Failed is the number of movies whose embedding or write failed.
	Failed int
	// Unmatched is the number of vectors whose key matched no node.
	Unmatched int
}

func (r Report) String() string {
	return fmt.Sprintf("total=%d embedded=%d skipped=%d failed=%d unmatched=%d",
		r.Total, r.Embedded, r.Skipped, r.Failed, r.Unmatched)
}

// Catalog runs maintenance jobs against a graph store.
type Catalog struct {
	store        rag.GraphStore
	embedder     rag.Embedder
	index        rag.VectorIndex
	keyProperty  string
	textProperty string
	concurrency  int
	batchSize    int
	logger       log.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithKeyProperty sets the property identifying a movie. Default tmdbId.
func WithKeyProperty(name string) Option {
	return func(c *Catalog) {
		if name != "" {
			c.keyProperty = name
		}
	}
}

// WithTextProperty sets the property that is embedded. Default overview.
func WithTextProperty(name string) Option {
	return func(c *Catalog) {
		if name != "" {
			c.textProperty = name
		}
	}
}

// WithConcurrency bounds the number of embedding batches in flight.
func WithConcurrency(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithBatchSize sets how many texts go into one embedding call.
func WithBatchSize(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Catalog over store. embedder may be nil for jobs that do not embed.
func New(store rag.GraphStore, embedder rag.Embedder, index rag.VectorIndex, opts ...Option) *Catalog {
	c := &Catalog{
		store:        store,
		embedder:     embedder,
		index:        index,
		keyProperty:  DefaultKeyProperty,
		textProperty: DefaultTextProperty,
		concurrency:  DefaultConcurrency,
		batchSize:    DefaultBatchSize,
		logger:       log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureVectorIndex creates the vector index when it is missing and reports whether it did.
func (c *Catalog) EnsureVectorIndex(ctx context.Context) (bool, error) {
	manager, err := c.manager()
	if err != nil {
		return false, err
	}
	created, err := manager.EnsureVectorIndex(ctx, c.index)
	if err != nil {
		return false, fmt.Errorf("ensure vector index %s: %w", c.index.Name, err)
	}
	if created {
		c.logger.Info("created vector index %s on :%s(%s), %d dims",
			c.index.Name, c.index.Label, c.index.Property, c.index.Dimensions)
	} else {
		c.logger.Debug("vector index %s already exists", c.index.Name)
	}
	return created, nil
}

func (c *Catalog) manager() (rag.VectorIndexManager, error) {
	manager, ok := c.store.(rag.VectorIndexManager)
	if !ok {
		return nil, ErrIndexUnsupported
	}
	return manager, nil
}

// movies reads the movies selected by where, a boolean Cypher expression over m.
func (c *Catalog) movies(ctx context.Context, where string, withEmbedding bool) ([]Movie, error) {
	query := fmt.Sprintf("MATCH (m:%s) WHERE %s RETURN m.%s AS key, m.title AS title, m.%s AS overview",
		quoteIdentifier(c.index.Label), where, quoteIdentifier(c.keyProperty), quoteIdentifier(c.textProperty))
	if withEmbedding {
		query += fmt.Sprintf(", m.%s AS embedding", quoteIdentifier(c.index.Property))
	}

	records, err := c.store.ReadQuery(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("read movies: %w", err)
	}

	movies := make([]Movie, 0, len(records))
	for _, r := range records {
		m := Movie{
			Key:      r.Get("key").Native(),
			Title:    r.Get("title").String(),
			Overview: r.Get("overview").String(),
		}
		if withEmbedding {
			m.Embedding, err = embeddingOf(r.Get("embedding"))
			if err != nil {
				return nil, fmt.Errorf("movie %v: %w", m.Key, err)
			}
		}
		movies = append(movies, m)
	}
	return movies, nil
}

func (c *Catalog) missingClause() string {
	return fmt.Sprintf("m.%s IS NULL", quoteIdentifier(c.index.Property))
}

func (c *Catalog) hasTextClause() string {
	p := quoteIdentifier(c.textProperty)
	return fmt.Sprintf("m.%s IS NOT NULL AND m.%s <> ''", p, p)
}

func (c *Catalog) hasEmbeddingClause() string {
	return fmt.Sprintf("m.%s IS NOT NULL", quoteIdentifier(c.index.Property))
}

// embeddingOf reads a stored embedding, either a list of numbers or a JSON array string.
func embeddingOf(v rag.Value) ([]float32, error) {
	if v.IsNull() {
		return nil, nil
	}
	if vector, ok := v.AsVector(); ok {
		return vector, nil
	}
	if s, ok := v.AsString(); ok {
		return decodeVector(s)
	}
	return nil, fmt.Errorf("embedding is a %s, not a list", v.Kind())
}

func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
