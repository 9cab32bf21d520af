package rag

import (
	"context"
)

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	// EmbedDocument generates an embedding for a single text.
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	// EmbedDocuments generates embeddings for several texts, in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// GetDimension returns the embedding dimension, or 0 when unknown.
	GetDimension() int
}

// LanguageModel sends a prompt to an LLM and returns the generated text.
type LanguageModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GraphStore is a property graph that can run Cypher, search a vector index and describe
// its own schema.
type GraphStore interface {
	// VectorSearch returns up to topK records with the fields title, plot, released,
	// tagline and score. A higher score means more similar.
	VectorSearch(ctx context.Context, index VectorIndex, vector []float32, topK int) ([]Record, error)

	// ReadQuery runs a query in a read-only transaction.
	ReadQuery(ctx context.Context, query string, params map[string]any) ([]Record, error)

	// WriteQuery runs a query that may modify the graph.
	WriteQuery(ctx context.Context, query string, params map[string]any) ([]Record, error)

	// NodeTypeProperties lists node type and property associations in store order.
	NodeTypeProperties(ctx context.Context) ([]NodeTypeProperty, error)

	// RelationshipTypes lists relationship type names in store order.
	RelationshipTypes(ctx context.Context) ([]string, error)

	// Close releases the connection.
	Close(ctx context.Context) error
}

// VectorIndexManager is implemented by stores that can provision and fill a vector index.
type VectorIndexManager interface {
	// EnsureVectorIndex creates the index when it is missing and reports whether it did.
	EnsureVectorIndex(ctx context.Context, index VectorIndex) (bool, error)

	// SetNodeVector stores vector on the node of index.Label whose keyProperty equals key.
	// It reports whether a node matched.
	SetNodeVector(ctx context.Context, index VectorIndex, keyProperty string, key any, vector []float32) (bool, error)
}

// NodeTypeProperty associates a node type with one of its properties.
type NodeTypeProperty struct {
	Labels   []string
	Property string
}

// VectorIndex describes the vector index the pipeline searches.
type VectorIndex struct {
	Name       string
	Label      string
	Property   string
	Dimensions int
	Similarity string
}

// DefaultVectorIndex is the index over movie overview embeddings.
func DefaultVectorIndex() VectorIndex {
	return VectorIndex{
		Name:       "overview_embeddings",
		Label:      "Movie",
		Property:   "embedding",
		Dimensions: 768,
		Similarity: "cosine",
	}
}

// Candidate is a movie returned by vector search.
type Candidate struct {
	Title    string
	Plot     string
	Released string
	Tagline  string
	Score    float64
}

// candidateFromRecord reads a vector search record. Missing or mistyped fields stay empty.
func candidateFromRecord(r Record) Candidate {
	c := Candidate{
		Title:    r.Get("title").String(),
		Plot:     r.Get("plot").String(),
		Released: r.Get("released").String(),
		Tagline:  r.Get("tagline").String(),
	}
	if score, ok := r.Get("score").AsFloat(); ok {
		c.Score = score
	}
	if r.Get("released").IsNull() {
		c.Released = "Unknown"
	}
	return c
}
