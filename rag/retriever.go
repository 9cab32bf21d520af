package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultTopK is the number of candidates retrieved when none is configured.
const DefaultTopK = 5

// RetrievalConfig configures a VectorRetriever.
type RetrievalConfig struct {
	Index       VectorIndex
	TopK        int
	CallTimeout time.Duration
}

// VectorRetriever finds movies similar to a piece of text through the graph's vector index.
type VectorRetriever struct {
	store    GraphStore
	embedder Embedder
	config   RetrievalConfig
}

// NewVectorRetriever creates a new vector retriever
func NewVectorRetriever(store GraphStore, embedder Embedder, config RetrievalConfig) *VectorRetriever {
	if config.TopK < 1 {
		config.TopK = DefaultTopK
	}
	if config.Index.Name == "" {
		config.Index = DefaultVectorIndex()
	}

	return &VectorRetriever{
		store:    store,
		embedder: embedder,
		config:   config,
	}
}

// Retrieve embeds queryText and returns at most topK candidates ordered by descending score.
// A topK below 1 uses the configured default. No match is not an error.
func (r *VectorRetriever) Retrieve(ctx context.Context, queryText string, topK int) ([]Candidate, error) {
	vector, err := r.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}
	return r.Search(ctx, vector, topK)
}

// Embed turns queryText into a vector. Failures are retrieval errors wrapping an embedding
// error.
func (r *VectorRetriever) Embed(ctx context.Context, queryText string) ([]float32, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, newError(KindRetrieval, ErrEmptyQuery)
	}

	callCtx, cancel := withCallTimeout(ctx, r.config.CallTimeout)
	defer cancel()

	vector, err := r.embedder.EmbedDocument(callCtx, queryText)
	if err != nil {
		return nil, newError(KindRetrieval, newError(KindEmbedding, timeoutCause(err, r.config.CallTimeout)))
	}
	if len(vector) == 0 {
		return nil, newError(KindRetrieval, newError(KindEmbedding, errors.New("embedder returned an empty vector")))
	}
	if dims := r.config.Index.Dimensions; dims > 0 && len(vector) != dims {
		return nil, newError(KindRetrieval, newError(KindEmbedding,
			fmt.Errorf("embedding has %d dimensions, index %s expects %d", len(vector), r.config.Index.Name, dims)))
	}
	return vector, nil
}

// Search queries the vector index with an already computed vector.
func (r *VectorRetriever) Search(ctx context.Context, vector []float32, topK int) ([]Candidate, error) {
	if topK < 1 {
		topK = r.config.TopK
	}

	callCtx, cancel := withCallTimeout(ctx, r.config.CallTimeout)
	defer cancel()

	records, err := r.store.VectorSearch(callCtx, r.config.Index, vector, topK)
	if err != nil {
		return nil, newError(KindRetrieval, fmt.Errorf("vector search failed: %w", timeoutCause(err, r.config.CallTimeout)))
	}

	candidates := make([]Candidate, 0, len(records))
	for _, record := range records {
		candidates = append(candidates, candidateFromRecord(record))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// TopK returns the default number of candidates.
func (r *VectorRetriever) TopK() int {
	return r.config.TopK
}

func withCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// timeoutCause makes deadline failures readable for end users.
func timeoutCause(err error, d time.Duration) error {
	if d > 0 && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s: %w", d, err)
	}
	return err
}
