package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorRetriever_OrdersAndTruncates(t *testing.T) {
	store := &fakeStore{
		search: func(ctx context.Context, topK int) ([]Record, error) {
			return scoredRecords(0.2, 0.9, 0.5, 0.9, 0.1, 0.7), nil
		},
	}
	retriever := NewVectorRetriever(store, &fakeEmbedder{vector: []float32{1, 0}}, RetrievalConfig{
		Index: VectorIndex{Name: "idx", Dimensions: 2},
	})

	for _, topK := range []int{1, 2, 3, 5, 10} {
		candidates, err := retriever.Retrieve(context.Background(), "time travel", topK)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(candidates), topK)
		for i := 1; i < len(candidates); i++ {
			assert.GreaterOrEqual(t, candidates[i-1].Score, candidates[i].Score)
		}
		assert.Equal(t, topK, store.lastTopK)
	}
}

func TestVectorRetriever_DefaultTopK(t *testing.T) {
	store := &fakeStore{}
	retriever := NewVectorRetriever(store, &fakeEmbedder{vector: make([]float32, 768)}, RetrievalConfig{})

	candidates, err := retriever.Retrieve(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Equal(t, DefaultTopK, store.lastTopK)
	assert.Equal(t, DefaultTopK, retriever.TopK())
}

func TestVectorRetriever_CandidateFields(t *testing.T) {
	store := &fakeStore{
		search: func(ctx context.Context, topK int) ([]Record, error) {
			return []Record{RecordOf("title", "Looper", "plot", "Hitman", "released", nil, "tagline", "Face your future", "score", 0.8)}, nil
		},
	}
	retriever := NewVectorRetriever(store, &fakeEmbedder{vector: make([]float32, 768)}, RetrievalConfig{})

	candidates, err := retriever.Retrieve(context.Background(), "looper", 5)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, Candidate{Title: "Looper", Plot: "Hitman", Released: "Unknown", Tagline: "Face your future", Score: 0.8}, candidates[0])
}

func TestVectorRetriever_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty query", func(t *testing.T) {
		embedder := &fakeEmbedder{vector: []float32{1}}
		retriever := NewVectorRetriever(&fakeStore{}, embedder, RetrievalConfig{})
		_, err := retriever.Retrieve(ctx, "   ", 5)
		assert.ErrorIs(t, err, ErrEmptyQuery)
		assert.Equal(t, KindRetrieval, KindOf(err))
		assert.Zero(t, embedder.calls)
	})

	t.Run("embedding failure", func(t *testing.T) {
		retriever := NewVectorRetriever(&fakeStore{}, &fakeEmbedder{err: errors.New("quota exceeded")}, RetrievalConfig{})
		_, err := retriever.Retrieve(ctx, "movies", 5)
		assert.Equal(t, KindRetrieval, KindOf(err))
		assert.True(t, IsKind(err, KindEmbedding))
		assert.ErrorContains(t, err, "quota exceeded")
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		retriever := NewVectorRetriever(&fakeStore{}, &fakeEmbedder{vector: []float32{1, 2, 3}}, RetrievalConfig{})
		_, err := retriever.Retrieve(ctx, "movies", 5)
		assert.True(t, IsKind(err, KindEmbedding))
		assert.ErrorContains(t, err, "expects 768")
	})

	t.Run("search failure", func(t *testing.T) {
		store := &fakeStore{search: func(ctx context.Context, topK int) ([]Record, error) {
			return nil, errors.New("index not found")
		}}
		retriever := NewVectorRetriever(store, &fakeEmbedder{vector: make([]float32, 768)}, RetrievalConfig{})
		_, err := retriever.Retrieve(ctx, "movies", 5)
		assert.Equal(t, KindRetrieval, KindOf(err))
		assert.False(t, IsKind(err, KindEmbedding))
		assert.ErrorContains(t, err, "vector search failed: index not found")
	})

	t.Run("search timeout", func(t *testing.T) {
		store := &fakeStore{search: func(ctx context.Context, topK int) ([]Record, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
		retriever := NewVectorRetriever(store, &fakeEmbedder{vector: make([]float32, 768)}, RetrievalConfig{
			CallTimeout: 10 * time.Millisecond,
		})
		_, err := retriever.Retrieve(ctx, "movies", 5)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.ErrorContains(t, err, "timed out after 10ms")
	})
}
