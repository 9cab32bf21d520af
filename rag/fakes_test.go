package rag

import (
	"context"
	"errors"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.EmbedDocument(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) GetDimension() int { return len(f.vector) }

// fakeStore returns canned answers; nil functions return empty results.
type fakeStore struct {
	search    func(ctx context.Context, topK int) ([]Record, error)
	read      func(ctx context.Context, query string) ([]Record, error)
	nodeProps []NodeTypeProperty
	propsErr  error
	relTypes  []string
	relsErr   error
	lastTopK  int
}

func (f *fakeStore) VectorSearch(ctx context.Context, index VectorIndex, vector []float32, topK int) ([]Record, error) {
	f.lastTopK = topK
	if f.search == nil {
		return nil, nil
	}
	return f.search(ctx, topK)
}

func (f *fakeStore) ReadQuery(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	if f.read == nil {
		return nil, nil
	}
	return f.read(ctx, query)
}

func (f *fakeStore) WriteQuery(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	return nil, errors.New("read only")
}

func (f *fakeStore) NodeTypeProperties(ctx context.Context) ([]NodeTypeProperty, error) {
	return f.nodeProps, f.propsErr
}

func (f *fakeStore) RelationshipTypes(ctx context.Context) ([]string, error) {
	return f.relTypes, f.relsErr
}

func (f *fakeStore) Close(ctx context.Context) error { return nil }

func scoredRecords(scores ...float64) []Record {
	records := make([]Record, len(scores))
	for i, score := range scores {
		records[i] = RecordOf("title", "movie", "plot", "plot", "released", nil, "tagline", "", "score", score)
	}
	return records
}
