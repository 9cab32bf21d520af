package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/smallnest/moviegraph/rag"
)

// MockEmbedder is a simple mock embedder for testing
type MockEmbedder struct {
	Dimension int
}

var _ rag.Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder creates a new MockEmbedder
func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{
		Dimension: dimension,
	}
}

// EmbedDocument generates mock embedding for a document
func (e *MockEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.generateEmbedding(text), nil
}

// EmbedDocuments generates mock embeddings for documents
func (e *MockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.generateEmbedding(text)
	}
	return embeddings, nil
}

// GetDimension returns the embedding dimension
func (e *MockEmbedder) GetDimension() int {
	return e.Dimension
}

func (e *MockEmbedder) generateEmbedding(text string) []float32 {
	// Deterministic in the text; unit length.
	embedding := make([]float32, e.Dimension)

	for i := 0; i < e.Dimension; i++ {
		var sum float64
		for j, char := range text {
			sum += float64(char) * float64(i+j+1)
		}
		embedding[i] = float32(math.Sin(sum / 1000.0))
	}

	var norm float32
	for _, v := range embedding {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))

	if norm > 0 {
		for i := range embedding {
			embedding[i] /= norm
		}
	}

	return embedding
}

// MockNode is a node held by MockStore.
type MockNode struct {
	Labels     []string
	Properties map[string]any
}

// QueryHandler answers the Cypher text MockStore cannot interpret.
type QueryHandler func(ctx context.Context, query string, params map[string]any) ([]rag.Record, error)

// MockStore is an in-memory rag.GraphStore. Vector search is exact cosine similarity over
// the nodes carrying the index label and property; other queries go to a QueryHandler.
type MockStore struct {
	mu            sync.RWMutex
	nodes         []*MockNode
	relationships []string
	indexes       map[string]rag.VectorIndex
	failures      map[string]error
	queries       []string

	// ReadHandler and WriteHandler answer ReadQuery and WriteQuery. Nil handlers return no
	// records.
	ReadHandler  QueryHandler
	WriteHandler QueryHandler
}

var (
	_ rag.GraphStore         = (*MockStore)(nil)
	_ rag.VectorIndexManager = (*MockStore)(nil)
)

// Operation names accepted by MockStore.FailOn.
const (
	OpVectorSearch       = "vector_search"
	OpReadQuery          = "read_query"
	OpWriteQuery         = "write_query"
	OpNodeTypeProperties = "node_type_properties"
	OpRelationshipTypes  = "relationship_types"
	OpEnsureVectorIndex  = "ensure_vector_index"
	OpSetNodeVector      = "set_node_vector"
)

// NewMockStore creates an empty store.
func NewMockStore() *MockStore {
	return &MockStore{
		indexes:  make(map[string]rag.VectorIndex),
		failures: make(map[string]error),
	}
}

// AddNode adds a node and returns it.
func (m *MockStore) AddNode(labels []string, properties map[string]any) *MockNode {
	m.mu.Lock()
	defer m.mu.Unlock()
	node := &MockNode{Labels: labels, Properties: properties}
	if node.Properties == nil {
		node.Properties = make(map[string]any)
	}
	m.nodes = append(m.nodes, node)
	return node
}

// AddRelationshipType registers a relationship type name.
func (m *MockStore) AddRelationshipType(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relationships = append(m.relationships, name)
}

// FailOn makes operation return err until cleared with a nil err.
func (m *MockStore) FailOn(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, operation)
		return
	}
	m.failures[operation] = err
}

// Queries returns the query texts passed to ReadQuery and WriteQuery.
func (m *MockStore) Queries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.queries...)
}

// Nodes returns the nodes carrying label.
func (m *MockStore) Nodes(label string) []*MockNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var nodes []*MockNode
	for _, node := range m.nodes {
		if node.hasLabel(label) {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// HasIndex reports whether EnsureVectorIndex created name.
func (m *MockStore) HasIndex(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.indexes[name]
	return ok
}

// VectorSearch ranks nodes by cosine similarity to vector.
func (m *MockStore) VectorSearch(ctx context.Context, index rag.VectorIndex, vector []float32, topK int) ([]rag.Record, error) {
	if err := m.check(ctx, OpVectorSearch); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		node  *MockNode
		score float64
	}
	var matches []scored
	for _, node := range m.nodes {
		if !node.hasLabel(index.Label) {
			continue
		}
		stored, ok := rag.ValueOf(node.Properties[index.Property]).AsVector()
		if !ok || len(stored) != len(vector) {
			continue
		}
		matches = append(matches, scored{node: node, score: cosine(vector, stored)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}

	records := make([]rag.Record, len(matches))
	for i, match := range matches {
		p := match.node.Properties
		records[i] = rag.RecordOf(
			"title", p["title"],
			"plot", p["overview"],
			"released", p["release_date"],
			"tagline", p["tagline"],
			"score", match.score,
		)
	}
	return records, nil
}

// ReadQuery delegates to ReadHandler.
func (m *MockStore) ReadQuery(ctx context.Context, query string, params map[string]any) ([]rag.Record, error) {
	return m.query(ctx, OpReadQuery, m.ReadHandler, query, params)
}

// WriteQuery delegates to WriteHandler.
func (m *MockStore) WriteQuery(ctx context.Context, query string, params map[string]any) ([]rag.Record, error) {
	return m.query(ctx, OpWriteQuery, m.WriteHandler, query, params)
}

// NodeTypeProperties reports every label combination with its sorted property names.
func (m *MockStore) NodeTypeProperties(ctx context.Context) ([]rag.NodeTypeProperty, error) {
	if err := m.check(ctx, OpNodeTypeProperties); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []rag.NodeTypeProperty
	for _, node := range m.nodes {
		keys := make([]string, 0, len(node.Properties))
		for k := range node.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) == 0 {
			rows = append(rows, rag.NodeTypeProperty{Labels: node.Labels})
		}
		for _, k := range keys {
			rows = append(rows, rag.NodeTypeProperty{Labels: node.Labels, Property: k})
		}
	}
	return rows, nil
}

// RelationshipTypes returns the registered relationship types.
func (m *MockStore) RelationshipTypes(ctx context.Context) ([]string, error) {
	if err := m.check(ctx, OpRelationshipTypes); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.relationships...), nil
}

// EnsureVectorIndex records index.
func (m *MockStore) EnsureVectorIndex(ctx context.Context, index rag.VectorIndex) (bool, error) {
	if err := m.check(ctx, OpEnsureVectorIndex); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[index.Name]; ok {
		return false, nil
	}
	m.indexes[index.Name] = index
	return true, nil
}

// SetNodeVector stores vector on every node of index.Label whose keyProperty equals key.
func (m *MockStore) SetNodeVector(ctx context.Context, index rag.VectorIndex, keyProperty string, key any, vector []float32) (bool, error) {
	if err := m.check(ctx, OpSetNodeVector); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	want := rag.ValueOf(key).Literal()
	updated := false
	for _, node := range m.nodes {
		if !node.hasLabel(index.Label) {
			continue
		}
		if rag.ValueOf(node.Properties[keyProperty]).Literal() != want {
			continue
		}
		node.Properties[index.Property] = append([]float32(nil), vector...)
		updated = true
	}
	return updated, nil
}

// Close does nothing
func (m *MockStore) Close(context.Context) error {
	return nil
}

func (m *MockStore) query(ctx context.Context, operation string, handler QueryHandler, query string, params map[string]any) ([]rag.Record, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()

	if err := m.check(ctx, operation); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, nil
	}
	return handler(ctx, query, params)
}

func (m *MockStore) check(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err, ok := m.failures[operation]; ok {
		return fmt.Errorf("%s: %w", strings.ReplaceAll(operation, "_", " "), err)
	}
	return nil
}

func (n *MockNode) hasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
