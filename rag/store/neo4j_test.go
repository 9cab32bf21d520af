package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/smallnest/moviegraph/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedQuery struct {
	query  string
	params map[string]any
	read   bool
}

func newFakeNeo4jStore(results map[string]*neo4j.EagerResult, fail error) (*Neo4jStore, *[]capturedQuery) {
	s := NewNeo4jStoreWithDriver(nil, "")
	var captured []capturedQuery
	s.execute = func(_ context.Context, query string, params map[string]any, read bool) (*neo4j.EagerResult, error) {
		captured = append(captured, capturedQuery{query: query, params: params, read: read})
		if fail != nil {
			return nil, fail
		}
		if result, ok := results[query]; ok {
			return result, nil
		}
		return &neo4j.EagerResult{}, nil
	}
	return s, &captured
}

func eager(keys []string, rows ...[]any) *neo4j.EagerResult {
	result := &neo4j.EagerResult{Keys: keys}
	for _, row := range rows {
		result.Records = append(result.Records, &neo4j.Record{Keys: keys, Values: row})
	}
	return result
}

func TestNeo4jStore_VectorSearch(t *testing.T) {
	s, captured := newFakeNeo4jStore(map[string]*neo4j.EagerResult{
		neo4jVectorSearchQuery: eager([]string{"title", "plot", "released", "tagline", "score"},
			[]any{"Looper", "A hitman meets his future self.", neo4j.Date(time.Date(2012, 9, 26, 0, 0, 0, 0, time.UTC)), nil, 0.93},
		),
	}, nil)

	records, err := s.VectorSearch(context.Background(), rag.DefaultVectorIndex(), []float32{0.5, 0.25}, 3)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "2012-09-26", records[0].Get("released").String())
	assert.True(t, records[0].Get("tagline").IsNull())

	call := (*captured)[0]
	assert.True(t, call.read)
	assert.Equal(t, "overview_embeddings", call.params["index_name"])
	assert.Equal(t, 3, call.params["top_k"])
	assert.Equal(t, []float64{0.5, 0.25}, call.params["embedding"])
}

func TestNeo4jStore_ReadQueryConvertsEntities(t *testing.T) {
	query := "MATCH p=(a:Person)-[r:ACTED_IN]->(m:Movie) RETURN a, r, p, {title: m.title} AS info"
	person := neo4j.Node{ElementId: "4:x:1", Labels: []string{"Person"}, Props: map[string]any{"name": "Bruce Willis"}}
	movie := neo4j.Node{ElementId: "4:x:2", Labels: []string{"Movie"}, Props: map[string]any{"title": "Looper"}}
	rel := neo4j.Relationship{ElementId: "5:x:9", Type: "ACTED_IN", StartElementId: "4:x:1", EndElementId: "4:x:2",
		Props: map[string]any{"roles": []any{"Old Joe"}}}

	s, captured := newFakeNeo4jStore(map[string]*neo4j.EagerResult{
		query: eager([]string{"a", "r", "p", "info"}, []any{
			person, rel,
			neo4j.Path{Nodes: []neo4j.Node{person, movie}, Relationships: []neo4j.Relationship{rel}},
			map[string]any{"title": "Looper"},
		}),
	}, nil)

	records, err := s.ReadQuery(context.Background(), query, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, (*captured)[0].read)

	node, ok := records[0].Get("a").AsNode()
	require.True(t, ok)
	assert.Equal(t, "Bruce Willis", node.Properties["name"].String())

	edge, ok := records[0].Get("r").AsRelationship()
	require.True(t, ok)
	assert.Equal(t, "ACTED_IN", edge.Type)
	assert.Equal(t, "4:x:1", edge.StartID)

	path, ok := records[0].Get("p").AsList()
	require.True(t, ok)
	assert.Len(t, path, 3)

	assert.Equal(t, "{title: 'Looper'}", records[0].Get("info").Literal())
}

func TestNeo4jStore_QueryError(t *testing.T) {
	s, _ := newFakeNeo4jStore(nil, errors.New("Neo.ClientError.Statement.SyntaxError: Invalid input 'MATCHH'"))

	_, err := s.ReadQuery(context.Background(), "MATCHH (m) RETURN m", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read query failed")
	assert.Contains(t, err.Error(), "SyntaxError")
}

func TestNeo4jStore_WriteQueryUsesWriters(t *testing.T) {
	s, captured := newFakeNeo4jStore(nil, nil)

	_, err := s.WriteQuery(context.Background(), "CREATE (m:Movie {title: $title})", map[string]any{"title": "Looper"})
	require.NoError(t, err)
	assert.False(t, (*captured)[0].read)
}

func TestNeo4jStore_Introspection(t *testing.T) {
	s, _ := newFakeNeo4jStore(map[string]*neo4j.EagerResult{
		"CALL db.schema.nodeTypeProperties() YIELD nodeLabels, propertyName RETURN nodeLabels, propertyName": eager(
			[]string{"nodeLabels", "propertyName"},
			[]any{[]any{"Movie"}, "title"},
			[]any{[]any{"Movie"}, "overview"},
			[]any{[]any{"Person", "Actor"}, nil},
		),
		"CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType": eager(
			[]string{"relationshipType"},
			[]any{"ACTED_IN"},
			[]any{"DIRECTED"},
		),
	}, nil)

	ctx := context.Background()
	rows, err := s.NodeTypeProperties(ctx)
	require.NoError(t, err)
	assert.Equal(t, []rag.NodeTypeProperty{
		{Labels: []string{"Movie"}, Property: "title"},
		{Labels: []string{"Movie"}, Property: "overview"},
		{Labels: []string{"Person", "Actor"}},
	}, rows)

	rels, err := s.RelationshipTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ACTED_IN", "DIRECTED"}, rels)

	ontology := rag.BuildOntology(rows, rels)
	assert.Equal(t, "(Movie) has properties: title, overview\n(Person:Actor)\n(:Node)-[:ACTED_IN]->(:Node)\n(:Node)-[:DIRECTED]->(:Node)",
		ontology.String())
}

func TestNeo4jStore_EnsureVectorIndex(t *testing.T) {
	show := "SHOW VECTOR INDEXES YIELD name WHERE name = $name RETURN name"

	t.Run("creates missing index", func(t *testing.T) {
		s, captured := newFakeNeo4jStore(nil, nil)
		created, err := s.EnsureVectorIndex(context.Background(), rag.DefaultVectorIndex())
		require.NoError(t, err)
		assert.True(t, created)
		require.Len(t, *captured, 2)
		assert.Equal(t, "CREATE VECTOR INDEX `overview_embeddings` IF NOT EXISTS FOR (m:`Movie`) ON (m.`embedding`) "+
			"OPTIONS {indexConfig: {`vector.dimensions`: 768, `vector.similarity_function`: 'cosine'}}", (*captured)[1].query)
		assert.False(t, (*captured)[1].read)
	})

	t.Run("keeps existing index", func(t *testing.T) {
		s, captured := newFakeNeo4jStore(map[string]*neo4j.EagerResult{
			show: eager([]string{"name"}, []any{"overview_embeddings"}),
		}, nil)
		created, err := s.EnsureVectorIndex(context.Background(), rag.DefaultVectorIndex())
		require.NoError(t, err)
		assert.False(t, created)
		assert.Len(t, *captured, 1)
	})
}

func TestNeo4jStore_SetNodeVector(t *testing.T) {
	query := "MATCH (n:`Movie` {`tmdbId`: $key}) SET n.`embedding` = $vector RETURN count(n) AS updated"
	s, captured := newFakeNeo4jStore(map[string]*neo4j.EagerResult{
		query: eager([]string{"updated"}, []any{int64(1)}),
	}, nil)

	ok, err := s.SetNodeVector(context.Background(), rag.DefaultVectorIndex(), "tmdbId", int64(603), []float32{1, 2})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(603), (*captured)[0].params["key"])
}

func TestNeo4jStore_Live(t *testing.T) {
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		t.Skip("NEO4J_URI not set")
	}

	ctx := context.Background()
	s, err := NewNeo4jStore(ctx, Neo4jOptions{
		URI:      uri,
		User:     os.Getenv("NEO4J_USER"),
		Password: os.Getenv("NEO4J_PASSWORD"),
		Database: os.Getenv("NEO4J_DATABASE"),
	})
	require.NoError(t, err)
	defer s.Close(ctx)

	_, err = s.RelationshipTypes(ctx)
	assert.NoError(t, err)

	_, err = s.ReadQuery(ctx, "CREATE (n:ShouldNotExist) RETURN n", nil)
	assert.Error(t, err)
}
