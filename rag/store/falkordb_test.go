package store

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/alicebob/miniredis/v2/server"
	"github.com/redis/go-redis/v9"
	"github.com/smallnest/moviegraph/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFalkor answers compact GRAPH.QUERY and GRAPH.RO_QUERY calls through miniredis.
type fakeFalkor struct {
	mu       sync.Mutex
	commands []string
	queries  []string
	reply    func(command, query string) (any, string)
}

func (f *fakeFalkor) handle(c *server.Peer, cmd string, args []string) {
	if len(args) != 3 || args[2] != "--compact" {
		c.WriteError("ERR expected graph, query and --compact")
		return
	}
	f.mu.Lock()
	f.commands = append(f.commands, strings.ToUpper(cmd))
	f.queries = append(f.queries, args[1])
	f.mu.Unlock()

	reply, errMsg := f.reply(strings.ToUpper(cmd), args[1])
	if errMsg != "" {
		c.WriteError(errMsg)
		return
	}
	writeReply(c, reply)
}

func (f *fakeFalkor) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func (f *fakeFalkor) count(query string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, q := range f.queries {
		if q == query {
			n++
		}
	}
	return n
}

func writeReply(c *server.Peer, v any) {
	switch x := v.(type) {
	case nil:
		c.WriteNull()
	case string:
		c.WriteBulk(x)
	case int:
		c.WriteInt(x)
	case []any:
		c.WriteLen(len(x))
		for _, item := range x {
			writeReply(c, item)
		}
	}
}

func newFakeFalkorStore(t *testing.T, reply func(command, query string) (any, string)) (*FalkorDBStore, *fakeFalkor) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	fake := &fakeFalkor{reply: reply}
	require.NoError(t, mr.Server().Register("GRAPH.QUERY", fake.handle))
	require.NoError(t, mr.Server().Register("GRAPH.RO_QUERY", fake.handle))

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	s := NewFalkorDBStoreWithClient(client, "movies")
	t.Cleanup(func() { s.Close(context.Background()) })
	return s, fake
}

func stats() []any {
	return []any{"Query internal execution time: 0.1 milliseconds"}
}

// header builds compact scalar columns.
func header(names ...string) []any {
	columns := make([]any, len(names))
	for i, name := range names {
		columns[i] = []any{1, name}
	}
	return columns
}

func str(s string) []any     { return []any{2, s} }
func integer(i int) []any    { return []any{3, i} }
func boolean(s string) []any { return []any{4, s} }
func double(s string) []any  { return []any{5, s} }
func null() []any            { return []any{1, nil} }

// names answers a schema procedure with one string row per name.
func names(column string, values ...string) []any {
	rows := make([]any, len(values))
	for i, v := range values {
		rows[i] = []any{str(v)}
	}
	return []any{header(column), rows, stats()}
}

// movieSchema answers the schema procedures of a small movie graph.
func movieSchema(query string) (any, bool) {
	switch query {
	case "CALL db.labels()":
		return names("label", "Movie", "Person"), true
	case "CALL db.relationshipTypes()":
		return names("relationshipType", "ACTED_IN", "DIRECTED"), true
	case "CALL db.propertyKeys()":
		return names("propertyKey", "title", "rating", "remastered", "roles", "name"), true
	}
	return nil, false
}

func TestNewFalkorDBStore(t *testing.T) {
	t.Run("invalid scheme", func(t *testing.T) {
		_, err := NewFalkorDBStore("invalid://")
		assert.Error(t, err)
	})

	t.Run("missing host", func(t *testing.T) {
		_, err := NewFalkorDBStore("falkordb:///movies")
		assert.Error(t, err)
	})

	t.Run("default graph name", func(t *testing.T) {
		s, err := NewFalkorDBStore("falkordb://localhost:6379")
		require.NoError(t, err)
		defer s.Close(context.Background())
		assert.Equal(t, "movies", s.GraphName())
	})
}

func TestFalkorDBStore_ReadQuery(t *testing.T) {
	s, fake := newFakeFalkorStore(t, func(command, query string) (any, string) {
		if reply, ok := movieSchema(query); ok {
			return reply, ""
		}
		node := []any{8, []any{
			7,
			[]any{0},
			[]any{
				[]any{0, 2, "Looper"},
				[]any{1, 5, "7.5"},
			},
		}}
		return []any{
			header("m", "year"),
			[]any{[]any{node, integer(2012)}},
			stats(),
		}, ""
	})

	const query = "MATCH (m:Movie) WHERE m.title = $title RETURN m, m.year AS year"
	records, err := s.ReadQuery(context.Background(), query, map[string]any{"title": "Looper"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "CYPHER title='Looper' "+query, fake.queries[0])
	for _, command := range fake.commands {
		assert.Equal(t, "GRAPH.RO_QUERY", command)
	}

	node, ok := records[0].Get("m").AsNode()
	require.True(t, ok)
	assert.Equal(t, "7", node.ID)
	assert.Equal(t, []string{"Movie"}, node.Labels)
	assert.Equal(t, "Looper", node.Properties["title"].String())
	assert.Equal(t, rag.KindFloat, node.Properties["rating"].Kind())
	rating, _ := node.Properties["rating"].AsFloat()
	assert.InDelta(t, 7.5, rating, 1e-9)

	year, ok := records[0].Get("year").AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(2012), year)

	// Id tables are cached between queries.
	_, err = s.ReadQuery(context.Background(), query, map[string]any{"title": "Looper"})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.count("CALL db.labels()"))
	assert.Equal(t, 1, fake.count("CALL db.propertyKeys()"))
	assert.Zero(t, fake.count("CALL db.relationshipTypes()"))
}

func TestFalkorDBStore_TypesFollowReply(t *testing.T) {
	s, _ := newFakeFalkorStore(t, func(command, query string) (any, string) {
		if reply, ok := movieSchema(query); ok {
			return reply, ""
		}
		node := []any{8, []any{
			1,
			[]any{0},
			[]any{
				[]any{0, 2, "true"},
				[]any{2, 4, "true"},
			},
		}}
		return []any{
			header("m", "title", "remastered", "rating"),
			[]any{[]any{node, str("false"), boolean("false"), str("7.5")}},
			stats(),
		}, ""
	})

	records, err := s.ReadQuery(context.Background(), "MATCH (m:Movie) RETURN m, m.title AS title, m.remastered AS remastered, m.rating AS rating", nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	record := records[0]

	title, ok := record.Get("title").AsString()
	require.True(t, ok)
	assert.Equal(t, "false", title)

	remastered, ok := record.Get("remastered").AsBool()
	require.True(t, ok)
	assert.False(t, remastered)

	assert.Equal(t, rag.KindString, record.Get("rating").Kind())

	node, ok := record.Get("m").AsNode()
	require.True(t, ok)
	assert.Equal(t, rag.StringValue("true"), node.Properties["title"])
	assert.Equal(t, rag.BoolValue(true), node.Properties["remastered"])
}

func TestFalkorDBStore_ReadQueryRejected(t *testing.T) {
	s, _ := newFakeFalkorStore(t, func(command, query string) (any, string) {
		return nil, "graph.RO_QUERY is to be executed only on read-only queries"
	})

	_, err := s.ReadQuery(context.Background(), "CREATE (m:Movie)", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read query failed")
	assert.Contains(t, err.Error(), "read-only")
}

func TestFalkorDBStore_VectorSearch(t *testing.T) {
	s, fake := newFakeFalkorStore(t, func(command, query string) (any, string) {
		return []any{
			header("title", "plot", "released", "tagline", "score"),
			[]any{
				[]any{str("Looper"), str("A hitman meets his future self."), str("2012-09-26"), null(), double("0.1")},
				[]any{str("12 Monkeys"), str("A convict travels back in time."), null(), str("The future is history."), double("0.25")},
			},
			stats(),
		}, ""
	})

	records, err := s.VectorSearch(context.Background(), rag.DefaultVectorIndex(), []float32{0.5, 0.25}, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	query := fake.lastQuery()
	assert.True(t, strings.HasPrefix(query, "CYPHER embedding=[0.5, 0.25] top_k=2 "))
	assert.Contains(t, query, "db.idx.vector.queryNodes('Movie', 'embedding', $top_k, vecf32($embedding))")

	score, ok := records[0].Get("score").AsFloat()
	require.True(t, ok)
	assert.InDelta(t, 0.9, score, 1e-9)
	score, _ = records[1].Get("score").AsFloat()
	assert.InDelta(t, 0.75, score, 1e-9)
	assert.True(t, records[1].Get("released").IsNull())
}

func TestFalkorDBStore_Introspection(t *testing.T) {
	s, _ := newFakeFalkorStore(t, func(command, query string) (any, string) {
		switch {
		case strings.Contains(query, "db.labels()"):
			return names("label", "Movie", "Person"), ""
		case strings.Contains(query, "(n:`Movie`)"):
			return names("key", "title", "overview"), ""
		case strings.Contains(query, "(n:`Person`)"):
			return names("key"), ""
		case strings.Contains(query, "db.relationshipTypes()"):
			return names("relationshipType", "ACTED_IN", "DIRECTED"), ""
		}
		return nil, "unexpected query " + query
	})

	ctx := context.Background()
	rows, err := s.NodeTypeProperties(ctx)
	require.NoError(t, err)
	assert.Equal(t, []rag.NodeTypeProperty{
		{Labels: []string{"Movie"}, Property: "title"},
		{Labels: []string{"Movie"}, Property: "overview"},
		{Labels: []string{"Person"}},
	}, rows)

	rels, err := s.RelationshipTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ACTED_IN", "DIRECTED"}, rels)
}

func TestFalkorDBStore_EnsureVectorIndex(t *testing.T) {
	created := false
	s, fake := newFakeFalkorStore(t, func(command, query string) (any, string) {
		if created {
			return nil, "Attribute 'embedding' is already indexed"
		}
		created = true
		return []any{[]any{"Indices created: 1"}}, ""
	})

	ctx := context.Background()
	ok, err := s.EnsureVectorIndex(ctx, rag.DefaultVectorIndex())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "CREATE VECTOR INDEX FOR (m:`Movie`) ON (m.`embedding`) OPTIONS {dimension:768, similarityFunction:'cosine'}", fake.lastQuery())

	ok, err = s.EnsureVectorIndex(ctx, rag.DefaultVectorIndex())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFalkorDBStore_SetNodeVector(t *testing.T) {
	s, fake := newFakeFalkorStore(t, func(command, query string) (any, string) {
		return []any{header("updated"), []any{[]any{integer(1)}}, stats()}, ""
	})

	ok, err := s.SetNodeVector(context.Background(), rag.DefaultVectorIndex(), "tmdbId", 603, []float32{1, 0.5})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "CYPHER key=603 vector=[1, 0.5] MATCH (n:`Movie` {`tmdbId`: $key}) SET n.`embedding` = vecf32($vector) RETURN count(n) AS updated",
		fake.lastQuery())
}

func TestReplyDecoder(t *testing.T) {
	tables := map[string][]string{
		labelNames.procedure:            {"Movie", "Person"},
		relationshipTypeNames.procedure: {"ACTED_IN"},
		propertyKeyNames.procedure:      {"title", "roles"},
	}
	d := &replyDecoder{
		ctx: context.Background(),
		names: func(_ context.Context, kind schemaKind, id int64) (string, error) {
			return tables[kind.procedure][id], nil
		},
	}

	t.Run("statistics only", func(t *testing.T) {
		records, err := d.records([]any{[]any{"Nodes created: 1"}})
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("relationship", func(t *testing.T) {
		edge := []any{int64(7), []any{int64(3), int64(0), int64(1), int64(2), []any{
			[]any{int64(1), int64(6), []any{[]any{int64(2), "Joe"}}},
		}}}
		records, err := d.records([]any{[]any{[]any{int64(1), "r"}}, []any{[]any{edge}}, []any{}})
		require.NoError(t, err)
		rel, ok := records[0].Get("r").AsRelationship()
		require.True(t, ok)
		assert.Equal(t, "3", rel.ID)
		assert.Equal(t, "ACTED_IN", rel.Type)
		assert.Equal(t, "1", rel.StartID)
		assert.Equal(t, "2", rel.EndID)
		assert.Equal(t, "['Joe']", rel.Properties["roles"].Literal())
	})

	t.Run("map and point", func(t *testing.T) {
		v, err := d.value([]any{int64(10), []any{
			"year", []any{int64(3), int64(1999)},
			"where", []any{int64(11), []any{"51.5", "-0.12"}},
		}})
		require.NoError(t, err)
		m, ok := v.AsMap()
		require.True(t, ok)
		year, _ := m["year"].AsInt()
		assert.Equal(t, int64(1999), year)
		where, _ := m["where"].AsMap()
		lat, _ := where["latitude"].AsFloat()
		assert.InDelta(t, 51.5, lat, 1e-9)
	})

	t.Run("vector", func(t *testing.T) {
		v, err := d.value([]any{int64(12), []any{"0.5", "0.25"}})
		require.NoError(t, err)
		vec, ok := v.AsVector()
		require.True(t, ok)
		assert.Equal(t, []float32{0.5, 0.25}, vec)
	})

	t.Run("scalars need no names", func(t *testing.T) {
		bare := &replyDecoder{ctx: context.Background()}
		v, err := bare.value([]any{int64(2), "true"})
		require.NoError(t, err)
		assert.Equal(t, rag.StringValue("true"), v)

		_, err = bare.value([]any{int64(8), []any{int64(1), []any{int64(0)}, []any{}}})
		assert.Error(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := d.records("OK")
		assert.Error(t, err)
		_, err = d.records([]any{[]any{[]any{int64(1), "a"}}, []any{[]any{"x", "y"}}, []any{}})
		assert.Error(t, err)
		_, err = d.value([]any{int64(4), "yes"})
		assert.Error(t, err)
		_, err = d.value([]any{int64(99), "x"})
		assert.Error(t, err)
	})
}

func TestFalkorSchema(t *testing.T) {
	loads := 0
	tables := [][]string{{"Movie"}, {"Movie", "Person"}}
	schema := newFalkorSchema(func(_ context.Context, kind schemaKind) ([]string, error) {
		table := tables[min(loads, len(tables)-1)]
		loads++
		return table, nil
	})
	ctx := context.Background()

	name, err := schema.name(ctx, labelNames, 0)
	require.NoError(t, err)
	assert.Equal(t, "Movie", name)
	_, _ = schema.name(ctx, labelNames, 0)
	assert.Equal(t, 1, loads)

	// A label created after the first load.
	name, err = schema.name(ctx, labelNames, 1)
	require.NoError(t, err)
	assert.Equal(t, "Person", name)
	assert.Equal(t, 2, loads)

	_, err = schema.name(ctx, labelNames, 5)
	assert.ErrorContains(t, err, "unknown label id 5")
}

func TestParameterHeader(t *testing.T) {
	assert.Equal(t, "", parameterHeader(nil))
	assert.Equal(t, "CYPHER a=1 b='it\\'s' ", parameterHeader(map[string]any{"b": "it's", "a": 1}))
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "`Movie`", quoteIdentifier("Movie"))
	assert.Equal(t, "`we``ird`", quoteIdentifier("we`ird"))
}
