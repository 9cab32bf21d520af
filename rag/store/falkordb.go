package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/smallnest/moviegraph/rag"
)

// FalkorDBStore implements rag.GraphStore on FalkorDB through the Redis protocol.
// Replies are read in compact mode: every value carries its type, and nodes and
// relationships name their labels, types and property keys by id. The id tables are read
// from db.labels, db.relationshipTypes and db.propertyKeys and cached.
type FalkorDBStore struct {
	client    redis.UniversalClient
	graphName string
	schema    *falkorSchema
}

var (
	_ rag.GraphStore         = (*FalkorDBStore)(nil)
	_ rag.VectorIndexManager = (*FalkorDBStore)(nil)
)

// NewFalkorDBStore connects to FalkorDB.
// Format: falkordb://[:password@]host:port/graph_name
func NewFalkorDBStore(connectionString string) (*FalkorDBStore, error) {
	u, err := url.Parse(connectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}
	if u.Scheme != "falkordb" && u.Scheme != "redis" {
		return nil, fmt.Errorf("invalid connection string: unsupported scheme %q", u.Scheme)
	}

	addr := u.Host
	if addr == "" {
		return nil, fmt.Errorf("invalid connection string: missing host")
	}
	graphName := strings.TrimPrefix(u.Path, "/")
	if graphName == "" {
		graphName = "movies"
	}

	password, _ := u.User.Password()
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: u.User.Username(),
		Password: password,
		// RESP2 keeps graph replies as nested arrays.
		Protocol: 2,
	})

	return NewFalkorDBStoreWithClient(client, graphName), nil
}

// NewFalkorDBStoreWithClient creates a store on an existing client.
func NewFalkorDBStoreWithClient(client redis.UniversalClient, graphName string) *FalkorDBStore {
	f := &FalkorDBStore{
		client:    client,
		graphName: graphName,
	}
	f.schema = newFalkorSchema(f.schemaNames)
	return f
}

// GraphName returns the key of the graph.
func (f *FalkorDBStore) GraphName() string {
	return f.graphName
}

// VectorSearch queries the vector index on index.Label. FalkorDB reports a distance, which is
// converted to a similarity of 1 - distance.
func (f *FalkorDBStore) VectorSearch(ctx context.Context, index rag.VectorIndex, vector []float32, topK int) ([]rag.Record, error) {
	query := fmt.Sprintf(
		"CALL db.idx.vector.queryNodes(%s, %s, $top_k, vecf32($embedding)) YIELD node, score "+
			"RETURN node.title AS title, node.overview AS plot, node.release_date AS released, node.tagline AS tagline, score "+
			"ORDER BY score ASC",
		rag.StringValue(index.Label).Literal(), rag.StringValue(index.Property).Literal())

	records, err := f.run(ctx, "GRAPH.RO_QUERY", "vector_search", query, map[string]any{
		"top_k":     topK,
		"embedding": float64s(vector),
	})
	if err != nil {
		return nil, err
	}

	for i, record := range records {
		distance, ok := record.Get("score").AsFloat()
		if !ok {
			continue
		}
		for j, key := range record.Keys {
			if key == "score" {
				records[i].Values[j] = rag.FloatValue(1 - distance)
			}
		}
	}
	return records, nil
}

// ReadQuery runs query with GRAPH.RO_QUERY, which rejects writes.
func (f *FalkorDBStore) ReadQuery(ctx context.Context, query string, params map[string]any) ([]rag.Record, error) {
	return f.run(ctx, "GRAPH.RO_QUERY", "read_query", query, params)
}

// WriteQuery runs query with GRAPH.QUERY.
func (f *FalkorDBStore) WriteQuery(ctx context.Context, query string, params map[string]any) ([]rag.Record, error) {
	return f.run(ctx, "GRAPH.QUERY", "write_query", query, params)
}

// NodeTypeProperties lists the property keys present on the nodes of each label.
func (f *FalkorDBStore) NodeTypeProperties(ctx context.Context) ([]rag.NodeTypeProperty, error) {
	labels, err := f.column(ctx, "CALL db.labels() YIELD label RETURN label", "label")
	if err != nil {
		return nil, err
	}

	var rows []rag.NodeTypeProperty
	for _, label := range labels {
		query := fmt.Sprintf("MATCH (n:%s) UNWIND keys(n) AS key RETURN DISTINCT key", quoteIdentifier(label))
		keys, err := f.column(ctx, query, "key")
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			rows = append(rows, rag.NodeTypeProperty{Labels: []string{label}})
			continue
		}
		for _, key := range keys {
			rows = append(rows, rag.NodeTypeProperty{Labels: []string{label}, Property: key})
		}
	}
	return rows, nil
}

// RelationshipTypes lists relationship type names.
func (f *FalkorDBStore) RelationshipTypes(ctx context.Context) ([]string, error) {
	return f.column(ctx, "CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType", "relationshipType")
}

// EnsureVectorIndex creates the vector index. FalkorDB indexes are anonymous, so an
// "already indexed" reply means the index exists.
func (f *FalkorDBStore) EnsureVectorIndex(ctx context.Context, index rag.VectorIndex) (bool, error) {
	query := fmt.Sprintf(
		"CREATE VECTOR INDEX FOR (m:%s) ON (m.%s) OPTIONS {dimension:%d, similarityFunction:%s}",
		quoteIdentifier(index.Label), quoteIdentifier(index.Property), index.Dimensions,
		rag.StringValue(similarityName(index.Similarity)).Literal())

	_, err := f.run(ctx, "GRAPH.QUERY", "create_index", query, nil)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already indexed") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SetNodeVector stores vector as a vecf32 property.
func (f *FalkorDBStore) SetNodeVector(ctx context.Context, index rag.VectorIndex, keyProperty string, key any, vector []float32) (bool, error) {
	query := fmt.Sprintf("MATCH (n:%s {%s: $key}) SET n.%s = vecf32($vector) RETURN count(n) AS updated",
		quoteIdentifier(index.Label), quoteIdentifier(keyProperty), quoteIdentifier(index.Property))

	records, err := f.run(ctx, "GRAPH.QUERY", "set_vector", query, map[string]any{
		"key":    key,
		"vector": float64s(vector),
	})
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}
	updated, _ := records[0].Get("updated").AsInt()
	return updated > 0, nil
}

// Close closes the client
func (f *FalkorDBStore) Close(_ context.Context) error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FalkorDBStore) column(ctx context.Context, query, key string) ([]string, error) {
	records, err := f.run(ctx, "GRAPH.RO_QUERY", "introspect", query, nil)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(records))
	for _, record := range records {
		if s := record.Get(key).String(); s != "" {
			values = append(values, s)
		}
	}
	return values, nil
}

func (f *FalkorDBStore) run(ctx context.Context, command, operation, query string, params map[string]any) ([]rag.Record, error) {
	decoder := &replyDecoder{ctx: ctx, names: f.schema.name}
	return f.query(ctx, decoder, command, operation, query, params)
}

func (f *FalkorDBStore) query(ctx context.Context, decoder *replyDecoder, command, operation, query string, params map[string]any) ([]rag.Record, error) {
	text := parameterHeader(params) + query
	res, err := f.client.Do(ctx, command, f.graphName, text, "--compact").Result()
	if err != nil {
		return nil, oops.
			In("falkordb").
			Code(operation).
			With("graph", f.graphName).
			With("query", query).
			Wrapf(err, "%s failed", humanize(operation))
	}

	records, err := decoder.records(res)
	if err != nil {
		return nil, oops.In("falkordb").Code(operation).With("query", query).Wrap(err)
	}
	return records, nil
}

// schemaNames reads one id table. Row i names id i.
func (f *FalkorDBStore) schemaNames(ctx context.Context, kind schemaKind) ([]string, error) {
	records, err := f.query(ctx, &replyDecoder{ctx: ctx}, "GRAPH.RO_QUERY", "introspect", "CALL "+kind.procedure+"()", nil)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(records))
	for i, record := range records {
		names[i] = record.Get(kind.column).String()
	}
	return names, nil
}

func similarityName(similarity string) string {
	if strings.EqualFold(similarity, "euclidean") {
		return "euclidean"
	}
	return "cosine"
}
