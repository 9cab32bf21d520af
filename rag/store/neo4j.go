package store

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/samber/oops"
	"github.com/smallnest/moviegraph/rag"
)

// Neo4jOptions configuration for a Neo4j connection
type Neo4jOptions struct {
	URI      string
	User     string
	Password string
	Database string // Default "neo4j"
}

// queryFunc runs one query. Tests replace it to avoid a live server.
type queryFunc func(ctx context.Context, query string, params map[string]any, read bool) (*neo4j.EagerResult, error)

// Neo4jStore implements rag.GraphStore on Neo4j 5 with native vector indexes.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	execute  queryFunc
}

var (
	_ rag.GraphStore         = (*Neo4jStore)(nil)
	_ rag.VectorIndexManager = (*Neo4jStore)(nil)
)

// NewNeo4jStore creates a driver and verifies connectivity.
func NewNeo4jStore(ctx context.Context, opts Neo4jOptions) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.User, opts.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("unable to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("unable to reach neo4j at %s: %w", opts.URI, err)
	}
	return NewNeo4jStoreWithDriver(driver, opts.Database), nil
}

// NewNeo4jStoreWithDriver creates a store on an existing driver.
func NewNeo4jStoreWithDriver(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	if database == "" {
		database = "neo4j"
	}
	s := &Neo4jStore{
		driver:   driver,
		database: database,
	}
	s.execute = s.executeQuery
	return s
}

func (s *Neo4jStore) executeQuery(ctx context.Context, query string, params map[string]any, read bool) (*neo4j.EagerResult, error) {
	routing := neo4j.ExecuteQueryWithWritersRouting()
	if read {
		routing = neo4j.ExecuteQueryWithReadersRouting()
	}
	return neo4j.ExecuteQuery(ctx, s.driver, query, params, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database), routing)
}

const neo4jVectorSearchQuery = `CALL db.index.vector.queryNodes($index_name, $top_k, $embedding)
YIELD node, score
RETURN node.title AS title, node.overview AS plot, node.release_date AS released, node.tagline AS tagline, score
ORDER BY score DESC`

// VectorSearch queries the named vector index. Neo4j scores are similarities already.
func (s *Neo4jStore) VectorSearch(ctx context.Context, index rag.VectorIndex, vector []float32, topK int) ([]rag.Record, error) {
	return s.run(ctx, "vector_search", neo4jVectorSearchQuery, map[string]any{
		"index_name": index.Name,
		"top_k":      topK,
		"embedding":  float64s(vector),
	}, true)
}

// ReadQuery runs query routed to readers, in a read transaction.
func (s *Neo4jStore) ReadQuery(ctx context.Context, query string, params map[string]any) ([]rag.Record, error) {
	return s.run(ctx, "read_query", query, params, true)
}

// WriteQuery runs query routed to the leader.
func (s *Neo4jStore) WriteQuery(ctx context.Context, query string, params map[string]any) ([]rag.Record, error) {
	return s.run(ctx, "write_query", query, params, false)
}

// NodeTypeProperties reads db.schema.nodeTypeProperties().
func (s *Neo4jStore) NodeTypeProperties(ctx context.Context) ([]rag.NodeTypeProperty, error) {
	records, err := s.run(ctx, "introspect",
		"CALL db.schema.nodeTypeProperties() YIELD nodeLabels, propertyName RETURN nodeLabels, propertyName", nil, true)
	if err != nil {
		return nil, err
	}

	rows := make([]rag.NodeTypeProperty, 0, len(records))
	for _, record := range records {
		row := rag.NodeTypeProperty{Property: record.Get("propertyName").String()}
		labels, _ := record.Get("nodeLabels").AsList()
		for _, label := range labels {
			row.Labels = append(row.Labels, label.String())
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RelationshipTypes reads db.relationshipTypes().
func (s *Neo4jStore) RelationshipTypes(ctx context.Context) ([]string, error) {
	records, err := s.run(ctx, "introspect",
		"CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType", nil, true)
	if err != nil {
		return nil, err
	}
	types := make([]string, 0, len(records))
	for _, record := range records {
		types = append(types, record.Get("relationshipType").String())
	}
	return types, nil
}

// EnsureVectorIndex creates the named vector index when SHOW VECTOR INDEXES does not list it.
func (s *Neo4jStore) EnsureVectorIndex(ctx context.Context, index rag.VectorIndex) (bool, error) {
	existing, err := s.run(ctx, "show_index",
		"SHOW VECTOR INDEXES YIELD name WHERE name = $name RETURN name",
		map[string]any{"name": index.Name}, true)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}

	query := fmt.Sprintf("CREATE VECTOR INDEX %s IF NOT EXISTS FOR (m:%s) ON (m.%s) "+
		"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: %s}}",
		quoteIdentifier(index.Name), quoteIdentifier(index.Label), quoteIdentifier(index.Property),
		index.Dimensions, rag.StringValue(similarityName(index.Similarity)).Literal())
	if _, err := s.run(ctx, "create_index", query, nil, false); err != nil {
		return false, err
	}
	return true, nil
}

// SetNodeVector stores vector on the node whose keyProperty equals key.
func (s *Neo4jStore) SetNodeVector(ctx context.Context, index rag.VectorIndex, keyProperty string, key any, vector []float32) (bool, error) {
	query := fmt.Sprintf("MATCH (n:%s {%s: $key}) SET n.%s = $vector RETURN count(n) AS updated",
		quoteIdentifier(index.Label), quoteIdentifier(keyProperty), quoteIdentifier(index.Property))

	records, err := s.run(ctx, "set_vector", query, map[string]any{
		"key":    key,
		"vector": float64s(vector),
	}, false)
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}
	updated, _ := records[0].Get("updated").AsInt()
	return updated > 0, nil
}

// Close closes the driver
func (s *Neo4jStore) Close(ctx context.Context) error {
	if s.driver != nil {
		return s.driver.Close(ctx)
	}
	return nil
}

func (s *Neo4jStore) run(ctx context.Context, operation, query string, params map[string]any, read bool) ([]rag.Record, error) {
	result, err := s.execute(ctx, query, params, read)
	if err != nil {
		return nil, oops.
			In("neo4j").
			Code(operation).
			With("database", s.database).
			With("query", query).
			Wrapf(err, "%s failed", humanize(operation))
	}

	records := make([]rag.Record, 0, len(result.Records))
	for _, record := range result.Records {
		values := make([]rag.Value, len(record.Values))
		for i, v := range record.Values {
			values[i] = valueFromDriver(v)
		}
		records = append(records, rag.NewRecord(record.Keys, values))
	}
	return records, nil
}

// valueFromDriver converts driver values, including graph entities nested in lists and maps.
func valueFromDriver(v any) rag.Value {
	switch x := v.(type) {
	case neo4j.Node:
		return rag.NodeValue(rag.GraphNode{
			ID:         x.ElementId,
			Labels:     x.Labels,
			Properties: propertiesFromDriver(x.Props),
		})
	case neo4j.Relationship:
		return rag.RelationshipValue(rag.GraphRelationship{
			ID:         x.ElementId,
			Type:       x.Type,
			StartID:    x.StartElementId,
			EndID:      x.EndElementId,
			Properties: propertiesFromDriver(x.Props),
		})
	case neo4j.Path:
		items := make([]rag.Value, 0, len(x.Nodes)+len(x.Relationships))
		for i, node := range x.Nodes {
			items = append(items, valueFromDriver(node))
			if i < len(x.Relationships) {
				items = append(items, valueFromDriver(x.Relationships[i]))
			}
		}
		return rag.ListValue(items...)
	case []any:
		items := make([]rag.Value, len(x))
		for i, item := range x {
			items[i] = valueFromDriver(item)
		}
		return rag.ListValue(items...)
	case map[string]any:
		return rag.MapValue(propertiesFromDriver(x))
	case neo4j.Date:
		return rag.StringValue(x.Time().Format(time.DateOnly))
	case neo4j.LocalDateTime:
		return rag.StringValue(x.Time().Format("2006-01-02T15:04:05"))
	case neo4j.Duration:
		return rag.StringValue(x.String())
	}
	return rag.ValueOf(v)
}

func propertiesFromDriver(props map[string]any) map[string]rag.Value {
	out := make(map[string]rag.Value, len(props))
	for k, v := range props {
		out[k] = valueFromDriver(v)
	}
	return out
}

func humanize(operation string) string {
	out := []byte(operation)
	for i, c := range out {
		if c == '_' {
			out[i] = ' '
		}
	}
	return string(out)
}
