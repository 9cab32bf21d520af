package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/smallnest/moviegraph/rag"
)

// Compact reply value types.
const (
	valueUnknown int64 = iota
	valueNull
	valueString
	valueInteger
	valueBoolean
	valueDouble
	valueArray
	valueEdge
	valueNode
	valuePath
	valueMap
	valuePoint
	valueVectorF32
)

// schemaKind names one of the procedures whose rows map compact ids to names.
type schemaKind struct {
	procedure string
	column    string
	noun      string
}

var (
	labelNames            = schemaKind{procedure: "db.labels", column: "label", noun: "label"}
	relationshipTypeNames = schemaKind{procedure: "db.relationshipTypes", column: "relationshipType", noun: "relationship type"}
	propertyKeyNames      = schemaKind{procedure: "db.propertyKeys", column: "propertyKey", noun: "property key"}
)

// falkorSchema caches id to name tables. Ids only grow, so an id past the end of a table
// reloads it.
type falkorSchema struct {
	mu    sync.Mutex
	names map[string][]string
	load  func(ctx context.Context, kind schemaKind) ([]string, error)
}

func newFalkorSchema(load func(ctx context.Context, kind schemaKind) ([]string, error)) *falkorSchema {
	return &falkorSchema{names: make(map[string][]string), load: load}
}

func (s *falkorSchema) name(ctx context.Context, kind schemaKind, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if names := s.names[kind.procedure]; id >= 0 && id < int64(len(names)) {
		return names[id], nil
	}
	names, err := s.load(ctx, kind)
	if err != nil {
		return "", fmt.Errorf("loading %s names: %w", kind.noun, err)
	}
	s.names[kind.procedure] = names
	if id < 0 || id >= int64(len(names)) {
		return "", fmt.Errorf("unknown %s id %d", kind.noun, id)
	}
	return names[id], nil
}

// replyDecoder reads compact GRAPH.QUERY replies. Without names it decodes scalars only.
type replyDecoder struct {
	ctx   context.Context
	names func(ctx context.Context, kind schemaKind, id int64) (string, error)
}

// records reads [header, rows, statistics], or [statistics] for queries without a RETURN
// clause. Header columns are [column type, name] pairs.
func (d *replyDecoder) records(res any) ([]rag.Record, error) {
	parts, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", res)
	}

	switch len(parts) {
	case 1:
		return nil, nil
	case 3:
	default:
		return nil, fmt.Errorf("unexpected response length: %d", len(parts))
	}

	header, ok := parts[0].([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected header type: %T", parts[0])
	}
	keys := make([]string, len(header))
	for i, column := range header {
		pair, ok := column.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("malformed header column: %v", column)
		}
		keys[i] = toString(pair[1])
	}

	rows, ok := parts[1].([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected rows type: %T", parts[1])
	}
	records := make([]rag.Record, 0, len(rows))
	for _, row := range rows {
		cells, ok := row.([]any)
		if !ok || len(cells) != len(keys) {
			return nil, fmt.Errorf("malformed row: %v", row)
		}
		values := make([]rag.Value, len(cells))
		for i, cell := range cells {
			v, err := d.value(cell)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", keys[i], err)
			}
			values[i] = v
		}
		records = append(records, rag.NewRecord(keys, values))
	}
	return records, nil
}

// value reads a [type, value] pair.
func (d *replyDecoder) value(cell any) (rag.Value, error) {
	pair, ok := cell.([]any)
	if !ok || len(pair) != 2 {
		return rag.Value{}, fmt.Errorf("malformed value: %v", cell)
	}
	t, ok := pair[0].(int64)
	if !ok {
		return rag.Value{}, fmt.Errorf("malformed value type: %v", pair[0])
	}
	return d.typed(t, pair[1])
}

func (d *replyDecoder) typed(t int64, v any) (rag.Value, error) {
	switch t {
	case valueNull:
		return rag.Null(), nil
	case valueString:
		return rag.StringValue(toString(v)), nil
	case valueInteger:
		i, ok := v.(int64)
		if !ok {
			return rag.Value{}, fmt.Errorf("malformed integer: %v", v)
		}
		return rag.IntValue(i), nil
	case valueBoolean:
		switch toString(v) {
		case "true":
			return rag.BoolValue(true), nil
		case "false":
			return rag.BoolValue(false), nil
		}
		return rag.Value{}, fmt.Errorf("malformed boolean: %v", v)
	case valueDouble:
		f, err := number(v)
		if err != nil {
			return rag.Value{}, err
		}
		return rag.FloatValue(f), nil
	case valueArray:
		return d.list(v)
	case valueNode:
		node, err := d.node(v)
		if err != nil {
			return rag.Value{}, err
		}
		return rag.NodeValue(node), nil
	case valueEdge:
		rel, err := d.relationship(v)
		if err != nil {
			return rag.Value{}, err
		}
		return rag.RelationshipValue(rel), nil
	case valuePath:
		return d.path(v)
	case valueMap:
		return d.mapValue(v)
	case valuePoint:
		items, ok := v.([]any)
		if !ok || len(items) != 2 {
			return rag.Value{}, fmt.Errorf("malformed point: %v", v)
		}
		lat, err := number(items[0])
		if err != nil {
			return rag.Value{}, err
		}
		lon, err := number(items[1])
		if err != nil {
			return rag.Value{}, err
		}
		return rag.MapValue(map[string]rag.Value{
			"latitude":  rag.FloatValue(lat),
			"longitude": rag.FloatValue(lon),
		}), nil
	case valueVectorF32:
		items, ok := v.([]any)
		if !ok {
			return rag.Value{}, fmt.Errorf("malformed vector: %v", v)
		}
		vec := make([]rag.Value, len(items))
		for i, item := range items {
			f, err := number(item)
			if err != nil {
				return rag.Value{}, err
			}
			vec[i] = rag.FloatValue(f)
		}
		return rag.ListValue(vec...), nil
	}
	return rag.Value{}, fmt.Errorf("unknown value type %d", t)
}

func (d *replyDecoder) list(v any) (rag.Value, error) {
	items, ok := v.([]any)
	if !ok {
		return rag.Value{}, fmt.Errorf("malformed array: %v", v)
	}
	values := make([]rag.Value, len(items))
	for i, item := range items {
		value, err := d.value(item)
		if err != nil {
			return rag.Value{}, err
		}
		values[i] = value
	}
	return rag.ListValue(values...), nil
}

// mapValue reads a flat [key, [type, value], key, [type, value], ...] list.
func (d *replyDecoder) mapValue(v any) (rag.Value, error) {
	items, ok := v.([]any)
	if !ok || len(items)%2 != 0 {
		return rag.Value{}, fmt.Errorf("malformed map: %v", v)
	}
	m := make(map[string]rag.Value, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		value, err := d.value(items[i+1])
		if err != nil {
			return rag.Value{}, err
		}
		m[toString(items[i])] = value
	}
	return rag.MapValue(m), nil
}

// path reads [[array, nodes], [array, relationships]] into a map with those two lists.
func (d *replyDecoder) path(v any) (rag.Value, error) {
	items, ok := v.([]any)
	if !ok || len(items) != 2 {
		return rag.Value{}, fmt.Errorf("malformed path: %v", v)
	}
	nodes, err := d.value(items[0])
	if err != nil {
		return rag.Value{}, err
	}
	rels, err := d.value(items[1])
	if err != nil {
		return rag.Value{}, err
	}
	return rag.MapValue(map[string]rag.Value{"nodes": nodes, "relationships": rels}), nil
}

// node reads [id, [label ids], [[property key id, type, value], ...]].
func (d *replyDecoder) node(v any) (rag.GraphNode, error) {
	items, ok := v.([]any)
	if !ok || len(items) != 3 {
		return rag.GraphNode{}, fmt.Errorf("malformed node: %v", v)
	}
	labelIDs, ok := items[1].([]any)
	if !ok {
		return rag.GraphNode{}, fmt.Errorf("malformed node labels: %v", items[1])
	}
	node := rag.GraphNode{ID: toString(items[0])}
	for _, id := range labelIDs {
		label, err := d.name(labelNames, id)
		if err != nil {
			return rag.GraphNode{}, err
		}
		node.Labels = append(node.Labels, label)
	}
	props, err := d.properties(items[2])
	if err != nil {
		return rag.GraphNode{}, err
	}
	node.Properties = props
	return node, nil
}

// relationship reads [id, type id, source id, destination id, properties].
func (d *replyDecoder) relationship(v any) (rag.GraphRelationship, error) {
	items, ok := v.([]any)
	if !ok || len(items) != 5 {
		return rag.GraphRelationship{}, fmt.Errorf("malformed relationship: %v", v)
	}
	relType, err := d.name(relationshipTypeNames, items[1])
	if err != nil {
		return rag.GraphRelationship{}, err
	}
	props, err := d.properties(items[4])
	if err != nil {
		return rag.GraphRelationship{}, err
	}
	return rag.GraphRelationship{
		ID:         toString(items[0]),
		Type:       relType,
		StartID:    toString(items[2]),
		EndID:      toString(items[3]),
		Properties: props,
	}, nil
}

func (d *replyDecoder) properties(v any) (map[string]rag.Value, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("malformed properties: %v", v)
	}
	props := make(map[string]rag.Value, len(items))
	for _, item := range items {
		triple, ok := item.([]any)
		if !ok || len(triple) != 3 {
			return nil, fmt.Errorf("malformed property: %v", item)
		}
		key, err := d.name(propertyKeyNames, triple[0])
		if err != nil {
			return nil, err
		}
		t, ok := triple[1].(int64)
		if !ok {
			return nil, fmt.Errorf("malformed property type: %v", triple[1])
		}
		value, err := d.typed(t, triple[2])
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", key, err)
		}
		props[key] = value
	}
	return props, nil
}

func (d *replyDecoder) name(kind schemaKind, id any) (string, error) {
	n, ok := id.(int64)
	if !ok {
		return "", fmt.Errorf("malformed %s id: %v", kind.noun, id)
	}
	if d.names == nil {
		return "", fmt.Errorf("%s id %d cannot be resolved here", kind.noun, n)
	}
	return d.names(d.ctx, kind, n)
}

// number reads a double, which RESP2 sends as text.
func number(v any) (float64, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	}
	f, err := strconv.ParseFloat(toString(v), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed double: %v", v)
	}
	return f, nil
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
