package rag

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
	KindNode
	KindRelationship
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindNode:
		return "node"
	case KindRelationship:
		return "relationship"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// GraphNode is a node returned inside a query result.
type GraphNode struct {
	ID         string
	Labels     []string
	Properties map[string]Value
}

// GraphRelationship is a relationship returned inside a query result.
type GraphRelationship struct {
	ID         string
	Type       string
	StartID    string
	EndID      string
	Properties map[string]Value
}

// Value is a single field of a query result. The zero Value is null.
//
// Values are built by the stores from driver data and read by consumers through the As*
// accessors, which report whether the stored variant could be read as the requested type.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    map[string]Value
	node *GraphNode
	rel  *GraphRelationship
}

// Null returns the null value.
func Null() Value { return Value{} }

// BoolValue wraps a boolean.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// IntValue wraps an integer.
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// FloatValue wraps a float.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// ListValue wraps a list.
func ListValue(items ...Value) Value { return Value{kind: KindList, list: items} }

// MapValue wraps a map.
func MapValue(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// NodeValue wraps a graph node.
func NodeValue(n GraphNode) Value { return Value{kind: KindNode, node: &n} }

// RelationshipValue wraps a graph relationship.
func RelationshipValue(r GraphRelationship) Value { return Value{kind: KindRelationship, rel: &r} }

// ValueOf converts a driver value into a Value. Unknown types that implement fmt.Stringer
// become strings; anything else is rendered with %v.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case bool:
		return BoolValue(x)
	case int:
		return IntValue(int64(x))
	case int8:
		return IntValue(int64(x))
	case int16:
		return IntValue(int64(x))
	case int32:
		return IntValue(int64(x))
	case int64:
		return IntValue(x)
	case uint8:
		return IntValue(int64(x))
	case uint16:
		return IntValue(int64(x))
	case uint32:
		return IntValue(int64(x))
	case uint64:
		if x > math.MaxInt64 {
			return FloatValue(float64(x))
		}
		return IntValue(int64(x))
	case float32:
		return FloatValue(float64(x))
	case float64:
		return FloatValue(x)
	case string:
		return StringValue(x)
	case []byte:
		return StringValue(string(x))
	case time.Time:
		return StringValue(x.Format(time.RFC3339))
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = ValueOf(item)
		}
		return ListValue(items...)
	case []float32:
		items := make([]Value, len(x))
		for i, f := range x {
			items[i] = FloatValue(float64(f))
		}
		return ListValue(items...)
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, item := range x {
			m[k] = ValueOf(item)
		}
		return MapValue(m)
	case GraphNode:
		return NodeValue(x)
	case GraphRelationship:
		return RelationshipValue(x)
	case fmt.Stringer:
		return StringValue(x.String())
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = ValueOf(rv.Index(i).Interface())
		}
		return ListValue(items...)
	}
	return StringValue(fmt.Sprintf("%v", v))
}

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsInt returns v as an integer. Floats without a fractional part and numeric strings are
// accepted.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		if v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) {
			return int64(v.f), true
		}
	case KindString:
		if i, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

// AsFloat returns v as a float. Integers and numeric strings are accepted.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	case KindString:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

// AsList returns the items held by v.
func (v Value) AsList() ([]Value, bool) {
	return v.list, v.kind == KindList
}

// AsMap returns the entries held by v.
func (v Value) AsMap() (map[string]Value, bool) {
	return v.m, v.kind == KindMap
}

// AsNode returns the node held by v.
func (v Value) AsNode() (GraphNode, bool) {
	if v.kind != KindNode || v.node == nil {
		return GraphNode{}, false
	}
	return *v.node, true
}

// AsRelationship returns the relationship held by v.
func (v Value) AsRelationship() (GraphRelationship, bool) {
	if v.kind != KindRelationship || v.rel == nil {
		return GraphRelationship{}, false
	}
	return *v.rel, true
}

// AsVector returns a list of numbers as float32s.
func (v Value) AsVector() ([]float32, bool) {
	items, ok := v.AsList()
	if !ok {
		return nil, false
	}
	vec := make([]float32, len(items))
	for i, item := range items {
		f, ok := item.AsFloat()
		if !ok {
			return nil, false
		}
		vec[i] = float32(f)
	}
	return vec, true
}

// String renders v for humans. Null renders as the empty string and strings are unquoted.
func (v Value) String() string {
	if v.kind == KindString {
		return v.s
	}
	if v.kind == KindNull {
		return ""
	}
	return v.Literal()
}

// Literal renders v in a Cypher-like literal form with quoted strings and sorted map keys.
func (v Value) Literal() string {
	var sb strings.Builder
	v.writeLiteral(&sb)
	return sb.String()
}

func (v Value) writeLiteral(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		sb.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		sb.WriteString(quote(v.s))
	case KindList:
		sb.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				sb.WriteString(", ")
			}
			item.writeLiteral(sb)
		}
		sb.WriteByte(']')
	case KindMap:
		writeProperties(sb, v.m)
	case KindNode:
		sb.WriteByte('(')
		for _, label := range v.node.Labels {
			sb.WriteByte(':')
			sb.WriteString(label)
		}
		if len(v.node.Properties) > 0 {
			if len(v.node.Labels) > 0 {
				sb.WriteByte(' ')
			}
			writeProperties(sb, v.node.Properties)
		}
		sb.WriteByte(')')
	case KindRelationship:
		sb.WriteString("[:")
		sb.WriteString(v.rel.Type)
		if len(v.rel.Properties) > 0 {
			sb.WriteByte(' ')
			writeProperties(sb, v.rel.Properties)
		}
		sb.WriteByte(']')
	}
}

// Native converts v back into plain Go values (nil, bool, int64, float64, string, []any,
// map[string]any). Nodes and relationships become maps of their properties plus identity.
func (v Value) Native() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		items := make([]any, len(v.list))
		for i, item := range v.list {
			items[i] = item.Native()
		}
		return items
	case KindMap:
		return nativeMap(v.m)
	case KindNode:
		m := nativeMap(v.node.Properties)
		m["_id"] = v.node.ID
		m["_labels"] = append([]string(nil), v.node.Labels...)
		return m
	case KindRelationship:
		m := nativeMap(v.rel.Properties)
		m["_id"] = v.rel.ID
		m["_type"] = v.rel.Type
		return m
	default:
		return nil
	}
}

func nativeMap(m map[string]Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, item := range m {
		out[k] = item.Native()
	}
	return out
}

func writeProperties(sb *strings.Builder, props map[string]Value) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		props[k].writeLiteral(sb)
	}
	sb.WriteByte('}')
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`)
	return "'" + r.Replace(s) + "'"
}

// Record is one row of a query result with its fields in column order.
type Record struct {
	Keys   []string
	Values []Value
}

// NewRecord builds a record from parallel key and value slices.
func NewRecord(keys []string, values []Value) Record {
	return Record{Keys: keys, Values: values}
}

// RecordOf builds a record from alternating key, value arguments. Values go through ValueOf.
func RecordOf(pairs ...any) Record {
	var r Record
	for i := 0; i+1 < len(pairs); i += 2 {
		key, _ := pairs[i].(string)
		r.Keys = append(r.Keys, key)
		r.Values = append(r.Values, ValueOf(pairs[i+1]))
	}
	return r
}

// Get returns the value of key, or null when the record has no such field.
func (r Record) Get(key string) Value {
	for i, k := range r.Keys {
		if k == key && i < len(r.Values) {
			return r.Values[i]
		}
	}
	return Null()
}

// Has reports whether the record has a field named key.
func (r Record) Has(key string) bool {
	for _, k := range r.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.Keys)
}

// Native returns the record as a map of plain Go values.
func (r Record) Native() map[string]any {
	out := make(map[string]any, len(r.Keys))
	for i, k := range r.Keys {
		if i < len(r.Values) {
			out[k] = r.Values[i].Native()
		}
	}
	return out
}

// String renders the record as {key: literal, ...} in column order.
func (r Record) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range r.Keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		if i < len(r.Values) {
			r.Values[i].writeLiteral(&sb)
		} else {
			sb.WriteString("null")
		}
	}
	sb.WriteByte('}')
	return sb.String()
}
