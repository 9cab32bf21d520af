package rag

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// OntologyIntrospector renders the live graph schema as compact prompt text.
// It holds no cache: every call reflects the schema at that moment.
type OntologyIntrospector struct {
	store       GraphStore
	callTimeout time.Duration
}

// NewOntologyIntrospector creates an introspector over store. A positive callTimeout bounds
// each of the two introspection calls.
func NewOntologyIntrospector(store GraphStore, callTimeout time.Duration) *OntologyIntrospector {
	return &OntologyIntrospector{store: store, callTimeout: callTimeout}
}

// Ontology is the merged schema: node types with their properties, and relationship types.
// Node types, their properties and relationship types keep the order the store reported.
type Ontology struct {
	NodeTypes         []NodeType
	RelationshipTypes []string
}

// NodeType is a node label combination and its properties.
type NodeType struct {
	Name       string
	Properties []string
}

// Introspect queries node-type properties and relationship types and merges them.
func (o *OntologyIntrospector) Introspect(ctx context.Context) (*Ontology, error) {
	callCtx, cancel := withCallTimeout(ctx, o.callTimeout)
	rows, err := o.store.NodeTypeProperties(callCtx)
	cancel()
	if err != nil {
		return nil, newError(KindSchema, fmt.Errorf("node type properties: %w", timeoutCause(err, o.callTimeout)))
	}

	callCtx, cancel = withCallTimeout(ctx, o.callTimeout)
	rels, err := o.store.RelationshipTypes(callCtx)
	cancel()
	if err != nil {
		return nil, newError(KindSchema, fmt.Errorf("relationship types: %w", timeoutCause(err, o.callTimeout)))
	}

	return BuildOntology(rows, rels), nil
}

// DescribeSchema returns the ontology text used in query-generation prompts.
func (o *OntologyIntrospector) DescribeSchema(ctx context.Context) (string, error) {
	ontology, err := o.Introspect(ctx)
	if err != nil {
		return "", err
	}
	return ontology.String(), nil
}

// BuildOntology merges raw introspection rows. A node type name is its labels joined with ":".
// Rows without a property still register the node type.
func BuildOntology(rows []NodeTypeProperty, relationshipTypes []string) *Ontology {
	ontology := &Ontology{}
	index := make(map[string]int)
	seenProps := make(map[string]map[string]bool)

	for _, row := range rows {
		name := strings.Join(row.Labels, ":")
		i, ok := index[name]
		if !ok {
			i = len(ontology.NodeTypes)
			index[name] = i
			ontology.NodeTypes = append(ontology.NodeTypes, NodeType{Name: name})
			seenProps[name] = make(map[string]bool)
		}
		if row.Property == "" || seenProps[name][row.Property] {
			continue
		}
		seenProps[name][row.Property] = true
		ontology.NodeTypes[i].Properties = append(ontology.NodeTypes[i].Properties, row.Property)
	}

	seenRels := make(map[string]bool)
	for _, rel := range relationshipTypes {
		if rel == "" || seenRels[rel] {
			continue
		}
		seenRels[rel] = true
		ontology.RelationshipTypes = append(ontology.RelationshipTypes, rel)
	}
	return ontology
}

// String renders one line per node type and one line per relationship type. A node type
// without properties prints as (Name) alone. Relationship endpoints are not resolved and
// always print as (:Node).
func (o *Ontology) String() string {
	var sb strings.Builder
	for _, nodeType := range o.NodeTypes {
		if len(nodeType.Properties) == 0 {
			fmt.Fprintf(&sb, "(%s)\n", nodeType.Name)
			continue
		}
		fmt.Fprintf(&sb, "(%s) has properties: %s\n", nodeType.Name, strings.Join(nodeType.Properties, ", "))
	}
	for _, rel := range o.RelationshipTypes {
		fmt.Fprintf(&sb, "(:Node)-[:%s]->(:Node)\n", rel)
	}
	return strings.TrimSpace(sb.String())
}
