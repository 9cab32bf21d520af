package catalog

import (
	"context"
	"fmt"
)

// Count is the number of nodes with a label or relationships of a type.
type Count struct {
	Name  string
	Count int64
}

// Stats summarizes the graph.
type Stats struct {
	Nodes         []Count
	Relationships []Count
	// Embedded is the number of index.Label nodes with a stored vector.
	Embedded int64
}

// Stats counts nodes per label and relationships per type, in store order.
func (c *Catalog) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	labels, err := c.store.ReadQuery(ctx, "CALL db.labels() YIELD label RETURN label", nil)
	if err != nil {
		return stats, fmt.Errorf("list labels: %w", err)
	}
	for _, r := range labels {
		label := r.Get("label").String()
		n, err := c.count(ctx, fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS count", quoteIdentifier(label)))
		if err != nil {
			return stats, fmt.Errorf("count %s nodes: %w", label, err)
		}
		stats.Nodes = append(stats.Nodes, Count{Name: label, Count: n})
	}

	types, err := c.store.RelationshipTypes(ctx)
	if err != nil {
		return stats, fmt.Errorf("list relationship types: %w", err)
	}
	for _, t := range types {
		n, err := c.count(ctx, fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r) AS count", quoteIdentifier(t)))
		if err != nil {
			return stats, fmt.Errorf("count %s relationships: %w", t, err)
		}
		stats.Relationships = append(stats.Relationships, Count{Name: t, Count: n})
	}

	stats.Embedded, err = c.count(ctx, fmt.Sprintf("MATCH (m:%s) WHERE %s RETURN count(m) AS count",
		quoteIdentifier(c.index.Label), c.hasEmbeddingClause()))
	if err != nil {
		return stats, fmt.Errorf("count embeddings: %w", err)
	}
	return stats, nil
}

func (c *Catalog) count(ctx context.Context, query string) (int64, error) {
	records, err := c.store.ReadQuery(ctx, query, nil)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	n, ok := records[0].Get("count").AsInt()
	if !ok {
		return 0, fmt.Errorf("count is %s", records[0].Get("count").Kind())
	}
	return n, nil
}
