package graph

import (
	"context"
	"fmt"
)

// StateGraph represents a generic state-based graph with compile-time type safety.
// The type parameter S represents the state type, typically a pointer to a struct.
type StateGraph[S any] struct {
	// nodes is a map of node names to their corresponding TypedNode objects
	nodes map[string]TypedNode[S]

	// order keeps node names in insertion order
	order []string

	// edges is a slice of Edge objects representing the static connections between nodes
	edges []Edge

	// conditionalEdges maps a "From" node to the function choosing its successor at runtime
	conditionalEdges map[string]func(ctx context.Context, state S) string

	// entryPoint is the name of the entry point node in the graph
	entryPoint string

	// err remembers the first construction error, reported by Compile
	err error
}

// TypedNode represents a typed node in the graph.
type TypedNode[S any] struct {
	Name        string
	Description string
	Function    func(ctx context.Context, state S) (S, error)
}

// NewStateGraph creates a new instance of StateGraph with type safety.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]TypedNode[S]),
		conditionalEdges: make(map[string]func(ctx context.Context, state S) string),
	}
}

// AddNode adds a new node to the state graph with the given name, description and function.
func (g *StateGraph[S]) AddNode(name string, description string, fn func(ctx context.Context, state S) (S, error)) {
	if _, exists := g.nodes[name]; exists || name == END {
		if g.err == nil {
			g.err = fmt.Errorf("%w: %s", ErrDuplicateNode, name)
		}
		return
	}
	g.nodes[name] = TypedNode[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
	g.order = append(g.order, name)
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{
		From: from,
		To:   to,
	})
}

// AddConditionalEdge adds a conditional edge where the target node is determined at runtime.
// The condition must return a node name or END.
func (g *StateGraph[S]) AddConditionalEdge(from string, condition func(ctx context.Context, state S) string) {
	g.conditionalEdges[from] = condition
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// Nodes returns the nodes in the order they were added.
func (g *StateGraph[S]) Nodes() []TypedNode[S] {
	nodes := make([]TypedNode[S], 0, len(g.order))
	for _, name := range g.order {
		nodes = append(nodes, g.nodes[name])
	}
	return nodes
}

// Compile validates the graph and returns a StateRunnable instance.
func (g *StateGraph[S]) Compile() (*StateRunnable[S], error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, g.entryPoint)
	}

	next := make(map[string]string, len(g.edges))
	for _, edge := range g.edges {
		if _, ok := g.nodes[edge.From]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, edge.From)
		}
		if _, ok := g.nodes[edge.To]; !ok && edge.To != END {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, edge.To)
		}
		if _, dup := next[edge.From]; dup {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguousEdge, edge.From)
		}
		next[edge.From] = edge.To
	}

	for from := range g.conditionalEdges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, from)
		}
		if _, dup := next[from]; dup {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguousEdge, from)
		}
	}

	for _, name := range g.order {
		_, static := next[name]
		_, conditional := g.conditionalEdges[name]
		if !static && !conditional {
			return nil, fmt.Errorf("%w: %s", ErrNoOutgoingEdge, name)
		}
	}

	return &StateRunnable[S]{
		graph:    g,
		next:     next,
		maxSteps: DefaultMaxSteps,
	}, nil
}

// StateRunnable represents a compiled state graph that can be invoked with type safety.
// A StateRunnable is immutable and safe for concurrent use as long as its tracer is not
// shared between concurrent runs.
type StateRunnable[S any] struct {
	graph    *StateGraph[S]
	next     map[string]string
	tracer   *Tracer
	maxSteps int
}

// WithTracer returns a new StateRunnable with the given tracer.
func (r *StateRunnable[S]) WithTracer(tracer *Tracer) *StateRunnable[S] {
	clone := *r
	clone.tracer = tracer
	return &clone
}

// WithMaxSteps returns a new StateRunnable that stops after n node executions.
func (r *StateRunnable[S]) WithMaxSteps(n int) *StateRunnable[S] {
	clone := *r
	if n > 0 {
		clone.maxSteps = n
	}
	return &clone
}

// Tracer returns the current tracer.
func (r *StateRunnable[S]) Tracer() *Tracer {
	return r.tracer
}

// Invoke executes the compiled state graph with the given input state.
//
// On failure the returned state is the state the failing node received, and the error is a
// *NodeError (or ErrStepLimitExceeded / ErrNodeNotFound for routing faults).
func (r *StateRunnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	state := initialState

	var graphSpan *TraceSpan
	if r.tracer != nil {
		graphSpan = r.tracer.StartSpan(ctx, TraceEventGraphStart, "graph")
		ctx = ContextWithSpan(ctx, graphSpan)
	}

	finish := func(err error) (S, error) {
		if graphSpan != nil {
			r.tracer.EndSpan(ctx, graphSpan, state, err)
		}
		return state, err
	}

	current := r.graph.entryPoint
	for steps := 0; current != END; steps++ {
		if steps >= r.maxSteps {
			return finish(fmt.Errorf("%w: %d", ErrStepLimitExceeded, r.maxSteps))
		}

		node, ok := r.graph.nodes[current]
		if !ok {
			return finish(fmt.Errorf("%w: %s", ErrNodeNotFound, current))
		}

		result, err := r.runNode(ctx, node, state)
		if err != nil {
			return finish(&NodeError{Node: node.Name, Err: err})
		}
		state = result

		following, err := r.successor(ctx, current, state)
		if err != nil {
			return finish(err)
		}
		if r.tracer != nil {
			r.tracer.TraceEdgeTraversal(ctx, current, following)
		}
		current = following
	}

	return finish(nil)
}

// runNode executes a single node, converting a panic into an error.
func (r *StateRunnable[S]) runNode(ctx context.Context, node TypedNode[S], state S) (result S, err error) {
	var span *TraceSpan
	if r.tracer != nil {
		span = r.tracer.StartSpan(ctx, TraceEventNodeStart, node.Name)
		ctx = ContextWithSpan(ctx, span)
		defer func() {
			r.tracer.EndSpan(ctx, span, result, err)
		}()
	}

	defer func() {
		if p := recover(); p != nil {
			result = state
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	return node.Function(ctx, state)
}

func (r *StateRunnable[S]) successor(ctx context.Context, from string, state S) (string, error) {
	if condition, ok := r.graph.conditionalEdges[from]; ok {
		to := condition(ctx, state)
		if to == "" {
			return "", fmt.Errorf("conditional edge returned empty next node from %s", from)
		}
		if _, exists := r.graph.nodes[to]; !exists && to != END {
			return "", fmt.Errorf("%w: %s", ErrNodeNotFound, to)
		}
		return to, nil
	}
	if to, ok := r.next[from]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, from)
}
