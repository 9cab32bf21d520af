// Package graph provides the execution engine used to sequence multi-step pipelines.
//
// A StateGraph is a directed graph of named nodes. Each node receives the current state, may
// transform it, and hands it to its successor. Successors are chosen either by a static edge
// or by a conditional edge evaluated against the state after the node ran. Execution is
// strictly sequential: exactly one node is active at any time.
//
// # Building a graph
//
//	type State struct {
//	    Query  string
//	    Hits   int
//	    Answer string
//	}
//
//	g := graph.NewStateGraph[*State]()
//	g.AddNode("search", "Search the index", func(ctx context.Context, s *State) (*State, error) {
//	    s.Hits = 3
//	    return s, nil
//	})
//	g.AddNode("answer", "Write the answer", func(ctx context.Context, s *State) (*State, error) {
//	    s.Answer = "..."
//	    return s, nil
//	})
//	g.SetEntryPoint("search")
//	g.AddConditionalEdge("search", func(ctx context.Context, s *State) string {
//	    if s.Hits == 0 {
//	        return graph.END
//	    }
//	    return "answer"
//	})
//	g.AddEdge("answer", graph.END)
//
//	runnable, err := g.Compile()
//	if err != nil {
//	    return err
//	}
//	final, err := runnable.Invoke(ctx, &State{Query: "heist movies"})
//
// # Failure handling
//
// When a node returns an error (or panics) the run stops immediately. Invoke returns the state
// as it was when the failing node was entered together with a *NodeError naming the node, so
// callers can tell which step failed. There is no retry: a node that wants retries must
// implement them itself.
//
// # Tracing
//
// A Tracer attached with WithTracer receives a span for the whole run, for every node and for
// every edge traversal. Hooks registered on the tracer observe spans as they start and end,
// which is how metrics and OpenTelemetry exporters are plugged in.
package graph
