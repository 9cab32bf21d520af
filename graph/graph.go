package graph

import (
	"errors"
	"fmt"
)

// END is a special constant used to represent the end node in the graph.
const END = "END"

// DefaultMaxSteps bounds the number of node executions of a single run.
const DefaultMaxSteps = 64

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoOutgoingEdge is returned when no outgoing edge is found for a node.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for node")

	// ErrAmbiguousEdge is returned when a node has more than one successor.
	ErrAmbiguousEdge = errors.New("node has more than one outgoing edge")

	// ErrDuplicateNode is returned when two nodes share a name.
	ErrDuplicateNode = errors.New("node already exists")

	// ErrStepLimitExceeded is returned when a run executes more nodes than allowed.
	ErrStepLimitExceeded = errors.New("step limit exceeded")
)

// Edge represents an edge in the graph.
type Edge struct {
	// From is the name of the node from which the edge originates.
	From string

	// To is the name of the node to which the edge points.
	To string
}

// NodeError reports the failure of a single node.
type NodeError struct {
	// Node is the name of the node that failed
	Node string
	// Err is the error returned by the node (or synthesized from a panic)
	Err error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("error in node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// FailedNode returns the name of the node that produced err, or "" when err did not come
// from a node.
func FailedNode(err error) string {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.Node
	}
	return ""
}
