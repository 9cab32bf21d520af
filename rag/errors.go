package rag

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindEmbedding     ErrorKind = "embedding"
	KindRetrieval     ErrorKind = "retrieval"
	KindSchema        ErrorKind = "schema"
	KindGeneration    ErrorKind = "generation"
	KindExecution     ErrorKind = "execution"
	KindSummarization ErrorKind = "summarization"
)

var (
	// ErrEmptyQuery is returned when a question or generated query is blank.
	ErrEmptyQuery = errors.New("empty query")

	// ErrUnrecognizedQuery is returned when generated text does not look like Cypher.
	ErrUnrecognizedQuery = errors.New("generated text is not a recognizable Cypher query")

	// ErrEmptyResponse is returned when the LLM answers with blank text.
	ErrEmptyResponse = errors.New("language model returned an empty response")
)

// Error is a classified pipeline failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain, or "" when err
// is not classified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether any error in err's chain has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
