// Package store persists the query journal: one Entry per answered request.
//
// The journal is write-behind observability. The pipeline appends to it after an answer has
// been produced and never reads it back, so a journal outage never changes an answer.
// Backends live in the memory, sqlite, postgres and redis subpackages.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrEntryNotFound is returned when an entry id is unknown.
var ErrEntryNotFound = errors.New("journal entry not found")

// Entry records the outcome of one request.
type Entry struct {
	ID             string        `json:"id"`
	Mode           string        `json:"mode"`
	Question       string        `json:"question"`
	Query          string        `json:"query,omitempty"`
	CandidateCount int           `json:"candidate_count"`
	ResultCount    int           `json:"result_count"`
	Answer         string        `json:"answer"`
	FailedStage    string        `json:"failed_stage,omitempty"`
	ErrorKind      string        `json:"error_kind,omitempty"`
	Error          string        `json:"error,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
}

// Failed reports whether the request ended in the failed state.
func (e *Entry) Failed() bool {
	return e.FailedStage != ""
}

// Journal defines the interface for query journal persistence
type Journal interface {
	// Append stores an entry
	Append(ctx context.Context, entry *Entry) error

	// Get retrieves an entry by ID
	Get(ctx context.Context, id string) (*Entry, error)

	// List returns up to limit entries, newest first. A limit below 1 returns all entries.
	List(ctx context.Context, limit int) ([]*Entry, error)

	// Close releases the backend
	Close() error
}

// Encode serializes an entry for backends that store documents.
func Encode(entry *Entry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	return data, nil
}

// Decode parses a document written by Encode.
func Decode(data []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal journal entry: %w", err)
	}
	return &entry, nil
}
