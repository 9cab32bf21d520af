package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/smallnest/moviegraph/store"
)

// MemoryJournal keeps entries in process memory. It is the default journal for tests and
// one-shot CLI runs.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries map[string]*store.Entry
	order   []string
}

var _ store.Journal = (*MemoryJournal)(nil)

// NewMemoryJournal creates an empty journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		entries: make(map[string]*store.Entry),
	}
}

// Append stores a copy of entry. Appending an existing id replaces the stored entry.
func (m *MemoryJournal) Append(_ context.Context, entry *store.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *entry
	if _, exists := m.entries[entry.ID]; !exists {
		m.order = append(m.order, entry.ID)
	}
	m.entries[entry.ID] = &copied
	return nil
}

// Get retrieves an entry by ID
func (m *MemoryJournal) Get(_ context.Context, id string) (*store.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, store.ErrEntryNotFound
	}
	copied := *entry
	return &copied, nil
}

// List returns entries newest first.
func (m *MemoryJournal) List(_ context.Context, limit int) ([]*store.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*store.Entry, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		copied := *m.entries[m.order[i]]
		entries = append(entries, &copied)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartedAt.After(entries[j].StartedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Len returns the number of stored entries.
func (m *MemoryJournal) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close does nothing
func (m *MemoryJournal) Close() error {
	return nil
}
