package datastore

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps collections in process memory. It backs dry runs and
// tests; contents are lost on exit.
type MemoryStore struct {
	mu    sync.Mutex
	order map[Collection][]string
	rows  map[Collection]map[string]map[string]any
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		order: make(map[Collection][]string),
		rows:  make(map[Collection]map[string]map[string]any),
	}
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Insert stores a copy of fields under a new uuid.
func (m *MemoryStore) Insert(_ context.Context, collection Collection, fields map[string]any) (Record, error) {
	return m.Put(collection, uuid.NewString(), fields), nil
}

// Put stores fields under an explicit id, replacing any previous row. Used to
// seed agents and fixtures.
func (m *MemoryStore) Put(collection Collection, id string, fields map[string]any) Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[collection] == nil {
		m.rows[collection] = make(map[string]map[string]any)
	}
	if _, exists := m.rows[collection][id]; !exists {
		m.order[collection] = append(m.order[collection], id)
	}
	row := copyFields(fields)
	m.rows[collection][id] = row
	return Record{ID: id, Fields: copyFields(row)}
}

// Update merges patch into the row; a missing id affects zero rows.
func (m *MemoryStore) Update(_ context.Context, collection Collection, id string, patch map[string]any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[collection][id]
	if !ok {
		return 0, nil
	}
	for k, v := range patch {
		row[k] = v
	}
	return 1, nil
}

// Select returns matching rows in insertion order.
func (m *MemoryStore) Select(_ context.Context, collection Collection, filter Filter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0)
	for _, id := range m.order[collection] {
		row := m.rows[collection][id]
		if !matches(id, row, filter) {
			continue
		}
		out = append(out, Record{ID: id, Fields: copyFields(row)})
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of matching rows, ignoring Limit.
func (m *MemoryStore) Count(ctx context.Context, collection Collection, filter Filter) (int, error) {
	filter.Limit = 0
	recs, err := m.Select(ctx, collection, filter)
	return len(recs), err
}

func matches(id string, row map[string]any, filter Filter) bool {
	if len(filter.IDs) > 0 {
		found := false
		for _, want := range filter.IDs {
			if want == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for field, want := range filter.Equals {
		if StringValue(row[field]) != strings.TrimSpace(want) {
			return false
		}
	}
	for _, field := range filter.Empty {
		if StringValue(row[field]) != "" {
			return false
		}
	}
	return true
}

func copyFields(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
