package vectordb

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store doing a linear cosine scan. Suitable
// for development, tests and small knowledge bases; contents are lost on exit.
//
// Concurrency: protected by RWMutex.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]Record
}

// NewMemory creates an empty memory store for vectors of the given dimension.
func NewMemory(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		records:   make(map[string]Record),
	}
}

// Upsert inserts or replaces records by id. The batch is rejected as a whole
// when any embedding has the wrong dimension.
func (m *MemoryStore) Upsert(_ context.Context, records []Record) error {
	for _, rec := range records {
		if err := checkDimension(rec.ID, len(rec.Embedding), m.dimension); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range records {
		rec.Embedding = append([]float32(nil), rec.Embedding...)
		rec.Metadata = cloneMetadata(rec.Metadata)
		m.records[rec.ID] = rec
	}

	return nil
}

// Search ranks all stored records by cosine similarity.
func (m *MemoryStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if err := checkDimension("query", len(query), m.dimension); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	candidates := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		candidates = append(candidates, rec)
	}
	m.mu.RUnlock()

	return rank(query, candidates, opts), nil
}

// Delete removes records matching the ids or all metadata pairs of filter.
func (m *MemoryStore) Delete(_ context.Context, filter Filter) error {
	if len(filter.IDs) == 0 && len(filter.Metadata) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range filter.IDs {
		delete(m.records, id)
	}

	if len(filter.Metadata) > 0 {
		for id, rec := range m.records {
			if matchesFilters(rec.Metadata, filter.Metadata) {
				delete(m.records, id)
			}
		}
	}

	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.records)
}

// Close implements Store.
func (m *MemoryStore) Close(context.Context) error { return nil }
