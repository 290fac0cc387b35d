// Package vectordb stores embedded knowledge chunks and answers similarity
// queries over them. Backends: an in-process memory store, Postgres with the
// pgvector extension and Redis.
package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider enumerates supported vector database backends.
type Provider string

const (
	ProviderMemory   Provider = "memory"
	ProviderPGVector Provider = "pgvector"
	ProviderRedis    Provider = "redis"
)

// ErrDimensionMismatch is returned when a vector does not match the store dimension.
var ErrDimensionMismatch = errors.New("vectordb: dimension mismatch")

// Record represents a chunk persisted to the vector store.
type Record struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SearchOptions controls similarity search execution.
type SearchOptions struct {
	TopK     int
	MinScore float64
	Filters  map[string]string
}

// Match captures a similarity search result.
type Match struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]any
}

// Filter specifies delete criteria.
type Filter struct {
	IDs      []string
	Metadata map[string]string
}

// Store exposes the minimal contract for ingestion and retrieval. Search
// returns matches ordered by descending score.
type Store interface {
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error)
	Delete(ctx context.Context, filter Filter) error
	Close(ctx context.Context) error
}

// Config captures connection details for a vector database.
type Config struct {
	Provider    Provider
	DSN         string
	Table       string // pgvector table
	Key         string // redis hash key
	Dimension   int
	EnsureIndex bool
}

const defaultTopK = 5

// New instantiates the store selected by cfg.Provider. An empty provider
// selects the memory store.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("vector_db: dimension must be positive, got %d", cfg.Dimension)
	}

	switch Provider(strings.ToLower(string(cfg.Provider))) {
	case "", ProviderMemory:
		return NewMemory(cfg.Dimension), nil
	case ProviderPGVector:
		return NewPGVector(ctx, cfg)
	case ProviderRedis:
		return NewRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("vector_db: unsupported provider %q", cfg.Provider)
	}
}

func checkDimension(id string, got, want int) error {
	if got != want {
		return fmt.Errorf("%w: record %q has %d, want %d", ErrDimensionMismatch, id, got, want)
	}

	return nil
}

func matchesFilters(metadata map[string]any, filters map[string]string) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if !ok || fmt.Sprint(got) != want {
			return false
		}
	}

	return true
}

func cloneMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}

	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}
