package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/kbagent/core"
	"github.com/hupe1980/kbagent/internal/util"
	"github.com/hupe1980/kbagent/knowledge/vectordb"
	"github.com/hupe1980/kbagent/logging"
)

// Metadata keys written with every chunk.
const (
	MetaResourceID = "resource_id"
	MetaChunk      = "chunk"
)

// Options configures a Service.
type Options struct {
	TopK     int     // Maximum fragments per query
	MinScore float64 // Fragments scoring at or below this are dropped
	Retry    RetryConfig
	Logger   logging.Logger
}

// Service implements core.Retriever and core.Ingester on top of an embedder
// and a vector store. It is safe for concurrent use.
type Service struct {
	store    vectordb.Store
	embedder Embedder
	opts     Options
}

var _ core.KnowledgeBase = (*Service)(nil)

// NewService creates a Service. Defaults: TopK 4, MinScore 0.5.
func NewService(store vectordb.Store, embedder Embedder, optFns ...func(o *Options)) (*Service, error) {
	if store == nil {
		return nil, errors.New("knowledge: vector store is required")
	}

	if embedder == nil {
		return nil, errors.New("knowledge: embedder is required")
	}

	opts := Options{
		TopK:     4,
		MinScore: 0.5,
		Retry:    DefaultRetryConfig(),
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Service{store: store, embedder: embedder, opts: opts}, nil
}

// Ingest chunks, embeds and stores text as a new resource.
func (s *Service) Ingest(ctx context.Context, text string) (core.Resource, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return core.Resource{}, &util.ValidationError{Field: "content", Message: "content must not be empty"}
	}

	chunks := GenerateChunks(content)
	if len(chunks) == 0 {
		return core.Resource{}, &util.ValidationError{Field: "content", Value: text, Message: "content has no text to embed"}
	}

	start := time.Now()

	var vectors [][]float32

	err := s.opts.Retry.do(ctx, func(ctx context.Context) error {
		var embedErr error
		vectors, embedErr = s.embedder.EmbedDocuments(ctx, chunks)

		return embedErr
	})
	if err != nil {
		return core.Resource{}, fmt.Errorf("knowledge: embed chunks: %w", err)
	}

	if len(vectors) != len(chunks) {
		return core.Resource{}, fmt.Errorf("knowledge: received %d embeddings for %d chunks", len(vectors), len(chunks))
	}

	resourceID := uuid.NewString()

	records := make([]vectordb.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vectordb.Record{
			ID:        fmt.Sprintf("%s:%d", resourceID, i),
			Text:      chunk,
			Embedding: vectors[i],
			Metadata:  map[string]any{MetaResourceID: resourceID, MetaChunk: i},
		}
	}

	err = s.opts.Retry.do(ctx, func(ctx context.Context) error {
		return s.store.Upsert(ctx, records)
	})
	if err != nil {
		return core.Resource{}, fmt.Errorf("knowledge: store chunks: %w", err)
	}

	s.opts.Logger.Info("knowledge.ingest.completed",
		"resource_id", resourceID,
		"chunks", len(chunks),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return core.Resource{
		ID:        resourceID,
		Content:   content,
		Chunks:    len(chunks),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Retrieve returns up to TopK fragments scoring above MinScore, most relevant first.
func (s *Service) Retrieve(ctx context.Context, query string) ([]core.Fragment, error) {
	question := strings.TrimSpace(query)
	if question == "" {
		return nil, &util.ValidationError{Field: "question", Message: "question must not be empty"}
	}

	var vector []float32

	err := s.opts.Retry.do(ctx, func(ctx context.Context) error {
		var embedErr error
		vector, embedErr = s.embedder.EmbedQuery(ctx, strings.ReplaceAll(question, "\n", " "))

		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: embed query: %w", err)
	}

	var matches []vectordb.Match

	err = s.opts.Retry.do(ctx, func(ctx context.Context) error {
		var searchErr error
		matches, searchErr = s.store.Search(ctx, vector, vectordb.SearchOptions{TopK: s.opts.TopK, MinScore: s.opts.MinScore})

		return searchErr
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}

	fragments := make([]core.Fragment, 0, len(matches))
	for _, m := range matches {
		if m.Score <= s.opts.MinScore {
			continue
		}

		fragments = append(fragments, core.Fragment{ID: m.ID, Text: m.Text, Score: m.Score, Metadata: m.Metadata})
	}

	s.opts.Logger.Debug("knowledge.retrieve.completed", "fragments", len(fragments), "candidates", len(matches))

	return fragments, nil
}

// Delete removes every chunk of a resource.
func (s *Service) Delete(ctx context.Context, resourceID string) error {
	if strings.TrimSpace(resourceID) == "" {
		return &util.ValidationError{Field: "resource_id", Message: "resource id must not be empty"}
	}

	return s.store.Delete(ctx, vectordb.Filter{Metadata: map[string]string{MetaResourceID: resourceID}})
}

// Close releases the underlying store.
func (s *Service) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}
