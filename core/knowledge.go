package core

import (
	"context"
	"time"
)

// Fragment is a piece of stored knowledge returned by a Retriever together with
// its relevance score (higher is more relevant).
type Fragment struct {
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Resource is the confirmation returned by an Ingester.
type Resource struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"created_at"`
}

// Retriever returns ranked fragments relevant to a query. Implementations may
// be slow or fail; they must honour ctx.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Fragment, error)
}

// Ingester persists a piece of text into the knowledge base.
type Ingester interface {
	Ingest(ctx context.Context, text string) (Resource, error)
}

// KnowledgeBase is the combined collaborator consumed by the built-in tools.
type KnowledgeBase interface {
	Retriever
	Ingester
}
