// Package knowledge implements the retrieval and ingest collaborators used by
// the built-in tools: text is split into sentence chunks, embedded and kept in
// a vectordb.Store; questions are embedded and answered by similarity search.
package knowledge
