package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

const defaultTable = "knowledge_chunks"

// pgPool is the subset of *pgxpool.Pool used by the store.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PGVectorStore persists records in a Postgres table with a vector column and
// searches with the cosine distance operator.
type PGVectorStore struct {
	pool       pgPool
	tableIdent string
	indexIdent string
	dimension  int
	ensureIdx  bool
}

// NewPGVector connects to cfg.DSN and makes sure the extension and table exist.
func NewPGVector(ctx context.Context, cfg Config) (*PGVectorStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("pgvector: dsn is required")
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %w", err)
	}

	store, err := newPGVectorWithPool(ctx, pool, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

func newPGVectorWithPool(ctx context.Context, pool pgPool, cfg Config) (*PGVectorStore, error) {
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}

	store := &PGVectorStore{
		pool:       pool,
		tableIdent: pgx.Identifier{table}.Sanitize(),
		indexIdent: pgx.Identifier{table + "_embedding_idx"}.Sanitize(),
		dimension:  cfg.Dimension,
		ensureIdx:  cfg.EnsureIndex,
	}

	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

func (p *PGVectorStore) ensureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("pgvector: enable extension: %w", err)
	}

	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		embedding vector(%d),
		document TEXT,
		metadata JSONB,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`, p.tableIdent, p.dimension)
	if _, err := p.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("pgvector: create table: %w", err)
	}

	if p.ensureIdx {
		createIndex := fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)",
			p.indexIdent,
			p.tableIdent,
		)
		if _, err := p.pool.Exec(ctx, createIndex); err != nil {
			return fmt.Errorf("pgvector: create index: %w", err)
		}
	}

	return nil
}

// Upsert writes all records in one transaction.
func (p *PGVectorStore) Upsert(ctx context.Context, records []Record) (err error) {
	if len(records) == 0 {
		return nil
	}

	for _, rec := range records {
		if err := checkDimension(rec.ID, len(rec.Embedding), p.dimension); err != nil {
			return err
		}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgvector: begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("pgvector: rollback failed: %w; original error: %v", rbErr, err)
			}

			return
		}

		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("pgvector: commit: %w", commitErr)
		}
	}()

	stmt := fmt.Sprintf(`INSERT INTO %s (id, embedding, document, metadata, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    embedding = excluded.embedding,
    document = excluded.document,
    metadata = excluded.metadata,
    updated_at = excluded.updated_at`, p.tableIdent)

	for _, rec := range records {
		metadata, marshalErr := json.Marshal(rec.Metadata)
		if marshalErr != nil {
			return fmt.Errorf("pgvector: marshal metadata for %q: %w", rec.ID, marshalErr)
		}

		if _, execErr := tx.Exec(ctx, stmt, rec.ID, pgvector.NewVector(rec.Embedding), rec.Text, metadata, time.Now().UTC()); execErr != nil {
			return fmt.Errorf("pgvector: upsert %q: %w", rec.ID, execErr)
		}
	}

	return nil
}

// Search orders by cosine distance and reports 1 - distance as score.
func (p *PGVectorStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if err := checkDimension("query", len(query), p.dimension); err != nil {
		return nil, err
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	var b strings.Builder

	b.WriteString("SELECT id, document, metadata, 1 - (embedding <=> $1) AS score FROM ")
	b.WriteString(p.tableIdent)
	b.WriteString(" WHERE 1=1")

	args := []any{pgvector.NewVector(query)}
	argPos := 2

	for _, key := range sortedKeys(opts.Filters) {
		fmt.Fprintf(&b, " AND metadata ->> $%d = $%d", argPos, argPos+1)
		args = append(args, key, opts.Filters[key])
		argPos += 2
	}

	if opts.MinScore > 0 {
		fmt.Fprintf(&b, " AND 1 - (embedding <=> $1) >= $%d", argPos)
		args = append(args, opts.MinScore)
		argPos++
	}

	fmt.Fprintf(&b, " ORDER BY embedding <=> $1 ASC LIMIT $%d", argPos)
	args = append(args, topK)

	rows, err := p.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer rows.Close()

	results := make([]Match, 0, topK)
	for rows.Next() {
		var (
			id          string
			document    string
			metadataRaw []byte
			score       float64
		)

		if err := rows.Scan(&id, &document, &metadataRaw, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}

		meta := make(map[string]any)
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &meta); err != nil {
				return nil, fmt.Errorf("pgvector: decode metadata: %w", err)
			}
		}

		results = append(results, Match{ID: id, Score: score, Text: document, Metadata: meta})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: search rows: %w", err)
	}

	return results, nil
}

// Delete removes rows by id and/or metadata equality.
func (p *PGVectorStore) Delete(ctx context.Context, filter Filter) error {
	if len(filter.IDs) == 0 && len(filter.Metadata) == 0 {
		return nil
	}

	var b strings.Builder

	b.WriteString("DELETE FROM ")
	b.WriteString(p.tableIdent)
	b.WriteString(" WHERE 1=1")

	var args []any

	argPos := 1

	if len(filter.IDs) > 0 {
		fmt.Fprintf(&b, " AND id = ANY($%d)", argPos)
		args = append(args, filter.IDs)
		argPos++
	}

	for _, key := range sortedKeys(filter.Metadata) {
		fmt.Fprintf(&b, " AND metadata ->> $%d = $%d", argPos, argPos+1)
		args = append(args, key, filter.Metadata[key])
		argPos += 2
	}

	if _, err := p.pool.Exec(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("pgvector: delete: %w", err)
	}

	return nil
}

// Close releases the connection pool.
func (p *PGVectorStore) Close(context.Context) error {
	p.pool.Close()
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
