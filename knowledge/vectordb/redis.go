package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "kbagent:knowledge"

// RedisStore keeps every record as a JSON field of a single Redis hash and
// ranks candidates client side.
type RedisStore struct {
	client    redis.UniversalClient
	key       string
	dimension int
	owned     bool
}

// NewRedis connects to the redis:// DSN in cfg and verifies the connection.
func NewRedis(ctx context.Context, cfg Config) (*RedisStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("redis vector_db: dsn is required")
	}

	opt, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("redis vector_db: invalid dsn: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis vector_db: ping failed: %w", err)
	}

	store := NewRedisFromClient(client, cfg)
	store.owned = true

	return store, nil
}

// NewRedisFromClient wraps an existing client. The client is not closed by Close.
func NewRedisFromClient(client redis.UniversalClient, cfg Config) *RedisStore {
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = defaultRedisKey
	}

	return &RedisStore{client: client, key: key, dimension: cfg.Dimension}
}

// Upsert writes all records in one pipeline.
func (r *RedisStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	values := make([]any, 0, len(records)*2)
	for _, rec := range records {
		if err := checkDimension(rec.ID, len(rec.Embedding), r.dimension); err != nil {
			return err
		}

		encoded, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("redis: encode %q: %w", rec.ID, err)
		}

		values = append(values, rec.ID, string(encoded))
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, r.key, values...)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: upsert pipeline: %w", err)
	}

	return nil
}

// Search loads the collection and ranks it by cosine similarity.
func (r *RedisStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if err := checkDimension("query", len(query), r.dimension); err != nil {
		return nil, err
	}

	records, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	return rank(query, records, opts), nil
}

// Delete removes records by id and/or metadata equality.
func (r *RedisStore) Delete(ctx context.Context, filter Filter) error {
	ids := append([]string(nil), filter.IDs...)

	if len(filter.Metadata) > 0 {
		records, err := r.load(ctx)
		if err != nil {
			return err
		}

		for _, rec := range records {
			if matchesFilters(rec.Metadata, filter.Metadata) {
				ids = append(ids, rec.ID)
			}
		}
	}

	if len(ids) == 0 {
		return nil
	}

	if err := r.client.HDel(ctx, r.key, ids...).Err(); err != nil {
		return fmt.Errorf("redis: delete: %w", err)
	}

	return nil
}

// Close closes the client when the store created it.
func (r *RedisStore) Close(context.Context) error {
	if !r.owned {
		return nil
	}

	return r.client.Close()
}

func (r *RedisStore) load(ctx context.Context) ([]Record, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load: %w", err)
	}

	records := make([]Record, 0, len(fields))
	for id, raw := range fields {
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("redis: decode %q: %w", id, err)
		}

		records = append(records, rec)
	}

	return records, nil
}
