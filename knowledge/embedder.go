package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// EmbedderProvider enumerates supported embedding backends.
type EmbedderProvider string

const (
	EmbedderGoogleAI EmbedderProvider = "googleai"
	EmbedderOpenAI   EmbedderProvider = "openai"
	// EmbedderHash is a deterministic offline embedder for development and tests.
	EmbedderHash EmbedderProvider = "hash"
)

// Defaults for the googleai embedder.
const (
	DefaultEmbeddingModel     = "text-embedding-004"
	DefaultEmbeddingDimension = 768
)

// Embedder is the langchaingo embeddings contract used by the service.
type Embedder = embeddings.Embedder

// EmbedderConfig selects and tunes an embedder.
type EmbedderConfig struct {
	Provider      EmbedderProvider
	Model         string
	APIKey        string
	Dimension     int
	BatchSize     int
	StripNewLines bool
	CacheSize     int // LRU entries for query embeddings; 0 disables caching
}

// NewEmbedder builds the configured embedder, wrapped in an LRU cache when
// cfg.CacheSize is positive.
func NewEmbedder(ctx context.Context, cfg EmbedderConfig) (Embedder, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	opts := []embeddings.Option{
		embeddings.WithBatchSize(cfg.BatchSize),
		embeddings.WithStripNewLines(cfg.StripNewLines),
	}

	client, err := newEmbedderClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	impl, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: construct: %w", cfg.Provider, err)
	}

	if cfg.CacheSize <= 0 {
		return impl, nil
	}

	return NewCachedEmbedder(impl, cfg.CacheSize)
}

func newEmbedderClient(ctx context.Context, cfg EmbedderConfig) (embeddings.EmbedderClient, error) {
	switch cfg.Provider {
	case "", EmbedderGoogleAI:
		model := cfg.Model
		if model == "" {
			model = DefaultEmbeddingModel
		}

		gopts := []googleai.Option{googleai.WithDefaultEmbeddingModel(model)}
		if cfg.APIKey != "" {
			gopts = append(gopts, googleai.WithAPIKey(cfg.APIKey))
		}

		client, err := googleai.New(ctx, gopts...)
		if err != nil {
			return nil, fmt.Errorf("embedder googleai: init client: %w", err)
		}

		return client, nil
	case EmbedderOpenAI:
		oopts := []lcopenai.Option{}
		if cfg.Model != "" {
			oopts = append(oopts, lcopenai.WithEmbeddingModel(cfg.Model))
		}

		if cfg.APIKey != "" {
			oopts = append(oopts, lcopenai.WithToken(cfg.APIKey))
		}

		client, err := lcopenai.New(oopts...)
		if err != nil {
			return nil, fmt.Errorf("embedder openai: init client: %w", err)
		}

		return client, nil
	case EmbedderHash:
		dim := cfg.Dimension
		if dim <= 0 {
			dim = DefaultEmbeddingDimension
		}

		return NewHashEmbedder(dim), nil
	default:
		return nil, fmt.Errorf("embedder: provider %q is not supported", cfg.Provider)
	}
}

// CachedEmbedder memoizes embeddings by content hash. Returned vectors are
// copies and may be modified by callers.
type CachedEmbedder struct {
	impl  Embedder
	mu    sync.Mutex
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps impl with an LRU cache of the given size.
func NewCachedEmbedder(impl Embedder, size int) (*CachedEmbedder, error) {
	if impl == nil {
		return nil, errors.New("embedder: implementation is required")
	}

	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embedder: init cache: %w", err)
	}

	return &CachedEmbedder{impl: impl, cache: cache}, nil
}

// EmbedQuery returns the cached vector for text or computes and stores it.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.lookup(text); ok {
		return vec, nil
	}

	vec, err := c.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	c.store(text, vec)

	return cloneVector(vec), nil
}

// EmbedDocuments embeds only the texts missing from the cache, once per
// distinct text.
func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	missing := make(map[string][]int)

	var order []string

	for i, text := range texts {
		if vec, ok := c.lookup(text); ok {
			results[i] = vec
			continue
		}

		if _, seen := missing[text]; !seen {
			order = append(order, text)
		}

		missing[text] = append(missing[text], i)
	}

	if len(order) == 0 {
		return results, nil
	}

	embedded, err := c.impl.EmbedDocuments(ctx, order)
	if err != nil {
		return nil, err
	}

	if len(embedded) != len(order) {
		return nil, fmt.Errorf("embedder: received %d embeddings for %d texts", len(embedded), len(order))
	}

	for i, text := range order {
		for _, idx := range missing[text] {
			results[idx] = cloneVector(embedded[i])
		}

		c.store(text, embedded[i])
	}

	return results, nil
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cache.Len()
}

func (c *CachedEmbedder) lookup(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vec, ok := c.cache.Get(cacheKey(text))
	if !ok {
		return nil, false
	}

	return cloneVector(vec), true
}

func (c *CachedEmbedder) store(text string, vec []float32) {
	if len(vec) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(cacheKey(text), cloneVector(vec))
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(src []float32) []float32 {
	if len(src) == 0 {
		return nil
	}

	dst := make([]float32, len(src))
	copy(dst, src)

	return dst
}

// HashEmbedder maps lower-cased word tokens into a fixed number of buckets
// (feature hashing) and L2 normalizes the result. Texts sharing words get a
// positive cosine similarity. It needs no network access.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a HashEmbedder producing vectors of length dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{dimension: dimension}
}

// CreateEmbedding implements embeddings.EmbedderClient.
func (h *HashEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out[i] = h.embed(text)
	}

	return out, nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, h.dimension)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	for _, w := range words {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		vec[int(f.Sum32()%uint32(h.dimension))]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}

	if norm == 0 {
		return vec
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}

	return vec
}
