package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/neardup/internal/db"
	"github.com/kailas-cloud/neardup/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "emb_cache:"

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	SetMulti(ctx context.Context, items []db.KVItem, ttl time.Duration) error
}

// CachedEmbedder caches embeddings per (model, text) in a key-value store.
// Cache failures degrade to provider calls and are only logged.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      store
	model      string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator. cacheTotal has a single "result" label
// ("hit"/"miss") and may be nil.
func New(
	inner domain.Embedder,
	s store,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// WithModel scopes cache keys to a model so switching models never serves stale vectors.
func (c *CachedEmbedder) WithModel(model string) *CachedEmbedder {
	c.model = model
	return c
}

// WithTTL expires cached vectors after ttl (0 = keep forever).
func (c *CachedEmbedder) WithTTL(ttl time.Duration) *CachedEmbedder {
	c.ttl = ttl
	return c
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

// Embed returns a cached embedding or calls the inner embedder.
// A hit reports zero tokens.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.lookup(ctx, key); ok {
		c.count("hit", 1)
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	c.count("miss", 1)

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.put(ctx, []db.KVItem{{Key: key, Value: vectorToCacheBytes(result.Embedding)}})
	return result, nil
}

// BatchEmbed serves hits from the cache and embeds the remaining distinct
// texts in one inner call. Repeated texts are embedded once.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	// Group positions by distinct text.
	var unique []string
	positions := make(map[string][]int, len(texts))
	for i, t := range texts {
		if _, seen := positions[t]; !seen {
			unique = append(unique, t)
		}
		positions[t] = append(positions[t], i)
	}

	keys := make([]string, len(unique))
	for i, t := range unique {
		keys[i] = c.cacheKey(t)
	}

	vectors := make([][]float32, len(unique))
	cached := c.lookupMulti(ctx, keys)

	var missIdx []int
	var missTexts []string
	for i := range unique {
		if cached[i] != nil {
			vectors[i] = cached[i]
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, unique[i])
	}
	c.count("hit", len(unique)-len(missIdx))
	c.count("miss", len(missIdx))

	var out domain.BatchEmbeddingResult
	if len(missTexts) > 0 {
		res, err := c.embedMisses(ctx, missTexts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, c.remapError(err, missIdx, unique, positions)
		}
		if len(res.Embeddings) != len(missTexts) {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("got %d vectors for %d texts: %w",
				len(res.Embeddings), len(missTexts), domain.ErrEmbeddingProviderError)
		}

		items := make([]db.KVItem, len(missIdx))
		for k, ui := range missIdx {
			vectors[ui] = res.Embeddings[k]
			items[k] = db.KVItem{Key: keys[ui], Value: vectorToCacheBytes(res.Embeddings[k])}
		}
		c.put(ctx, items)
		out.PromptTokens = res.PromptTokens
		out.TotalTokens = res.TotalTokens
	}

	out.Embeddings = make([][]float32, len(texts))
	for ui, t := range unique {
		for _, pos := range positions[t] {
			out.Embeddings[pos] = vectors[ui]
		}
	}

	c.logger.Debug("Batch embedding cache lookup",
		zap.Int("texts", len(texts)),
		zap.Int("distinct", len(unique)),
		zap.Int("misses", len(missIdx)),
	)
	return out, nil
}

func (c *CachedEmbedder) embedMisses(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := c.inner.(domain.BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, texts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed misses: %w", err)
		}
		return res, nil
	}
	res, err := domain.BatchFallback(ctx, c.inner, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed misses fallback: %w", err)
	}
	return res, nil
}

// remapError translates failed positions of the miss batch back to the caller's batch.
func (c *CachedEmbedder) remapError(err error, missIdx []int, unique []string, positions map[string][]int) error {
	failed := domain.FailedIndices(err)
	if failed == nil {
		return err
	}
	var orig []int
	for _, k := range failed {
		if k < 0 || k >= len(missIdx) {
			continue
		}
		orig = append(orig, positions[unique[missIdx[k]]]...)
	}
	slices.Sort(orig)
	return &domain.BatchIndicesError{Indices: orig, Err: err}
}

func (c *CachedEmbedder) count(result string, n int) {
	if c.cacheTotal != nil && n > 0 {
		c.cacheTotal.WithLabelValues(result).Add(float64(n))
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	vec := c.decode(key, data)
	return vec, vec != nil
}

// lookupMulti returns one entry per key, nil for misses and unreadable entries.
func (c *CachedEmbedder) lookupMulti(ctx context.Context, keys []string) [][]float32 {
	out := make([][]float32, len(keys))
	data, err := c.store.GetMulti(ctx, keys)
	if err != nil {
		c.logger.Warn("Failed to get cached embeddings", zap.Int("keys", len(keys)), zap.Error(err))
		return out
	}
	for i, d := range data {
		out[i] = c.decode(keys[i], d)
	}
	return out
}

func (c *CachedEmbedder) decode(key string, data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil
	}
	return vec
}

func (c *CachedEmbedder) put(ctx context.Context, items []db.KVItem) {
	if err := c.store.SetMulti(ctx, items, c.ttl); err != nil {
		c.logger.Warn("Failed to cache embeddings", zap.Int("items", len(items)), zap.Error(err))
	}
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
