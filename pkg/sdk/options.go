package neardup

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	domdedup "github.com/kailas-cloud/neardup/internal/domain/dedup"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	addrs    []string
	password string

	embedder         Embedder
	model            string
	vectorDimensions int
	cacheTTL         time.Duration

	dailyTokenLimit   int64
	monthlyTokenLimit int64

	params     domdedup.Params
	workers    int
	blockRows  int
	maxRecords int

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

func defaultConfig() *clientConfig {
	return &clientConfig{params: domdedup.DefaultParams()}
}

// WithRedis caches embeddings and persists the token budget in a Redis
// instance. Without it the client keeps no state between runs.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithValkey is WithRedis for a Valkey instance.
func WithValkey(addr, password string) Option {
	return WithRedis(addr, password)
}

// WithEmbedder sets the text embedding provider.
// Required while the embedding weight is positive.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithEmbeddingModel names the model behind the embedder. Cached vectors
// are scoped to it, so switching models never reuses stale embeddings.
func WithEmbeddingModel(model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.model = model
	})
}

// WithVectorDimensions rejects embeddings of any other length.
// By default the first vector of each run sets the expected length.
func WithVectorDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.vectorDimensions = dim
	})
}

// WithCacheTTL expires cached embeddings after ttl. Zero keeps them forever.
func WithCacheTTL(ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheTTL = ttl
	})
}

// WithTokenBudget rejects embedding calls once the daily or monthly token
// limit is spent. A zero limit is unlimited.
func WithTokenBudget(daily, monthly int64) Option {
	return optionFunc(func(c *clientConfig) {
		c.dailyTokenLimit = daily
		c.monthlyTokenLimit = monthly
	})
}

// WithWeights sets the default signal weights.
// Defaults: edit 0.2, tfidf 0.3, embedding 0.5.
func WithWeights(edit, tfidf, embedding float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.params.Weights = domdedup.Weights{Edit: edit, TFIDF: tfidf, Embedding: embedding}
	})
}

// WithThreshold sets the default fused score at or above which a record is
// a duplicate. Default: 0.9.
func WithThreshold(t float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.params.Threshold = t
	})
}

// WithRenormalize drops a failing signal for the whole run and rescales
// the remaining weights instead of failing the run.
func WithRenormalize() Option {
	return optionFunc(func(c *clientConfig) {
		c.params.Fallback = domdedup.FallbackRenormalize
	})
}

// WithWorkers bounds the goroutines scoring pairs. Default: GOMAXPROCS.
func WithWorkers(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.workers = n
	})
}

// WithBlockRows sets how many rows are scored per worker task. Default: 256.
func WithBlockRows(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.blockRows = n
	})
}

// WithMaxRecords rejects larger inputs with ErrTooManyRecords. Default: unlimited.
func WithMaxRecords(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxRecords = n
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts, durations and
// embedding cache lookups) on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
