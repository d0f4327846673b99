package neardup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/neardup/internal/db"
	dbRedis "github.com/kailas-cloud/neardup/internal/db/redis"
	"github.com/kailas-cloud/neardup/internal/domain"
	domdedup "github.com/kailas-cloud/neardup/internal/domain/dedup"
	budgetrepo "github.com/kailas-cloud/neardup/internal/repository/budget"
	"github.com/kailas-cloud/neardup/internal/repository/embcache"
	dedupuc "github.com/kailas-cloud/neardup/internal/usecase/dedup"
	embeddinguc "github.com/kailas-cloud/neardup/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/neardup/internal/usecase/health"
	usageuc "github.com/kailas-cloud/neardup/internal/usecase/usage"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	embeddingProvider       = "embedder"
)

// Internal interfaces so tests can swap the services.
type dedupUseCase interface {
	Run(ctx context.Context, texts []string, params domdedup.Params) (domdedup.Result, error)
}

// Client is the neardup SDK entry point. It is safe for concurrent use.
type Client struct {
	store     db.Store
	dedupSvc  dedupUseCase
	healthSvc healthUseCase
	usageSvc  usageUseCase
	params    domdedup.Params
	obs       *observer
}

// New creates a Client. With WithRedis the store is connected first and the
// provided context bounds the readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o.apply(cfg)
	}

	if err := cfg.params.Validate(); err != nil {
		return nil, fmt.Errorf("neardup: %w", err)
	}
	if cfg.params.Weights.Embedding > 0 && cfg.embedder == nil &&
		cfg.params.Fallback != domdedup.FallbackRenormalize {
		return nil, errors.New(
			"neardup: embedder required while the embedding weight is positive (use WithEmbedder or WithWeights)",
		)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	var store db.Store
	if len(cfg.addrs) > 0 {
		s, err := createStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store = s
	}

	return wireClient(ctx, store, cfg, obs), nil
}

func createStore(ctx context.Context, cfg *clientConfig) (db.Store, error) {
	s, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("neardup: create redis store: %w", err)
	}
	if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		s.Close()
		return nil, fmt.Errorf("neardup: database not ready: %w", err)
	}
	return s, nil
}

func wireClient(ctx context.Context, store db.Store, cfg *clientConfig, obs *observer) *Client {
	// Internal services log through zap; SDK callers get slog via the observer.
	nop := zap.NewNop()

	signals := []dedupuc.Signal{
		dedupuc.NewLexicalSignal(),
		dedupuc.NewStatisticalSignal(),
	}

	var providers []usageuc.Provider
	var cache healthuc.DBPinger
	if store != nil {
		cache = store
	}
	var embChecker healthuc.EmbeddingChecker

	if cfg.embedder != nil {
		var base domain.Embedder = newEmbedderAdapter(cfg.embedder)
		if store != nil {
			base = embcache.New(base, store, obs.cacheCounter(), nop).
				WithModel(cfg.model).
				WithTTL(cfg.cacheTTL)
		}

		var budgetChecker embeddinguc.BudgetChecker
		var budgetReader usageuc.BudgetReader
		if cfg.dailyTokenLimit > 0 || cfg.monthlyTokenLimit > 0 {
			budget := embeddinguc.NewBudgetTracker(
				embeddingProvider, cfg.dailyTokenLimit, cfg.monthlyTokenLimit,
				embeddinguc.BudgetActionReject, nop,
			)
			if store != nil {
				budget.WithStore(ctx, budgetrepo.New(store, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))
			}
			budgetChecker = budget
			budgetReader = budget
		}
		providers = append(providers, usageuc.Provider{Name: embeddingProvider, Budget: budgetReader})

		instrumented := embeddinguc.NewInstrumentedEmbedder(base, embeddingProvider, cfg.model, budgetChecker, nop)
		embChecker = instrumented
		signals = append(signals, dedupuc.NewSemanticSignal(instrumented).WithDimensions(cfg.vectorDimensions))
	}

	dedupSvc := dedupuc.New(nop, signals...).
		WithWorkers(cfg.workers).
		WithBlockRows(cfg.blockRows).
		WithMaxRecords(cfg.maxRecords)

	return &Client{
		store:     store,
		dedupSvc:  dedupSvc,
		healthSvc: healthuc.New(cache, embChecker),
		usageSvc:  usageuc.New(providers...),
		params:    cfg.params,
		obs:       obs,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity. Without WithRedis there is nothing to
// ping and it returns nil.
func (c *Client) Ping(ctx context.Context) (err error) {
	if c.store == nil {
		return nil
	}
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

// batchEmbedderAdapter also exposes BatchEmbed, so the internal chain only
// sees a batch embedder when the caller provided one.
type batchEmbedderAdapter struct {
	embedderAdapter
	batch BatchEmbedder
}

func newEmbedderAdapter(e Embedder) domain.Embedder {
	a := embedderAdapter{inner: e}
	if be, ok := e.(BatchEmbedder); ok {
		return &batchEmbedderAdapter{embedderAdapter: a, batch: be}
	}
	return &a
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// HealthCheck delegates when the caller's embedder implements HealthChecker.
func (a *embedderAdapter) HealthCheck(ctx context.Context) error {
	if hc, ok := a.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (a *batchEmbedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	r, err := a.batch.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   r.Embeddings,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}
