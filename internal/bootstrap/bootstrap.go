// Package bootstrap assembles the deduplication engine and its supporting
// services from configuration. It is the composition root shared by the
// batch job and the API server.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/neardup/internal/config"
	"github.com/kailas-cloud/neardup/internal/db"
	dbRedis "github.com/kailas-cloud/neardup/internal/db/redis"
	"github.com/kailas-cloud/neardup/internal/domain"
	"github.com/kailas-cloud/neardup/internal/metrics"
	budgetrepo "github.com/kailas-cloud/neardup/internal/repository/budget"
	"github.com/kailas-cloud/neardup/internal/repository/embcache"
	openaiEmb "github.com/kailas-cloud/neardup/internal/transport/openai"
	dedupuc "github.com/kailas-cloud/neardup/internal/usecase/dedup"
	embeddinguc "github.com/kailas-cloud/neardup/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/neardup/internal/usecase/health"
	usageuc "github.com/kailas-cloud/neardup/internal/usecase/usage"
)

// App holds the wired services.
type App struct {
	Dedup  *dedupuc.Service
	Usage  *usageuc.Service
	Health *healthuc.Service

	// Embedder is nil when no vectorizer is configured.
	Embedder domain.Embedder
	// Store is nil when no database is configured.
	Store db.Store
}

// Close releases the database connection.
func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
}

// Build connects to the configured database, builds the embedder chain and
// the deduplication engine. Metrics are registered on the default registry.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterDedupMetrics()

	app := &App{}

	if cfg.Database.Enabled() {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("create database store: %w", err)
		}
		timeout := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, timeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("database not ready: %w", err)
		}
		app.Store = store
		logger.Info("Connected to database", zap.Strings("addrs", cfg.Database.Addrs))
	}

	signals := []dedupuc.Signal{
		dedupuc.NewLexicalSignal(),
		dedupuc.NewStatisticalSignal(),
	}

	var providers []usageuc.Provider
	// Pass nil interfaces (not typed nil pointers) for absent components.
	var cache healthuc.DBPinger
	if app.Store != nil {
		cache = app.Store
	}
	var embChecker healthuc.EmbeddingChecker

	if vecName, vecCfg, provCfg, ok := cfg.ActiveVectorizer(); ok {
		budget := buildBudget(ctx, vecCfg.Provider, provCfg.Budget, app.Store, logger)

		// Go gotcha: (*BudgetTracker)(nil) wrapped in an interface != nil.
		var budgetChecker embeddinguc.BudgetChecker
		var budgetReader usageuc.BudgetReader
		if budget != nil {
			budgetChecker = budget
			budgetReader = budget
		}
		providers = append(providers, usageuc.Provider{
			Name:                 vecCfg.Provider,
			Budget:               budgetReader,
			CostPerMillionTokens: provCfg.Budget.CostPerMillionTokens,
		})

		instrumented := buildEmbedder(vecCfg.Provider, provCfg, vecCfg, cfg.Cache, app.Store, budgetChecker, logger)
		embChecker = instrumented
		app.Embedder = instrumented
		if vecCfg.Instruction != "" {
			app.Embedder = domain.NewInstructionEmbedder(instrumented, vecCfg.Instruction)
		}

		dims := vecCfg.Dimensions
		if dims == 0 {
			dims = domain.DefaultVectorDimensions
		}
		signals = append(signals, dedupuc.NewSemanticSignal(app.Embedder).WithDimensions(dims))

		logger.Info("Embedder created",
			zap.String("vectorizer", vecName),
			zap.String("provider", vecCfg.Provider),
			zap.String("model", vecCfg.Model),
			zap.Int("dimensions", dims),
			zap.Bool("cached", app.Store != nil && !cfg.Cache.Disabled),
		)
	} else {
		logger.Warn("No vectorizer configured; runs with a positive embedding weight will fail")
	}

	app.Dedup = dedupuc.New(logger, signals...).
		WithWorkers(cfg.Dedup.Workers).
		WithBlockRows(cfg.Dedup.BlockRows).
		WithMaxRecords(cfg.Dedup.MaxRecords)
	app.Usage = usageuc.New(providers...)
	app.Health = healthuc.New(cache, embChecker)

	return app, nil
}

func buildBudget(
	ctx context.Context,
	provider string,
	cfg config.BudgetConfig,
	store db.Store,
	logger *zap.Logger,
) *embeddinguc.BudgetTracker {
	if !cfg.Limited() {
		return nil
	}
	action := embeddinguc.BudgetActionWarn
	if cfg.Action == "reject" {
		action = embeddinguc.BudgetActionReject
	}
	budget := embeddinguc.NewBudgetTracker(
		provider, cfg.DailyTokenLimit, cfg.MonthlyTokenLimit, action, logger,
	)
	if store != nil {
		// Loads the current counters so limits survive restarts.
		budget.WithStore(ctx, budgetrepo.New(store, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))
	}
	return budget
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func buildEmbedder(
	provName string,
	provCfg config.ProviderConfig,
	vecCfg config.VectorizerConfig,
	cacheCfg config.CacheConfig,
	store db.Store,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) *embeddinguc.InstrumentedEmbedder {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     provCfg.APIKey,
		BaseURL:    provCfg.BaseURL,
		Model:      vecCfg.Model,
		Dimensions: vecCfg.Dimensions,
		Provider:   provName,
		Timeout:    time.Duration(provCfg.TimeoutSec) * time.Second,
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if store != nil && !cacheCfg.Disabled {
		embedder = embcache.New(base, store, metrics.EmbeddingCacheTotal, logger).
			WithModel(vecCfg.Model).
			WithTTL(time.Duration(cacheCfg.TTLHours) * time.Hour)
	}

	return embeddinguc.NewInstrumentedEmbedder(embedder, provName, vecCfg.Model, budget, logger).
		WithChunkSize(vecCfg.BatchSize)
}
