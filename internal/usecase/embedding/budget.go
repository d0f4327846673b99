package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/neardup/internal/domain"
	"github.com/kailas-cloud/neardup/internal/metrics"
)

// BudgetAction defines behavior when the token budget is exhausted.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning and lets the request through.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject fails the request with domain.ErrEmbeddingQuotaExceeded.
	BudgetActionReject BudgetAction = "reject"
)

// BudgetStore persists budget counters across restarts.
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// BudgetSnapshot is a consistent view of the counters at one instant.
type BudgetSnapshot struct {
	DailyLimit   int64
	DailyUsed    int64
	MonthlyLimit int64
	MonthlyUsed  int64
	At           time.Time
}

// RemainingDaily returns tokens left today, or -1 when unlimited.
func (s BudgetSnapshot) RemainingDaily() int64 { return remaining(s.DailyLimit, s.DailyUsed) }

// RemainingMonthly returns tokens left this month, or -1 when unlimited.
func (s BudgetSnapshot) RemainingMonthly() int64 { return remaining(s.MonthlyLimit, s.MonthlyUsed) }

func remaining(limit, used int64) int64 {
	if limit == 0 {
		return -1
	}
	return max(limit-used, 0)
}

// BudgetTracker counts embedding tokens against daily and monthly limits.
// Check never leaves memory; Record writes behind to the store when one is attached.
type BudgetTracker struct {
	mu           sync.Mutex
	dailyUsed    int64
	monthlyUsed  int64
	dailyLimit   int64
	monthlyLimit int64
	action       BudgetAction
	provider     string
	day          time.Time
	month        time.Time
	now          func() time.Time
	store        BudgetStore
	logger       *zap.Logger
}

// NewBudgetTracker creates a tracker. A zero limit means unlimited.
func NewBudgetTracker(
	provider string, dailyLimit, monthlyLimit int64,
	action BudgetAction, logger *zap.Logger,
) *BudgetTracker {
	b := &BudgetTracker{
		dailyLimit:   dailyLimit,
		monthlyLimit: monthlyLimit,
		action:       action,
		provider:     provider,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
	now := b.now()
	b.day, b.month = truncateToDay(now), truncateToMonth(now)
	return b
}

// WithStore attaches a persistence store and loads the current counters from it.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	now := b.now()
	if v, err := store.Get(ctx, b.dailyKey(now)); err == nil {
		b.dailyUsed = v
	} else {
		b.logger.Warn("Failed to load daily budget from store", zap.Error(err))
	}
	if v, err := store.Get(ctx, b.monthlyKey(now)); err == nil {
		b.monthlyUsed = v
	} else {
		b.logger.Warn("Failed to load monthly budget from store", zap.Error(err))
	}

	b.logger.Info("Budget loaded from store",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.dailyUsed),
		zap.Int64("monthly_used", b.monthlyUsed),
	)
	return b
}

func (b *BudgetTracker) dailyKey(t time.Time) string {
	return fmt.Sprintf("%sbudget:%s:daily:%s", domain.KeyPrefix, b.provider, t.Format(time.DateOnly))
}

func (b *BudgetTracker) monthlyKey(t time.Time) string {
	return fmt.Sprintf("%sbudget:%s:monthly:%s", domain.KeyPrefix, b.provider, t.Format("2006-01"))
}

// Check reports whether another embedding request is allowed.
func (b *BudgetTracker) Check(_ context.Context) error {
	s := b.Snapshot()
	exceeded := (s.DailyLimit > 0 && s.DailyUsed >= s.DailyLimit) ||
		(s.MonthlyLimit > 0 && s.MonthlyUsed >= s.MonthlyLimit)
	if !exceeded {
		return nil
	}
	if b.action == BudgetActionReject {
		return domain.ErrEmbeddingQuotaExceeded
	}

	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", s.DailyUsed),
		zap.Int64("daily_limit", s.DailyLimit),
		zap.Int64("monthly_used", s.MonthlyUsed),
		zap.Int64("monthly_limit", s.MonthlyLimit),
	)
	return nil
}

// Record adds consumed tokens and updates the remaining-budget gauges.
func (b *BudgetTracker) Record(tokens int64) {
	b.mu.Lock()
	b.rollover()
	b.dailyUsed += tokens
	b.monthlyUsed += tokens
	store := b.store
	now := b.now()
	b.mu.Unlock()

	s := b.Snapshot()
	remainingGauge := metrics.EmbeddingBudgetTokensRemaining
	remainingGauge.WithLabelValues(b.provider, "daily").Set(float64(s.RemainingDaily()))
	remainingGauge.WithLabelValues(b.provider, "monthly").Set(float64(s.RemainingMonthly()))

	if store == nil {
		return
	}

	// Write-behind with its own deadline so the caller's context cannot cancel it.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, key := range []string{b.dailyKey(now), b.monthlyKey(now)} {
		if err := store.IncrBy(ctx, key, tokens); err != nil {
			b.logger.Warn("Failed to persist budget", zap.String("key", key), zap.Error(err))
		}
	}
}

// Snapshot returns the current counters after applying day and month rollover.
func (b *BudgetTracker) Snapshot() BudgetSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return BudgetSnapshot{
		DailyLimit:   b.dailyLimit,
		DailyUsed:    b.dailyUsed,
		MonthlyLimit: b.monthlyLimit,
		MonthlyUsed:  b.monthlyUsed,
		At:           b.now(),
	}
}

// rollover zeroes counters when the day or month has changed. Caller holds mu.
func (b *BudgetTracker) rollover() {
	now := b.now()
	if day := truncateToDay(now); day.After(b.day) {
		b.dailyUsed = 0
		b.day = day
	}
	if month := truncateToMonth(now); month.After(b.month) {
		b.monthlyUsed = 0
		b.month = month
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
