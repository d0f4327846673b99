package usage

import (
	"context"
	"math"
	"time"

	domusage "github.com/kailas-cloud/neardup/internal/domain/usage"
)

// Provider is a budget tracked for one embedding provider.
type Provider struct {
	Name                 string
	Budget               BudgetReader
	CostPerMillionTokens float64
}

// Service handles usage reporting.
type Service struct {
	providers []Provider
	now       func() time.Time
}

// New creates a Service. With no providers every report is empty.
func New(providers ...Provider) *Service {
	return &Service{providers: providers, now: time.Now}
}

// GetReport builds a usage report for the given period.
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	start, end := period.Bounds(s.now())
	r := domusage.Report{
		Period:      period,
		PeriodStart: start,
		PeriodEnd:   end,
		Providers:   make([]domusage.ProviderUsage, 0, len(s.providers)),
	}

	for _, p := range s.providers {
		u := domusage.ProviderUsage{Provider: p.Name, Remaining: -1}
		if p.Budget != nil {
			snap := p.Budget.Snapshot()
			if period == domusage.PeriodMonth {
				u.Tokens, u.Limit, u.Remaining = snap.MonthlyUsed, snap.MonthlyLimit, snap.RemainingMonthly()
			} else {
				u.Tokens, u.Limit, u.Remaining = snap.DailyUsed, snap.DailyLimit, snap.RemainingDaily()
			}
		}
		u.Exhausted = u.Limit > 0 && u.Remaining == 0
		u.CostMillidollars = int64(math.Round(float64(u.Tokens) * p.CostPerMillionTokens / 1000))
		r.Providers = append(r.Providers, u)
	}
	return r
}
