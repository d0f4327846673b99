package neardup

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/neardup/internal/domain/usage"
)

// UsagePeriod is the aggregation granularity for usage reports.
type UsagePeriod string

// UsagePeriod constants.
const (
	PeriodDay   UsagePeriod = "day"
	PeriodMonth UsagePeriod = "month"
)

// UsageReport contains embedding token usage for a time period.
type UsageReport struct {
	Period      UsagePeriod
	PeriodStart time.Time
	PeriodEnd   time.Time
	// Tokens are counted only while WithTokenBudget is set.
	Tokens          int64
	TokensLimit     int64 // 0 = unlimited
	TokensRemaining int64 // -1 = unlimited
	IsExhausted     bool
}

// Usage returns the embedding token usage for the given period.
// It returns ErrInvalidInput for an unknown period.
func (c *Client) Usage(ctx context.Context, period UsagePeriod) (out UsageReport, err error) {
	start := time.Now()
	defer func() { c.obs.observe("usage", start, err) }()

	p, err := domusage.ParsePeriod(string(period))
	if err != nil {
		return UsageReport{}, err
	}

	report := c.usageSvc.GetReport(ctx, p)
	out = UsageReport{
		Period:          UsagePeriod(report.Period),
		PeriodStart:     report.PeriodStart,
		PeriodEnd:       report.PeriodEnd,
		TokensRemaining: -1,
	}
	for _, pu := range report.Providers {
		out.Tokens = pu.Tokens
		out.TokensLimit = pu.Limit
		out.TokensRemaining = pu.Remaining
		out.IsExhausted = pu.Exhausted
	}
	return out, nil
}

// usageUseCase is the internal interface for usage reports.
type usageUseCase interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}
