package usage

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/neardup/internal/domain"
)

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod validates a period name. Empty selects PeriodDay.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodMonth:
		return PeriodMonth, nil
	default:
		return "", fmt.Errorf("unknown period %q (want day or month): %w", s, domain.ErrInvalidInput)
	}
}

// Bounds returns the UTC start and end of the period containing t.
func (p Period) Bounds(t time.Time) (start, end time.Time) {
	t = t.UTC()
	if p == PeriodMonth {
		start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// ProviderUsage is the token consumption of one embedding provider in a period.
type ProviderUsage struct {
	Provider         string
	Tokens           int64
	Limit            int64 // 0 = unlimited
	Remaining        int64 // -1 = unlimited
	Exhausted        bool
	CostMillidollars int64 // 1 USD = 1000
}

// Report is an embedding usage report for a time period.
type Report struct {
	Period      Period
	PeriodStart time.Time
	PeriodEnd   time.Time
	Providers   []ProviderUsage
}

// TotalTokens sums tokens over all providers.
func (r Report) TotalTokens() int64 {
	var n int64
	for _, p := range r.Providers {
		n += p.Tokens
	}
	return n
}
