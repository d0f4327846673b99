package usage

import (
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/neardup/internal/domain"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    Period
		wantErr bool
	}{
		{"", PeriodDay, false},
		{"day", PeriodDay, false},
		{"month", PeriodMonth, false},
		{"total", "", true},
		{"DAY", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePeriod(tt.in)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParsePeriod(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPeriodBounds(t *testing.T) {
	at := time.Date(2026, time.February, 28, 23, 30, 0, 0, time.FixedZone("UTC+3", 3*3600))

	start, end := PeriodDay.Bounds(at)
	if want := time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("day start = %v, want %v", start, want)
	}
	if want := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC); !end.Equal(want) {
		t.Errorf("day end = %v, want %v", end, want)
	}

	start, end = PeriodMonth.Bounds(at)
	if want := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("month start = %v, want %v", start, want)
	}
	if want := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC); !end.Equal(want) {
		t.Errorf("month end = %v, want %v", end, want)
	}
}

func TestReportTotalTokens(t *testing.T) {
	r := Report{Providers: []ProviderUsage{{Tokens: 120}, {Tokens: 30}}}
	if got := r.TotalTokens(); got != 150 {
		t.Errorf("TotalTokens() = %d, want 150", got)
	}
}
