package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace prefixes every neardup metric.
const namespace = "neardup"

// Deduplication Prometheus metrics.
var (
	DedupRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_runs_total",
			Help:      "Total number of deduplication runs",
		},
		[]string{"status"}, // "success" / "input_error" / "provider_error" / "error"
	)

	DedupRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dedup_run_duration_seconds",
			Help:      "Deduplication run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	DedupRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_records_total",
			Help:      "Records processed by deduplication runs",
		},
		[]string{"outcome"}, // "kept" / "removed"
	)

	DedupPairsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_pairs_evaluated_total",
			Help:      "Pairwise fused scores evaluated",
		},
	)

	DedupDegenerateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_degenerate_comparisons_total",
			Help:      "Comparisons resolved by a default score (empty texts, no shared vocabulary)",
		},
		[]string{"signal"},
	)

	DedupSignalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dedup_signal_prepare_duration_seconds",
			Help:      "Time spent preparing a similarity signal for a batch",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"signal"},
	)

	DedupSignalFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_signal_failures_total",
			Help:      "Signals that failed to score a batch",
		},
		[]string{"signal"},
	)
)

var dedupOnce sync.Once

// RegisterDedupMetrics registers the deduplication metrics on the default registry.
// Safe to call more than once.
func RegisterDedupMetrics() {
	dedupOnce.Do(func() {
		prometheus.MustRegister(
			DedupRunsTotal,
			DedupRunDuration,
			DedupRecordsTotal,
			DedupPairsTotal,
			DedupDegenerateTotal,
			DedupSignalDuration,
			DedupSignalFailuresTotal,
		)
	})
}
