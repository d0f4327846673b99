package dedup

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/neardup/internal/domain"
)

// SignalName identifies one similarity signal.
type SignalName string

// Similarity signals fused by the engine.
const (
	SignalEdit      SignalName = "edit"
	SignalTFIDF     SignalName = "tfidf"
	SignalEmbedding SignalName = "embedding"
)

// Fallback is the policy applied when a signal fails to score the batch.
type Fallback string

const (
	// FallbackFail aborts the run on any signal failure.
	FallbackFail Fallback = "fail"
	// FallbackRenormalize drops the failed signal and rescales the remaining weights.
	FallbackRenormalize Fallback = "renormalize"
)

// Reference weights and threshold.
const (
	DefaultEditWeight      = 0.2
	DefaultTFIDFWeight     = 0.3
	DefaultEmbeddingWeight = 0.5
	DefaultThreshold       = 0.9
)

// Weights are the per-signal coefficients of the fused score.
// They should sum to 1 for the score to stay in [0,1]; this is not enforced.
type Weights struct {
	Edit      float64 `json:"edit" yaml:"edit"`
	TFIDF     float64 `json:"tfidf" yaml:"tfidf"`
	Embedding float64 `json:"embedding" yaml:"embedding"`
}

// DefaultWeights returns the reference weights (0.2, 0.3, 0.5).
func DefaultWeights() Weights {
	return Weights{Edit: DefaultEditWeight, TFIDF: DefaultTFIDFWeight, Embedding: DefaultEmbeddingWeight}
}

// Of returns the weight of a signal.
func (w Weights) Of(s SignalName) float64 {
	switch s {
	case SignalEdit:
		return w.Edit
	case SignalTFIDF:
		return w.TFIDF
	case SignalEmbedding:
		return w.Embedding
	default:
		return 0
	}
}

// Sum returns the total weight.
func (w Weights) Sum() float64 { return w.Edit + w.TFIDF + w.Embedding }

// Without returns the weights with the given signals removed and the rest
// rescaled so the total weight is unchanged.
func (w Weights) Without(dropped ...SignalName) Weights {
	total := w.Sum()
	out := w
	for _, s := range dropped {
		switch s {
		case SignalEdit:
			out.Edit = 0
		case SignalTFIDF:
			out.TFIDF = 0
		case SignalEmbedding:
			out.Embedding = 0
		}
	}
	rest := out.Sum()
	if rest == 0 {
		return out
	}
	k := total / rest
	return Weights{Edit: out.Edit * k, TFIDF: out.TFIDF * k, Embedding: out.Embedding * k}
}

// Params configures one deduplication run.
type Params struct {
	Weights   Weights
	Threshold float64
	Fallback  Fallback
}

// DefaultParams returns the reference configuration.
func DefaultParams() Params {
	return Params{Weights: DefaultWeights(), Threshold: DefaultThreshold, Fallback: FallbackFail}
}

// Validate checks weights and threshold ranges.
func (p Params) Validate() error {
	for _, s := range []SignalName{SignalEdit, SignalTFIDF, SignalEmbedding} {
		v := p.Weights.Of(s)
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("weight %s must be a non-negative number, got %v: %w", s, v, domain.ErrInvalidInput)
		}
	}
	if p.Weights.Sum() == 0 {
		return fmt.Errorf("at least one weight must be positive: %w", domain.ErrInvalidInput)
	}
	if p.Threshold < 0 || p.Threshold > 1 || math.IsNaN(p.Threshold) {
		return fmt.Errorf("threshold must be in [0,1], got %v: %w", p.Threshold, domain.ErrInvalidInput)
	}
	switch p.Fallback {
	case "", FallbackFail, FallbackRenormalize:
	default:
		return fmt.Errorf("unknown fallback policy %q: %w", p.Fallback, domain.ErrInvalidInput)
	}
	return nil
}
