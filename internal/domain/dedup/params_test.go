package dedup

import (
	"errors"
	"math"
	"testing"

	"github.com/kailas-cloud/neardup/internal/domain"
)

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"defaults", DefaultParams(), false},
		{"single signal", Params{Weights: Weights{Edit: 1}, Threshold: 0.5}, false},
		{"threshold bounds", Params{Weights: DefaultWeights(), Threshold: 1}, false},
		{"negative weight", Params{Weights: Weights{Edit: -0.1, TFIDF: 1}, Threshold: 0.9}, true},
		{"nan weight", Params{Weights: Weights{Embedding: math.NaN()}, Threshold: 0.9}, true},
		{"all zero", Params{Threshold: 0.9}, true},
		{"threshold above one", Params{Weights: DefaultWeights(), Threshold: 1.1}, true},
		{"threshold negative", Params{Weights: DefaultWeights(), Threshold: -0.1}, true},
		{"unknown fallback", Params{Weights: DefaultWeights(), Threshold: 0.9, Fallback: "retry"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.Validate()
			if tc.wantErr {
				if !errors.Is(err, domain.ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestWeights_Without(t *testing.T) {
	w := DefaultWeights().Without(SignalEmbedding)

	if w.Embedding != 0 {
		t.Errorf("expected embedding weight 0, got %v", w.Embedding)
	}
	if math.Abs(w.Sum()-1) > 1e-12 {
		t.Errorf("expected total weight preserved, got %v", w.Sum())
	}
	if math.Abs(w.Edit-0.4) > 1e-12 || math.Abs(w.TFIDF-0.6) > 1e-12 {
		t.Errorf("unexpected rescaled weights: %+v", w)
	}
}

func TestWeights_WithoutEverything(t *testing.T) {
	w := Weights{Edit: 1}.Without(SignalEdit)
	if w.Sum() != 0 {
		t.Errorf("expected zero weights, got %+v", w)
	}
}
