package dedup

import (
	"context"

	domdedup "github.com/kailas-cloud/neardup/internal/domain/dedup"
	"github.com/kailas-cloud/neardup/internal/textvec"
)

// StatisticalSignal scores pairs by cosine similarity of TF-IDF vectors
// fitted on the whole batch, so idf weights are corpus-relative.
type StatisticalSignal struct{}

// NewStatisticalSignal creates the TF-IDF signal.
func NewStatisticalSignal() *StatisticalSignal { return &StatisticalSignal{} }

// Name implements Signal.
func (*StatisticalSignal) Name() domdedup.SignalName { return domdedup.SignalTFIDF }

// Prepare implements Signal.
func (*StatisticalSignal) Prepare(ctx context.Context, texts []string) (Scorer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // context error is returned as is
	}
	_, vecs := textvec.FitTransform(texts)
	return &statisticalScorer{vecs: vecs}, nil
}

type statisticalScorer struct {
	vecs []textvec.SparseVector
}

// Score relies on rows being unit length: the cosine is the dot product.
func (s *statisticalScorer) Score(i, j int) (float64, bool) {
	dot, shared := textvec.Dot(s.vecs[i], s.vecs[j])
	if shared == 0 {
		return 0, true
	}
	return min(dot, 1), false
}
