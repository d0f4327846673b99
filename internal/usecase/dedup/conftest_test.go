package dedup

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/neardup/internal/domain"
	domdedup "github.com/kailas-cloud/neardup/internal/domain/dedup"
)

// lookupEmbedder returns fixed vectors per text. Unknown texts get unknown.
type lookupEmbedder struct {
	vecs       map[string][]float32
	unknown    []float32
	err        error
	tokens     int
	batchCalls int
	embedCalls int
}

func (m *lookupEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.embedCalls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.lookup(text), TotalTokens: m.tokens}, nil
}

func (m *lookupEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.lookup(t)
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: m.tokens * len(texts)}, nil
}

func (m *lookupEmbedder) lookup(text string) []float32 {
	if v, ok := m.vecs[text]; ok {
		return v
	}
	if m.unknown != nil {
		return m.unknown
	}
	return []float32{0, 0, 1}
}

// singleEmbedder hides BatchEmbed so the per-text fallback is used.
type singleEmbedder struct {
	inner  *lookupEmbedder
	failAt int
	calls  int
}

func (s *singleEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	s.calls++
	if s.calls-1 == s.failAt {
		return domain.EmbeddingResult{}, errors.New("upstream unavailable")
	}
	return s.inner.Embed(ctx, text)
}

// matrixSignal scores pairs from a fixed symmetric matrix, keyed by position.
type matrixSignal struct {
	name     domdedup.SignalName
	m        [][]float64
	err      error
	prepared int
}

func (s *matrixSignal) Name() domdedup.SignalName { return s.name }

func (s *matrixSignal) Prepare(_ context.Context, _ []string) (Scorer, error) {
	s.prepared++
	if s.err != nil {
		return nil, s.err
	}
	return s, nil
}

func (s *matrixSignal) Score(i, j int) (float64, bool) {
	return s.m[i][j], false
}

func symmetric(n int, pairs map[[2]int]float64) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	for p, v := range pairs {
		m[p[0]][p[1]] = v
		m[p[1]][p[0]] = v
	}
	return m
}

// editOnly puts the whole weight on the edit slot, where tests plug a matrixSignal.
func editOnly(threshold float64) domdedup.Params {
	return domdedup.Params{
		Weights:   domdedup.Weights{Edit: 1},
		Threshold: threshold,
		Fallback:  domdedup.FallbackFail,
	}
}

func newTestService(t *testing.T, emb domain.Embedder) *Service {
	t.Helper()
	return New(zap.NewNop(),
		NewLexicalSignal(),
		NewStatisticalSignal(),
		NewSemanticSignal(emb),
	)
}

func texts(r []string, idx []int) []string {
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = r[i]
	}
	return out
}
