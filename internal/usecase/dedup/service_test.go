package dedup

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kailas-cloud/neardup/internal/domain"
	domdedup "github.com/kailas-cloud/neardup/internal/domain/dedup"
)

func TestRun_ExactDuplicateRemoved(t *testing.T) {
	emb := &lookupEmbedder{vecs: map[string][]float32{
		"脾虚湿困": {1, 0, 0},
		"肝肾阴虚": {0, 1, 0},
	}}
	svc := newTestService(t, emb)

	res, err := svc.Run(context.Background(), []string{"脾虚湿困", "脾虚湿困", "肝肾阴虚"}, domdedup.DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2}, res.Kept)
	require.Len(t, res.Duplicates, 1)
	assert.Equal(t, 1, res.Duplicates[0].Index)
	assert.Equal(t, 0, res.Duplicates[0].DuplicateOf)
	assert.InDelta(t, 1.0, res.Duplicates[0].Score, 1e-9)
	assert.Equal(t, 1, emb.batchCalls)
	assert.Equal(t, []domdedup.SignalName{
		domdedup.SignalEdit, domdedup.SignalTFIDF, domdedup.SignalEmbedding,
	}, res.Signals)
	assert.Equal(t, 3, res.Records)
	assert.NotEmpty(t, res.RunID)
	// (0,1) marks 1, so only (0,2) is left to compare.
	assert.Equal(t, int64(2), res.Pairs)
	assert.Equal(t, 1, res.Degenerate[domdedup.SignalTFIDF])
}

func TestRun_DisjointRecordsKept(t *testing.T) {
	emb := &lookupEmbedder{vecs: map[string][]float32{
		"apple pie recipe":     {1, 0, 0},
		"quantum field theory": {0, 1, 0},
	}}
	svc := newTestService(t, emb)

	res, err := svc.Run(context.Background(), []string{"apple pie recipe", "quantum field theory"}, domdedup.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, res.Kept)
	assert.Empty(t, res.Duplicates)
	assert.Equal(t, int64(1), res.Pairs)
}

func TestRun_AllIdenticalKeepsFirst(t *testing.T) {
	svc := newTestService(t, &lookupEmbedder{})
	in := []string{"same question text", "same question text", "same question text", "same question text"}

	res, err := svc.Run(context.Background(), in, domdedup.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Kept)
	require.Len(t, res.Duplicates, 3)
	for k, d := range res.Duplicates {
		assert.Equal(t, k+1, d.Index)
		assert.Equal(t, 0, d.DuplicateOf)
	}
}

func TestRun_TrivialInputsSkipSignals(t *testing.T) {
	for _, in := range [][]string{nil, {"only one"}} {
		t.Run(fmt.Sprintf("n=%d", len(in)), func(t *testing.T) {
			emb := &lookupEmbedder{}
			svc := newTestService(t, emb)

			res, err := svc.Run(context.Background(), in, domdedup.DefaultParams())
			require.NoError(t, err)
			assert.Len(t, res.Kept, len(in))
			assert.Empty(t, res.Duplicates)
			assert.Zero(t, res.Pairs)
			assert.Zero(t, emb.batchCalls)
		})
	}
}

func TestRun_ZeroWeightSignalNotPrepared(t *testing.T) {
	emb := &lookupEmbedder{}
	svc := newTestService(t, emb)
	params := domdedup.Params{
		Weights:   domdedup.Weights{Edit: 0.4, TFIDF: 0.6},
		Threshold: 0.9,
	}

	res, err := svc.Run(context.Background(), []string{"first record", "second record"}, params)
	require.NoError(t, err)
	assert.Zero(t, emb.batchCalls)
	assert.Zero(t, emb.embedCalls)
	assert.Equal(t, []domdedup.SignalName{domdedup.SignalEdit, domdedup.SignalTFIDF}, res.Signals)
}

func TestRun_InvalidParams(t *testing.T) {
	svc := newTestService(t, &lookupEmbedder{})
	cases := map[string]domdedup.Params{
		"threshold above one": {Weights: domdedup.DefaultWeights(), Threshold: 1.5},
		"all weights zero":    {Threshold: 0.9},
		"negative weight":     {Weights: domdedup.Weights{Edit: -0.1, Embedding: 1}, Threshold: 0.9},
		"unknown fallback":    {Weights: domdedup.DefaultWeights(), Threshold: 0.9, Fallback: "retry"},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Run(context.Background(), []string{"a b", "c d"}, p)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestRun_MaxRecords(t *testing.T) {
	svc := newTestService(t, &lookupEmbedder{}).WithMaxRecords(2)
	_, err := svc.Run(context.Background(), []string{"aa", "bb", "cc"}, domdedup.DefaultParams())
	require.ErrorIs(t, err, domain.ErrTooManyRecords)
}

func TestRun_ProviderErrorAbortsByDefault(t *testing.T) {
	emb := &lookupEmbedder{err: fmt.Errorf("status 503: %w", domain.ErrEmbeddingProviderError)}
	svc := newTestService(t, emb)

	res, err := svc.Run(context.Background(), []string{"脾虚湿困", "脾虚湿困"}, domdedup.DefaultParams())
	require.ErrorIs(t, err, domain.ErrProviderError)
	require.ErrorIs(t, err, domain.ErrEmbeddingProviderError)

	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "embedding", pe.Signal)
	assert.Nil(t, pe.Indices)
	assert.Empty(t, res.Kept)
}

func TestRun_ProviderErrorRenormalizes(t *testing.T) {
	emb := &lookupEmbedder{err: errors.New("connection refused")}
	svc := newTestService(t, emb)
	params := domdedup.DefaultParams()
	params.Fallback = domdedup.FallbackRenormalize

	res, err := svc.Run(context.Background(), []string{"脾虚湿困", "脾虚湿困", "肝肾阴虚"}, params)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2}, res.Kept)
	assert.Equal(t, []domdedup.SignalName{domdedup.SignalEmbedding}, res.Dropped)
	assert.Equal(t, []domdedup.SignalName{domdedup.SignalEdit, domdedup.SignalTFIDF}, res.Signals)
	assert.InDelta(t, 0.4, res.Weights.Edit, 1e-12)
	assert.InDelta(t, 0.6, res.Weights.TFIDF, 1e-12)
	assert.Zero(t, res.Weights.Embedding)
}

func TestRun_UnregisteredSignal(t *testing.T) {
	svc := New(zap.NewNop(), NewLexicalSignal())

	_, err := svc.Run(context.Background(), []string{"aa", "bb"}, domdedup.DefaultParams())
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "tfidf", pe.Signal)

	params := domdedup.DefaultParams()
	params.Fallback = domdedup.FallbackRenormalize
	res, err := svc.Run(context.Background(), []string{"aa", "aa"}, params)
	require.NoError(t, err)
	assert.Equal(t, []domdedup.SignalName{domdedup.SignalEdit}, res.Signals)
	assert.InDelta(t, 1.0, res.Weights.Edit, 1e-12)
	assert.Equal(t, []int{0}, res.Kept)
}

func TestRun_AllSignalsFailed(t *testing.T) {
	sig := &matrixSignal{name: domdedup.SignalEdit, err: errors.New("broken")}
	svc := New(zap.NewNop(), sig)
	params := editOnly(0.9)
	params.Fallback = domdedup.FallbackRenormalize

	_, err := svc.Run(context.Background(), []string{"a", "b"}, params)
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrProviderError)
}

func TestRun_ThresholdIsInclusive(t *testing.T) {
	sig := &matrixSignal{name: domdedup.SignalEdit, m: symmetric(2, map[[2]int]float64{{0, 1}: 0.9})}
	svc := New(zap.NewNop(), sig)

	res, err := svc.Run(context.Background(), []string{"a", "b"}, editOnly(0.9))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.DuplicateIndices())
}

func TestRun_MarkedRecordDoesNotMarkOthers(t *testing.T) {
	// 0~1 and 1~2, but 0 and 2 are far apart: 2 survives because 1 is already gone.
	sig := &matrixSignal{name: domdedup.SignalEdit, m: symmetric(3, map[[2]int]float64{
		{0, 1}: 0.95, {1, 2}: 0.95, {0, 2}: 0.1,
	})}
	svc := New(zap.NewNop(), sig)

	res, err := svc.Run(context.Background(), []string{"a", "b", "c"}, editOnly(0.9))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, res.Kept)
	assert.Equal(t, []domdedup.Duplicate{{Index: 1, DuplicateOf: 0, Score: 0.95}}, res.Duplicates)
}

func TestRun_GreedyOrderDependence(t *testing.T) {
	m := symmetric(3, map[[2]int]float64{{0, 1}: 0.92, {0, 2}: 0.5, {1, 2}: 0.95})

	res, err := New(zap.NewNop(), &matrixSignal{name: domdedup.SignalEdit, m: m}).
		Run(context.Background(), []string{"a", "b", "c"}, editOnly(0.9))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.DuplicateIndices())

	// A higher threshold keeps 1, which then removes 2.
	res, err = New(zap.NewNop(), &matrixSignal{name: domdedup.SignalEdit, m: m}).
		Run(context.Background(), []string{"a", "b", "c"}, editOnly(0.93))
	require.NoError(t, err)
	assert.Equal(t, []int{2}, res.DuplicateIndices())
	assert.Equal(t, 1, res.Duplicates[0].DuplicateOf)
}

func TestRun_MonotoneOnSeparatedClusters(t *testing.T) {
	m := symmetric(5, map[[2]int]float64{
		{0, 1}: 0.95, {0, 2}: 0.95, {1, 2}: 0.95,
		{3, 4}: 0.97,
		{0, 3}: 0.1, {0, 4}: 0.1, {1, 3}: 0.1, {1, 4}: 0.1, {2, 3}: 0.1, {2, 4}: 0.1,
	})
	svc := New(zap.NewNop(), &matrixSignal{name: domdedup.SignalEdit, m: m})
	in := []string{"a", "b", "c", "d", "e"}

	var prev map[int]bool
	for _, th := range []float64{0.05, 0.5, 0.95, 0.96, 0.99, 1} {
		res, err := svc.Run(context.Background(), in, editOnly(th))
		require.NoError(t, err)

		cur := make(map[int]bool)
		for _, i := range res.DuplicateIndices() {
			cur[i] = true
		}
		for i := range cur {
			if prev != nil {
				assert.True(t, prev[i], "threshold %v removed %d which a lower threshold kept", th, i)
			}
		}
		prev = cur
	}
}

func TestRun_DeterministicAndOrderPreserving(t *testing.T) {
	in := []string{
		"what is the function of the spleen",
		"what is the function of the spleen?",
		"describe liver qi stagnation",
		"describe liver qi stagnation.",
		"name the five elements",
	}
	emb := &lookupEmbedder{vecs: map[string][]float32{
		in[0]: {1, 0, 0}, in[1]: {0.99, 0.05, 0},
		in[2]: {0, 1, 0}, in[3]: {0, 0.98, 0.1},
		in[4]: {0, 0, 1},
	}}
	svc := newTestService(t, emb)

	first, err := svc.Run(context.Background(), in, domdedup.DefaultParams())
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), in, domdedup.DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, first.Kept, second.Kept)
	assert.Equal(t, first.Duplicates, second.Duplicates)
	assert.IsIncreasing(t, first.Kept)
	assert.Equal(t, []int{0, 2, 4}, first.Kept)
	for _, d := range first.Duplicates {
		assert.Less(t, d.DuplicateOf, d.Index)
		assert.NotContains(t, first.DuplicateIndices(), d.DuplicateOf)
		assert.GreaterOrEqual(t, d.Score, 0.9)
	}
}

func TestRun_IdempotentForCorpusIndependentSignals(t *testing.T) {
	in := []string{"qi deficiency", "qi deficiency!", "blood stasis", "blood stasis", "yin yang"}
	emb := &lookupEmbedder{vecs: map[string][]float32{
		in[0]: {1, 0, 0}, in[1]: {1, 0.01, 0},
		in[2]: {0, 1, 0},
		in[4]: {0.3, 0.3, 0.9},
	}}
	svc := newTestService(t, emb)
	params := domdedup.Params{Weights: domdedup.Weights{Edit: 0.4, Embedding: 0.6}, Threshold: 0.9}

	first, err := svc.Run(context.Background(), in, params)
	require.NoError(t, err)
	require.Less(t, len(first.Kept), len(in))

	second, err := svc.Run(context.Background(), texts(in, first.Kept), params)
	require.NoError(t, err)
	assert.Empty(t, second.Duplicates)
}

func TestRun_BlockingDoesNotChangeResult(t *testing.T) {
	const n = 60
	rng := rand.New(rand.NewPCG(7, 11))
	pairs := make(map[[2]int]float64)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs[[2]int{i, j}] = 0.7 + 0.3*rng.Float64()
		}
	}
	m := symmetric(n, pairs)
	in := make([]string, n)

	ref, err := New(zap.NewNop(), &matrixSignal{name: domdedup.SignalEdit, m: m}).
		WithWorkers(1).WithBlockRows(n).
		Run(context.Background(), in, editOnly(0.95))
	require.NoError(t, err)
	require.NotEmpty(t, ref.Duplicates)

	for _, blockRows := range []int{1, 3, 7, 16, 59} {
		for _, workers := range []int{1, 4} {
			got, err := New(zap.NewNop(), &matrixSignal{name: domdedup.SignalEdit, m: m}).
				WithWorkers(workers).WithBlockRows(blockRows).
				Run(context.Background(), in, editOnly(0.95))
			require.NoError(t, err)
			assert.Equal(t, ref.Kept, got.Kept, "rows=%d workers=%d", blockRows, workers)
			assert.Equal(t, ref.Duplicates, got.Duplicates, "rows=%d workers=%d", blockRows, workers)
			assert.Equal(t, ref.Pairs, got.Pairs, "rows=%d workers=%d", blockRows, workers)
		}
	}
}

func TestRun_DegenerateComparisonsCounted(t *testing.T) {
	svc := newTestService(t, &lookupEmbedder{})
	params := domdedup.Params{Weights: domdedup.Weights{Edit: 0.5, TFIDF: 0.5}, Threshold: 0.9}

	res, err := svc.Run(context.Background(), []string{"", "", "abc"}, params)
	require.NoError(t, err)

	// Two empty records share nothing and are not duplicates of each other.
	assert.Equal(t, []int{0, 1, 2}, res.Kept)
	assert.Equal(t, int64(3), res.Pairs)
	assert.Equal(t, 1, res.Degenerate[domdedup.SignalEdit])
	assert.Equal(t, 3, res.Degenerate[domdedup.SignalTFIDF])
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sig := &matrixSignal{name: domdedup.SignalEdit, m: symmetric(3, nil)}

	res, err := New(zap.NewNop(), sig).Run(ctx, []string{"a", "b", "c"}, editOnly(0.9))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Kept)
}
