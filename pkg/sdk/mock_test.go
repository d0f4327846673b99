package neardup

import (
	"context"
	"strings"
	"sync"

	domdedup "github.com/kailas-cloud/neardup/internal/domain/dedup"
	domusage "github.com/kailas-cloud/neardup/internal/domain/usage"
	healthuc "github.com/kailas-cloud/neardup/internal/usecase/health"
)

// mockEmbedder implements Embedder only.
type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

// prefixEmbedder maps texts starting with "same" to one direction and
// everything else to an orthogonal one. Each text costs one token.
func prefixEmbedder() *mockEmbedder {
	return &mockEmbedder{fn: func(_ context.Context, text string) (EmbeddingResult, error) {
		return EmbeddingResult{Embedding: prefixVector(text), PromptTokens: 1, TotalTokens: 1}, nil
	}}
}

func prefixVector(text string) []float32 {
	if strings.HasPrefix(text, "same") {
		return []float32{1, 0}
	}
	return []float32{0, 1}
}

// mockBatchEmbedder implements Embedder, BatchEmbedder and HealthChecker.
type mockBatchEmbedder struct {
	mu         sync.Mutex
	batchCalls int
	embedCalls int
	healthErr  error
}

func (m *mockBatchEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	m.mu.Lock()
	m.embedCalls++
	m.mu.Unlock()
	return EmbeddingResult{Embedding: prefixVector(text), TotalTokens: 1}, nil
}

func (m *mockBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (BatchEmbeddingResult, error) {
	m.mu.Lock()
	m.batchCalls++
	m.mu.Unlock()
	out := BatchEmbeddingResult{Embeddings: make([][]float32, len(texts)), TotalTokens: len(texts)}
	for i, t := range texts {
		out.Embeddings[i] = prefixVector(t)
	}
	return out, nil
}

func (m *mockBatchEmbedder) HealthCheck(context.Context) error { return m.healthErr }

// mockDedup is a mock for dedupUseCase.
type mockDedup struct {
	runFn func(ctx context.Context, texts []string, params domdedup.Params) (domdedup.Result, error)
}

func (m *mockDedup) Run(ctx context.Context, texts []string, params domdedup.Params) (domdedup.Result, error) {
	return m.runFn(ctx, texts, params)
}

// mockHealth is a mock for healthUseCase.
type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

// mockUsage is a mock for usageUseCase.
type mockUsage struct {
	report domusage.Report
	period domusage.Period
}

func (m *mockUsage) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	m.period = period
	r := m.report
	r.Period = period
	return r
}
