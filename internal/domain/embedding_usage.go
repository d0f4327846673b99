package domain

import "context"

type embeddingUsageKey struct{}

// EmbeddingUsage collects embedding usage for one deduplication run.
// The caller puts it into the context, the embedding signal fills it in after
// its batch call, and the caller reads it back (HTTP headers, SDK results).
type EmbeddingUsage struct {
	Texts       int
	TotalTokens int
	Used        bool // embedding ran, even if every vector came from the cache
}

// NewContextWithUsage returns a context carrying a fresh usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext returns the collector, or nil if none was set.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// Add records one embedding batch. Safe on a nil collector.
func (u *EmbeddingUsage) Add(texts, tokens int) {
	if u == nil {
		return
	}
	u.Texts += texts
	u.TotalTokens += tokens
	u.Used = true
}
