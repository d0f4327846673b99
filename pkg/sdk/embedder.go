package neardup

import "context"

// Embedder converts text to vector embeddings.
// Required unless the embedding weight is zero.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single API call.
// Optional: if the provided Embedder also implements BatchEmbedder, each
// run embeds the whole batch in one call instead of one call per record.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// HealthChecker is optionally implemented by an Embedder to report
// provider availability in Client.Health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
