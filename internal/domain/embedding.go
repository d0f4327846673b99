package domain

import (
	"context"
	"fmt"
)

// Embedder is the shared text vectorization contract between layers.
// Implementations may be remote and need not be deterministic.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single API call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
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

// BatchFallback calls Embed once per text for providers without a native batch endpoint.
// Failures are reported with the index of the offending text.
func BatchFallback(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	embeddings := make([][]float32, len(texts))
	var totalPrompt, totalTokens int

	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			return BatchEmbeddingResult{}, &BatchItemError{Index: i, Err: err}
		}
		embeddings[i] = res.Embedding
		totalPrompt += res.PromptTokens
		totalTokens += res.TotalTokens
	}

	return BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

// BatchItemError reports the position of the text that failed inside a batch.
type BatchItemError struct {
	Index int
	Err   error
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("fallback embed [%d]: %v", e.Index, e.Err)
}

func (e *BatchItemError) Unwrap() error { return e.Err }

// BatchChunkError reports a failed sub-batch [Offset, Offset+Size) of a larger batch.
type BatchChunkError struct {
	Offset int
	Size   int
	Err    error
}

func (e *BatchChunkError) Error() string {
	return fmt.Sprintf("batch chunk [%d:%d]: %v", e.Offset, e.Offset+e.Size, e.Err)
}

func (e *BatchChunkError) Unwrap() error { return e.Err }

// BatchIndicesError reports an arbitrary set of failed batch positions.
type BatchIndicesError struct {
	Indices []int
	Err     error
}

func (e *BatchIndicesError) Error() string {
	return fmt.Sprintf("batch items %v: %v", e.Indices, e.Err)
}

func (e *BatchIndicesError) Unwrap() error { return e.Err }

// FailedIndices returns the batch positions a batch embedding error refers to,
// or nil when the error cannot be attributed to specific texts. The outermost
// attribution wins; positions reported inside a chunk are shifted by its offset.
func FailedIndices(err error) []int {
	switch e := err.(type) {
	case nil:
		return nil
	case *BatchIndicesError:
		return e.Indices
	case *BatchItemError:
		return []int{e.Index}
	case *BatchChunkError:
		if inner := FailedIndices(e.Err); inner != nil {
			out := make([]int, len(inner))
			for i, k := range inner {
				out[i] = e.Offset + k
			}
			return out
		}
		out := make([]int, e.Size)
		for i := range out {
			out[i] = e.Offset + i
		}
		return out
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if idx := FailedIndices(inner); idx != nil {
				return idx
			}
		}
		return nil
	case interface{ Unwrap() error }:
		return FailedIndices(e.Unwrap())
	}
	return nil
}

// InstructionEmbedder is a domain decorator that prepends instruction text before embedding.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder creates a decorator that prepends instruction text.
func NewInstructionEmbedder(inner Embedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// Embed prepends instruction and delegates to inner embedder.
func (e *InstructionEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	result, err := e.inner.Embed(ctx, e.instruction+text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", err)
	}
	return result, nil
}

// BatchEmbed prepends instruction to each text and delegates to inner BatchEmbedder.
// Falls back to per-text Embed when inner has no batch support.
func (e *InstructionEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = e.instruction + t
	}

	if be, ok := e.inner.(BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, prefixed)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("instruction batch embed: %w", err)
		}
		return res, nil
	}

	res, err := BatchFallback(ctx, e.inner, prefixed)
	if err != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("instruction batch embed fallback: %w", err)
	}
	return res, nil
}
