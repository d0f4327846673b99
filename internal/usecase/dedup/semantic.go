package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/neardup/internal/domain"
	domdedup "github.com/kailas-cloud/neardup/internal/domain/dedup"
	"github.com/kailas-cloud/neardup/internal/textvec"
)

// SemanticSignal scores pairs by cosine similarity of embeddings computed in one batch.
type SemanticSignal struct {
	embedder   domain.Embedder
	dimensions int
}

// NewSemanticSignal creates the embedding signal. If embedder also implements
// domain.BatchEmbedder the whole batch goes through a single BatchEmbed call.
func NewSemanticSignal(embedder domain.Embedder) *SemanticSignal {
	return &SemanticSignal{embedder: embedder}
}

// WithDimensions makes vectors of any other length a provider error.
func (s *SemanticSignal) WithDimensions(dims int) *SemanticSignal {
	if dims > 0 {
		s.dimensions = dims
	}
	return s
}

// Name implements Signal.
func (*SemanticSignal) Name() domdedup.SignalName { return domdedup.SignalEmbedding }

// Prepare implements Signal. Every record must receive a finite, non-zero vector
// of the expected dimension; otherwise a *domain.ProviderError lists the records.
func (s *SemanticSignal) Prepare(ctx context.Context, texts []string) (Scorer, error) {
	name := string(domdedup.SignalEmbedding)

	res, err := s.embed(ctx, texts)
	if err != nil {
		return nil, domain.NewProviderError(name, domain.FailedIndices(err), err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, domain.NewProviderError(name, nil, fmt.Errorf(
			"provider returned %d vectors for %d texts: %w",
			len(res.Embeddings), len(texts), domain.ErrEmbeddingProviderError,
		))
	}
	domain.UsageFromContext(ctx).Add(len(texts), res.TotalTokens)

	dims := s.dimensions
	if dims == 0 {
		dims = len(res.Embeddings[0])
	}

	units := make([][]float64, len(texts))
	var bad []int
	var firstErr error
	for i, vec := range res.Embeddings {
		if len(vec) != dims {
			bad = append(bad, i)
			if firstErr == nil {
				firstErr = fmt.Errorf("record %d: got %d dimensions, want %d: %w",
					i, len(vec), dims, domain.ErrVectorDimMismatch)
			}
			continue
		}
		u, err := textvec.Normalize(vec)
		if err != nil {
			bad = append(bad, i)
			if firstErr == nil {
				firstErr = fmt.Errorf("record %d: %w", i, err)
			}
			continue
		}
		units[i] = u
	}
	if len(bad) > 0 {
		return nil, domain.NewProviderError(name, bad, firstErr)
	}

	return &semanticScorer{units: units}, nil
}

func (s *SemanticSignal) embed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if s.embedder == nil {
		return domain.BatchEmbeddingResult{}, errors.New("embedding provider not configured")
	}
	if be, ok := s.embedder.(domain.BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, texts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		return res, nil
	}
	res, err := domain.BatchFallback(ctx, s.embedder, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed fallback: %w", err)
	}
	return res, nil
}

type semanticScorer struct {
	units [][]float64
}

func (s *semanticScorer) Score(i, j int) (float64, bool) {
	return textvec.UnitDot(s.units[i], s.units[j]), false
}
