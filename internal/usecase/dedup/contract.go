package dedup

import (
	"context"

	domdedup "github.com/kailas-cloud/neardup/internal/domain/dedup"
)

// Signal turns a batch of texts into a pairwise similarity scorer.
// Prepare is called once per run and may block on remote providers.
type Signal interface {
	Name() domdedup.SignalName
	Prepare(ctx context.Context, texts []string) (Scorer, error)
}

// Scorer returns the similarity of records i and j of the prepared batch.
// degenerate is true when the score is a default (empty texts, no shared
// vocabulary). Implementations must be safe for concurrent use.
type Scorer interface {
	Score(i, j int) (sim float64, degenerate bool)
}
