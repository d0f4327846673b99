package job

import (
	"context"

	domdedup "github.com/kailas-cloud/neardup/internal/domain/dedup"
)

// Deduplicator runs the fused near-duplicate detection over a batch of texts.
type Deduplicator interface {
	Run(ctx context.Context, texts []string, params domdedup.Params) (domdedup.Result, error)
}
