package neardup

import (
	"context"
	"time"

	"github.com/kailas-cloud/neardup/internal/domain"
	domdedup "github.com/kailas-cloud/neardup/internal/domain/dedup"
)

// Signal names used in Result.
const (
	SignalEdit      = string(domdedup.SignalEdit)
	SignalTFIDF     = string(domdedup.SignalTFIDF)
	SignalEmbedding = string(domdedup.SignalEmbedding)
)

// Weights are the per-signal weights of the fused score.
type Weights struct {
	Edit      float64
	TFIDF     float64
	Embedding float64
}

// Params control a single run.
type Params struct {
	Weights   Weights
	Threshold float64
	// Renormalize drops a failing signal instead of failing the run.
	Renormalize bool
}

// Duplicate is a removed record and the kept record it duplicates.
type Duplicate struct {
	Index       int
	DuplicateOf int
	Score       float64
}

// Result is the outcome of a run. Indices refer to the input slice.
type Result struct {
	RunID      string
	Kept       []int
	Duplicates []Duplicate
	Signals    []string
	Weights    Weights // after any renormalisation
	Dropped    []string
	Pairs      int64
	Degenerate map[string]int
	// EmbeddingTokens is the provider usage of the run; cache hits cost nothing.
	EmbeddingTokens int
}

// Removed returns how many records were dropped.
func (r Result) Removed() int { return len(r.Duplicates) }

// Params returns the defaults configured on the client.
func (c *Client) Params() Params {
	return fromDomainParams(c.params)
}

// Dedup removes near-duplicates from texts with the client's default params.
func (c *Client) Dedup(ctx context.Context, texts []string) (Result, error) {
	return c.DedupParams(ctx, texts, c.Params())
}

// DedupParams removes near-duplicates from texts with explicit params.
func (c *Client) DedupParams(ctx context.Context, texts []string, p Params) (res Result, err error) {
	start := time.Now()
	defer func() {
		c.obs.observe("dedup", start, err,
			"records", len(texts), "removed", res.Removed(), "run_id", res.RunID)
	}()

	ctx, usage := domain.NewContextWithUsage(ctx)
	r, err := c.dedupSvc.Run(ctx, texts, p.toDomain())
	if err != nil {
		return Result{}, err
	}
	c.obs.removed(r.Removed())

	res = fromDomainResult(r)
	res.EmbeddingTokens = usage.TotalTokens
	return res, nil
}

func (p Params) toDomain() domdedup.Params {
	fallback := domdedup.FallbackFail
	if p.Renormalize {
		fallback = domdedup.FallbackRenormalize
	}
	return domdedup.Params{
		Weights:   domdedup.Weights(p.Weights),
		Threshold: p.Threshold,
		Fallback:  fallback,
	}
}

func fromDomainParams(p domdedup.Params) Params {
	return Params{
		Weights:     Weights(p.Weights),
		Threshold:   p.Threshold,
		Renormalize: p.Fallback == domdedup.FallbackRenormalize,
	}
}

func fromDomainResult(r domdedup.Result) Result {
	out := Result{
		RunID:      r.RunID,
		Kept:       r.Kept,
		Duplicates: make([]Duplicate, len(r.Duplicates)),
		Signals:    signalNames(r.Signals),
		Weights:    Weights(r.Weights),
		Dropped:    signalNames(r.Dropped),
		Pairs:      r.Pairs,
		Degenerate: make(map[string]int, len(r.Degenerate)),
	}
	for i, d := range r.Duplicates {
		out.Duplicates[i] = Duplicate(d)
	}
	for sig, n := range r.Degenerate {
		out.Degenerate[string(sig)] = n
	}
	return out
}

func signalNames(s []domdedup.SignalName) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	for i, n := range s {
		out[i] = string(n)
	}
	return out
}
