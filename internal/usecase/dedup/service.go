package dedup

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/neardup/internal/domain"
	domdedup "github.com/kailas-cloud/neardup/internal/domain/dedup"
	"github.com/kailas-cloud/neardup/internal/metrics"
)

// DefaultBlockRows is the number of rows whose pair scores are held in memory at once.
const DefaultBlockRows = 256

// signalOrder fixes the order in which signals are prepared and summed.
var signalOrder = []domdedup.SignalName{
	domdedup.SignalEdit,
	domdedup.SignalTFIDF,
	domdedup.SignalEmbedding,
}

var errSignalNotConfigured = errors.New("signal not configured")

// Service runs the fused near-duplicate detection over a batch of texts.
type Service struct {
	signals    map[domdedup.SignalName]Signal
	workers    int
	blockRows  int
	maxRecords int
	logger     *zap.Logger
}

// New creates a Service with the given signals. A signal whose weight is
// positive in a run but which was not registered here fails that run with a
// provider error.
func New(logger *zap.Logger, signals ...Signal) *Service {
	m := make(map[domdedup.SignalName]Signal, len(signals))
	for _, s := range signals {
		if s != nil {
			m[s.Name()] = s
		}
	}
	return &Service{
		signals:   m,
		workers:   runtime.GOMAXPROCS(0),
		blockRows: DefaultBlockRows,
		logger:    logger,
	}
}

// WithWorkers sets the number of goroutines scoring pairs.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

// WithBlockRows sets how many rows are scored before each marking step.
func (s *Service) WithBlockRows(n int) *Service {
	if n > 0 {
		s.blockRows = n
	}
	return s
}

// WithMaxRecords rejects batches larger than n (0 = unlimited).
func (s *Service) WithMaxRecords(n int) *Service {
	if n >= 0 {
		s.maxRecords = n
	}
	return s
}

// Run marks every record that is a near-duplicate of an earlier surviving record.
//
// Records are visited in input order. A record already marked is never used
// to mark others, and a pair is a duplicate when its fused score reaches the
// threshold. The run is all-or-nothing: on error no partial result is returned.
func (s *Service) Run(ctx context.Context, texts []string, params domdedup.Params) (domdedup.Result, error) {
	start := time.Now()

	res, err := s.run(ctx, texts, params)

	metrics.DedupRunDuration.Observe(time.Since(start).Seconds())
	metrics.DedupRunsTotal.WithLabelValues(runStatus(err)).Inc()
	if err != nil {
		s.logger.Error("Deduplication failed",
			zap.Int("records", len(texts)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return domdedup.Result{}, err
	}

	metrics.DedupRecordsTotal.WithLabelValues("kept").Add(float64(len(res.Kept)))
	metrics.DedupRecordsTotal.WithLabelValues("removed").Add(float64(res.Removed()))
	metrics.DedupPairsTotal.Add(float64(res.Pairs))
	for sig, n := range res.Degenerate {
		metrics.DedupDegenerateTotal.WithLabelValues(string(sig)).Add(float64(n))
	}

	s.logger.Info("Deduplication completed",
		zap.String("run_id", res.RunID),
		zap.Int("records", res.Records),
		zap.Int("kept", len(res.Kept)),
		zap.Int("removed", res.Removed()),
		zap.Int64("pairs", res.Pairs),
		zap.Any("signals", res.Signals),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (s *Service) run(ctx context.Context, texts []string, params domdedup.Params) (domdedup.Result, error) {
	if params.Fallback == "" {
		params.Fallback = domdedup.FallbackFail
	}
	if err := params.Validate(); err != nil {
		return domdedup.Result{}, err
	}
	n := len(texts)
	if s.maxRecords > 0 && n > s.maxRecords {
		return domdedup.Result{}, fmt.Errorf("%d records exceed limit %d: %w", n, s.maxRecords, domain.ErrTooManyRecords)
	}

	res := domdedup.Result{
		RunID:      uuid.NewString(),
		Records:    n,
		Weights:    params.Weights,
		Degenerate: make(map[domdedup.SignalName]int),
	}

	// No pairs: nothing to prepare.
	if n <= 1 {
		res.Kept = allIndices(n)
		for _, name := range signalOrder {
			if params.Weights.Of(name) > 0 {
				res.Signals = append(res.Signals, name)
			}
		}
		return res, nil
	}

	scorers, err := s.prepare(ctx, texts, params, &res)
	if err != nil {
		return domdedup.Result{}, err
	}

	if err := s.sweep(ctx, n, scorers, params.Threshold, &res); err != nil {
		return domdedup.Result{}, err
	}
	return res, nil
}

// weightedScorer is a prepared signal and its weight in the fused score.
type weightedScorer struct {
	name   domdedup.SignalName
	weight float64
	scorer Scorer
}

// prepare builds every weighted signal once. Failures either abort the run or,
// under FallbackRenormalize, drop the signal and rescale the remaining weights.
func (s *Service) prepare(
	ctx context.Context, texts []string, params domdedup.Params, res *domdedup.Result,
) ([]weightedScorer, error) {
	prepared := make(map[domdedup.SignalName]Scorer, len(signalOrder))
	var lastErr error

	for _, name := range signalOrder {
		if params.Weights.Of(name) <= 0 {
			continue
		}

		scorer, err := s.prepareSignal(ctx, name, texts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("prepare %s: %w", name, ctx.Err())
			}
			metrics.DedupSignalFailuresTotal.WithLabelValues(string(name)).Inc()
			if params.Fallback != domdedup.FallbackRenormalize {
				return nil, fmt.Errorf("prepare %s: %w", name, err)
			}
			s.logger.Warn("Signal failed, dropping it and renormalizing weights",
				zap.String("signal", string(name)),
				zap.Error(err),
			)
			res.Dropped = append(res.Dropped, name)
			lastErr = err
			continue
		}
		prepared[name] = scorer
	}

	if len(prepared) == 0 {
		return nil, fmt.Errorf("no similarity signal left after fallback: %w", lastErr)
	}

	res.Weights = params.Weights.Without(res.Dropped...)
	scorers := make([]weightedScorer, 0, len(prepared))
	for _, name := range signalOrder {
		if sc, ok := prepared[name]; ok {
			scorers = append(scorers, weightedScorer{name: name, weight: res.Weights.Of(name), scorer: sc})
			res.Signals = append(res.Signals, name)
		}
	}
	return scorers, nil
}

func (s *Service) prepareSignal(ctx context.Context, name domdedup.SignalName, texts []string) (Scorer, error) {
	sig, ok := s.signals[name]
	if !ok {
		return nil, domain.NewProviderError(string(name), nil, errSignalNotConfigured)
	}

	start := time.Now()
	scorer, err := sig.Prepare(ctx, texts)
	metrics.DedupSignalDuration.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())
	if err != nil {
		var pe *domain.ProviderError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, domain.NewProviderError(string(name), nil, err)
	}

	s.logger.Debug("Signal prepared",
		zap.String("signal", string(name)),
		zap.Int("records", len(texts)),
		zap.Duration("duration", time.Since(start)),
	)
	return scorer, nil
}

// scoredRow holds the fused scores of record i against every j > i.
// flags[k] has bit b set when signal b was degenerate for pair (i, i+1+k).
type scoredRow struct {
	scores []float64
	flags  []uint8
}

// sweep scores rows block by block in parallel and marks duplicates
// sequentially in ascending (i, j) order.
func (s *Service) sweep(
	ctx context.Context, n int, scorers []weightedScorer, threshold float64, res *domdedup.Result,
) error {
	dup := make([]bool, n)
	degenerate := make([]int, len(scorers))

	for blockStart := 0; blockStart < n-1; blockStart += s.blockRows {
		blockEnd := min(blockStart+s.blockRows, n-1)

		rows, err := s.scoreBlock(ctx, blockStart, blockEnd, n, dup, scorers)
		if err != nil {
			return err
		}

		// Marking stays single-threaded: later decisions depend on earlier ones.
		for i := blockStart; i < blockEnd; i++ {
			if dup[i] {
				continue
			}
			row := rows[i-blockStart]
			for j := i + 1; j < n; j++ {
				if dup[j] {
					continue
				}
				k := j - i - 1
				res.Pairs++
				if f := row.flags[k]; f != 0 {
					for b := range scorers {
						if f&(1<<b) != 0 {
							degenerate[b]++
						}
					}
				}
				if row.scores[k] >= threshold {
					dup[j] = true
					res.Duplicates = append(res.Duplicates, domdedup.Duplicate{
						Index: j, DuplicateOf: i, Score: row.scores[k],
					})
				}
			}
		}
	}

	sort.Slice(res.Duplicates, func(a, b int) bool {
		return res.Duplicates[a].Index < res.Duplicates[b].Index
	})
	res.Kept = make([]int, 0, n-len(res.Duplicates))
	for i := 0; i < n; i++ {
		if !dup[i] {
			res.Kept = append(res.Kept, i)
		}
	}
	for b, sc := range scorers {
		if degenerate[b] > 0 {
			res.Degenerate[sc.name] = degenerate[b]
			s.logger.Debug("Degenerate comparisons resolved to zero similarity",
				zap.String("run_id", res.RunID),
				zap.String("signal", string(sc.name)),
				zap.Int("pairs", degenerate[b]),
			)
		}
	}
	return nil
}

// scoreBlock computes rows [blockStart, blockEnd) concurrently. Rows and
// columns marked before the block starts are skipped; dup is read-only here.
func (s *Service) scoreBlock(
	ctx context.Context, blockStart, blockEnd, n int, dup []bool, scorers []weightedScorer,
) ([]scoredRow, error) {
	rows := make([]scoredRow, blockEnd-blockStart)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := blockStart; i < blockEnd; i++ {
		if dup[i] {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err //nolint:wrapcheck // wrapped after Wait
			}
			rows[i-blockStart] = scoreRow(i, n, dup, scorers)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("score pairs: %w", err)
	}
	return rows, nil
}

func scoreRow(i, n int, dup []bool, scorers []weightedScorer) scoredRow {
	row := scoredRow{
		scores: make([]float64, n-i-1),
		flags:  make([]uint8, n-i-1),
	}
	for j := i + 1; j < n; j++ {
		if dup[j] {
			continue
		}
		k := j - i - 1
		var score float64
		var flags uint8
		for b, sc := range scorers {
			sim, degenerate := sc.scorer.Score(i, j)
			if degenerate {
				flags |= 1 << b
			}
			score += sc.weight * sim
		}
		row.scores[k] = score
		row.flags[k] = flags
	}
	return row
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrTooManyRecords):
		return "input_error"
	case errors.Is(err, domain.ErrProviderError):
		return "provider_error"
	default:
		return "error"
	}
}
