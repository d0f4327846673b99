// Package job runs a deduplication over a table file and writes the
// filtered table back in the same format.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/neardup/internal/domain"
	domdedup "github.com/kailas-cloud/neardup/internal/domain/dedup"
	"github.com/kailas-cloud/neardup/internal/repository/table"
)

// Spec describes one batch job.
type Spec struct {
	Input      string
	Output     string
	TextColumn string // header name or zero-based index; empty selects the first column
	HasHeader  bool
	Comma      rune
	Report     string // optional JSON report path
	Params     domdedup.Params
}

// Summary is the outcome of a job.
type Summary struct {
	Original int
	After    int
	Removed  int
	Result   domdedup.Result
}

func (s Summary) String() string {
	return fmt.Sprintf("Original: %d, After: %d, Removed: %d", s.Original, s.After, s.Removed)
}

// Report is the JSON document written next to the output when requested.
type Report struct {
	RunID      string                      `json:"run_id"`
	Input      string                      `json:"input"`
	Output     string                      `json:"output"`
	TextColumn string                      `json:"text_column,omitempty"`
	Original   int                         `json:"original"`
	After      int                         `json:"after"`
	Removed    int                         `json:"removed"`
	Threshold  float64                     `json:"threshold"`
	Weights    domdedup.Weights            `json:"weights"`
	Signals    []domdedup.SignalName       `json:"signals"`
	Dropped    []domdedup.SignalName       `json:"dropped,omitempty"`
	Pairs      int64                       `json:"pairs"`
	Degenerate map[domdedup.SignalName]int `json:"degenerate,omitempty"`
	Duplicates []ReportEntry               `json:"duplicates"`
	FinishedAt time.Time                   `json:"finished_at"`
}

// ReportEntry is one removed record and the record it duplicated.
type ReportEntry struct {
	Index         int     `json:"index"`
	DuplicateOf   int     `json:"duplicate_of"`
	Score         float64 `json:"score"`
	Text          string  `json:"text"`
	DuplicateText string  `json:"duplicate_text"`
}

// Service wires table I/O around a Deduplicator.
type Service struct {
	dedup  Deduplicator
	logger *zap.Logger
}

// New creates a Service.
func New(d Deduplicator, logger *zap.Logger) *Service {
	return &Service{dedup: d, logger: logger}
}

// Run reads spec.Input, removes near duplicates of the text column and
// writes the surviving rows to spec.Output. The output table is not written on
// error; a report already written stays when only the table write fails.
func (s *Service) Run(ctx context.Context, spec Spec) (Summary, error) {
	if spec.Input == "" || spec.Output == "" {
		return Summary{}, fmt.Errorf("input and output paths are required: %w", domain.ErrInvalidInput)
	}

	ds, err := table.Read(spec.Input, table.ReadOptions{HasHeader: spec.HasHeader, Comma: spec.Comma})
	if err != nil {
		return Summary{}, fmt.Errorf("read %s: %w", spec.Input, err)
	}
	texts, err := ds.Table.Texts(spec.TextColumn)
	if err != nil {
		return Summary{}, fmt.Errorf("read %s: %w", spec.Input, err)
	}
	// Fail on an output/input format mismatch before spending on embeddings.
	if format, ferr := table.FormatFromPath(spec.Output); ferr != nil {
		return Summary{}, ferr
	} else if format != ds.Format {
		return Summary{}, fmt.Errorf("output %s does not match input format %s: %w",
			format, ds.Format, domain.ErrInvalidInput)
	}

	s.logger.Info("Deduplicating table",
		zap.String("input", spec.Input),
		zap.String("format", string(ds.Format)),
		zap.Int("records", len(texts)),
	)

	res, err := s.dedup.Run(ctx, texts, spec.Params)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		Original: len(texts),
		After:    len(res.Kept),
		Removed:  res.Removed(),
		Result:   res,
	}

	if spec.Report != "" {
		if err := writeReport(spec.Report, buildReport(spec, texts, sum)); err != nil {
			return Summary{}, fmt.Errorf("write report %s: %w", spec.Report, err)
		}
	}

	if err := table.Write(spec.Output, ds.Keep(res.Kept)); err != nil {
		return Summary{}, fmt.Errorf("write %s: %w", spec.Output, err)
	}

	s.logger.Info("Table written",
		zap.String("output", spec.Output),
		zap.String("run_id", res.RunID),
		zap.Int("kept", sum.After),
		zap.Int("removed", sum.Removed),
	)
	return sum, nil
}

func buildReport(spec Spec, texts []string, sum Summary) Report {
	res := sum.Result
	entries := make([]ReportEntry, len(res.Duplicates))
	for i, d := range res.Duplicates {
		entries[i] = ReportEntry{
			Index:         d.Index,
			DuplicateOf:   d.DuplicateOf,
			Score:         d.Score,
			Text:          texts[d.Index],
			DuplicateText: texts[d.DuplicateOf],
		}
	}
	return Report{
		RunID:      res.RunID,
		Input:      spec.Input,
		Output:     spec.Output,
		TextColumn: spec.TextColumn,
		Original:   sum.Original,
		After:      sum.After,
		Removed:    sum.Removed,
		Threshold:  spec.Params.Threshold,
		Weights:    res.Weights,
		Signals:    res.Signals,
		Dropped:    res.Dropped,
		Pairs:      res.Pairs,
		Degenerate: res.Degenerate,
		Duplicates: entries,
		FinishedAt: time.Now().UTC(),
	}
}

func writeReport(path string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
