package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput signals an empty or malformed record set or bad run parameters.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProviderError signals that a similarity signal could not score some records.
	ErrProviderError = errors.New("signal provider error")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrTooManyRecords signals a record set larger than the configured limit.
	ErrTooManyRecords = errors.New("too many records")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// ProviderError reports which records a signal failed to score.
// Indices is nil when the whole batch is affected.
type ProviderError struct {
	Signal  string
	Indices []int
	Err     error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(ErrProviderError.Error())
	b.WriteString(": signal ")
	b.WriteString(e.Signal)
	if len(e.Indices) > 0 {
		b.WriteString(" records ")
		b.WriteString(formatIndices(e.Indices, 10))
	} else {
		b.WriteString(" all records")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches ErrProviderError so callers can test with errors.Is.
func (e *ProviderError) Is(target error) bool { return target == ErrProviderError }

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError creates a provider error for the given signal and record indices.
func NewProviderError(signal string, indices []int, err error) error {
	return &ProviderError{Signal: signal, Indices: indices, Err: err}
}

// formatIndices renders at most limit indices, eliding the rest.
func formatIndices(indices []int, limit int) string {
	n := len(indices)
	if n > limit {
		n = limit
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprint(indices[i])
	}
	s := "[" + strings.Join(parts, ",")
	if len(indices) > limit {
		s += fmt.Sprintf(",... +%d", len(indices)-limit)
	}
	return s + "]"
}
