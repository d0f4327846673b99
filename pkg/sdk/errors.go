package neardup

import (
	"errors"

	"github.com/kailas-cloud/neardup/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidInput           = domain.ErrInvalidInput
	ErrProviderError          = domain.ErrProviderError
	ErrTooManyRecords         = domain.ErrTooManyRecords
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
	ErrRateLimited            = domain.ErrRateLimited
	ErrEmbeddingQuotaExceeded = domain.ErrEmbeddingQuotaExceeded
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
)

// ProviderError reports which signal failed and on which records.
// Use errors.As() to extract it.
type ProviderError = domain.ProviderError

// FailedRecords returns the signal and record indices of a provider error.
// indices is nil when the whole batch failed; ok is false for other errors.
func FailedRecords(err error) (signal string, indices []int, ok bool) {
	var pe *domain.ProviderError
	if !errors.As(err, &pe) {
		return "", nil, false
	}
	return pe.Signal, pe.Indices, true
}
