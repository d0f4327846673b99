package chi

import "time"

// ErrorCode is a machine-readable error identifier.
type ErrorCode string

// Error codes returned in ErrorResponse.Code.
const (
	ErrorCodeBadRequest             ErrorCode = "bad_request"
	ErrorCodeUnauthorized           ErrorCode = "unauthorized"
	ErrorCodeValidationFailed       ErrorCode = "validation_failed"
	ErrorCodeTooManyRecords         ErrorCode = "too_many_records"
	ErrorCodeRateLimited            ErrorCode = "rate_limited"
	ErrorCodeEmbeddingQuotaExceeded ErrorCode = "embedding_quota_exceeded"
	ErrorCodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	ErrorCodeSignalProviderError    ErrorCode = "signal_provider_error"
	ErrorCodeRequestTimeout         ErrorCode = "request_timeout"
	ErrorCodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	// Set for signal provider errors.
	Signal  string `json:"signal,omitempty"`
	Records []int  `json:"records,omitempty"`
}

// Weights are the per-signal fusion coefficients.
type Weights struct {
	Edit      float64 `json:"edit"`
	TFIDF     float64 `json:"tfidf"`
	Embedding float64 `json:"embedding"`
}

// DedupRequest is the body of POST /v1/dedup. Omitted parameters take the
// server defaults; a weights object replaces all three weights.
type DedupRequest struct {
	Texts     []string `json:"texts"`
	Weights   *Weights `json:"weights,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	Fallback  *string  `json:"fallback,omitempty"`
}

// DuplicateItem is one removed record.
type DuplicateItem struct {
	Index       int     `json:"index"`
	DuplicateOf int     `json:"duplicate_of"`
	Score       float64 `json:"score"`
}

// DedupResponse is the body of a successful POST /v1/dedup.
type DedupResponse struct {
	RunID      string          `json:"run_id"`
	Records    int             `json:"records"`
	Kept       []int           `json:"kept"`
	Duplicates []DuplicateItem `json:"duplicates"`
	Signals    []string        `json:"signals"`
	Dropped    []string        `json:"dropped,omitempty"`
	Weights    Weights         `json:"weights"`
	Threshold  float64         `json:"threshold"`
	Pairs      int64           `json:"pairs"`
	Degenerate map[string]int  `json:"degenerate,omitempty"`
}

// ProviderUsage is the token usage of one embedding provider.
type ProviderUsage struct {
	Provider         string `json:"provider"`
	Tokens           int64  `json:"tokens"`
	TokensLimit      *int64 `json:"tokens_limit,omitempty"`     // absent = unlimited
	TokensRemaining  *int64 `json:"tokens_remaining,omitempty"` // absent = unlimited
	IsExhausted      bool   `json:"is_exhausted"`
	CostMillidollars *int64 `json:"cost_millidollars,omitempty"`
}

// UsageResponse is the body of GET /v1/usage.
type UsageResponse struct {
	Period        string          `json:"period"`
	PeriodStartAt time.Time       `json:"period_start_at"`
	PeriodEndAt   time.Time       `json:"period_end_at"`
	Tokens        int64           `json:"tokens"`
	Providers     []ProviderUsage `json:"providers"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
