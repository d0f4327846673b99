package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/neardup/internal/domain"
	domdedup "github.com/kailas-cloud/neardup/internal/domain/dedup"
	domusage "github.com/kailas-cloud/neardup/internal/domain/usage"
	"github.com/kailas-cloud/neardup/internal/logger"
	dedupuc "github.com/kailas-cloud/neardup/internal/usecase/dedup"
	healthuc "github.com/kailas-cloud/neardup/internal/usecase/health"
	usageuc "github.com/kailas-cloud/neardup/internal/usecase/usage"
)

const defaultMaxBodyBytes = 32 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the deduplication API.
type Server struct {
	dedup         *dedupuc.Service
	usage         *usageuc.Service
	health        *healthuc.Service
	params        domdedup.Params
	maxBodyBytes  int64
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. params are the defaults applied to
// requests that leave weights, threshold or fallback out.
func NewServer(
	dedup *dedupuc.Service,
	usage *usageuc.Service,
	health *healthuc.Service,
	params domdedup.Params,
	logger *zap.Logger,
) *Server {
	s := &Server{
		dedup:        dedup,
		usage:        usage,
		health:       health,
		params:       params,
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrTooManyRecords, http.StatusRequestEntityTooLarge, ErrorCodeTooManyRecords),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, ErrorCodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded,
			http.StatusPaymentRequired, ErrorCodeEmbeddingQuotaExceeded),
		providerErrorHandler,
		sentinelHandler(domain.ErrEmbeddingProviderError,
			http.StatusBadGateway, ErrorCodeEmbeddingProviderError),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, ErrorCodeRequestTimeout),
	}
	return s
}

// WithMaxBodyBytes limits the size of request bodies.
func (s *Server) WithMaxBodyBytes(n int64) *Server {
	if n > 0 {
		s.maxBodyBytes = n
	}
	return s
}

// Register mounts the API routes on r.
func (s *Server) Register(r chirouter.Router) {
	r.Post("/v1/dedup", s.Dedup)
	r.Get("/v1/usage", s.GetUsage)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeBadRequest, "method not allowed")
	})
}

// Dedup handles POST /v1/dedup.
func (s *Server) Dedup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	var req DedupRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorCodeTooManyRecords,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.Texts) == 0 {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "texts must not be empty")
		return
	}

	params := s.requestParams(req)
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.dedup.Run(ctx, req.Texts, params)
	setEmbeddingHeaders(w, usage)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	w.Header().Set("X-Run-ID", res.RunID)
	writeJSON(w, http.StatusOK, dedupResultToDTO(res, params.Threshold))
}

func (s *Server) requestParams(req DedupRequest) domdedup.Params {
	p := s.params
	if req.Weights != nil {
		p.Weights = domdedup.Weights{
			Edit:      req.Weights.Edit,
			TFIDF:     req.Weights.TFIDF,
			Embedding: req.Weights.Embedding,
		}
	}
	if req.Threshold != nil {
		p.Threshold = *req.Threshold
	}
	if req.Fallback != nil {
		p.Fallback = domdedup.Fallback(*req.Fallback)
	}
	return p
}

// GetUsage handles GET /v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, err := domusage.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}

	report := s.usage.GetReport(r.Context(), period)

	resp := UsageResponse{
		Period:        string(report.Period),
		PeriodStartAt: report.PeriodStart,
		PeriodEndAt:   report.PeriodEnd,
		Tokens:        report.TotalTokens(),
		Providers:     make([]ProviderUsage, len(report.Providers)),
	}
	for i, p := range report.Providers {
		item := ProviderUsage{
			Provider:    p.Provider,
			Tokens:      p.Tokens,
			IsExhausted: p.Exhausted,
		}
		if p.Limit > 0 {
			limit, remaining := p.Limit, p.Remaining
			item.TokensLimit = &limit
			item.TokensRemaining = &remaining
		}
		if p.CostMillidollars > 0 {
			cost := p.CostMillidollars
			item.CostMillidollars = &cost
		}
		resp.Providers[i] = item
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
// Input errors carry the validation detail, which is safe to echo.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidInput) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrTooManyRecords,
		domain.ErrRateLimited,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrProviderError,
		domain.ErrEmbeddingProviderError,
		context.DeadlineExceeded,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// providerErrorHandler reports which signal failed and on which records.
func providerErrorHandler(w http.ResponseWriter, err error, msg string) bool {
	var pe *domain.ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	writeJSON(w, http.StatusBadGateway, ErrorResponse{
		Code:    ErrorCodeSignalProviderError,
		Message: msg,
		Signal:  pe.Signal,
		Records: pe.Indices,
	})
	return true
}

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logger.FromContextOr(ctx, s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}

func dedupResultToDTO(res domdedup.Result, threshold float64) DedupResponse {
	resp := DedupResponse{
		RunID:      res.RunID,
		Records:    res.Records,
		Kept:       res.Kept,
		Duplicates: make([]DuplicateItem, len(res.Duplicates)),
		Signals:    make([]string, len(res.Signals)),
		Weights: Weights{
			Edit:      res.Weights.Edit,
			TFIDF:     res.Weights.TFIDF,
			Embedding: res.Weights.Embedding,
		},
		Threshold: threshold,
		Pairs:     res.Pairs,
	}
	if resp.Kept == nil {
		resp.Kept = []int{}
	}
	for i, d := range res.Duplicates {
		resp.Duplicates[i] = DuplicateItem{Index: d.Index, DuplicateOf: d.DuplicateOf, Score: d.Score}
	}
	for i, sig := range res.Signals {
		resp.Signals[i] = string(sig)
	}
	for _, sig := range res.Dropped {
		resp.Dropped = append(resp.Dropped, string(sig))
	}
	for sig, n := range res.Degenerate {
		if n == 0 {
			continue
		}
		if resp.Degenerate == nil {
			resp.Degenerate = make(map[string]int, len(res.Degenerate))
		}
		resp.Degenerate[string(sig)] = n
	}
	return resp
}
