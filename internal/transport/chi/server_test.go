package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/neardup/internal/domain"
	domdedup "github.com/kailas-cloud/neardup/internal/domain/dedup"
	dedupuc "github.com/kailas-cloud/neardup/internal/usecase/dedup"
	"github.com/kailas-cloud/neardup/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/neardup/internal/usecase/health"
	usageuc "github.com/kailas-cloud/neardup/internal/usecase/usage"
)

// --- Mocks ---

// stubEmbedder maps every text to the same unit vector, or fails with err.
type stubEmbedder struct {
	err    error
	tokens int
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if s.err != nil {
		return domain.EmbeddingResult{}, s.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}, TotalTokens: s.tokens}, nil
}

func (s *stubEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if s.err != nil {
		return domain.BatchEmbeddingResult{}, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: s.tokens * len(texts)}, nil
}

type stubBudget struct{ snap embedding.BudgetSnapshot }

func (b *stubBudget) Snapshot() embedding.BudgetSnapshot { return b.snap }

type stubPinger struct{ err error }

func (p *stubPinger) Ping(context.Context) error { return p.err }

func newTestRouter(t *testing.T, emb *stubEmbedder, cacheErr error) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	dedupSvc := dedupuc.New(logger,
		dedupuc.NewLexicalSignal(),
		dedupuc.NewStatisticalSignal(),
		dedupuc.NewSemanticSignal(emb),
	)
	usageSvc := usageuc.New(usageuc.Provider{
		Name:                 "local",
		Budget:               &stubBudget{snap: embedding.BudgetSnapshot{DailyLimit: 1000, DailyUsed: 250}},
		CostPerMillionTokens: 100,
	})
	healthSvc := healthuc.New(&stubPinger{err: cacheErr}, nil)

	srv := NewServer(dedupSvc, usageSvc, healthSvc, domdedup.DefaultParams(), logger).
		WithMaxBodyBytes(1 << 10)

	r := chirouter.NewRouter()
	r.Use(JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(logger))
	srv.Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

// --- Tests ---

func TestDedup_EditOnly(t *testing.T) {
	h := newTestRouter(t, &stubEmbedder{}, nil)

	rr := do(t, h, http.MethodPost, "/v1/dedup",
		`{"texts":["脾虚湿困","脾虚湿困","肝肾阴虚"],"weights":{"edit":1},"threshold":0.9}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Run-ID") == "" {
		t.Error("expected X-Run-ID header")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if rr.Header().Get("X-Embedding-Tokens") != "" {
		t.Error("embedding must not be called with zero weight")
	}

	var resp DedupResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Records != 3 {
		t.Errorf("records: got %d, want 3", resp.Records)
	}
	if len(resp.Kept) != 2 || resp.Kept[0] != 0 || resp.Kept[1] != 2 {
		t.Errorf("kept: got %v, want [0 2]", resp.Kept)
	}
	if len(resp.Duplicates) != 1 || resp.Duplicates[0] != (DuplicateItem{Index: 1, DuplicateOf: 0, Score: 1}) {
		t.Errorf("duplicates: got %+v", resp.Duplicates)
	}
	if len(resp.Signals) != 1 || resp.Signals[0] != "edit" {
		t.Errorf("signals: got %v, want [edit]", resp.Signals)
	}
	if resp.Pairs != 2 {
		t.Errorf("pairs: got %d, want 2", resp.Pairs)
	}
}

func TestDedup_DefaultParamsReportTokens(t *testing.T) {
	h := newTestRouter(t, &stubEmbedder{tokens: 3}, nil)

	rr := do(t, h, http.MethodPost, "/v1/dedup", `{"texts":["alpha beta","alpha beta"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-Embedding-Tokens"); got != "6" {
		t.Errorf("X-Embedding-Tokens: got %q, want 6", got)
	}

	var resp DedupResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Threshold != domdedup.DefaultThreshold {
		t.Errorf("threshold: got %v", resp.Threshold)
	}
	if len(resp.Kept) != 1 || len(resp.Duplicates) != 1 {
		t.Errorf("expected one survivor, got kept=%v duplicates=%v", resp.Kept, resp.Duplicates)
	}
}

func TestDedup_BadRequests(t *testing.T) {
	h := newTestRouter(t, &stubEmbedder{}, nil)

	tests := []struct {
		name   string
		body   string
		status int
		code   ErrorCode
	}{
		{"malformed json", `{"texts":`, http.StatusBadRequest, ErrorCodeBadRequest},
		{"unknown field", `{"texts":["a"],"records":[]}`, http.StatusBadRequest, ErrorCodeBadRequest},
		{"empty texts", `{"texts":[]}`, http.StatusBadRequest, ErrorCodeValidationFailed},
		{"threshold out of range", `{"texts":["a","b"],"threshold":1.5}`, http.StatusBadRequest, ErrorCodeValidationFailed},
		{"all weights zero", `{"texts":["a","b"],"weights":{}}`, http.StatusBadRequest, ErrorCodeValidationFailed},
		{"unknown fallback", `{"texts":["a","b"],"fallback":"retry"}`, http.StatusBadRequest, ErrorCodeValidationFailed},
		{"body too large", `{"texts":["` + strings.Repeat("x", 2048) + `"]}`,
			http.StatusRequestEntityTooLarge, ErrorCodeTooManyRecords},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/v1/dedup", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status: got %d, want %d: %s", rr.Code, tt.status, rr.Body.String())
			}
			if resp := decodeError(t, rr); resp.Code != tt.code {
				t.Errorf("code: got %s, want %s", resp.Code, tt.code)
			}
		})
	}
}

func TestDedup_ProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    ErrorCode
		records []int
	}{
		{
			name:    "failed records",
			err:     &domain.BatchIndicesError{Indices: []int{1}, Err: domain.ErrEmbeddingProviderError},
			status:  http.StatusBadGateway,
			code:    ErrorCodeSignalProviderError,
			records: []int{1},
		},
		{
			name:   "quota",
			err:    domain.ErrEmbeddingQuotaExceeded,
			status: http.StatusPaymentRequired,
			code:   ErrorCodeEmbeddingQuotaExceeded,
		},
		{
			name:   "rate limited",
			err:    errors.Join(domain.ErrEmbeddingProviderError, domain.ErrRateLimited),
			status: http.StatusTooManyRequests,
			code:   ErrorCodeRateLimited,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(t, &stubEmbedder{err: tt.err}, nil)
			rr := do(t, h, http.MethodPost, "/v1/dedup", `{"texts":["a","b"]}`)
			if rr.Code != tt.status {
				t.Fatalf("status: got %d, want %d: %s", rr.Code, tt.status, rr.Body.String())
			}
			resp := decodeError(t, rr)
			if resp.Code != tt.code {
				t.Errorf("code: got %s, want %s", resp.Code, tt.code)
			}
			if tt.records != nil {
				if resp.Signal != "embedding" {
					t.Errorf("signal: got %q, want embedding", resp.Signal)
				}
				if len(resp.Records) != 1 || resp.Records[0] != tt.records[0] {
					t.Errorf("records: got %v, want %v", resp.Records, tt.records)
				}
			}
		})
	}
}

func TestDedup_RenormalizeOnProviderError(t *testing.T) {
	h := newTestRouter(t, &stubEmbedder{err: domain.ErrEmbeddingProviderError}, nil)

	rr := do(t, h, http.MethodPost, "/v1/dedup", `{"texts":["abc","abc"],"fallback":"renormalize"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var resp DedupResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Dropped) != 1 || resp.Dropped[0] != "embedding" {
		t.Errorf("dropped: got %v, want [embedding]", resp.Dropped)
	}
	if resp.Weights.Embedding != 0 {
		t.Errorf("embedding weight must be zero after renormalisation, got %v", resp.Weights.Embedding)
	}
}

func TestGetUsage(t *testing.T) {
	h := newTestRouter(t, &stubEmbedder{}, nil)

	rr := do(t, h, http.MethodGet, "/v1/usage?period=day", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp UsageResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Period != "day" || resp.Tokens != 250 {
		t.Errorf("unexpected usage %+v", resp)
	}
	if len(resp.Providers) != 1 {
		t.Fatalf("providers: got %d, want 1", len(resp.Providers))
	}
	p := resp.Providers[0]
	if p.TokensLimit == nil || *p.TokensLimit != 1000 || p.TokensRemaining == nil || *p.TokensRemaining != 750 {
		t.Errorf("unexpected provider usage %+v", p)
	}
	// 250 tokens at $100 per million = $0.025
	if p.CostMillidollars == nil || *p.CostMillidollars != 25 {
		t.Errorf("unexpected cost %v", p.CostMillidollars)
	}
	if !resp.PeriodEndAt.After(resp.PeriodStartAt) {
		t.Errorf("period end %v not after start %v", resp.PeriodEndAt, resp.PeriodStartAt)
	}

	rr = do(t, h, http.MethodGet, "/v1/usage?period=total", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown period: got %d, want 400", rr.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	rr := do(t, newTestRouter(t, &stubEmbedder{}, nil), http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("healthy: got %d, want 200", rr.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Checks["cache"] != "ok" {
		t.Errorf("unexpected health %+v", resp)
	}

	rr = do(t, newTestRouter(t, &stubEmbedder{}, errors.New("conn refused")), http.MethodGet, "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy: got %d, want 503", rr.Code)
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	h := newTestRouter(t, &stubEmbedder{}, nil)

	if rr := do(t, h, http.MethodGet, "/v1/unknown", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown route: got %d, want 404", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/v1/dedup", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /v1/dedup: got %d, want 405", rr.Code)
	}
}

func TestJSONRecoverer(t *testing.T) {
	h := JSONRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := do(t, h, http.MethodGet, "/", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Code != ErrorCodeInternalError {
		t.Errorf("code: got %s", resp.Code)
	}
}
