package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"contract-run-go/internal/api"
	"contract-run-go/internal/common"
	"contract-run-go/internal/metrics"
	"contract-run-go/internal/models"
	"contract-run-go/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	startRunFn  func(ctx context.Context, userId, contractId string) (*models.StartedRun, error)
	heartbeatFn func(ctx context.Context, userId, sessionId string) (models.RunResult, error)
	withdrawFn  func(ctx context.Context, userId string, amount decimal.Decimal, wallet string) (*models.WithdrawalResult, error)
	dashboardFn func(ctx context.Context, userId string) (*models.Dashboard, error)
	historyFn   func(ctx context.Context, userId string, limit, offset int) ([]models.TransactionRecord, error)
	healthErr   error
}

func (m *mockService) StartRun(ctx context.Context, userId, contractId string) (*models.StartedRun, error) {
	return m.startRunFn(ctx, userId, contractId)
}

func (m *mockService) Heartbeat(ctx context.Context, userId, sessionId string) (models.RunResult, error) {
	if m.heartbeatFn != nil {
		return m.heartbeatFn(ctx, userId, sessionId)
	}
	return models.NoActiveRun{Message: "no active run"}, nil
}

func (m *mockService) StopRun(ctx context.Context, userId, sessionId string) (models.RunResult, error) {
	return models.NoActiveRun{Message: "nothing to stop"}, nil
}

func (m *mockService) RunStatus(ctx context.Context, userId string) (models.RunResult, error) {
	return models.NoActiveRun{Message: "no active run"}, nil
}

func (m *mockService) StopContract(ctx context.Context, userId, contractId string) (models.RunResult, error) {
	return nil, fmt.Errorf("contract %s: %w", contractId, store.ErrNotFound)
}

func (m *mockService) GetDashboard(ctx context.Context, userId string) (*models.Dashboard, error) {
	return m.dashboardFn(ctx, userId)
}

func (m *mockService) Withdraw(ctx context.Context, userId string, amount decimal.Decimal, wallet string) (*models.WithdrawalResult, error) {
	return m.withdrawFn(ctx, userId, amount, wallet)
}

func (m *mockService) GetTransactionHistory(ctx context.Context, userId string, limit, offset int) ([]models.TransactionRecord, error) {
	return m.historyFn(ctx, userId, limit, offset)
}

func (m *mockService) HealthCheck(ctx context.Context) error {
	return m.healthErr
}

func newTestRouter(t *testing.T, svc Service, limiter *RateLimiter) http.Handler {
	t.Helper()
	if limiter != nil {
		t.Cleanup(limiter.Stop)
	}
	return NewRouter(RouterDeps{Service: svc, RateLimiter: limiter})
}

func doRequest(h http.Handler, method, path, userId, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userId != "" {
		req.Header.Set(UserIdHeader, userId)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireUser(t *testing.T) {
	h := newTestRouter(t, &mockService{}, nil)

	rec := doRequest(h, http.MethodGet, "/api/runs/current", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(h, http.MethodGet, "/api/runs/current", "user1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["active"])
	assert.Equal(t, "no active run", body["message"])
}

func TestStartRun(t *testing.T) {
	svc := &mockService{
		startRunFn: func(ctx context.Context, userId, contractId string) (*models.StartedRun, error) {
			if contractId == "busy" {
				return nil, fmt.Errorf("start run: %w", &store.ConflictError{SessionId: "s1", ContractId: "c-active"})
			}
			return &models.StartedRun{SessionId: "s2", ContractId: contractId, MaxHours: 22}, nil
		},
	}
	h := newTestRouter(t, svc, nil)

	rec := doRequest(h, http.MethodPost, "/api/runs", "user1", `{"contract_id":"c1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var started models.StartedRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, "c1", started.ContractId)

	rec = doRequest(h, http.MethodPost, "/api/runs", "user1", `{"contract_id":"busy"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, "c-active", conflict.ContractId)
	assert.Equal(t, "s1", conflict.SessionId)

	rec = doRequest(h, http.MethodPost, "/api/runs", "user1", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", api.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("x: %w", store.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", store.ErrConflict), http.StatusConflict},
		{fmt.Errorf("x: %w", store.ErrInvalidState), http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", store.ErrInsufficientFunds), http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", api.ErrWithdrawWindowClosed), http.StatusForbidden},
		{fmt.Errorf("x: %w: disk I/O", store.ErrStoreFailure), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestStopContractNotFound(t *testing.T) {
	h := newTestRouter(t, &mockService{}, nil)
	rec := doRequest(h, http.MethodPost, "/api/contracts/c9/stop", "user1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "c9")
}

func TestWithdraw(t *testing.T) {
	var gotAmount decimal.Decimal
	svc := &mockService{
		withdrawFn: func(ctx context.Context, userId string, amount decimal.Decimal, wallet string) (*models.WithdrawalResult, error) {
			gotAmount = amount
			return &models.WithdrawalResult{WithdrawalId: "w1", Amount: amount, Wallet: wallet, NewBalance: decimal.NewFromInt(10)}, nil
		},
	}
	h := newTestRouter(t, svc, nil)

	rec := doRequest(h, http.MethodPost, "/api/withdrawals", "user1", `{"amount":"12.5","wallet":"TXabc"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, gotAmount.Equal(decimal.RequireFromString("12.5")))
	assert.Contains(t, rec.Body.String(), `"withdrawal_id":"w1"`)
}

func TestTransactionsPassesPaging(t *testing.T) {
	var gotLimit, gotOffset int
	svc := &mockService{
		historyFn: func(ctx context.Context, userId string, limit, offset int) ([]models.TransactionRecord, error) {
			gotLimit, gotOffset = limit, offset
			return []models.TransactionRecord{{Id: "t1", Type: models.TransactionAccrual}}, nil
		},
	}
	h := newTestRouter(t, svc, nil)

	rec := doRequest(h, http.MethodGet, "/api/transactions?limit=5&offset=10", "user1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, gotLimit)
	assert.Equal(t, 10, gotOffset)
	assert.Contains(t, rec.Body.String(), `"t1"`)
}

func TestHeartbeatRateLimit(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	limiter := NewRateLimiter(RateLimiterConfig{Rate: 1.0 / 60.0, Burst: 2, CleanupInterval: time.Minute}, collector)
	h := newTestRouter(t, &mockService{}, limiter)

	for i := 0; i < 2; i++ {
		rec := doRequest(h, http.MethodPost, "/api/runs/heartbeat", "user1", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(h, http.MethodPost, "/api/runs/heartbeat", "user1", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// other users have their own bucket
	rec = doRequest(h, http.MethodPost, "/api/runs/heartbeat", "user2", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, limiter.Len())

	// other routes are not limited
	for i := 0; i < 3; i++ {
		rec = doRequest(h, http.MethodGet, "/api/runs/current", "user1", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := NewRateLimiter(HeartbeatLimits(30, 5), nil)
	defer limiter.Stop()

	limiter.getOrCreate("user1")
	require.Equal(t, 1, limiter.Len())

	limiter.cleanup(time.Now().Add(time.Minute))
	assert.Equal(t, 1, limiter.Len())

	limiter.cleanup(time.Now().Add(11 * time.Minute))
	assert.Equal(t, 0, limiter.Len())
}

func TestHealthzAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	collector.RunStarted()

	svc := &mockService{}
	h := NewRouter(RouterDeps{Service: svc, MetricsHandler: metrics.Handler(reg)})

	rec := doRequest(h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "contractrun_runs_started_total 1")

	svc.healthErr = fmt.Errorf("ping: %w", store.ErrStoreFailure)
	rec = doRequest(h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestContractOptions(t *testing.T) {
	catalog := &common.Catalog{
		Plans: []common.Plan{
			{Id: 1, Label: "Basic", Amount: decimal.NewFromInt(1989)},
			{Id: 2, Label: "Pro", Amount: decimal.NewFromInt(2900)},
		},
		Durations: []int{30, 60, 90},
	}
	h := NewRouter(RouterDeps{Service: &mockService{}, Catalog: catalog})

	rec := doRequest(h, http.MethodGet, "/api/contracts/options", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(h, http.MethodGet, "/api/contracts/options", "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Plans []struct {
			Id     int    `json:"id"`
			Label  string `json:"label"`
			Amount string `json:"amount"`
		} `json:"plans"`
		Durations []int `json:"durations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Plans, 2)
	assert.Equal(t, 1, body.Plans[0].Id)
	assert.Equal(t, "Basic", body.Plans[0].Label)
	assert.Equal(t, "1989", body.Plans[0].Amount)
	assert.Equal(t, []int{30, 60, 90}, body.Durations)

	// without a catalog the route is not mounted
	bare := newTestRouter(t, &mockService{}, nil)
	rec = doRequest(bare, http.MethodGet, "/api/contracts/options", "user-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
