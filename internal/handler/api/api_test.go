package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"TradeReview/internal/domain/models"
	domsvc "TradeReview/internal/domain/service"
	"TradeReview/internal/repository"
	"TradeReview/internal/service/ratelimit"
	"TradeReview/internal/services/auth"
	"TradeReview/internal/services/instruments"
	"TradeReview/internal/usecase"
	xhttp "TradeReview/pkg/http"
	"TradeReview/pkg/logger"
	"TradeReview/pkg/metrics"
	"TradeReview/pkg/queue"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccount    = "acct-42"
	testAdminToken = "admin-s3cret"
)

// holdQueue accepts work and never runs it, so attempts stay pending until a callback arrives.
type holdQueue struct {
	mu sync.Mutex
	n  int
}

func (q *holdQueue) RegisterJob(queue.Job) {}

func (q *holdQueue) Enqueue(context.Context, string, interface{}) error {
	q.mu.Lock()
	q.n++
	q.mu.Unlock()
	return nil
}

func (q *holdQueue) Depth(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n, nil
}

func (q *holdQueue) Saturated(context.Context) bool { return false }
func (q *holdQueue) Start() error                   { return nil }
func (q *holdQueue) Stop(context.Context) error     { return nil }

type nopEngine struct{}

func (nopEngine) Submit(_ context.Context, req *domsvc.AnalysisRequest) (*domsvc.Submission, error) {
	return &domsvc.Submission{Handle: req.AttemptID}, nil
}

type testAPI struct {
	e       *echo.Echo
	signer  *auth.CallbackTokens
	credits *repository.MemoryCredits
}

type apiOption func(*Router)

func newTestAPI(t *testing.T, opts ...apiOption) *testAPI {
	t.Helper()
	lgr := logger.Nop()
	snap, err := instruments.New([]models.Instrument{{Symbol: "RELIANCE", Exchange: "NSE"}})
	require.NoError(t, err)

	trades := repository.NewMemoryTradeLogs()
	credits := repository.NewMemoryCredits()
	ledger := usecase.NewCreditLedger(credits, metrics.Nop{}, lgr)
	signer := auth.NewCallbackTokens("callback-secret")
	d := usecase.NewReviewDispatcher(usecase.DispatcherDeps{
		Repo:    trades,
		Ledger:  ledger,
		Engine:  nopEngine{},
		Queue:   &holdQueue{},
		Events:  repository.NewLogReviewEvents(lgr),
		Sink:    repository.NewLogAttemptSink(lgr),
		Cache:   repository.NopStatusCache{},
		Signer:  signer,
		Metrics: metrics.Nop{},
		Logger:  lgr,
	}, usecase.DispatcherConfig{Timeout: time.Hour, RetryFromRejected: true})
	t.Cleanup(d.Close)

	projector := usecase.NewReviewProjector(trades, repository.NopStatusCache{}, d.Policy(), lgr)
	sweeper := usecase.NewReviewSweeper(d, ledger, trades, nil, 10, lgr)

	r := &Router{
		TradeLogs:  NewTradeLogHandler(lgr, usecase.NewTradeLogService(trades, snap, lgr)),
		Reviews:    NewReviewHandler(lgr, d, projector),
		Credits:    NewCreditHandler(lgr, ledger),
		Callbacks:  NewCallbackHandler(lgr, signer, d),
		Admin:      NewAdminHandler(lgr, ledger, sweeper, time.Hour),
		AdminToken: testAdminToken,
	}
	for _, o := range opts {
		o(r)
	}
	srv := xhttp.NewServer(r, lgr, xhttp.WithCORS(false))
	return &testAPI{e: srv.Echo(), signer: signer, credits: credits}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var env struct {
		Status int             `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	assert.Equal(t, rec.Code, env.Status)
	return rec, env.Data
}

func (a *testAPI) asAccount(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, json.RawMessage) {
	return a.do(t, method, path, body, map[string]string{headerAccount: testAccount})
}

func (a *testAPI) createTrade(t *testing.T) *models.TradeLogEntry {
	t.Helper()
	rec, data := a.asAccount(t, http.MethodPost, "/api/trade-logs", map[string]interface{}{
		"instrument":   "RELIANCE",
		"direction":    "long",
		"quantity":     10,
		"entry_price":  "2500",
		"target_price": "2600",
		"stop_price":   "2450",
	})
	require.Equal(t, http.StatusCreated, rec.Code, string(data))
	var e models.TradeLogEntry
	require.NoError(t, json.Unmarshal(data, &e))
	return &e
}

func (a *testAPI) grant(t *testing.T, regular, bonus int64) {
	t.Helper()
	rec, data := a.do(t, http.MethodPost, "/api/admin/credits",
		models.GrantCreditsRequest{AccountID: testAccount, Regular: regular, Bonus: bonus},
		map[string]string{headerAdmin: testAdminToken})
	require.Equal(t, http.StatusOK, rec.Code, string(data))
}

func decode[T any](t *testing.T, data json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func appErrors(t *testing.T, data json.RawMessage) []*xhttp.AppError {
	return decode[[]*xhttp.AppError](t, data)
}

func TestReviewFlow_RequestCallbackStatus(t *testing.T) {
	a := newTestAPI(t)
	a.grant(t, 2, 0)
	trade := a.createTrade(t)

	rec, data := a.asAccount(t, http.MethodPost, "/api/trade-logs/"+trade.ID+"/review", map[string]bool{"is_from_rewarded_ad": false})
	require.Equal(t, http.StatusAccepted, rec.Code, string(data))
	ack := decode[models.ReviewAck](t, data)
	assert.Equal(t, models.ReviewPending, ack.ReviewStatus)
	assert.Equal(t, models.BucketRegular, ack.CreditType)

	rec, data = a.asAccount(t, http.MethodGet, "/api/trade-logs/"+trade.ID+"/review", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get(echo.HeaderCacheControl))
	view := decode[models.ReviewView](t, data)
	assert.Equal(t, models.ReviewPending, view.ReviewStatus)
	assert.Equal(t, int64(1), view.Cost.CreditsReserved)

	token, err := a.signer.Sign(trade.ID, ack.AttemptID, time.Minute)
	require.NoError(t, err)
	callback := map[string]interface{}{
		"trade_log_id": trade.ID,
		"attempt_id":   ack.AttemptID,
		"verdict": map[string]interface{}{
			"schema_version": 2,
			"outcome":        "valid",
			"analysis": map[string]interface{}{
				"is_valid": true,
				"summary":  "trend intact",
				"chips":    []map[string]string{{"label": "R:R", "value": "2:1"}},
			},
		},
	}
	bearer := map[string]string{echo.HeaderAuthorization: "Bearer " + token}
	for i := 0; i < 2; i++ {
		rec, data = a.do(t, http.MethodPost, "/api/engine/callbacks", callback, bearer)
		require.Equal(t, http.StatusOK, rec.Code, string(data))
		res := decode[models.CompletionResult](t, data)
		assert.Equal(t, i == 0, res.Applied)
		assert.Equal(t, models.ReviewCompleted, res.Status)
	}

	_, data = a.asAccount(t, http.MethodGet, "/api/trade-logs/"+trade.ID+"/review", nil)
	view = decode[models.ReviewView](t, data)
	assert.Equal(t, models.ReviewCompleted, view.ReviewStatus)
	assert.True(t, view.IsReviewCompleted)
	assert.Equal(t, "trend intact", view.Summary)
	assert.InDelta(t, 0.6667, view.Confidence, 1e-9)
	assert.Equal(t, int64(1), view.Cost.CreditsCharged)

	_, data = a.asAccount(t, http.MethodGet, "/api/credits", nil)
	bal := decode[models.CreditBalance](t, data)
	assert.Equal(t, int64(1), bal.RegularCredits)

	rec, data = a.asAccount(t, http.MethodPut, "/api/trade-logs/"+trade.ID, map[string]interface{}{
		"instrument": "RELIANCE", "direction": "long", "quantity": 1,
		"entry_price": "2500", "target_price": "2700", "stop_price": "2400",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ERR_INVALID_STATE", appErrors(t, data)[0].Code)
}

func TestReview_CreditExhausted(t *testing.T) {
	a := newTestAPI(t)
	a.grant(t, 0, 1)
	trade := a.createTrade(t)

	rec, data := a.asAccount(t, http.MethodPost, "/api/trade-logs/"+trade.ID+"/review", nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	errs := appErrors(t, data)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_CREDIT_EXHAUSTED", errs[0].Code)
	assert.Equal(t, true, errs[0].Params["suggest_ad"])
	assert.Equal(t, "regular", errs[0].Params["bucket"])

	rec, data = a.asAccount(t, http.MethodPost, "/api/trade-logs/"+trade.ID+"/review", map[string]bool{"is_from_rewarded_ad": true})
	require.Equal(t, http.StatusAccepted, rec.Code, string(data))

	rec, data = a.asAccount(t, http.MethodPost, "/api/trade-logs/"+trade.ID+"/review/retry", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "pending", appErrors(t, data)[0].Params["review_status"])
}

func TestRewardedAdGrantsBonus(t *testing.T) {
	a := newTestAPI(t)

	rec, data := a.asAccount(t, http.MethodPost, "/api/credits/rewarded-ad", nil)
	require.Equal(t, http.StatusOK, rec.Code, string(data))
	bal := decode[models.CreditBalance](t, data)
	assert.Equal(t, int64(1), bal.BonusCredits)
	assert.NotNil(t, bal.BonusCreditsExpiry)
}

func TestTradeLogValidation(t *testing.T) {
	a := newTestAPI(t)

	rec, data := a.asAccount(t, http.MethodPost, "/api/trade-logs", map[string]interface{}{
		"instrument": "UNKNOWN", "direction": "long", "quantity": 1,
		"entry_price": "10", "target_price": "12", "stop_price": "9",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ERR_UNKNOWN_INSTRUMENT", appErrors(t, data)[0].Code)

	rec, _ = a.asAccount(t, http.MethodPost, "/api/trade-logs", map[string]interface{}{"direction": "up"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = a.asAccount(t, http.MethodGet, "/api/trade-logs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	trade := a.createTrade(t)
	rec, _ = a.do(t, http.MethodGet, "/api/trade-logs/"+trade.ID, nil, map[string]string{headerAccount: "someone-else"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, data = a.asAccount(t, http.MethodGet, "/api/trade-logs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[xhttp.ListDataResponse](t, data)
	assert.Equal(t, int64(1), list.Total)
}

func TestIdentityAndAdminGuards(t *testing.T) {
	a := newTestAPI(t)

	rec, _ := a.do(t, http.MethodGet, "/api/credits", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = a.do(t, http.MethodPost, "/api/admin/reviews/sweep", nil, map[string]string{headerAdmin: "wrong"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, data := a.do(t, http.MethodPost, "/api/admin/reviews/sweep", nil, map[string]string{headerAdmin: testAdminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	rep := decode[usecase.SweepReport](t, data)
	assert.False(t, rep.Skipped)
}

func TestBearerAccountIdentity(t *testing.T) {
	tokens := auth.NewAccountTokens("account-secret")
	a := newTestAPI(t, func(r *Router) { r.Accounts = tokens })

	raw, err := tokens.Issue(testAccount, time.Minute)
	require.NoError(t, err)

	rec, data := a.do(t, http.MethodGet, "/api/credits", nil, map[string]string{echo.HeaderAuthorization: "Bearer " + raw})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testAccount, decode[models.CreditBalance](t, data).AccountID)

	rec, _ = a.do(t, http.MethodGet, "/api/credits", nil, map[string]string{headerAccount: testAccount})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallbackRejectsForeignToken(t *testing.T) {
	a := newTestAPI(t)
	a.grant(t, 1, 0)
	trade := a.createTrade(t)

	_, data := a.asAccount(t, http.MethodPost, "/api/trade-logs/"+trade.ID+"/review", nil)
	ack := decode[models.ReviewAck](t, data)

	other, err := a.signer.Sign(trade.ID, "00000000-0000-0000-0000-000000000000", time.Minute)
	require.NoError(t, err)
	body := map[string]interface{}{
		"trade_log_id": trade.ID,
		"attempt_id":   ack.AttemptID,
		"verdict":      map[string]interface{}{"schema_version": 2, "outcome": "failed"},
	}

	rec, _ := a.do(t, http.MethodPost, "/api/engine/callbacks", body, map[string]string{echo.HeaderAuthorization: "Bearer " + other})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = a.do(t, http.MethodPost, "/api/engine/callbacks", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, data = a.asAccount(t, http.MethodGet, "/api/trade-logs/"+trade.ID+"/review", nil)
	assert.Equal(t, models.ReviewPending, decode[models.ReviewView](t, data).ReviewStatus)
}

func TestRateLimitOnReviewMutations(t *testing.T) {
	a := newTestAPI(t, func(r *Router) { r.Limiter = ratelimit.New(1, 0) })
	a.grant(t, 5, 0)
	trade := a.createTrade(t)

	rec, _ := a.asAccount(t, http.MethodPost, "/api/credits/rewarded-ad", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = a.asAccount(t, http.MethodPost, fmt.Sprintf("/api/trade-logs/%s/review", trade.ID), nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec, _ = a.asAccount(t, http.MethodGet, fmt.Sprintf("/api/trade-logs/%s/review", trade.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
