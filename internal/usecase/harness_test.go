package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"TradeReview/internal/domain/models"
	domsvc "TradeReview/internal/domain/service"
	"TradeReview/internal/repository"
	"TradeReview/pkg/logger"
	"TradeReview/pkg/metrics"
	"TradeReview/pkg/queue"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const acct = "acct-1"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// stubQueue records enqueued work; drain runs it on the calling goroutine.
type stubQueue struct {
	mu        sync.Mutex
	jobs      map[string]queue.Job
	pending   []queue.Message
	saturated bool
	err       error
}

func newStubQueue() *stubQueue { return &stubQueue{jobs: map[string]queue.Job{}} }

func (q *stubQueue) RegisterJob(job queue.Job) { q.jobs[job.Type()] = job }

func (q *stubQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.pending = append(q.pending, queue.Message{Type: msgType, Payload: payload})
	return nil
}

func (q *stubQueue) Depth(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), nil
}

func (q *stubQueue) Saturated(context.Context) bool { return q.saturated }
func (q *stubQueue) Start() error                   { return nil }
func (q *stubQueue) Stop(context.Context) error     { return nil }

func (q *stubQueue) drain(t *testing.T) {
	t.Helper()
	q.mu.Lock()
	msgs := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, m := range msgs {
		require.NoError(t, q.jobs[m.Type].Handle(context.Background(), m.Payload))
	}
}

type fakeEngine struct {
	mu      sync.Mutex
	reqs    []*domsvc.AnalysisRequest
	err     error
	verdict *models.Verdict
}

func (e *fakeEngine) Submit(_ context.Context, req *domsvc.AnalysisRequest) (*domsvc.Submission, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqs = append(e.reqs, req)
	if e.err != nil {
		return nil, e.err
	}
	return &domsvc.Submission{Handle: "h-" + req.AttemptID, Verdict: e.verdict}, nil
}

func (e *fakeEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reqs)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []*models.ReviewEvent
}

func (r *recordingEvents) Publish(_ context.Context, ev *models.ReviewEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) types() []models.ReviewEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ReviewEventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type recordingSink struct {
	mu   sync.Mutex
	rows []*models.AttemptRecord
}

func (s *recordingSink) Record(_ context.Context, rec *models.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rec)
	return nil
}

func (s *recordingSink) Close() error { return nil }

// recordingMetrics keeps review counters so tests can tell outcomes from request results.
type recordingMetrics struct {
	metrics.Nop
	mu       sync.Mutex
	requests []string
	outcomes []string
}

func (m *recordingMetrics) RecordReviewRequest(op, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, op+"/"+result)
}

func (m *recordingMetrics) RecordReviewOutcome(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, status)
}

func (m *recordingMetrics) snapshot() (requests, outcomes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...), append([]string(nil), m.outcomes...)
}

type harness struct {
	clock   *clock
	repo    *repository.MemoryTradeLogs
	credits *repository.MemoryCredits
	ledger  *CreditLedger
	engine  *fakeEngine
	queue   *stubQueue
	events  *recordingEvents
	sink    *recordingSink
	metrics *recordingMetrics
	d       *ReviewDispatcher
}

type harnessOption func(*DispatcherConfig)

func withTimeout(d time.Duration) harnessOption {
	return func(c *DispatcherConfig) { c.Timeout = d }
}

func withRetryFromRejected(allow bool) harnessOption {
	return func(c *DispatcherConfig) { c.RetryFromRejected = allow }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		clock:   newClock(),
		repo:    repository.NewMemoryTradeLogs(),
		credits: repository.NewMemoryCredits(),
		engine:  &fakeEngine{},
		queue:   newStubQueue(),
		events:  &recordingEvents{},
		sink:    &recordingSink{},
		metrics: &recordingMetrics{},
	}
	h.ledger = NewCreditLedger(h.credits, metrics.Nop{}, logger.Nop(), WithLedgerClock(h.clock.Now))

	cfg := DispatcherConfig{Timeout: time.Hour, RetryFromRejected: true}
	for _, o := range opts {
		o(&cfg)
	}
	h.d = NewReviewDispatcher(DispatcherDeps{
		Repo:    h.repo,
		Ledger:  h.ledger,
		Engine:  h.engine,
		Queue:   h.queue,
		Events:  h.events,
		Sink:    h.sink,
		Cache:   repository.NopStatusCache{},
		Metrics: h.metrics,
		Logger:  logger.Nop(),
		Now:     h.clock.Now,
	}, cfg)
	t.Cleanup(h.d.Close)
	return h
}

func (h *harness) entry(t *testing.T, owner string) *models.TradeLogEntry {
	t.Helper()
	now := h.clock.Now()
	e := &models.TradeLogEntry{
		ID:        uuid.NewString(),
		AccountID: owner,
		TradeParams: models.TradeParams{
			Instrument:  "RELIANCE",
			Direction:   models.DirectionLong,
			Quantity:    10,
			EntryPrice:  decimal.RequireFromString("100"),
			TargetPrice: decimal.RequireFromString("120"),
			StopPrice:   decimal.RequireFromString("90"),
		},
		ReviewStatus: models.ReviewNone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, h.repo.Create(context.Background(), e))
	return e
}

func (h *harness) grant(t *testing.T, regular, bonus int64) {
	t.Helper()
	ctx := context.Background()
	_, err := h.credits.AddRegular(ctx, acct, regular, h.clock.Now())
	require.NoError(t, err)
	if bonus > 0 {
		_, err = h.credits.GrantBonus(ctx, acct, bonus, h.clock.Now().Add(24*time.Hour), h.clock.Now())
		require.NoError(t, err)
	}
}

func (h *harness) balance(t *testing.T) (regular, bonus int64) {
	t.Helper()
	l, err := h.credits.GetLedger(context.Background(), acct)
	require.NoError(t, err)
	return l.RegularCredits, l.EffectiveBonus(h.clock.Now())
}

func (h *harness) record(t *testing.T, id string) *models.TradeLogEntry {
	t.Helper()
	e, err := h.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return e
}

func (h *harness) hold(t *testing.T, id string) *models.Authorization {
	t.Helper()
	a, err := h.credits.GetHold(context.Background(), id)
	require.NoError(t, err)
	return a
}

func flag(b bool) *bool { return &b }

func validVerdict() *models.Verdict {
	rr := 0.8
	return &models.Verdict{
		SchemaVersion: models.VerdictSchemaCurrent,
		Outcome:       models.OutcomeValid,
		Analysis: &models.AnalysisRecord{
			IsValid: flag(true),
			Summary: "clean setup",
			Chips:   []models.UIChip{{Label: "R:R", Value: "2:1", Confidence: &rr}},
		},
		Usage: &models.Usage{Model: "m1", InputTokens: 1200, OutputTokens: 300, CostUSD: decimal.RequireFromString("0.0042")},
	}
}

func rejectedVerdict() *models.Verdict {
	return &models.Verdict{
		SchemaVersion: models.VerdictSchemaCurrent,
		Outcome:       models.OutcomeRejected,
		Analysis:      &models.AnalysisRecord{InsufficientData: true, Summary: "not enough market data"},
	}
}

func failedVerdict() *models.Verdict {
	return &models.Verdict{
		SchemaVersion: models.VerdictSchemaCurrent,
		Outcome:       models.OutcomeFailed,
		Failure:       &models.EngineFailure{Code: "CHART_RENDER", Message: "chart generation failed"},
	}
}

var errEngineDown = errors.New("connection refused")
