package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"TradeReview/internal/domain/models"
	drepo "TradeReview/internal/domain/repository"
	domsvc "TradeReview/internal/domain/service"
	"TradeReview/pkg/logger"
	"TradeReview/pkg/queue"

	"github.com/oklog/ulid/v2"
)

// Fault codes recorded on attempts that ended without an engine answer.
const (
	FaultEngineTimeout     = "ENGINE_TIMEOUT"
	FaultEngineUnavailable = "ENGINE_UNAVAILABLE"
	FaultDispatchRejected  = "DISPATCH_REJECTED"
	FaultEngineMalformed   = "ENGINE_MALFORMED"
)

var faultMessages = map[string]string{
	FaultEngineTimeout:     "The analysis engine did not answer in time. Your credit was refunded.",
	FaultEngineUnavailable: "The analysis engine could not be reached. Your credit was refunded.",
	FaultDispatchRejected:  "The review could not be scheduled. Your credit was refunded.",
	FaultEngineMalformed:   "The analysis engine returned an unreadable result. Your credit was refunded.",
}

// DispatcherConfig holds the review policy knobs.
type DispatcherConfig struct {
	Timeout           time.Duration
	RetryFromRejected bool
	CallbackURL       string
	CallbackTTL       time.Duration
}

// ReviewDispatcher runs review attempts end to end and keeps the record and the ledger in step.
// It is the only writer of review state.
type ReviewDispatcher struct {
	repo    drepo.TradeLogRepository
	ledger  *CreditLedger
	engine  domsvc.AnalysisEngine
	queue   queue.Queue
	events  drepo.ReviewEventPublisher
	sink    drepo.AttemptSink
	cache   drepo.StatusCache
	signer  domsvc.CallbackSigner
	metrics drepo.Metrics
	log     *logger.Logger
	now     func() time.Time

	cfg    DispatcherConfig
	policy models.RetryPolicy

	mu     sync.Mutex
	timers map[string]*time.Timer

	baseCtx context.Context
	cancel  context.CancelFunc
}

// DispatcherDeps groups the collaborators of ReviewDispatcher.
type DispatcherDeps struct {
	Repo    drepo.TradeLogRepository
	Ledger  *CreditLedger
	Engine  domsvc.AnalysisEngine
	Queue   queue.Queue
	Events  drepo.ReviewEventPublisher
	Sink    drepo.AttemptSink
	Cache   drepo.StatusCache
	Signer  domsvc.CallbackSigner
	Metrics drepo.Metrics
	Logger  *logger.Logger
	Now     func() time.Time
}

func NewReviewDispatcher(deps DispatcherDeps, cfg DispatcherConfig) *ReviewDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.CallbackTTL <= 0 {
		cfg.CallbackTTL = cfg.Timeout + time.Minute
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &ReviewDispatcher{
		repo:    deps.Repo,
		ledger:  deps.Ledger,
		engine:  deps.Engine,
		queue:   deps.Queue,
		events:  deps.Events,
		sink:    deps.Sink,
		cache:   deps.Cache,
		signer:  deps.Signer,
		metrics: deps.Metrics,
		log:     deps.Logger.With(logger.String("component", "review_dispatcher")),
		now:     now,
		cfg:     cfg,
		policy:  models.RetryPolicy{AllowFromRejected: cfg.RetryFromRejected},
		timers:  make(map[string]*time.Timer),
		baseCtx: ctx,
		cancel:  cancel,
	}
	deps.Queue.RegisterJob(&DispatchJob{d: d})
	return d
}

// Policy returns the retry policy in force.
func (d *ReviewDispatcher) Policy() models.RetryPolicy { return d.policy }

// Timeout is the bounded wait for an engine answer.
func (d *ReviewDispatcher) Timeout() time.Duration { return d.cfg.Timeout }

// RequestReview starts the first attempt for an entry.
func (d *ReviewDispatcher) RequestReview(ctx context.Context, cmd models.ReviewCommand) (*models.ReviewAck, error) {
	return d.start(ctx, cmd, false)
}

// RetryReview starts a new, separately charged attempt from a finished state.
func (d *ReviewDispatcher) RetryReview(ctx context.Context, cmd models.ReviewCommand) (*models.ReviewAck, error) {
	return d.start(ctx, cmd, true)
}

func (d *ReviewDispatcher) start(ctx context.Context, cmd models.ReviewCommand, retry bool) (*models.ReviewAck, error) {
	op := "request"
	if retry {
		op = "retry"
	}
	ack, err := d.begin(ctx, cmd, retry)
	d.metrics.RecordReviewRequest(op, requestResult(err))
	return ack, err
}

func (d *ReviewDispatcher) begin(ctx context.Context, cmd models.ReviewCommand, retry bool) (*models.ReviewAck, error) {
	entry, err := d.repo.Get(ctx, cmd.TradeLogID)
	if errors.Is(err, models.ErrNotFound) || (err == nil && !entry.OwnedBy(cmd.AccountID)) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load trade log: %w", err)
	}

	var from []models.ReviewStatus
	if retry {
		if !d.policy.CanRetry(entry.ReviewStatus) {
			return nil, &models.InvalidStateError{Current: entry.ReviewStatus, Op: "retry review"}
		}
		from = d.policy.RetryableStates()
	} else {
		if !models.CanRequest(entry.ReviewStatus) {
			return nil, &models.InvalidStateError{Current: entry.ReviewStatus, Op: "request review"}
		}
		from = []models.ReviewStatus{models.ReviewNone}
	}

	if d.queue.Saturated(ctx) {
		return nil, models.ErrDispatchBusy
	}

	bucket := models.BucketFor(cmd.IsFromRewardedAd)
	check, err := d.ledger.CanUse(ctx, cmd.AccountID, 1, cmd.IsFromRewardedAd)
	if err != nil {
		return nil, err
	}
	if !check.CanUse {
		return nil, &models.CreditExhaustedError{Bucket: bucket, Reason: check.Reason, SuggestAd: check.SuggestAd}
	}

	auth, err := d.ledger.Authorize(ctx, cmd.AccountID, entry.ID, 1, bucket)
	if err != nil {
		return nil, err
	}

	now := d.now()
	started, err := d.repo.BeginAttempt(ctx, models.AttemptStart{
		TradeLogID:       entry.ID,
		AccountID:        cmd.AccountID,
		AttemptID:        auth.ID,
		CreditType:       bucket,
		IsFromRewardedAd: cmd.IsFromRewardedAd,
		FromStates:       from,
	}, now)
	if err != nil {
		// lost the race to another request for the same entry
		if _, rerr := d.ledger.Release(context.WithoutCancel(ctx), auth.ID); rerr != nil {
			d.log.Error("release after failed transition", logger.String("authorization_id", auth.ID), logger.Error(rerr))
		}
		return nil, err
	}

	d.cache.Invalidate(ctx, started.AccountID, started.ID)
	d.publish(ctx, started, models.EventReviewRequested)
	d.arm(started.ID, auth.ID)

	ack := &models.ReviewAck{
		TradeLogID:   started.ID,
		AttemptID:    auth.ID,
		ReviewStatus: models.ReviewPending,
		CreditType:   bucket,
	}

	err = d.queue.Enqueue(ctx, DispatchJobType, &DispatchPayload{TradeLogID: started.ID, AttemptID: auth.ID})
	if depth, derr := d.queue.Depth(ctx); derr == nil {
		d.metrics.RecordQueueDepth(depth)
	}
	if err != nil {
		d.log.Warn("dispatch enqueue failed",
			logger.String("trade_log_id", started.ID),
			logger.String("attempt_id", auth.ID),
			logger.Error(err))
		if applied, ferr := d.Fault(context.WithoutCancel(ctx), started.ID, auth.ID, FaultDispatchRejected); ferr == nil && applied {
			ack.ReviewStatus = models.ReviewErrored
		}
	}

	d.log.Info("review accepted",
		logger.String("trade_log_id", started.ID),
		logger.String("attempt_id", auth.ID),
		logger.String("credit_type", string(bucket)),
		logger.Int("attempt", started.ReviewAttempts))
	return ack, nil
}

// Complete applies an engine verdict to the attempt. A verdict for an attempt that is no
// longer pending is ignored and charges nothing.
func (d *ReviewDispatcher) Complete(ctx context.Context, c models.Completion) (*models.CompletionResult, error) {
	v := c.Verdict
	if v == nil || !v.Outcome.Valid() {
		return nil, fmt.Errorf("%w: completion for attempt %s has no known outcome", models.ErrMalformedVerdict, c.AttemptID)
	}
	if v.Outcome != models.OutcomeFailed && v.Analysis == nil {
		return nil, fmt.Errorf("%w: %s verdict for attempt %s without analysis", models.ErrMalformedVerdict, v.Outcome, c.AttemptID)
	}

	status := models.OutcomeStatus(v.Outcome)
	fin := models.AttemptFinish{
		TradeLogID: c.TradeLogID,
		AttemptID:  c.AttemptID,
		Status:     status,
	}
	if v.Analysis != nil {
		fin.Result = []models.AnalysisRecord{*v.Analysis}
	}
	if status == models.ReviewCompleted {
		fin.Metadata = v.Usage.Metadata()
	}
	if status == models.ReviewFailed {
		f := v.Failure
		if f == nil {
			f = &models.EngineFailure{Code: "ENGINE_FAILED"}
		}
		msg := f.Message
		if msg == "" {
			msg = "The analysis engine could not review this trade."
		}
		fin.Error = &models.ReviewError{
			Message:        msg,
			Code:           f.Code,
			Classification: models.ClassificationEngine,
			Retryable:      true,
		}
	}

	applied, err := d.repo.FinishAttempt(ctx, fin, d.now())
	if err != nil {
		return nil, fmt.Errorf("finish attempt %s: %w", c.AttemptID, err)
	}
	if !applied {
		d.metrics.RecordReviewOutcome("stale")
		d.log.Info("stale verdict ignored",
			logger.String("trade_log_id", c.TradeLogID),
			logger.String("attempt_id", c.AttemptID),
			logger.String("outcome", string(v.Outcome)))
		res := &models.CompletionResult{Applied: false}
		if cur, gerr := d.repo.Get(ctx, c.TradeLogID); gerr == nil {
			res.Status = cur.ReviewStatus
		}
		return res, nil
	}

	d.disarm(c.AttemptID)
	if _, err := d.ledger.Capture(ctx, c.AttemptID); err != nil {
		// the sweeper captures holds whose record already settled as charged
		d.metrics.RecordError("capture")
		d.log.Error("capture hold", logger.String("attempt_id", c.AttemptID), logger.Error(err))
	}
	d.settled(ctx, c.TradeLogID, c.AttemptID, status, v.Usage)
	return &models.CompletionResult{Applied: true, Status: status}, nil
}

// Fault ends a pending attempt as an infra error and refunds its hold.
// It reports false when the attempt had already left pending.
func (d *ReviewDispatcher) Fault(ctx context.Context, tradeLogID, attemptID, code string) (bool, error) {
	msg, ok := faultMessages[code]
	if !ok {
		msg = "The review could not be completed. Your credit was refunded."
	}
	applied, err := d.repo.FinishAttempt(ctx, models.AttemptFinish{
		TradeLogID: tradeLogID,
		AttemptID:  attemptID,
		Status:     models.ReviewErrored,
		Error: &models.ReviewError{
			Message:        msg,
			Code:           code,
			Classification: models.ClassificationInfra,
			Retryable:      true,
		},
	}, d.now())
	if err != nil {
		return false, fmt.Errorf("fault attempt %s: %w", attemptID, err)
	}
	if !applied {
		return false, nil
	}

	d.disarm(attemptID)
	if _, err := d.ledger.Release(ctx, attemptID); err != nil {
		d.metrics.RecordError("release")
		d.log.Error("release hold", logger.String("attempt_id", attemptID), logger.Error(err))
	}
	d.metrics.RecordError(code)
	d.log.Warn("review attempt faulted",
		logger.String("trade_log_id", tradeLogID),
		logger.String("attempt_id", attemptID),
		logger.String("code", code))
	d.settled(ctx, tradeLogID, attemptID, models.ReviewErrored, nil)
	return true, nil
}

// Close stops pending timers. Attempts still in flight are recovered by the sweeper.
func (d *ReviewDispatcher) Close() {
	d.cancel()
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
}

// arm starts the bounded wait. The map entry is written under the lock before the
// callback can reach disarm.
func (d *ReviewDispatcher) arm(tradeLogID, attemptID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timers[attemptID] = time.AfterFunc(d.cfg.Timeout, func() {
		if d.baseCtx.Err() != nil {
			return
		}
		if _, err := d.Fault(d.baseCtx, tradeLogID, attemptID, FaultEngineTimeout); err != nil {
			d.log.Error("timeout fault", logger.String("attempt_id", attemptID), logger.Error(err))
		}
	})
}

func (d *ReviewDispatcher) disarm(attemptID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[attemptID]; ok {
		t.Stop()
		delete(d.timers, attemptID)
	}
}

// armed reports the number of attempts waiting on a timer.
func (d *ReviewDispatcher) armed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// settled runs the side effects of a finished attempt. Their failures never undo the transition.
func (d *ReviewDispatcher) settled(ctx context.Context, tradeLogID, attemptID string, status models.ReviewStatus, usage *models.Usage) {
	d.metrics.RecordReviewOutcome(string(status))

	entry, err := d.repo.Get(ctx, tradeLogID)
	if err != nil {
		d.log.Error("reload settled entry", logger.String("trade_log_id", tradeLogID), logger.Error(err))
		return
	}
	d.cache.Invalidate(ctx, entry.AccountID, entry.ID)
	d.publish(ctx, entry, models.EventForStatus(status))

	rec := &models.AttemptRecord{
		AttemptID:  attemptID,
		TradeLogID: entry.ID,
		AccountID:  entry.AccountID,
		Instrument: entry.Instrument,
		Status:     status,
		CreditType: entry.CreditType,
		Charged:    status.Charged(),
		SettledAt:  d.now(),
	}
	if entry.ReviewRequestedAt != nil {
		rec.RequestedAt = *entry.ReviewRequestedAt
		d.metrics.RecordLatency("review_attempt", rec.SettledAt.Sub(rec.RequestedAt).Seconds())
	}
	if entry.ReviewError != nil {
		rec.ErrorCode = entry.ReviewError.Code
	}
	if usage != nil {
		rec.Model = usage.Model
		rec.InputTokens = usage.InputTokens
		rec.OutputTokens = usage.OutputTokens
		rec.CostUSD, _ = usage.CostUSD.Float64()
	}
	if err := d.sink.Record(ctx, rec); err != nil {
		d.metrics.RecordError("attempt_sink")
		d.log.Warn("record attempt", logger.String("attempt_id", attemptID), logger.Error(err))
	}
}

func (d *ReviewDispatcher) publish(ctx context.Context, e *models.TradeLogEntry, typ models.ReviewEventType) {
	ev := &models.ReviewEvent{
		ID:         ulid.Make().String(),
		Type:       typ,
		TradeLogID: e.ID,
		AccountID:  e.AccountID,
		AttemptID:  e.ReviewAttemptID,
		Status:     e.ReviewStatus,
		CreditType: e.CreditType,
		OccurredAt: d.now().UTC(),
	}
	if e.ReviewError != nil && e.ReviewStatus.Terminal() {
		ev.ErrorCode = e.ReviewError.Code
	}
	if err := d.events.Publish(ctx, ev); err != nil {
		d.metrics.RecordError("event_publish")
		d.log.Warn("publish review event",
			logger.String("type", string(typ)),
			logger.String("trade_log_id", e.ID),
			logger.Error(err))
	}
}

// submit hands one attempt to the engine. It runs on a queue worker.
func (d *ReviewDispatcher) submit(ctx context.Context, p *DispatchPayload) error {
	entry, err := d.repo.Get(ctx, p.TradeLogID)
	if err != nil {
		return fmt.Errorf("load trade log %s: %w", p.TradeLogID, err)
	}
	if entry.ReviewStatus != models.ReviewPending || entry.ReviewAttemptID != p.AttemptID {
		d.log.Debug("dispatch skipped, attempt no longer pending", logger.String("attempt_id", p.AttemptID))
		return nil
	}

	req := &domsvc.AnalysisRequest{
		TradeLogID:   entry.ID,
		AttemptID:    p.AttemptID,
		AccountID:    entry.AccountID,
		Params:       entry.TradeParams,
		RewardToRisk: entry.RewardToRisk().StringFixed(2),
		Deadline:     d.now().Add(d.cfg.Timeout).UTC(),
	}
	if entry.ReviewRequestedAt != nil {
		req.Deadline = entry.ReviewRequestedAt.Add(d.cfg.Timeout).UTC()
	}
	if d.signer != nil && d.cfg.CallbackURL != "" {
		token, err := d.signer.Sign(entry.ID, p.AttemptID, d.cfg.CallbackTTL)
		if err != nil {
			return fmt.Errorf("sign callback: %w", err)
		}
		req.CallbackURL = d.cfg.CallbackURL
		req.CallbackToken = token
	}

	started := d.now()
	sub, err := d.engine.Submit(ctx, req)
	d.metrics.RecordLatency("engine_submit", d.now().Sub(started).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			// shutting down: the timer or the sweeper settles the attempt
			return ctx.Err()
		}
		d.log.Warn("engine submit failed", logger.String("attempt_id", p.AttemptID), logger.Error(err))
		_, ferr := d.Fault(ctx, entry.ID, p.AttemptID, FaultEngineUnavailable)
		return ferr
	}

	d.log.Debug("attempt submitted",
		logger.String("attempt_id", p.AttemptID),
		logger.String("handle", sub.Handle),
		logger.Bool("inline", sub.Verdict != nil))
	if sub.Verdict != nil {
		_, err := d.Complete(ctx, models.Completion{TradeLogID: entry.ID, AttemptID: p.AttemptID, Verdict: sub.Verdict})
		if errors.Is(err, models.ErrMalformedVerdict) {
			d.log.Warn("inline verdict rejected", logger.String("attempt_id", p.AttemptID), logger.Error(err))
			_, err = d.Fault(ctx, entry.ID, p.AttemptID, FaultEngineMalformed)
		}
		return err
	}
	return nil
}

func requestResult(err error) string {
	var ce *models.CreditExhaustedError
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrInvalidState):
		return "invalid_state"
	case errors.As(err, &ce):
		return "credit_exhausted"
	case errors.Is(err, models.ErrDispatchBusy):
		return "busy"
	}
	return "error"
}

// DispatchJobType is the queue message type of review dispatch.
const DispatchJobType = "review.dispatch"

// DispatchPayload identifies the attempt to submit.
type DispatchPayload struct {
	TradeLogID string `json:"trade_log_id"`
	AttemptID  string `json:"attempt_id"`
}

// DispatchJob adapts the dispatcher to the worker queue.
type DispatchJob struct {
	d *ReviewDispatcher
}

func (j *DispatchJob) Name() string { return "review_dispatch" }

func (j *DispatchJob) Type() string { return DispatchJobType }

func (j *DispatchJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[DispatchPayload](payload)
	if err != nil {
		return err
	}
	return j.d.submit(ctx, p)
}
