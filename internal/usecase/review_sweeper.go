package usecase

import (
	"context"
	"errors"
	"time"

	"TradeReview/internal/domain/models"
	drepo "TradeReview/internal/domain/repository"
	"TradeReview/pkg/cache"
	"TradeReview/pkg/logger"
)

const sweepLockKey = "lock:review:sweep"

// SweepReport summarizes one sweeper pass.
type SweepReport struct {
	TimedOut int  `json:"timed_out"`
	Captured int  `json:"captured"`
	Released int  `json:"released"`
	Skipped  bool `json:"skipped"`
}

// ReviewSweeper recovers attempts that outlived their timer, e.g. across a restart,
// and settles holds whose record already left pending.
type ReviewSweeper struct {
	dispatcher *ReviewDispatcher
	ledger     *CreditLedger
	repo       drepo.TradeLogRepository
	lock       cache.Service
	batch      int
	log        *logger.Logger
	now        func() time.Time
}

// NewReviewSweeper builds the sweeper. lock may be nil for single-replica deployments.
func NewReviewSweeper(d *ReviewDispatcher, ledger *CreditLedger, repo drepo.TradeLogRepository, lock cache.Service, batch int, lgr *logger.Logger) *ReviewSweeper {
	if batch <= 0 {
		batch = 100
	}
	return &ReviewSweeper{
		dispatcher: d,
		ledger:     ledger,
		repo:       repo,
		lock:       lock,
		batch:      batch,
		log:        lgr.With(logger.String("component", "review_sweeper")),
		now:        d.now,
	}
}

// Run is the cron entry point.
func (s *ReviewSweeper) Run(ctx context.Context) {
	rep, err := s.Sweep(ctx)
	if err != nil {
		s.log.Error("review sweep failed", logger.Error(err))
		return
	}
	if rep.TimedOut+rep.Captured+rep.Released > 0 {
		s.log.Info("review sweep",
			logger.Int("timed_out", rep.TimedOut),
			logger.Int("captured", rep.Captured),
			logger.Int("released", rep.Released))
	}
}

// Sweep runs one pass. Only one replica sweeps at a time when a lock is configured.
func (s *ReviewSweeper) Sweep(ctx context.Context) (*SweepReport, error) {
	rep := &SweepReport{}
	if s.lock != nil {
		ok, err := s.lock.TryLock(ctx, sweepLockKey, time.Minute)
		if err != nil {
			return nil, err
		}
		if !ok {
			rep.Skipped = true
			return rep, nil
		}
		defer func() {
			if err := s.lock.Unlock(context.WithoutCancel(ctx), sweepLockKey); err != nil {
				s.log.Warn("release sweep lock", logger.Error(err))
			}
		}()
	}

	cutoff := s.now().Add(-s.dispatcher.Timeout())

	stale, err := s.repo.ListStalePending(ctx, cutoff, s.batch)
	if err != nil {
		return nil, err
	}
	for _, e := range stale {
		applied, err := s.dispatcher.Fault(ctx, e.ID, e.ReviewAttemptID, FaultEngineTimeout)
		if err != nil {
			s.log.Error("fault stale attempt", logger.String("attempt_id", e.ReviewAttemptID), logger.Error(err))
			continue
		}
		if applied {
			rep.TimedOut++
		}
	}

	holds, err := s.ledger.OpenHolds(ctx, cutoff, s.batch)
	if err != nil {
		return nil, err
	}
	for _, h := range holds {
		if err := s.reconcile(ctx, h, rep); err != nil {
			s.log.Error("reconcile hold", logger.String("authorization_id", h.ID), logger.Error(err))
		}
	}
	return rep, nil
}

// reconcile settles a held authorization the record no longer waits on. A hold is captured
// only when the record still names its attempt in a charged state; anything else is refunded.
func (s *ReviewSweeper) reconcile(ctx context.Context, h *models.Authorization, rep *SweepReport) error {
	entry, err := s.repo.Get(ctx, h.TradeLogID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	if entry != nil && entry.ReviewAttemptID == h.ID {
		switch {
		case entry.ReviewStatus == models.ReviewPending:
			return nil
		case entry.ReviewStatus.Charged():
			ok, err := s.ledger.Capture(ctx, h.ID)
			if ok {
				rep.Captured++
			}
			return err
		}
	}
	ok, err := s.ledger.Release(ctx, h.ID)
	if ok {
		rep.Released++
	}
	return err
}
