package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TradeReview/internal/domain/models"
	drepo "TradeReview/internal/domain/repository"
	"TradeReview/pkg/logger"

	"github.com/google/uuid"
)

// CreditLedger is the only writer of credit balances. Every decrement is a conditional
// store operation, so concurrent requests for one account never drive a bucket negative.
type CreditLedger struct {
	store   drepo.CreditStore
	metrics drepo.Metrics
	log     *logger.Logger
	now     func() time.Time

	bonusTTL   time.Duration
	bonusPerAd int64
	provision  int64
}

// LedgerOption configures CreditLedger.
type LedgerOption func(*CreditLedger)

// WithLedgerClock overrides time.Now.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *CreditLedger) { l.now = now }
}

// WithBonusPolicy sets the rewarded-ad grant size and its validity window.
func WithBonusPolicy(perAd int64, ttl time.Duration) LedgerOption {
	return func(l *CreditLedger) {
		l.bonusPerAd = perAd
		l.bonusTTL = ttl
	}
}

// WithProvisionOnDemand creates a missing ledger with n regular credits on the first debit.
// Read-only calls report n without creating anything.
func WithProvisionOnDemand(n int64) LedgerOption {
	return func(l *CreditLedger) { l.provision = n }
}

func NewCreditLedger(store drepo.CreditStore, metrics drepo.Metrics, lgr *logger.Logger, opts ...LedgerOption) *CreditLedger {
	l := &CreditLedger{
		store:      store,
		metrics:    metrics,
		log:        lgr.With(logger.String("component", "credit_ledger")),
		now:        time.Now,
		bonusTTL:   24 * time.Hour,
		bonusPerAd: 1,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CanUse is a read-only check. A positive answer is not a reservation.
func (l *CreditLedger) CanUse(ctx context.Context, accountID string, amount int64, preferBonus bool) (*models.CreditCheck, error) {
	bucket := models.BucketFor(preferBonus)
	check := &models.CreditCheck{Bucket: bucket}

	ledger, err := l.ledger(ctx, accountID)
	if errors.Is(err, models.ErrLedgerNotFound) {
		check.Reason = models.ReasonLedgerNotFound
		return check, nil
	}
	if err != nil {
		return nil, err
	}

	now := l.now()
	check.Available = ledger.Available(bucket, now)
	if check.Available >= amount {
		check.CanUse = true
		check.Reason = models.ReasonOK
		return check, nil
	}

	switch {
	case bucket == models.BucketBonus && ledger.BonusExpired(now):
		check.Reason = models.ReasonBonusExpired
	case bucket == models.BucketBonus:
		check.Reason = models.ReasonNoBonusCredits
	default:
		check.Reason = models.ReasonNoRegularCredits
		// the regular bucket is short and no ad credit was used: watching an ad can fund it
		check.SuggestAd = true
	}
	return check, nil
}

// Consume decrements bucket by amount or fails with a CreditExhaustedError.
func (l *CreditLedger) Consume(ctx context.Context, accountID string, amount int64, bucket models.CreditBucket) error {
	err := l.store.Debit(ctx, accountID, bucket, amount, l.now())
	if l.provisioned(ctx, accountID, err) {
		err = l.store.Debit(ctx, accountID, bucket, amount, l.now())
	}
	if err != nil {
		return l.debitError(bucket, err)
	}
	l.metrics.RecordCredit("consume", bucket)
	return nil
}

// Refund returns amount to bucket. Only call it for an amount that was actually consumed.
func (l *CreditLedger) Refund(ctx context.Context, accountID string, amount int64, bucket models.CreditBucket) error {
	if err := l.store.Credit(ctx, accountID, bucket, amount, l.now()); err != nil {
		return fmt.Errorf("refund %s: %w", bucket, err)
	}
	l.metrics.RecordCredit("refund", bucket)
	return nil
}

// Authorize debits amount and records a held authorization in one atomic step.
func (l *CreditLedger) Authorize(ctx context.Context, accountID, tradeLogID string, amount int64, bucket models.CreditBucket) (*models.Authorization, error) {
	if !bucket.Valid() {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	auth := &models.Authorization{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		TradeLogID: tradeLogID,
		Bucket:     bucket,
		Amount:     amount,
		Status:     models.AuthorizationHeld,
	}
	now := l.now()
	err := l.store.CreateHold(ctx, auth, now)
	if l.provisioned(ctx, accountID, err) {
		err = l.store.CreateHold(ctx, auth, now)
	}
	if err != nil {
		return nil, l.debitError(bucket, err)
	}
	auth.CreatedAt = now
	l.metrics.RecordCredit("authorize", bucket)
	return auth, nil
}

// Capture finalizes a hold as consumed. It reports false when the hold was already settled.
func (l *CreditLedger) Capture(ctx context.Context, authID string) (bool, error) {
	return l.settle(ctx, authID, models.AuthorizationConsumed, "capture")
}

// Release refunds a hold. It reports false when the hold was already settled.
func (l *CreditLedger) Release(ctx context.Context, authID string) (bool, error) {
	return l.settle(ctx, authID, models.AuthorizationRefunded, "release")
}

func (l *CreditLedger) settle(ctx context.Context, authID string, to models.AuthorizationStatus, op string) (bool, error) {
	auth, changed, err := l.store.SettleHold(ctx, authID, to, l.now())
	if err != nil {
		return false, fmt.Errorf("%s hold %s: %w", op, authID, err)
	}
	if !changed {
		if auth.Status != to {
			l.log.Warn("hold already settled the other way",
				logger.String("authorization_id", authID),
				logger.String("wanted", string(to)),
				logger.String("status", string(auth.Status)),
			)
		}
		return false, nil
	}
	l.metrics.RecordCredit(op, auth.Bucket)
	return true, nil
}

// Hold returns the authorization record.
func (l *CreditLedger) Hold(ctx context.Context, authID string) (*models.Authorization, error) {
	return l.store.GetHold(ctx, authID)
}

// OpenHolds lists held authorizations created before the cutoff.
func (l *CreditLedger) OpenHolds(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Authorization, error) {
	return l.store.ListOpenHolds(ctx, createdBefore, limit)
}

// Balance returns the effective balance with expired bonus credits shown as zero.
func (l *CreditLedger) Balance(ctx context.Context, accountID string) (*models.CreditBalance, error) {
	ledger, err := l.ledger(ctx, accountID)
	if errors.Is(err, models.ErrLedgerNotFound) {
		return &models.CreditBalance{AccountID: accountID}, nil
	}
	if err != nil {
		return nil, err
	}
	return balanceView(ledger, l.now()), nil
}

// GrantRegular provisions or refills regular credits.
func (l *CreditLedger) GrantRegular(ctx context.Context, accountID string, amount int64) (*models.CreditBalance, error) {
	ledger, err := l.store.AddRegular(ctx, accountID, amount, l.now())
	if err != nil {
		return nil, fmt.Errorf("grant regular: %w", err)
	}
	l.metrics.RecordCredit("grant", models.BucketRegular)
	return balanceView(ledger, l.now()), nil
}

// GrantBonus adds bonus credits that expire at expiry. An expired bucket restarts from amount.
func (l *CreditLedger) GrantBonus(ctx context.Context, accountID string, amount int64, expiry time.Time) (*models.CreditBalance, error) {
	now := l.now()
	if !expiry.After(now) {
		return nil, fmt.Errorf("%w: bonus expiry %s is not in the future", models.ErrInvalidParams, expiry.Format(time.RFC3339))
	}
	ledger, err := l.store.GrantBonus(ctx, accountID, amount, expiry, now)
	if err != nil {
		return nil, fmt.Errorf("grant bonus: %w", err)
	}
	l.metrics.RecordCredit("grant", models.BucketBonus)
	return balanceView(ledger, now), nil
}

// GrantRewardedAd credits the configured bonus for one watched ad.
func (l *CreditLedger) GrantRewardedAd(ctx context.Context, accountID string) (*models.CreditBalance, error) {
	return l.GrantBonus(ctx, accountID, l.bonusPerAd, l.now().Add(l.bonusTTL))
}

// ledger reads without writing. A missing ledger under provision-on-demand is reported
// as the balance it would be created with.
func (l *CreditLedger) ledger(ctx context.Context, accountID string) (*models.CreditLedger, error) {
	ledger, err := l.store.GetLedger(ctx, accountID)
	if errors.Is(err, models.ErrLedgerNotFound) && l.provision > 0 {
		return &models.CreditLedger{AccountID: accountID, RegularCredits: l.provision}, nil
	}
	return ledger, err
}

// provisioned creates a missing ledger after a debit failed with ErrLedgerNotFound and
// reports whether the debit is worth retrying. Creation is insert-if-absent, so racing
// first requests provision once.
func (l *CreditLedger) provisioned(ctx context.Context, accountID string, debitErr error) bool {
	if l.provision <= 0 || !errors.Is(debitErr, models.ErrLedgerNotFound) {
		return false
	}
	_, created, err := l.store.EnsureLedger(ctx, accountID, l.provision, l.now())
	if err != nil {
		l.log.Error("provision credit ledger", logger.String("account_id", accountID), logger.Error(err))
		return false
	}
	if created {
		l.log.Info("provisioned credit ledger", logger.String("account_id", accountID), logger.Int64("regular", l.provision))
	}
	return true
}

func (l *CreditLedger) debitError(bucket models.CreditBucket, err error) error {
	switch {
	case errors.Is(err, models.ErrInsufficientCredit):
		reason := models.ReasonNoRegularCredits
		if bucket == models.BucketBonus {
			reason = models.ReasonNoBonusCredits
		}
		return &models.CreditExhaustedError{Bucket: bucket, Reason: reason, SuggestAd: bucket == models.BucketRegular}
	case errors.Is(err, models.ErrLedgerNotFound):
		return &models.CreditExhaustedError{Bucket: bucket, Reason: models.ReasonLedgerNotFound}
	}
	return fmt.Errorf("debit %s: %w", bucket, err)
}

func balanceView(l *models.CreditLedger, now time.Time) *models.CreditBalance {
	b := &models.CreditBalance{
		AccountID:      l.AccountID,
		RegularCredits: l.RegularCredits,
		BonusCredits:   l.EffectiveBonus(now),
	}
	if b.BonusCredits > 0 {
		exp := l.BonusCreditsExpiry.UTC().Format(time.RFC3339)
		b.BonusCreditsExpiry = &exp
	}
	return b
}
