package repository

import (
	"context"
	"time"

	"TradeReview/internal/domain/models"
)

// TradeLogRepository persists trade log entries and their review records.
// All review transitions are conditional writes; callers never read-modify-write a status.
type TradeLogRepository interface {
	Create(ctx context.Context, e *models.TradeLogEntry) error
	Get(ctx context.Context, id string) (*models.TradeLogEntry, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.TradeLogEntry, int64, error)
	// UpdateParams fails with ErrInvalidState once a review has been requested.
	UpdateParams(ctx context.Context, id, accountID string, p models.TradeParams, now time.Time) (*models.TradeLogEntry, error)
	// BeginAttempt moves the record to pending only if its status is in start.FromStates.
	BeginAttempt(ctx context.Context, start models.AttemptStart, now time.Time) (*models.TradeLogEntry, error)
	// FinishAttempt applies fin only while the record is pending for fin.AttemptID.
	FinishAttempt(ctx context.Context, fin models.AttemptFinish, now time.Time) (bool, error)
	ListStalePending(ctx context.Context, requestedBefore time.Time, limit int) ([]*models.TradeLogEntry, error)
	Health(ctx context.Context) error
}

// CreditStore is the ledger persistence. Every decrement is conditional and never goes negative.
type CreditStore interface {
	GetLedger(ctx context.Context, accountID string) (*models.CreditLedger, error)
	AddRegular(ctx context.Context, accountID string, amount int64, now time.Time) (*models.CreditLedger, error)
	// EnsureLedger creates the ledger with regular credits only when none exists and returns the stored row.
	// The bool is true when this call created it.
	EnsureLedger(ctx context.Context, accountID string, regular int64, now time.Time) (*models.CreditLedger, bool, error)
	// GrantBonus adds bonus credits; an expired bonus bucket restarts from amount.
	GrantBonus(ctx context.Context, accountID string, amount int64, expiry, now time.Time) (*models.CreditLedger, error)
	Debit(ctx context.Context, accountID string, bucket models.CreditBucket, amount int64, now time.Time) error
	Credit(ctx context.Context, accountID string, bucket models.CreditBucket, amount int64, now time.Time) error
	// CreateHold debits the bucket and records a held authorization in one atomic step.
	CreateHold(ctx context.Context, auth *models.Authorization, now time.Time) error
	// SettleHold moves a held authorization to consumed or refunded; refunding credits the bucket in the same step.
	// The bool is false when the hold was already settled.
	SettleHold(ctx context.Context, authID string, to models.AuthorizationStatus, now time.Time) (*models.Authorization, bool, error)
	GetHold(ctx context.Context, authID string) (*models.Authorization, error)
	ListOpenHolds(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Authorization, error)
}

// ReviewEventPublisher emits review lifecycle events.
type ReviewEventPublisher interface {
	Publish(ctx context.Context, ev *models.ReviewEvent) error
	Close() error
}

// AttemptSink stores settled attempt audit rows.
type AttemptSink interface {
	Record(ctx context.Context, rec *models.AttemptRecord) error
	Close() error
}

// StatusCache caches projected review views between record transitions.
// Keys include the account so a hit never bypasses the ownership check.
type StatusCache interface {
	// Get also returns the generation the lookup ran under. A view computed after a miss
	// must be stored with that generation so an Invalidate in between discards it.
	Get(ctx context.Context, accountID, tradeLogID string) (*models.ReviewView, string, bool)
	Set(ctx context.Context, accountID, tradeLogID, gen string, v *models.ReviewView)
	Invalidate(ctx context.Context, accountID, tradeLogID string)
}

type Metrics interface {
	RecordReviewRequest(op, result string)
	RecordReviewOutcome(status string)
	RecordCredit(op string, bucket models.CreditBucket)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordQueueDepth(depth int)
}
