package models

import "time"

type CreditBucket string

const (
	BucketRegular CreditBucket = "regular"
	BucketBonus   CreditBucket = "bonus"
)

func (b CreditBucket) Valid() bool {
	return b == BucketRegular || b == BucketBonus
}

// BucketFor picks the bucket a request draws from.
func BucketFor(fromRewardedAd bool) CreditBucket {
	if fromRewardedAd {
		return BucketBonus
	}
	return BucketRegular
}

// CreditLedger is the per-account credit balance.
type CreditLedger struct {
	AccountID          string     `json:"account_id"`
	RegularCredits     int64      `json:"regular_credits"`
	BonusCredits       int64      `json:"bonus_credits"`
	BonusCreditsExpiry *time.Time `json:"bonus_credits_expiry,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// EffectiveBonus applies lazy expiry: stored bonus credits count only before expiry.
func (l *CreditLedger) EffectiveBonus(now time.Time) int64 {
	if l == nil || l.BonusCreditsExpiry == nil || !now.Before(*l.BonusCreditsExpiry) {
		return 0
	}
	return l.BonusCredits
}

// Available returns the usable amount in bucket at now.
func (l *CreditLedger) Available(bucket CreditBucket, now time.Time) int64 {
	if l == nil {
		return 0
	}
	if bucket == BucketBonus {
		return l.EffectiveBonus(now)
	}
	return l.RegularCredits
}

// BonusExpired reports whether a bonus expiry is set and has passed.
func (l *CreditLedger) BonusExpired(now time.Time) bool {
	return l != nil && l.BonusCreditsExpiry != nil && !now.Before(*l.BonusCreditsExpiry)
}

// CreditCheck is the read-only answer to canUse.
type CreditCheck struct {
	CanUse    bool         `json:"can_use"`
	Reason    string       `json:"reason,omitempty"`
	Bucket    CreditBucket `json:"bucket"`
	Available int64        `json:"available"`
	SuggestAd bool         `json:"suggest_ad"`
}

const (
	ReasonOK               = "ok"
	ReasonNoRegularCredits = "insufficient_regular_credits"
	ReasonNoBonusCredits   = "insufficient_bonus_credits"
	ReasonBonusExpired     = "bonus_credits_expired"
	ReasonLedgerNotFound   = "ledger_not_provisioned"
)

type AuthorizationStatus string

const (
	AuthorizationHeld     AuthorizationStatus = "held"
	AuthorizationConsumed AuthorizationStatus = "consumed"
	AuthorizationRefunded AuthorizationStatus = "refunded"
)

// Authorization is a reservation of credit against one review attempt.
// Its ID doubles as the attempt id on the trade log entry.
type Authorization struct {
	ID         string              `json:"id"`
	AccountID  string              `json:"account_id"`
	TradeLogID string              `json:"trade_log_id"`
	Bucket     CreditBucket        `json:"bucket"`
	Amount     int64               `json:"amount"`
	Status     AuthorizationStatus `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
	SettledAt  *time.Time          `json:"settled_at,omitempty"`
}

// Settled reports whether the hold has been captured or released.
func (a *Authorization) Settled() bool {
	return a != nil && a.Status != AuthorizationHeld
}
