package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// TradeParams are the inputs handed to the analysis engine.
// They are frozen once a review has been requested.
type TradeParams struct {
	Instrument  string          `json:"instrument"`
	Exchange    string          `json:"exchange,omitempty"`
	Direction   Direction       `json:"direction"`
	Quantity    int64           `json:"quantity"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	TargetPrice decimal.Decimal `json:"target_price"`
	StopPrice   decimal.Decimal `json:"stop_price"`
	Reasoning   string          `json:"reasoning,omitempty"`
}

// RewardToRisk returns |target-entry| / |entry-stop| or zero when the stop sits on the entry.
func (p TradeParams) RewardToRisk() decimal.Decimal {
	risk := p.EntryPrice.Sub(p.StopPrice).Abs()
	if risk.IsZero() {
		return decimal.Zero
	}
	return p.TargetPrice.Sub(p.EntryPrice).Abs().Div(risk)
}

// TradeLogEntry is one logged trade idea together with its review record.
type TradeLogEntry struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	TradeParams

	NeedsReview       bool             `json:"needs_review"`
	ReviewStatus      ReviewStatus     `json:"review_status"`
	CreditType        CreditBucket     `json:"credit_type,omitempty"`
	IsFromRewardedAd  bool             `json:"is_from_rewarded_ad"`
	ReviewAttemptID   string           `json:"review_attempt_id,omitempty"`
	ReviewAttempts    int              `json:"review_attempts"`
	ReviewRequestedAt *time.Time       `json:"review_requested_at,omitempty"`
	ReviewCompletedAt *time.Time       `json:"review_completed_at,omitempty"`
	ReviewResult      []AnalysisRecord `json:"review_result,omitempty"`
	ReviewError       *ReviewError     `json:"review_error,omitempty"`
	ReviewMetadata    *ReviewMetadata  `json:"review_metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Analysis returns the populated analysis record, if any.
func (e *TradeLogEntry) Analysis() *AnalysisRecord {
	if e == nil || len(e.ReviewResult) == 0 {
		return nil
	}
	return &e.ReviewResult[0]
}

// OwnedBy reports whether accountID owns the entry.
func (e *TradeLogEntry) OwnedBy(accountID string) bool {
	return e != nil && accountID != "" && e.AccountID == accountID
}

// Clone returns a deep enough copy for store isolation.
func (e *TradeLogEntry) Clone() *TradeLogEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.ReviewRequestedAt != nil {
		t := *e.ReviewRequestedAt
		c.ReviewRequestedAt = &t
	}
	if e.ReviewCompletedAt != nil {
		t := *e.ReviewCompletedAt
		c.ReviewCompletedAt = &t
	}
	if e.ReviewResult != nil {
		c.ReviewResult = append([]AnalysisRecord(nil), e.ReviewResult...)
	}
	if e.ReviewError != nil {
		re := *e.ReviewError
		c.ReviewError = &re
	}
	if e.ReviewMetadata != nil {
		md := *e.ReviewMetadata
		c.ReviewMetadata = &md
	}
	return &c
}

// ReviewError is the last failure detail of a review attempt.
type ReviewError struct {
	Message        string              `json:"message"`
	Code           string              `json:"code"`
	Classification ErrorClassification `json:"classification"`
	Retryable      bool                `json:"retryable"`
}

type ErrorClassification string

const (
	ClassificationEngine ErrorClassification = "engine"
	ClassificationInfra  ErrorClassification = "infra"
)

// ReviewMetadata is cost and token accounting for a delivered review.
type ReviewMetadata struct {
	Model        string          `json:"model,omitempty"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	CostUSD      decimal.Decimal `json:"cost_usd"`
	DurationMs   int64           `json:"duration_ms"`
}

// Instrument is canonical reference data for a tradable symbol.
type Instrument struct {
	Symbol   string   `json:"symbol" yaml:"symbol"`
	Exchange string   `json:"exchange" yaml:"exchange"`
	Name     string   `json:"name" yaml:"name"`
	Currency string   `json:"currency" yaml:"currency"`
	Aliases  []string `json:"aliases,omitempty" yaml:"aliases"`
}
