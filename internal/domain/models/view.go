package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RiskLevel string

const (
	RiskHigh       RiskLevel = "High"
	RiskMediumHigh RiskLevel = "Medium-High"
	RiskMedium     RiskLevel = "Medium"
)

// ReviewView is the client-facing status of a trade log review.
type ReviewView struct {
	TradeLogID        string          `json:"trade_log_id"`
	ReviewStatus      ReviewStatus    `json:"review_status"`
	NeedsReview       bool            `json:"needs_review"`
	IsReviewCompleted bool            `json:"is_review_completed"`
	IsRetryable       bool            `json:"is_retryable"`
	Verdict           string          `json:"verdict,omitempty"`
	Summary           string          `json:"summary,omitempty"`
	Confidence        float64         `json:"confidence"`
	RiskLevel         RiskLevel       `json:"risk_level,omitempty"`
	Chips             []UIChip        `json:"chips,omitempty"`
	Error             *ReviewError    `json:"error,omitempty"`
	Cost              CostBreakdown   `json:"cost"`
	RequestedAt       *time.Time      `json:"requested_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	Analysis          *AnalysisRecord `json:"analysis,omitempty"`
}

// CostBreakdown shows what an attempt cost the account.
type CostBreakdown struct {
	CreditType       CreditBucket    `json:"credit_type,omitempty"`
	IsFromRewardedAd bool            `json:"is_from_rewarded_ad"`
	CreditsCharged   int64           `json:"credits_charged"`
	CreditsReserved  int64           `json:"credits_reserved"`
	Model            string          `json:"model,omitempty"`
	InputTokens      int64           `json:"input_tokens"`
	OutputTokens     int64           `json:"output_tokens"`
	CostUSD          decimal.Decimal `json:"cost_usd"`
}
