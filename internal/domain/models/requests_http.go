package models

import "encoding/json"

// Requests for the trade log and review HTTP endpoints. Defined in domain for consistency and reuse.

type CreateTradeLogRequest struct {
	Instrument  string `json:"instrument" validate:"required,max=32"`
	Direction   string `json:"direction" validate:"required,oneof=long short"`
	Quantity    int64  `json:"quantity" validate:"gte=1"`
	EntryPrice  string `json:"entry_price" validate:"required,numeric"`
	TargetPrice string `json:"target_price" validate:"required,numeric"`
	StopPrice   string `json:"stop_price" validate:"required,numeric"`
	Reasoning   string `json:"reasoning" validate:"max=4000"`
}

type UpdateTradeLogRequest struct {
	ID string `param:"id" validate:"required,uuid"`
	CreateTradeLogRequest
}

type TradeLogIDRequest struct {
	ID string `param:"id" validate:"required,uuid"`
}

type ListTradeLogsRequest struct {
	Limit  int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=200"`
	Offset int `query:"offset" json:"offset" default:"0" validate:"gte=0"`
}

type ReviewRequest struct {
	ID               string `param:"id" validate:"required,uuid"`
	IsFromRewardedAd bool   `json:"is_from_rewarded_ad"`
}

type GrantCreditsRequest struct {
	AccountID string `json:"account_id" validate:"required,max=128"`
	Regular   int64  `json:"regular" validate:"gte=0,lte=100000"`
	Bonus     int64  `json:"bonus" validate:"gte=0,lte=1000"`
}

// EngineCallbackRequest is the body the analysis engine posts when an attempt finishes.
// Verdict is kept raw so legacy shapes can be translated by the codec.
type EngineCallbackRequest struct {
	TradeLogID string          `json:"trade_log_id" validate:"required,uuid"`
	AttemptID  string          `json:"attempt_id" validate:"required,uuid"`
	Verdict    json.RawMessage `json:"verdict" validate:"required"`
}

// ReviewAck is the immediate answer to an accepted review request.
type ReviewAck struct {
	TradeLogID   string       `json:"trade_log_id"`
	AttemptID    string       `json:"attempt_id"`
	ReviewStatus ReviewStatus `json:"review_status"`
	CreditType   CreditBucket `json:"credit_type"`
}

// ReviewCommand is the input of request and retry.
type ReviewCommand struct {
	TradeLogID       string
	AccountID        string
	IsFromRewardedAd bool
}

// CreditBalance is the effective balance shown to clients.
type CreditBalance struct {
	AccountID          string  `json:"account_id"`
	RegularCredits     int64   `json:"regular_credits"`
	BonusCredits       int64   `json:"bonus_credits"`
	BonusCreditsExpiry *string `json:"bonus_credits_expiry,omitempty"`
}
