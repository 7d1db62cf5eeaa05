package models

import "time"

type ReviewEventType string

const (
	EventReviewRequested ReviewEventType = "review.requested"
	EventReviewCompleted ReviewEventType = "review.completed"
	EventReviewRejected  ReviewEventType = "review.rejected"
	EventReviewFailed    ReviewEventType = "review.failed"
	EventReviewError     ReviewEventType = "review.error"
)

// EventForStatus maps a terminal status to its lifecycle event.
func EventForStatus(s ReviewStatus) ReviewEventType {
	switch s {
	case ReviewCompleted:
		return EventReviewCompleted
	case ReviewRejected:
		return EventReviewRejected
	case ReviewFailed:
		return EventReviewFailed
	case ReviewErrored:
		return EventReviewError
	}
	return EventReviewRequested
}

// ReviewEvent is published on every review record transition for downstream notifiers.
type ReviewEvent struct {
	ID         string          `json:"id"`
	Type       ReviewEventType `json:"type"`
	TradeLogID string          `json:"trade_log_id"`
	AccountID  string          `json:"account_id"`
	AttemptID  string          `json:"attempt_id"`
	Status     ReviewStatus    `json:"status"`
	CreditType CreditBucket    `json:"credit_type"`
	ErrorCode  string          `json:"error_code,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// AttemptRecord is the audit row written when an attempt settles.
type AttemptRecord struct {
	AttemptID    string
	TradeLogID   string
	AccountID    string
	Instrument   string
	Status       ReviewStatus
	CreditType   CreditBucket
	Charged      bool
	ErrorCode    string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	RequestedAt  time.Time
	SettledAt    time.Time
}
