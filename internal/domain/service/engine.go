package service

import (
	"context"
	"time"

	"TradeReview/internal/domain/models"
)

// AnalysisRequest is what the dispatcher hands to the analysis engine for one attempt.
type AnalysisRequest struct {
	TradeLogID    string             `json:"trade_log_id"`
	AttemptID     string             `json:"attempt_id"`
	AccountID     string             `json:"account_id"`
	Params        models.TradeParams `json:"params"`
	RewardToRisk  string             `json:"reward_to_risk"`
	CallbackURL   string             `json:"callback_url,omitempty"`
	CallbackToken string             `json:"callback_token,omitempty"`
	Deadline      time.Time          `json:"deadline"`
}

// Submission is the engine's acknowledgement. Verdict is set when the engine answered inline.
type Submission struct {
	Handle  string
	Verdict *models.Verdict
}

// AnalysisEngine is the external reviewer. Completion arrives later via callback unless
// the submission already carries a verdict.
type AnalysisEngine interface {
	Submit(ctx context.Context, req *AnalysisRequest) (*Submission, error)
}

// InstrumentResolver maps a user-supplied instrument reference to canonical reference data.
type InstrumentResolver interface {
	Resolve(ref string) (*models.Instrument, bool)
}

// CallbackSigner issues and verifies tokens binding a callback to one attempt.
type CallbackSigner interface {
	Sign(tradeLogID, attemptID string, ttl time.Duration) (string, error)
	Verify(token, tradeLogID, attemptID string) error
}
