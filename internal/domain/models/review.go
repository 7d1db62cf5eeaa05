package models

type ReviewStatus string

const (
	ReviewNone      ReviewStatus = "none"
	ReviewPending   ReviewStatus = "pending"
	ReviewCompleted ReviewStatus = "completed"
	ReviewRejected  ReviewStatus = "rejected"
	ReviewFailed    ReviewStatus = "failed"
	ReviewErrored   ReviewStatus = "error"
)

// Valid reports whether s is a known review status.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewNone, ReviewPending, ReviewCompleted, ReviewRejected, ReviewFailed, ReviewErrored:
		return true
	}
	return false
}

// Terminal reports whether an attempt in status s has finished.
func (s ReviewStatus) Terminal() bool {
	switch s {
	case ReviewCompleted, ReviewRejected, ReviewFailed, ReviewErrored:
		return true
	}
	return false
}

// Charged reports whether an attempt that ended in s keeps its credit.
// Only error is refunded: the engine never answered.
func (s ReviewStatus) Charged() bool {
	switch s {
	case ReviewCompleted, ReviewRejected, ReviewFailed:
		return true
	}
	return false
}

// RetryPolicy decides which finished states may re-enter pending.
type RetryPolicy struct {
	AllowFromRejected bool
}

// CanRequest reports whether a first review may start from s.
func CanRequest(s ReviewStatus) bool {
	return s == ReviewNone || s == ""
}

// CanRetry reports whether a retry may start from s under the policy.
func (p RetryPolicy) CanRetry(s ReviewStatus) bool {
	switch s {
	case ReviewFailed, ReviewErrored:
		return true
	case ReviewRejected:
		return p.AllowFromRejected
	}
	return false
}

// RetryableStates lists the states from which a retry is accepted.
func (p RetryPolicy) RetryableStates() []ReviewStatus {
	states := []ReviewStatus{ReviewFailed, ReviewErrored}
	if p.AllowFromRejected {
		states = append(states, ReviewRejected)
	}
	return states
}

// OutcomeStatus maps an engine outcome to the record state it produces.
func OutcomeStatus(o Outcome) ReviewStatus {
	switch o {
	case OutcomeValid:
		return ReviewCompleted
	case OutcomeRejected:
		return ReviewRejected
	default:
		return ReviewFailed
	}
}

// AttemptStart is the conditional write that moves a record into pending.
type AttemptStart struct {
	TradeLogID       string
	AccountID        string
	AttemptID        string
	CreditType       CreditBucket
	IsFromRewardedAd bool
	FromStates       []ReviewStatus
}

// AttemptFinish is the conditional write that takes a record out of pending.
type AttemptFinish struct {
	TradeLogID string
	AttemptID  string
	Status     ReviewStatus
	Result     []AnalysisRecord
	Error      *ReviewError
	Metadata   *ReviewMetadata
}
