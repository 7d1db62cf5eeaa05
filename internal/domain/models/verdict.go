package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Outcome is the engine's own classification of an attempt.
type Outcome string

const (
	OutcomeValid    Outcome = "valid"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

func (o Outcome) Valid() bool {
	return o == OutcomeValid || o == OutcomeRejected || o == OutcomeFailed
}

const (
	// VerdictSchemaLegacy marks payloads translated from the pre-versioned engine shape.
	VerdictSchemaLegacy = 1
	// VerdictSchemaCurrent is the shape the engine emits today.
	VerdictSchemaCurrent = 2
)

// Verdict is the structured outcome the analysis engine returns for one attempt.
// Exactly one of Analysis or Failure is meaningful for the failed outcome;
// valid and rejected outcomes always carry Analysis.
type Verdict struct {
	SchemaVersion int             `json:"schema_version"`
	Outcome       Outcome         `json:"outcome"`
	Analysis      *AnalysisRecord `json:"analysis,omitempty"`
	Failure       *EngineFailure  `json:"failure,omitempty"`
	Usage         *Usage          `json:"usage,omitempty"`
}

// EngineFailure describes a negative result reported by the engine.
type EngineFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Usage is token and cost accounting reported by the engine.
type Usage struct {
	Model        string          `json:"model,omitempty"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	CostUSD      decimal.Decimal `json:"cost_usd"`
	DurationMs   int64           `json:"duration_ms"`
}

// Metadata converts usage into review metadata.
func (u *Usage) Metadata() *ReviewMetadata {
	if u == nil {
		return nil
	}
	return &ReviewMetadata{
		Model:        u.Model,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		CostUSD:      u.CostUSD,
		DurationMs:   u.DurationMs,
	}
}

// AnalysisRecord is one completed analysis pass, normalized to the current schema.
type AnalysisRecord struct {
	IsValid          *bool    `json:"is_valid,omitempty"`
	InsufficientData bool     `json:"insufficient_data"`
	StaleAsOfToday   bool     `json:"stale_as_of_today"`
	BelowVWAP        bool     `json:"below_vwap"`
	AgainstBias      bool     `json:"against_bias"`
	Summary          string   `json:"summary,omitempty"`
	Strengths        []string `json:"strengths,omitempty"`
	Risks            []string `json:"risks,omitempty"`
	Suggestions      []string `json:"suggestions,omitempty"`
	Chips            []UIChip `json:"chips,omitempty"`

	Raw json.RawMessage `json:"raw,omitempty"`
}

// UIChip is a short labelled indicator rendered by clients.
type UIChip struct {
	Label      string   `json:"label"`
	Value      string   `json:"value"`
	Tone       string   `json:"tone,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Invalid reports an explicit invalidity flag. A payload without the flag is not invalid.
func (a *AnalysisRecord) Invalid() bool {
	return a != nil && a.IsValid != nil && !*a.IsValid
}

// Chip returns the first chip whose label satisfies match.
func (a *AnalysisRecord) Chip(match func(label string) bool) *UIChip {
	if a == nil {
		return nil
	}
	for i := range a.Chips {
		if match(a.Chips[i].Label) {
			return &a.Chips[i]
		}
	}
	return nil
}

// Completion is a verdict delivered for a specific attempt.
type Completion struct {
	TradeLogID string   `json:"trade_log_id"`
	AttemptID  string   `json:"attempt_id"`
	Verdict    *Verdict `json:"verdict"`
}

// CompletionResult reports what a completion did to the record.
type CompletionResult struct {
	Applied bool         `json:"applied"`
	Status  ReviewStatus `json:"status"`
}
