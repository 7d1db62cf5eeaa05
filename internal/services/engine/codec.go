package engine

import (
	"encoding/json"
	"fmt"

	"TradeReview/internal/domain/models"

	"github.com/shopspring/decimal"
)

// ErrMalformedVerdict is returned when a payload matches no known verdict shape.
var ErrMalformedVerdict = models.ErrMalformedVerdict

// DecodeVerdict reads a verdict in any shape the engine has emitted and returns it in the
// current schema. Legacy payloads are translated here and nowhere else.
func DecodeVerdict(raw []byte) (*models.Verdict, error) {
	var head struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if head.SchemaVersion >= models.VerdictSchemaCurrent {
		return decodeCurrent(raw)
	}
	return decodeLegacy(raw)
}

func decodeCurrent(raw []byte) (*models.Verdict, error) {
	var v models.Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if err := validate(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

func validate(v *models.Verdict) error {
	if !v.Outcome.Valid() {
		return fmt.Errorf("%w: unknown outcome %q", ErrMalformedVerdict, v.Outcome)
	}
	switch v.Outcome {
	case models.OutcomeValid, models.OutcomeRejected:
		if v.Analysis == nil {
			return fmt.Errorf("%w: outcome %s without analysis", ErrMalformedVerdict, v.Outcome)
		}
	case models.OutcomeFailed:
		if v.Failure == nil {
			v.Failure = &models.EngineFailure{Code: "ENGINE_FAILED", Message: "analysis engine reported a failure"}
		}
	}
	return nil
}

// legacyVerdict covers the unversioned payloads: a top-level isAnalaysisCorrect flag
// (misspelled upstream), or an analysis object carrying isValid.
type legacyVerdict struct {
	IsAnalaysisCorrect *bool           `json:"isAnalaysisCorrect"`
	Rejected           bool            `json:"rejected"`
	Status             string          `json:"status"`
	Error              string          `json:"error"`
	ErrorCode          string          `json:"errorCode"`
	Analysis           json.RawMessage `json:"analysis"`
	UIChips            []legacyChip    `json:"uiChips"`
	Usage              *legacyUsage    `json:"usage"`
}

type legacyAnalysis struct {
	IsValid          *bool        `json:"isValid"`
	InsufficientData bool         `json:"insufficientData"`
	StaleAsOfToday   bool         `json:"staleAsOfToday"`
	BelowVWAP        bool         `json:"belowVWAP"`
	IsBelowVwap      bool         `json:"isBelowVwap"`
	AgainstBias      bool         `json:"againstBias"`
	Summary          string       `json:"summary"`
	Strengths        []string     `json:"strengths"`
	Risks            []string     `json:"risks"`
	Suggestions      []string     `json:"suggestions"`
	UIChips          []legacyChip `json:"uiChips"`
}

type legacyChip struct {
	Label      string   `json:"label"`
	Value      string   `json:"value"`
	Tone       string   `json:"tone"`
	Color      string   `json:"color"`
	Confidence *float64 `json:"confidence"`
}

type legacyUsage struct {
	Model        string  `json:"model"`
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd"`
	DurationMs   int64   `json:"durationMs"`
}

func decodeLegacy(raw []byte) (*models.Verdict, error) {
	var lv legacyVerdict
	if err := json.Unmarshal(raw, &lv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}

	v := &models.Verdict{SchemaVersion: models.VerdictSchemaLegacy}
	if lv.Usage != nil {
		v.Usage = &models.Usage{
			Model:        lv.Usage.Model,
			InputTokens:  lv.Usage.InputTokens,
			OutputTokens: lv.Usage.OutputTokens,
			CostUSD:      decimal.NewFromFloat(lv.Usage.CostUSD),
			DurationMs:   lv.Usage.DurationMs,
		}
	}

	hasAnalysis := len(lv.Analysis) > 0 && string(lv.Analysis) != "null"
	if hasAnalysis || lv.IsAnalaysisCorrect != nil {
		rec, err := legacyRecord(lv, hasAnalysis)
		if err != nil {
			return nil, err
		}
		v.Analysis = rec
	}

	switch {
	case lv.Error != "" || lv.Status == "failed":
		v.Outcome = models.OutcomeFailed
		code := lv.ErrorCode
		if code == "" {
			code = "ENGINE_FAILED"
		}
		v.Failure = &models.EngineFailure{Code: code, Message: lv.Error}
	case lv.Rejected || lv.Status == "rejected":
		v.Outcome = models.OutcomeRejected
	default:
		v.Outcome = models.OutcomeValid
	}

	if err := validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

func legacyRecord(lv legacyVerdict, hasAnalysis bool) (*models.AnalysisRecord, error) {
	var la legacyAnalysis
	if hasAnalysis {
		if err := json.Unmarshal(lv.Analysis, &la); err != nil {
			return nil, fmt.Errorf("%w: analysis: %v", ErrMalformedVerdict, err)
		}
	}

	rec := &models.AnalysisRecord{
		InsufficientData: la.InsufficientData,
		StaleAsOfToday:   la.StaleAsOfToday,
		BelowVWAP:        la.BelowVWAP || la.IsBelowVwap,
		AgainstBias:      la.AgainstBias,
		Summary:          la.Summary,
		Strengths:        la.Strengths,
		Risks:            la.Risks,
		Suggestions:      la.Suggestions,
	}
	if hasAnalysis {
		rec.Raw = append(json.RawMessage(nil), lv.Analysis...)
	}

	// top-level flag wins over the nested one when both are sent
	switch {
	case lv.IsAnalaysisCorrect != nil:
		rec.IsValid = lv.IsAnalaysisCorrect
	case la.IsValid != nil:
		rec.IsValid = la.IsValid
	}

	chips := la.UIChips
	if len(chips) == 0 {
		chips = lv.UIChips
	}
	for _, c := range chips {
		tone := c.Tone
		if tone == "" {
			tone = c.Color
		}
		rec.Chips = append(rec.Chips, models.UIChip{Label: c.Label, Value: c.Value, Tone: tone, Confidence: c.Confidence})
	}
	return rec, nil
}
