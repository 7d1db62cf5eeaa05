package engine

import (
	"testing"

	"TradeReview/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCurrentVerdict(t *testing.T) {
	raw := `{
		"schema_version": 2,
		"outcome": "rejected",
		"analysis": {"is_valid": false, "insufficient_data": true, "summary": "thin tape",
			"chips": [{"label": "R:R", "value": "2:1"}]},
		"usage": {"model": "m-1", "input_tokens": 10, "output_tokens": 20, "cost_usd": "0.0125", "duration_ms": 900}
	}`
	v, err := DecodeVerdict([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRejected, v.Outcome)
	assert.Equal(t, models.VerdictSchemaCurrent, v.SchemaVersion)
	require.NotNil(t, v.Analysis)
	assert.True(t, v.Analysis.InsufficientData)
	assert.Equal(t, "2:1", v.Analysis.Chips[0].Value)
	assert.Equal(t, "0.0125", v.Usage.CostUSD.String())
}

func TestDecodeCurrentRequiresAnalysis(t *testing.T) {
	_, err := DecodeVerdict([]byte(`{"schema_version": 2, "outcome": "valid"}`))
	assert.ErrorIs(t, err, ErrMalformedVerdict)

	_, err = DecodeVerdict([]byte(`{"schema_version": 2, "outcome": "maybe", "analysis": {}}`))
	assert.ErrorIs(t, err, ErrMalformedVerdict)
}

func TestDecodeLegacyTopLevelFlag(t *testing.T) {
	raw := `{
		"isAnalaysisCorrect": false,
		"analysis": {"isValid": true, "staleAsOfToday": true, "isBelowVwap": true,
			"uiChips": [{"label": "Risk Reward", "value": "3", "color": "green"}]},
		"usage": {"model": "legacy", "inputTokens": 5, "outputTokens": 7, "costUsd": 0.5}
	}`
	v, err := DecodeVerdict([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, models.VerdictSchemaLegacy, v.SchemaVersion)
	assert.Equal(t, models.OutcomeValid, v.Outcome)
	require.NotNil(t, v.Analysis.IsValid)
	assert.False(t, *v.Analysis.IsValid)
	assert.True(t, v.Analysis.StaleAsOfToday)
	assert.True(t, v.Analysis.BelowVWAP)
	assert.Equal(t, "green", v.Analysis.Chips[0].Tone)
	assert.NotEmpty(t, v.Analysis.Raw)
	assert.Equal(t, int64(7), v.Usage.OutputTokens)
}

func TestDecodeLegacyNestedFlagAndRejection(t *testing.T) {
	v, err := DecodeVerdict([]byte(`{"rejected": true, "analysis": {"isValid": true, "againstBias": true}}`))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRejected, v.Outcome)
	require.NotNil(t, v.Analysis.IsValid)
	assert.True(t, *v.Analysis.IsValid)
	assert.True(t, v.Analysis.AgainstBias)
}

func TestDecodeLegacyFailure(t *testing.T) {
	v, err := DecodeVerdict([]byte(`{"error": "symbol halted", "errorCode": "HALTED"}`))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, v.Outcome)
	assert.Nil(t, v.Analysis)
	assert.Equal(t, &models.EngineFailure{Code: "HALTED", Message: "symbol halted"}, v.Failure)

	v, err = DecodeVerdict([]byte(`{"error": "partial", "analysis": {"isValid": false}}`))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, v.Outcome)
	assert.NotNil(t, v.Analysis)
	assert.Equal(t, "ENGINE_FAILED", v.Failure.Code)
}

func TestDecodeLegacyWithoutAnyAnalysis(t *testing.T) {
	_, err := DecodeVerdict([]byte(`{}`))
	assert.ErrorIs(t, err, ErrMalformedVerdict)

	_, err = DecodeVerdict([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedVerdict)
}

func TestDecodeWithoutValidityFlag(t *testing.T) {
	for name, raw := range map[string]string{
		"legacy":  `{"analysis": {"summary": "looks fine"}}`,
		"current": `{"schema_version": 2, "outcome": "valid", "analysis": {"summary": "looks fine"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			v, err := DecodeVerdict([]byte(raw))
			require.NoError(t, err)
			assert.Equal(t, models.OutcomeValid, v.Outcome)
			require.NotNil(t, v.Analysis)
			assert.Nil(t, v.Analysis.IsValid)
			assert.False(t, v.Analysis.Invalid())
		})
	}

	v, err := DecodeVerdict([]byte(`{"schema_version": 2, "outcome": "valid", "analysis": {"is_valid": false}}`))
	require.NoError(t, err)
	assert.True(t, v.Analysis.Invalid())
}
