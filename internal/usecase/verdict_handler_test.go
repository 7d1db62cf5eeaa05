package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"TradeReview/internal/domain/models"
	"TradeReview/internal/services/engine"
	"TradeReview/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verdictMessageFor(t *testing.T, tradeLogID, attemptID string, v *models.Verdict) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	b, err := json.Marshal(verdictMessage{TradeLogID: tradeLogID, AttemptID: attemptID, Verdict: raw})
	require.NoError(t, err)
	return b
}

func TestVerdictHandler_CompletesOnce(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 2, 0)
	e := h.entry(t, acct)
	vh := NewVerdictHandler("review.verdicts", h.d, logger.Nop())
	assert.Equal(t, "review.verdicts", vh.Topic())

	ack, err := request(h, e.ID, false)
	require.NoError(t, err)

	msg := verdictMessageFor(t, e.ID, ack.AttemptID, validVerdict())
	require.NoError(t, vh.Handle(context.Background(), msg))
	require.NoError(t, vh.Handle(context.Background(), msg))

	assert.Equal(t, models.ReviewCompleted, h.record(t, e.ID).ReviewStatus)
	regular, _ := h.balance(t)
	assert.Equal(t, int64(1), regular)
}

func TestVerdictHandler_LegacyPayload(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 1, 0)
	e := h.entry(t, acct)
	vh := NewVerdictHandler("review.verdicts", h.d, logger.Nop())

	ack, err := request(h, e.ID, false)
	require.NoError(t, err)

	msg := fmt.Sprintf(`{"trade_log_id":%q,"attempt_id":%q,"verdict":{"isAnalaysisCorrect":true,"analysis":{"summary":"looks fine"}}}`, e.ID, ack.AttemptID)
	require.NoError(t, vh.Handle(context.Background(), []byte(msg)))

	rec := h.record(t, e.ID)
	assert.Equal(t, models.ReviewCompleted, rec.ReviewStatus)
	assert.Equal(t, "looks fine", rec.Analysis().Summary)
}

func TestVerdictHandler_Malformed(t *testing.T) {
	h := newHarness(t)
	vh := NewVerdictHandler("review.verdicts", h.d, logger.Nop())

	require.Error(t, vh.Handle(context.Background(), []byte(`not json`)))
	require.Error(t, vh.Handle(context.Background(), []byte(`{"verdict":{}}`)))

	err := vh.Handle(context.Background(), []byte(`{"trade_log_id":"a","attempt_id":"b","verdict":{"schema_version":2,"outcome":"maybe"}}`))
	require.ErrorIs(t, err, engine.ErrMalformedVerdict)
}
