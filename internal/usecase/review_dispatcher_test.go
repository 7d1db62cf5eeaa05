package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"TradeReview/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(h *harness, id string, fromAd bool) (*models.ReviewAck, error) {
	return h.d.RequestReview(context.Background(), models.ReviewCommand{TradeLogID: id, AccountID: acct, IsFromRewardedAd: fromAd})
}

func retry(h *harness, id string, fromAd bool) (*models.ReviewAck, error) {
	return h.d.RetryReview(context.Background(), models.ReviewCommand{TradeLogID: id, AccountID: acct, IsFromRewardedAd: fromAd})
}

func complete(t *testing.T, h *harness, id, attemptID string, v *models.Verdict) *models.CompletionResult {
	t.Helper()
	res, err := h.d.Complete(context.Background(), models.Completion{TradeLogID: id, AttemptID: attemptID, Verdict: v})
	require.NoError(t, err)
	return res
}

func TestRequestReview_RegularExhaustedSuggestsAdThenBonusFunds(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 0, 5)
	e := h.entry(t, acct)

	_, err := request(h, e.ID, false)
	var ce *models.CreditExhaustedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, models.BucketRegular, ce.Bucket)
	assert.Equal(t, models.ReasonNoRegularCredits, ce.Reason)
	assert.True(t, ce.SuggestAd)
	assert.Equal(t, models.ReviewNone, h.record(t, e.ID).ReviewStatus)

	ack, err := request(h, e.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewPending, ack.ReviewStatus)
	assert.Equal(t, models.BucketBonus, ack.CreditType)

	_, bonus := h.balance(t)
	assert.Equal(t, int64(4), bonus)

	rec := h.record(t, e.ID)
	assert.Equal(t, ack.AttemptID, rec.ReviewAttemptID)
	assert.True(t, rec.NeedsReview)
	assert.True(t, rec.IsFromRewardedAd)
	assert.Equal(t, 1, rec.ReviewAttempts)
	assert.Equal(t, models.AuthorizationHeld, h.hold(t, ack.AttemptID).Status)
}

func TestRequestReview_TimeoutRefunds(t *testing.T) {
	h := newHarness(t, withTimeout(20*time.Millisecond))
	h.grant(t, 0, 5)
	e := h.entry(t, acct)

	ack, err := request(h, e.ID, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.record(t, e.ID).ReviewStatus == models.ReviewErrored
	}, time.Second, 5*time.Millisecond)

	rec := h.record(t, e.ID)
	require.NotNil(t, rec.ReviewError)
	assert.Equal(t, FaultEngineTimeout, rec.ReviewError.Code)
	assert.Equal(t, models.ClassificationInfra, rec.ReviewError.Classification)
	assert.True(t, rec.ReviewError.Retryable)

	_, bonus := h.balance(t)
	assert.Equal(t, int64(5), bonus)
	assert.Equal(t, models.AuthorizationRefunded, h.hold(t, ack.AttemptID).Status)
	assert.Zero(t, h.d.armed())
}

func TestComplete_RejectedIsChargedAndCompleted(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 0, 5)
	e := h.entry(t, acct)

	ack, err := request(h, e.ID, true)
	require.NoError(t, err)

	res := complete(t, h, e.ID, ack.AttemptID, rejectedVerdict())
	assert.True(t, res.Applied)
	assert.Equal(t, models.ReviewRejected, res.Status)

	rec := h.record(t, e.ID)
	assert.True(t, IsReviewCompleted(rec.ReviewStatus, rec.Analysis()))
	assert.Nil(t, rec.ReviewMetadata)
	assert.Equal(t, models.AuthorizationConsumed, h.hold(t, ack.AttemptID).Status)

	_, bonus := h.balance(t)
	assert.Equal(t, int64(4), bonus)
	assert.Zero(t, h.d.armed())
}

func TestComplete_DuplicateChargesOnce(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 3, 0)
	e := h.entry(t, acct)

	ack, err := request(h, e.ID, false)
	require.NoError(t, err)

	first := complete(t, h, e.ID, ack.AttemptID, validVerdict())
	second := complete(t, h, e.ID, ack.AttemptID, validVerdict())
	assert.True(t, first.Applied)
	assert.False(t, second.Applied)
	assert.Equal(t, models.ReviewCompleted, second.Status)

	regular, _ := h.balance(t)
	assert.Equal(t, int64(2), regular)

	rec := h.record(t, e.ID)
	require.NotNil(t, rec.ReviewMetadata)
	assert.Equal(t, int64(1200), rec.ReviewMetadata.InputTokens)
	assert.Len(t, rec.ReviewResult, 1)

	assert.Equal(t, []models.ReviewEventType{models.EventReviewRequested, models.EventReviewCompleted}, h.events.types())
	require.Len(t, h.sink.rows, 1)
	assert.True(t, h.sink.rows[0].Charged)
	assert.Equal(t, "m1", h.sink.rows[0].Model)
}

func TestComplete_FailedIsCharged(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 2, 0)
	e := h.entry(t, acct)

	ack, err := request(h, e.ID, false)
	require.NoError(t, err)

	res := complete(t, h, e.ID, ack.AttemptID, failedVerdict())
	assert.Equal(t, models.ReviewFailed, res.Status)

	rec := h.record(t, e.ID)
	require.NotNil(t, rec.ReviewError)
	assert.Equal(t, "CHART_RENDER", rec.ReviewError.Code)
	assert.Equal(t, models.ClassificationEngine, rec.ReviewError.Classification)
	assert.False(t, IsReviewCompleted(rec.ReviewStatus, rec.Analysis()))
	assert.Equal(t, models.AuthorizationConsumed, h.hold(t, ack.AttemptID).Status)

	regular, _ := h.balance(t)
	assert.Equal(t, int64(1), regular)
}

func TestComplete_RejectsMissingVerdict(t *testing.T) {
	h := newHarness(t)
	_, err := h.d.Complete(context.Background(), models.Completion{TradeLogID: "x", AttemptID: "y"})
	require.ErrorIs(t, err, models.ErrMalformedVerdict)
}

func TestComplete_RejectsOutcomeWithoutAnalysis(t *testing.T) {
	for _, outcome := range []models.Outcome{models.OutcomeValid, models.OutcomeRejected} {
		t.Run(string(outcome), func(t *testing.T) {
			h := newHarness(t)
			h.grant(t, 1, 0)
			e := h.entry(t, acct)

			ack, err := request(h, e.ID, false)
			require.NoError(t, err)

			_, err = h.d.Complete(context.Background(), models.Completion{
				TradeLogID: e.ID,
				AttemptID:  ack.AttemptID,
				Verdict:    &models.Verdict{SchemaVersion: models.VerdictSchemaCurrent, Outcome: outcome},
			})
			require.ErrorIs(t, err, models.ErrMalformedVerdict)

			assert.Equal(t, models.ReviewPending, h.record(t, e.ID).ReviewStatus)
			assert.Equal(t, models.AuthorizationHeld, h.hold(t, ack.AttemptID).Status)
		})
	}
}

func TestComplete_StaleVerdictCountedAsOutcome(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 1, 0)
	e := h.entry(t, acct)

	ack, err := request(h, e.ID, false)
	require.NoError(t, err)
	complete(t, h, e.ID, ack.AttemptID, validVerdict())
	complete(t, h, e.ID, ack.AttemptID, validVerdict())

	requests, outcomes := h.metrics.snapshot()
	assert.Contains(t, outcomes, "stale")
	assert.NotContains(t, requests, "complete/stale")
}

func TestRetryReview_StateGate(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 5, 0)
	e := h.entry(t, acct)

	_, err := retry(h, e.ID, false)
	var se *models.InvalidStateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ReviewNone, se.Current)

	ack, err := request(h, e.ID, false)
	require.NoError(t, err)

	_, err = retry(h, e.ID, false)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ReviewPending, se.Current)

	_, err = request(h, e.ID, false)
	require.ErrorIs(t, err, models.ErrInvalidState)

	complete(t, h, e.ID, ack.AttemptID, validVerdict())
	_, err = retry(h, e.ID, false)
	require.ErrorIs(t, err, models.ErrInvalidState)

	regular, _ := h.balance(t)
	assert.Equal(t, int64(4), regular)
}

func TestRetryReview_FromRejectedFollowsPolicy(t *testing.T) {
	for _, allow := range []bool{true, false} {
		h := newHarness(t, withRetryFromRejected(allow))
		h.grant(t, 5, 0)
		e := h.entry(t, acct)

		ack, err := request(h, e.ID, false)
		require.NoError(t, err)
		complete(t, h, e.ID, ack.AttemptID, rejectedVerdict())

		again, err := retry(h, e.ID, false)
		if !allow {
			require.ErrorIs(t, err, models.ErrInvalidState)
			continue
		}
		require.NoError(t, err)
		assert.NotEqual(t, ack.AttemptID, again.AttemptID)
		assert.Equal(t, 2, h.record(t, e.ID).ReviewAttempts)
		assert.Nil(t, h.record(t, e.ID).ReviewResult)
	}
}

func TestRetryReview_UsesCallerBucket(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 1, 1)
	e := h.entry(t, acct)

	ack, err := request(h, e.ID, false)
	require.NoError(t, err)
	complete(t, h, e.ID, ack.AttemptID, failedVerdict())

	again, err := retry(h, e.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.BucketBonus, again.CreditType)
	assert.Equal(t, models.BucketBonus, h.hold(t, again.AttemptID).Bucket)

	regular, bonus := h.balance(t)
	assert.Zero(t, regular)
	assert.Zero(t, bonus)
}

func TestRequestReview_EnqueueFailureRefunds(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 1, 0)
	h.queue.err = errors.New("queue: not running")
	e := h.entry(t, acct)

	ack, err := request(h, e.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewErrored, ack.ReviewStatus)

	rec := h.record(t, e.ID)
	assert.Equal(t, models.ReviewErrored, rec.ReviewStatus)
	assert.Equal(t, FaultDispatchRejected, rec.ReviewError.Code)

	regular, _ := h.balance(t)
	assert.Equal(t, int64(1), regular)
	assert.Zero(t, h.d.armed())
}

func TestRequestReview_SaturatedLeavesLedgerUntouched(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 1, 0)
	h.queue.saturated = true
	e := h.entry(t, acct)

	_, err := request(h, e.ID, false)
	require.ErrorIs(t, err, models.ErrDispatchBusy)

	regular, _ := h.balance(t)
	assert.Equal(t, int64(1), regular)
	assert.Equal(t, models.ReviewNone, h.record(t, e.ID).ReviewStatus)
}

func TestSubmit_EngineErrorRefunds(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 1, 0)
	h.engine.err = errEngineDown
	e := h.entry(t, acct)

	_, err := request(h, e.ID, false)
	require.NoError(t, err)
	h.queue.drain(t)

	rec := h.record(t, e.ID)
	assert.Equal(t, models.ReviewErrored, rec.ReviewStatus)
	assert.Equal(t, FaultEngineUnavailable, rec.ReviewError.Code)

	regular, _ := h.balance(t)
	assert.Equal(t, int64(1), regular)
	assert.Equal(t,
		[]models.ReviewEventType{models.EventReviewRequested, models.EventReviewError},
		h.events.types())
}

func TestSubmit_InlineVerdict(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 1, 0)
	h.engine.verdict = validVerdict()
	e := h.entry(t, acct)

	ack, err := request(h, e.ID, false)
	require.NoError(t, err)
	h.queue.drain(t)

	require.Equal(t, 1, h.engine.calls())
	req := h.engine.reqs[0]
	assert.Equal(t, ack.AttemptID, req.AttemptID)
	assert.Equal(t, "2.00", req.RewardToRisk)
	assert.Equal(t, models.ReviewCompleted, h.record(t, e.ID).ReviewStatus)
	assert.Equal(t, models.AuthorizationConsumed, h.hold(t, ack.AttemptID).Status)
}

func TestSubmit_InlineVerdictWithoutAnalysisRefunds(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 1, 0)
	h.engine.verdict = &models.Verdict{SchemaVersion: models.VerdictSchemaCurrent, Outcome: models.OutcomeValid}
	e := h.entry(t, acct)

	ack, err := request(h, e.ID, false)
	require.NoError(t, err)
	h.queue.drain(t)

	rec := h.record(t, e.ID)
	assert.Equal(t, models.ReviewErrored, rec.ReviewStatus)
	require.NotNil(t, rec.ReviewError)
	assert.Equal(t, FaultEngineMalformed, rec.ReviewError.Code)
	assert.Equal(t, models.AuthorizationRefunded, h.hold(t, ack.AttemptID).Status)

	regular, _ := h.balance(t)
	assert.Equal(t, int64(1), regular)
}

func TestSubmit_SkipsSettledAttempt(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 1, 0)
	e := h.entry(t, acct)

	ack, err := request(h, e.ID, false)
	require.NoError(t, err)
	complete(t, h, e.ID, ack.AttemptID, validVerdict())
	h.queue.drain(t)

	assert.Zero(t, h.engine.calls())
}

func TestComplete_LateVerdictAfterTimeoutIgnored(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 1, 0)
	e := h.entry(t, acct)

	ack, err := request(h, e.ID, false)
	require.NoError(t, err)

	applied, err := h.d.Fault(context.Background(), e.ID, ack.AttemptID, FaultEngineTimeout)
	require.NoError(t, err)
	require.True(t, applied)

	res := complete(t, h, e.ID, ack.AttemptID, validVerdict())
	assert.False(t, res.Applied)
	assert.Equal(t, models.ReviewErrored, res.Status)
	assert.Equal(t, models.AuthorizationRefunded, h.hold(t, ack.AttemptID).Status)

	regular, _ := h.balance(t)
	assert.Equal(t, int64(1), regular)

	applied, err = h.d.Fault(context.Background(), e.ID, ack.AttemptID, FaultEngineTimeout)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestComplete_VerdictForSupersededAttemptIgnored(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 2, 0)
	e := h.entry(t, acct)

	first, err := request(h, e.ID, false)
	require.NoError(t, err)
	_, err = h.d.Fault(context.Background(), e.ID, first.AttemptID, FaultEngineTimeout)
	require.NoError(t, err)

	second, err := retry(h, e.ID, false)
	require.NoError(t, err)

	res := complete(t, h, e.ID, first.AttemptID, validVerdict())
	assert.False(t, res.Applied)
	assert.Equal(t, models.ReviewPending, res.Status)
	assert.Equal(t, second.AttemptID, h.record(t, e.ID).ReviewAttemptID)
}

func TestRequestReview_NotOwned(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 1, 0)
	e := h.entry(t, "someone-else")

	_, err := request(h, e.ID, false)
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = request(h, "missing", false)
	require.ErrorIs(t, err, models.ErrNotFound)

	regular, _ := h.balance(t)
	assert.Equal(t, int64(1), regular)
}

func TestRequestReview_ConcurrentNeverOverdraws(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 3, 0)

	ids := make([]string, 10)
	for i := range ids {
		ids[i] = h.entry(t, acct).ID
	}

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := request(h, id, false); err == nil {
				accepted.Add(1)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int32(3), accepted.Load())
	regular, _ := h.balance(t)
	assert.Zero(t, regular)
}

func TestRequestReview_ConcurrentSameEntryStartsOnce(t *testing.T) {
	h := newHarness(t)
	h.grant(t, 5, 0)
	e := h.entry(t, acct)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := request(h, e.ID, false); err == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	regular, _ := h.balance(t)
	assert.Equal(t, int64(4), regular)
}
