package usecase

import (
	"context"
	"testing"
	"time"

	"TradeReview/internal/domain/models"
	drepo "TradeReview/internal/domain/repository"
	"TradeReview/internal/repository"
	"TradeReview/pkg/cache"
	"TradeReview/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskLevelOf(t *testing.T) {
	tests := []struct {
		name string
		a    *models.AnalysisRecord
		want models.RiskLevel
	}{
		{"no analysis", nil, ""},
		{"invalid wins over everything", &models.AnalysisRecord{IsValid: flag(false), StaleAsOfToday: true}, models.RiskHigh},
		{"insufficient data", &models.AnalysisRecord{IsValid: flag(true), InsufficientData: true, StaleAsOfToday: true}, models.RiskHigh},
		{"stale", &models.AnalysisRecord{IsValid: flag(true), StaleAsOfToday: true, BelowVWAP: true, AgainstBias: true}, models.RiskMediumHigh},
		{"below vwap and against bias", &models.AnalysisRecord{IsValid: flag(true), BelowVWAP: true, AgainstBias: true}, models.RiskHigh},
		{"below vwap only", &models.AnalysisRecord{IsValid: flag(true), BelowVWAP: true}, models.RiskMedium},
		{"clean", &models.AnalysisRecord{IsValid: flag(true)}, models.RiskMedium},
		{"flag absent falls through", &models.AnalysisRecord{Summary: "looks fine"}, models.RiskMedium},
		{"flag absent with thin data", &models.AnalysisRecord{InsufficientData: true}, models.RiskHigh},
		{"flag absent and stale", &models.AnalysisRecord{StaleAsOfToday: true}, models.RiskMediumHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RiskLevelOf(tt.a))
		})
	}
}

func TestConfidence(t *testing.T) {
	conf := func(f float64) *float64 { return &f }
	withChip := func(label, value string, c *float64) *models.AnalysisRecord {
		return &models.AnalysisRecord{IsValid: flag(true), Chips: []models.UIChip{
			{Label: "Trend", Value: "up"},
			{Label: label, Value: value, Confidence: c},
		}}
	}

	tests := []struct {
		name string
		a    *models.AnalysisRecord
		want float64
	}{
		{"no analysis", nil, 0.5},
		{"no ratio chip", &models.AnalysisRecord{Chips: []models.UIChip{{Label: "Trend", Value: "up"}}}, 0.5},
		{"explicit confidence", withChip("R:R", "2:1", conf(0.8)), 0.8},
		{"clamped", withChip("RR", "2:1", conf(1.7)), 1},
		{"ratio", withChip("Risk/Reward", "3:1", nil), 0.75},
		{"bare number", withChip("reward to risk", "1", nil), 0.5},
		{"fractional ratio", withChip("RRR", "1:2", nil), 0.3333},
		{"unparseable", withChip("R:R", "n/a", nil), 0.5},
		{"zero denominator", withChip("R:R", "2:0", nil), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.a), 1e-9)
		})
	}
}

func TestIsReviewCompleted(t *testing.T) {
	a := &models.AnalysisRecord{}
	assert.True(t, IsReviewCompleted(models.ReviewCompleted, nil))
	assert.True(t, IsReviewCompleted(models.ReviewRejected, nil))
	assert.True(t, IsReviewCompleted(models.ReviewFailed, a))
	assert.False(t, IsReviewCompleted(models.ReviewFailed, nil))
	assert.False(t, IsReviewCompleted(models.ReviewErrored, a))
	assert.False(t, IsReviewCompleted(models.ReviewPending, nil))
	assert.False(t, IsReviewCompleted(models.ReviewNone, nil))
}

func TestProject_Cost(t *testing.T) {
	p := NewReviewProjector(repository.NewMemoryTradeLogs(), repository.NopStatusCache{}, models.RetryPolicy{AllowFromRejected: true}, logger.Nop())

	pending := p.Project(&models.TradeLogEntry{ID: "a", ReviewStatus: models.ReviewPending, CreditType: models.BucketBonus, IsFromRewardedAd: true})
	assert.Equal(t, int64(1), pending.Cost.CreditsReserved)
	assert.Zero(t, pending.Cost.CreditsCharged)
	assert.True(t, pending.Cost.IsFromRewardedAd)
	assert.False(t, pending.IsRetryable)

	errored := p.Project(&models.TradeLogEntry{ID: "b", ReviewStatus: models.ReviewErrored, CreditType: models.BucketRegular})
	assert.Zero(t, errored.Cost.CreditsCharged)
	assert.Zero(t, errored.Cost.CreditsReserved)
	assert.True(t, errored.IsRetryable)

	done := p.Project(&models.TradeLogEntry{
		ID:           "c",
		ReviewStatus: models.ReviewCompleted,
		CreditType:   models.BucketRegular,
		ReviewResult: []models.AnalysisRecord{{IsValid: flag(true), Summary: "ok"}},
		ReviewMetadata: &models.ReviewMetadata{
			Model:        "m1",
			InputTokens:  10,
			OutputTokens: 5,
			CostUSD:      decimal.RequireFromString("0.01"),
		},
	})
	assert.Equal(t, int64(1), done.Cost.CreditsCharged)
	assert.Equal(t, "m1", done.Cost.Model)
	assert.Equal(t, "valid", done.Verdict)
	assert.Equal(t, "ok", done.Summary)
	assert.Equal(t, models.RiskMedium, done.RiskLevel)
	assert.False(t, done.IsRetryable)

	none := p.Project(&models.TradeLogEntry{ID: "d"})
	assert.Equal(t, models.ReviewNone, none.ReviewStatus)
	assert.True(t, none.Cost.CostUSD.IsZero())
}

func TestStatus_OwnershipAndCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.grant(t, 1, 0)
	e := h.entry(t, acct)

	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	sc := repository.NewStatusCache(mc, time.Minute, logger.Nop())
	p := NewReviewProjector(h.repo, sc, h.d.Policy(), logger.Nop())

	_, err := p.Status(ctx, e.ID, "intruder")
	require.ErrorIs(t, err, models.ErrNotFound)

	ack, err := request(h, e.ID, false)
	require.NoError(t, err)

	v, err := p.Status(ctx, e.ID, acct)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewPending, v.ReviewStatus)
	_, _, hit := sc.Get(ctx, acct, e.ID)
	assert.False(t, hit, "pending views are not cached")

	complete(t, h, e.ID, ack.AttemptID, validVerdict())
	v, err = p.Status(ctx, e.ID, acct)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewCompleted, v.ReviewStatus)
	assert.True(t, v.IsReviewCompleted)
	assert.InDelta(t, 0.8, v.Confidence, 1e-9)

	cached, _, hit := sc.Get(ctx, acct, e.ID)
	require.True(t, hit)
	assert.Equal(t, models.ReviewCompleted, cached.ReviewStatus)

	_, err = p.Status(ctx, e.ID, "intruder")
	require.ErrorIs(t, err, models.ErrNotFound)
}

// writeAfterRead runs write once, right after the first Get returns.
type writeAfterRead struct {
	drepo.TradeLogRepository
	write func()
}

func (r *writeAfterRead) Get(ctx context.Context, id string) (*models.TradeLogEntry, error) {
	e, err := r.TradeLogRepository.Get(ctx, id)
	if r.write != nil {
		w := r.write
		r.write = nil
		w()
	}
	return e, err
}

func TestStatus_RetryBetweenReadAndCacheFill(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.grant(t, 2, 0)
	e := h.entry(t, acct)

	ack, err := request(h, e.ID, false)
	require.NoError(t, err)
	complete(t, h, e.ID, ack.AttemptID, rejectedVerdict())

	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	sc := repository.NewStatusCache(mc, time.Minute, logger.Nop())
	repo := &writeAfterRead{TradeLogRepository: h.repo}
	repo.write = func() {
		_, err := retry(h, e.ID, false)
		require.NoError(t, err)
		sc.Invalidate(ctx, acct, e.ID)
	}
	p := NewReviewProjector(repo, sc, h.d.Policy(), logger.Nop())

	v, err := p.Status(ctx, e.ID, acct)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewRejected, v.ReviewStatus, "the read predates the retry")

	v, err = p.Status(ctx, e.ID, acct)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewPending, v.ReviewStatus, "the rejected view must not outlive the invalidation")
}
