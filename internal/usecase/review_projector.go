package usecase

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"TradeReview/internal/domain/models"
	drepo "TradeReview/internal/domain/repository"
	"TradeReview/pkg/logger"

	"github.com/shopspring/decimal"
)

const neutralConfidence = 0.5

// ReviewProjector builds the client-facing review status. It never writes the record.
type ReviewProjector struct {
	repo   drepo.TradeLogRepository
	cache  drepo.StatusCache
	policy models.RetryPolicy
	log    *logger.Logger
}

func NewReviewProjector(repo drepo.TradeLogRepository, cache drepo.StatusCache, policy models.RetryPolicy, lgr *logger.Logger) *ReviewProjector {
	return &ReviewProjector{
		repo:   repo,
		cache:  cache,
		policy: policy,
		log:    lgr.With(logger.String("component", "review_projector")),
	}
}

// Status loads the entry owned by accountID and projects it. Pending views are not cached
// since they are the ones clients poll for a change.
func (p *ReviewProjector) Status(ctx context.Context, tradeLogID, accountID string) (*models.ReviewView, error) {
	v, gen, ok := p.cache.Get(ctx, accountID, tradeLogID)
	if ok {
		return v, nil
	}
	entry, err := p.repo.Get(ctx, tradeLogID)
	if errors.Is(err, models.ErrNotFound) || (err == nil && !entry.OwnedBy(accountID)) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v = p.Project(entry)
	if entry.ReviewStatus != models.ReviewPending {
		p.cache.Set(ctx, accountID, tradeLogID, gen, v)
	}
	return v, nil
}

// Project is a pure transformation of the record.
func (p *ReviewProjector) Project(e *models.TradeLogEntry) *models.ReviewView {
	status := e.ReviewStatus
	if status == "" {
		status = models.ReviewNone
	}
	analysis := e.Analysis()

	v := &models.ReviewView{
		TradeLogID:        e.ID,
		ReviewStatus:      status,
		NeedsReview:       e.NeedsReview,
		IsReviewCompleted: IsReviewCompleted(status, analysis),
		IsRetryable:       p.policy.CanRetry(status),
		Verdict:           verdictLabel(status),
		Confidence:        Confidence(analysis),
		RiskLevel:         RiskLevelOf(analysis),
		Error:             e.ReviewError,
		Cost:              costOf(e, status),
		RequestedAt:       e.ReviewRequestedAt,
		CompletedAt:       e.ReviewCompletedAt,
		Analysis:          analysis,
	}
	if analysis != nil {
		v.Summary = analysis.Summary
		v.Chips = analysis.Chips
	}
	return v
}

// IsReviewCompleted is true for delivered answers, including an engine failure that still
// carries a displayable payload.
func IsReviewCompleted(status models.ReviewStatus, analysis *models.AnalysisRecord) bool {
	switch status {
	case models.ReviewCompleted, models.ReviewRejected:
		return true
	case models.ReviewFailed:
		return analysis != nil
	}
	return false
}

// RiskLevelOf applies a fixed precedence over the analysis flags. The order matters.
func RiskLevelOf(a *models.AnalysisRecord) models.RiskLevel {
	switch {
	case a == nil:
		return ""
	case a.Invalid():
		return models.RiskHigh
	case a.InsufficientData:
		return models.RiskHigh
	case a.StaleAsOfToday:
		return models.RiskMediumHigh
	case a.BelowVWAP && a.AgainstBias:
		return models.RiskHigh
	default:
		return models.RiskMedium
	}
}

// Confidence reads the reward-to-risk chip: its own confidence when given, otherwise
// r/(1+r) from its value. Anything else is neutral.
func Confidence(a *models.AnalysisRecord) float64 {
	chip := a.Chip(isRewardRiskLabel)
	if chip == nil {
		return neutralConfidence
	}
	if chip.Confidence != nil {
		return clamp01(*chip.Confidence)
	}
	r, ok := parseRatio(chip.Value)
	if !ok || r.Sign() <= 0 {
		return neutralConfidence
	}
	c, _ := r.Div(r.Add(decimal.NewFromInt(1))).Round(4).Float64()
	return c
}

var rewardRiskLabels = map[string]bool{
	"rr":           true,
	"rrr":          true,
	"riskreward":   true,
	"rewardrisk":   true,
	"rewardtorisk": true,
	"risktoreward": true,
}

func isRewardRiskLabel(label string) bool {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return rewardRiskLabels[b.String()]
}

// parseRatio accepts "2:1", "1:2.5" style ratios and bare numbers.
func parseRatio(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if num, den, found := strings.Cut(s, ":"); found {
		n, err1 := decimal.NewFromString(strings.TrimSpace(num))
		d, err2 := decimal.NewFromString(strings.TrimSpace(den))
		if err1 != nil || err2 != nil || d.IsZero() {
			return decimal.Zero, false
		}
		return n.Div(d), true
	}
	r, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return r, true
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func verdictLabel(s models.ReviewStatus) string {
	switch s {
	case models.ReviewCompleted:
		return string(models.OutcomeValid)
	case models.ReviewRejected:
		return string(models.OutcomeRejected)
	case models.ReviewFailed:
		return string(models.OutcomeFailed)
	}
	return ""
}

func costOf(e *models.TradeLogEntry, status models.ReviewStatus) models.CostBreakdown {
	c := models.CostBreakdown{
		CreditType:       e.CreditType,
		IsFromRewardedAd: e.IsFromRewardedAd,
		CostUSD:          decimal.Zero,
	}
	switch {
	case status == models.ReviewPending:
		c.CreditsReserved = 1
	case status.Charged():
		c.CreditsCharged = 1
	}
	if md := e.ReviewMetadata; md != nil {
		c.Model = md.Model
		c.InputTokens = md.InputTokens
		c.OutputTokens = md.OutputTokens
		c.CostUSD = md.CostUSD
	}
	return c
}
