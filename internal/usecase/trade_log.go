package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TradeReview/internal/domain/models"
	drepo "TradeReview/internal/domain/repository"
	domsvc "TradeReview/internal/domain/service"
	"TradeReview/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeLogService owns the trade parameters of entries. Review state is written only by
// ReviewDispatcher.
type TradeLogService struct {
	repo        drepo.TradeLogRepository
	instruments domsvc.InstrumentResolver
	log         *logger.Logger
	now         func() time.Time
}

func NewTradeLogService(repo drepo.TradeLogRepository, instruments domsvc.InstrumentResolver, lgr *logger.Logger) *TradeLogService {
	return &TradeLogService{
		repo:        repo,
		instruments: instruments,
		log:         lgr.With(logger.String("component", "trade_log")),
		now:         time.Now,
	}
}

func (s *TradeLogService) Create(ctx context.Context, accountID string, req *models.CreateTradeLogRequest) (*models.TradeLogEntry, error) {
	params, err := s.params(req)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	e := &models.TradeLogEntry{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		TradeParams:  *params,
		ReviewStatus: models.ReviewNone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create trade log: %w", err)
	}
	s.log.Debug("trade log created", logger.String("trade_log_id", e.ID), logger.String("instrument", e.Instrument))
	return e, nil
}

// Get returns the entry when accountID owns it.
func (s *TradeLogService) Get(ctx context.Context, id, accountID string) (*models.TradeLogEntry, error) {
	e, err := s.repo.Get(ctx, id)
	if errors.Is(err, models.ErrNotFound) || (err == nil && !e.OwnedBy(accountID)) {
		return nil, models.ErrNotFound
	}
	return e, err
}

func (s *TradeLogService) List(ctx context.Context, accountID string, limit, offset int) ([]*models.TradeLogEntry, int64, error) {
	return s.repo.ListByAccount(ctx, accountID, limit, offset)
}

// Update replaces the trade parameters. Parameters are frozen once a review was requested.
func (s *TradeLogService) Update(ctx context.Context, id, accountID string, req *models.CreateTradeLogRequest) (*models.TradeLogEntry, error) {
	params, err := s.params(req)
	if err != nil {
		return nil, err
	}
	return s.repo.UpdateParams(ctx, id, accountID, *params, s.now().UTC())
}

func (s *TradeLogService) params(req *models.CreateTradeLogRequest) (*models.TradeParams, error) {
	inst, ok := s.instruments.Resolve(req.Instrument)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownInstrument, req.Instrument)
	}
	entry, err := positivePrice("entry_price", req.EntryPrice)
	if err != nil {
		return nil, err
	}
	target, err := positivePrice("target_price", req.TargetPrice)
	if err != nil {
		return nil, err
	}
	stop, err := positivePrice("stop_price", req.StopPrice)
	if err != nil {
		return nil, err
	}

	dir := models.Direction(req.Direction)
	switch dir {
	case models.DirectionLong:
		if !(stop.LessThan(entry) && entry.LessThan(target)) {
			return nil, fmt.Errorf("%w: long trades need stop < entry < target", models.ErrInvalidParams)
		}
	case models.DirectionShort:
		if !(target.LessThan(entry) && entry.LessThan(stop)) {
			return nil, fmt.Errorf("%w: short trades need target < entry < stop", models.ErrInvalidParams)
		}
	default:
		return nil, fmt.Errorf("%w: direction %q", models.ErrInvalidParams, req.Direction)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", models.ErrInvalidParams)
	}

	return &models.TradeParams{
		Instrument:  inst.Symbol,
		Exchange:    inst.Exchange,
		Direction:   dir,
		Quantity:    req.Quantity,
		EntryPrice:  entry,
		TargetPrice: target,
		StopPrice:   stop,
		Reasoning:   req.Reasoning,
	}, nil
}

func positivePrice(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s is not a number", models.ErrInvalidParams, field)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s must be positive", models.ErrInvalidParams, field)
	}
	return d, nil
}
