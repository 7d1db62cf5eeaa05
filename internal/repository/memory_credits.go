package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"TradeReview/internal/domain/models"
	domrepo "TradeReview/internal/domain/repository"
)

// MemoryCredits is a CreditStore guarded by one mutex; every method is a single atomic step.
type MemoryCredits struct {
	mu      sync.Mutex
	ledgers map[string]*models.CreditLedger
	holds   map[string]*models.Authorization
}

func NewMemoryCredits() *MemoryCredits {
	return &MemoryCredits{
		ledgers: make(map[string]*models.CreditLedger),
		holds:   make(map[string]*models.Authorization),
	}
}

func (s *MemoryCredits) GetLedger(_ context.Context, accountID string) (*models.CreditLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[accountID]
	if !ok {
		return nil, models.ErrLedgerNotFound
	}
	return cloneLedger(l), nil
}

func (s *MemoryCredits) AddRegular(_ context.Context, accountID string, amount int64, now time.Time) (*models.CreditLedger, error) {
	if amount < 0 {
		return nil, fmt.Errorf("negative grant %d", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.ledgerLocked(accountID)
	l.RegularCredits += amount
	l.UpdatedAt = now
	return cloneLedger(l), nil
}

func (s *MemoryCredits) EnsureLedger(_ context.Context, accountID string, regular int64, now time.Time) (*models.CreditLedger, bool, error) {
	if regular < 0 {
		return nil, false, fmt.Errorf("negative grant %d", regular)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.ledgers[accountID]; ok {
		return cloneLedger(l), false, nil
	}
	l := &models.CreditLedger{AccountID: accountID, RegularCredits: regular, UpdatedAt: now}
	s.ledgers[accountID] = l
	return cloneLedger(l), true, nil
}

func (s *MemoryCredits) GrantBonus(_ context.Context, accountID string, amount int64, expiry, now time.Time) (*models.CreditLedger, error) {
	if amount < 0 {
		return nil, fmt.Errorf("negative grant %d", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.ledgerLocked(accountID)
	if l.BonusCreditsExpiry == nil || l.BonusExpired(now) {
		l.BonusCredits = 0
	}
	l.BonusCredits += amount
	if l.BonusCreditsExpiry == nil || expiry.After(*l.BonusCreditsExpiry) {
		exp := expiry
		l.BonusCreditsExpiry = &exp
	}
	l.UpdatedAt = now
	return cloneLedger(l), nil
}

func (s *MemoryCredits) Debit(_ context.Context, accountID string, bucket models.CreditBucket, amount int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debitLocked(accountID, bucket, amount, now)
}

func (s *MemoryCredits) Credit(_ context.Context, accountID string, bucket models.CreditBucket, amount int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creditLocked(accountID, bucket, amount, now)
}

func (s *MemoryCredits) CreateHold(_ context.Context, auth *models.Authorization, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.holds[auth.ID]; ok {
		return fmt.Errorf("authorization %s already exists", auth.ID)
	}
	if err := s.debitLocked(auth.AccountID, auth.Bucket, auth.Amount, now); err != nil {
		return err
	}
	h := *auth
	h.Status = models.AuthorizationHeld
	h.CreatedAt = now
	h.SettledAt = nil
	s.holds[h.ID] = &h
	return nil
}

func (s *MemoryCredits) SettleHold(_ context.Context, authID string, to models.AuthorizationStatus, now time.Time) (*models.Authorization, bool, error) {
	if to != models.AuthorizationConsumed && to != models.AuthorizationRefunded {
		return nil, false, fmt.Errorf("invalid settlement %q", to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[authID]
	if !ok {
		return nil, false, models.ErrNotFound
	}
	if h.Settled() {
		return cloneHold(h), false, nil
	}
	if to == models.AuthorizationRefunded {
		if err := s.creditLocked(h.AccountID, h.Bucket, h.Amount, now); err != nil {
			return nil, false, err
		}
	}
	h.Status = to
	settled := now
	h.SettledAt = &settled
	return cloneHold(h), true, nil
}

func (s *MemoryCredits) GetHold(_ context.Context, authID string) (*models.Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[authID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneHold(h), nil
}

func (s *MemoryCredits) ListOpenHolds(_ context.Context, createdBefore time.Time, limit int) ([]*models.Authorization, error) {
	s.mu.Lock()
	out := make([]*models.Authorization, 0)
	for _, h := range s.holds {
		if !h.Settled() && h.CreatedAt.Before(createdBefore) {
			out = append(out, cloneHold(h))
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryCredits) ledgerLocked(accountID string) *models.CreditLedger {
	l, ok := s.ledgers[accountID]
	if !ok {
		l = &models.CreditLedger{AccountID: accountID}
		s.ledgers[accountID] = l
	}
	return l
}

func (s *MemoryCredits) debitLocked(accountID string, bucket models.CreditBucket, amount int64, now time.Time) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	l, ok := s.ledgers[accountID]
	if !ok {
		return models.ErrLedgerNotFound
	}
	if l.Available(bucket, now) < amount {
		return models.ErrInsufficientCredit
	}
	switch bucket {
	case models.BucketBonus:
		l.BonusCredits -= amount
	case models.BucketRegular:
		l.RegularCredits -= amount
	default:
		return fmt.Errorf("unknown bucket %q", bucket)
	}
	l.UpdatedAt = now
	return nil
}

func (s *MemoryCredits) creditLocked(accountID string, bucket models.CreditBucket, amount int64, now time.Time) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	l, ok := s.ledgers[accountID]
	if !ok {
		return models.ErrLedgerNotFound
	}
	switch bucket {
	case models.BucketBonus:
		l.BonusCredits += amount
	case models.BucketRegular:
		l.RegularCredits += amount
	default:
		return fmt.Errorf("unknown bucket %q", bucket)
	}
	l.UpdatedAt = now
	return nil
}

func cloneLedger(l *models.CreditLedger) *models.CreditLedger {
	c := *l
	if l.BonusCreditsExpiry != nil {
		t := *l.BonusCreditsExpiry
		c.BonusCreditsExpiry = &t
	}
	return &c
}

func cloneHold(h *models.Authorization) *models.Authorization {
	c := *h
	if h.SettledAt != nil {
		t := *h.SettledAt
		c.SettledAt = &t
	}
	return &c
}

var _ domrepo.CreditStore = (*MemoryCredits)(nil)
