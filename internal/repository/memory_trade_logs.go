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

// MemoryTradeLogs keeps trade log entries in process memory.
type MemoryTradeLogs struct {
	mu      sync.RWMutex
	entries map[string]*models.TradeLogEntry
}

func NewMemoryTradeLogs() *MemoryTradeLogs {
	return &MemoryTradeLogs{entries: make(map[string]*models.TradeLogEntry)}
}

func (s *MemoryTradeLogs) Create(_ context.Context, e *models.TradeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; ok {
		return fmt.Errorf("trade log %s already exists", e.ID)
	}
	s.entries[e.ID] = e.Clone()
	return nil
}

func (s *MemoryTradeLogs) Get(_ context.Context, id string) (*models.TradeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *MemoryTradeLogs) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]*models.TradeLogEntry, int64, error) {
	s.mu.RLock()
	owned := make([]*models.TradeLogEntry, 0)
	for _, e := range s.entries {
		if e.AccountID == accountID {
			owned = append(owned, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	total := int64(len(owned))
	if offset >= len(owned) {
		return []*models.TradeLogEntry{}, total, nil
	}
	end := len(owned)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*models.TradeLogEntry, 0, end-offset)
	for _, e := range owned[offset:end] {
		out = append(out, e.Clone())
	}
	return out, total, nil
}

func (s *MemoryTradeLogs) UpdateParams(_ context.Context, id, accountID string, p models.TradeParams, now time.Time) (*models.TradeLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || !e.OwnedBy(accountID) {
		return nil, models.ErrNotFound
	}
	if e.NeedsReview {
		return nil, &models.InvalidStateError{Current: e.ReviewStatus, Op: "update trade params"}
	}
	e.TradeParams = p
	e.UpdatedAt = now
	return e.Clone(), nil
}

func (s *MemoryTradeLogs) BeginAttempt(_ context.Context, start models.AttemptStart, now time.Time) (*models.TradeLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[start.TradeLogID]
	if !ok || !e.OwnedBy(start.AccountID) {
		return nil, models.ErrNotFound
	}
	if !statusIn(e.ReviewStatus, start.FromStates) {
		return nil, &models.InvalidStateError{Current: e.ReviewStatus, Op: "begin review attempt"}
	}

	e.NeedsReview = true
	e.ReviewStatus = models.ReviewPending
	e.CreditType = start.CreditType
	e.IsFromRewardedAd = start.IsFromRewardedAd
	e.ReviewAttemptID = start.AttemptID
	e.ReviewAttempts++
	requested := now
	e.ReviewRequestedAt = &requested
	e.ReviewCompletedAt = nil
	e.ReviewResult = nil
	e.ReviewError = nil
	e.ReviewMetadata = nil
	e.UpdatedAt = now
	return e.Clone(), nil
}

func (s *MemoryTradeLogs) FinishAttempt(_ context.Context, fin models.AttemptFinish, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[fin.TradeLogID]
	if !ok {
		return false, models.ErrNotFound
	}
	if e.ReviewStatus != models.ReviewPending || e.ReviewAttemptID != fin.AttemptID {
		return false, nil
	}

	e.ReviewStatus = fin.Status
	completed := now
	e.ReviewCompletedAt = &completed
	e.ReviewResult = append([]models.AnalysisRecord(nil), fin.Result...)
	e.ReviewError = fin.Error
	e.ReviewMetadata = fin.Metadata
	e.UpdatedAt = now
	return true, nil
}

func (s *MemoryTradeLogs) ListStalePending(_ context.Context, requestedBefore time.Time, limit int) ([]*models.TradeLogEntry, error) {
	s.mu.RLock()
	out := make([]*models.TradeLogEntry, 0)
	for _, e := range s.entries {
		if e.ReviewStatus == models.ReviewPending && e.ReviewRequestedAt != nil && e.ReviewRequestedAt.Before(requestedBefore) {
			out = append(out, e.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ReviewRequestedAt.Before(*out[j].ReviewRequestedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryTradeLogs) Health(context.Context) error { return nil }

func statusIn(s models.ReviewStatus, states []models.ReviewStatus) bool {
	if s == "" {
		s = models.ReviewNone
	}
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

var _ domrepo.TradeLogRepository = (*MemoryTradeLogs)(nil)
