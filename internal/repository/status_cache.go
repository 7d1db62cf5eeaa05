package repository

import (
	"context"
	"errors"
	"time"

	"TradeReview/internal/domain/models"
	domrepo "TradeReview/internal/domain/repository"
	"TradeReview/pkg/cache"
	"TradeReview/pkg/logger"

	"github.com/oklog/ulid/v2"
)

// StatusCache stores projected review views in a cache.Service.
// Cache errors are logged and treated as misses.
type StatusCache struct {
	svc cache.Service
	ttl time.Duration
	l   *logger.Logger
}

func NewStatusCache(svc cache.Service, ttl time.Duration, l *logger.Logger) *StatusCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &StatusCache{svc: svc, ttl: ttl, l: l.With(logger.String("component", "status_cache"))}
}

// Views are stored under the trade log's current generation. Invalidate rotates the
// generation instead of deleting, so a view projected from a read that raced a write lands
// under a generation nobody looks up anymore.
const (
	generationTTL = 24 * time.Hour
	initialGen    = "0"
)

func generationKey(accountID, tradeLogID string) string {
	return cache.GenerateKey("review:gen:"+accountID, tradeLogID)
}

func statusKey(accountID, tradeLogID, gen string) string {
	return cache.GenerateKey("review:status:"+accountID, tradeLogID+":"+gen)
}

func (c *StatusCache) generation(ctx context.Context, accountID, tradeLogID string) string {
	var gen string
	if err := c.svc.Get(ctx, generationKey(accountID, tradeLogID), &gen); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.l.Warn("status cache generation", logger.String("trade_log_id", tradeLogID), logger.Error(err))
		}
		return initialGen
	}
	return gen
}

func (c *StatusCache) Get(ctx context.Context, accountID, tradeLogID string) (*models.ReviewView, string, bool) {
	gen := c.generation(ctx, accountID, tradeLogID)
	var v models.ReviewView
	err := c.svc.Get(ctx, statusKey(accountID, tradeLogID, gen), &v)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.l.Warn("status cache get", logger.String("trade_log_id", tradeLogID), logger.Error(err))
		}
		return nil, gen, false
	}
	return &v, gen, true
}

func (c *StatusCache) Set(ctx context.Context, accountID, tradeLogID, gen string, v *models.ReviewView) {
	if err := c.svc.Set(ctx, statusKey(accountID, tradeLogID, gen), v, c.ttl); err != nil {
		c.l.Warn("status cache set", logger.String("trade_log_id", tradeLogID), logger.Error(err))
	}
}

func (c *StatusCache) Invalidate(ctx context.Context, accountID, tradeLogID string) {
	old := c.generation(ctx, accountID, tradeLogID)
	if err := c.svc.Set(ctx, generationKey(accountID, tradeLogID), ulid.Make().String(), generationTTL); err != nil {
		c.l.Warn("status cache invalidate", logger.String("trade_log_id", tradeLogID), logger.Error(err))
	}
	_ = c.svc.Delete(ctx, statusKey(accountID, tradeLogID, old))
}

// NopStatusCache never hits.
type NopStatusCache struct{}

func (NopStatusCache) Get(context.Context, string, string) (*models.ReviewView, string, bool) {
	return nil, "", false
}
func (NopStatusCache) Set(context.Context, string, string, string, *models.ReviewView) {}
func (NopStatusCache) Invalidate(context.Context, string, string)                      {}

var (
	_ domrepo.StatusCache = (*StatusCache)(nil)
	_ domrepo.StatusCache = NopStatusCache{}
)
