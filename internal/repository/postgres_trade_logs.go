package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"TradeReview/internal/domain/models"
	domrepo "TradeReview/internal/domain/repository"
	"TradeReview/pkg/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Schema is the Postgres DDL for trade logs and the credit ledger, applied in order.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS trade_logs (
        id                  TEXT PRIMARY KEY,
        account_id          TEXT NOT NULL,
        instrument          TEXT NOT NULL,
        exchange            TEXT NOT NULL DEFAULT '',
        direction           TEXT NOT NULL,
        quantity            BIGINT NOT NULL,
        entry_price         NUMERIC(20,8) NOT NULL,
        target_price        NUMERIC(20,8) NOT NULL,
        stop_price          NUMERIC(20,8) NOT NULL,
        reasoning           TEXT NOT NULL DEFAULT '',
        needs_review        BOOLEAN NOT NULL DEFAULT FALSE,
        review_status       TEXT NOT NULL DEFAULT 'none',
        credit_type         TEXT NOT NULL DEFAULT '',
        is_from_rewarded_ad BOOLEAN NOT NULL DEFAULT FALSE,
        review_attempt_id   TEXT NOT NULL DEFAULT '',
        review_attempts     INTEGER NOT NULL DEFAULT 0,
        review_requested_at TIMESTAMPTZ,
        review_completed_at TIMESTAMPTZ,
        review_result       JSONB,
        review_error        JSONB,
        review_metadata     JSONB,
        created_at          TIMESTAMPTZ NOT NULL,
        updated_at          TIMESTAMPTZ NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS trade_logs_account_created_idx ON trade_logs (account_id, created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS trade_logs_pending_idx ON trade_logs (review_requested_at) WHERE review_status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS credit_ledgers (
        account_id           TEXT PRIMARY KEY,
        regular_credits      BIGINT NOT NULL DEFAULT 0 CHECK (regular_credits >= 0),
        bonus_credits        BIGINT NOT NULL DEFAULT 0 CHECK (bonus_credits >= 0),
        bonus_credits_expiry TIMESTAMPTZ,
        updated_at           TIMESTAMPTZ NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS credit_authorizations (
        id           TEXT PRIMARY KEY,
        account_id   TEXT NOT NULL REFERENCES credit_ledgers (account_id),
        trade_log_id TEXT NOT NULL,
        bucket       TEXT NOT NULL,
        amount       BIGINT NOT NULL CHECK (amount > 0),
        status       TEXT NOT NULL,
        created_at   TIMESTAMPTZ NOT NULL,
        settled_at   TIMESTAMPTZ
    )`,
	`CREATE INDEX IF NOT EXISTS credit_authorizations_held_idx ON credit_authorizations (created_at) WHERE status = 'held'`,
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const tradeLogColumns = `id, account_id, instrument, exchange, direction, quantity,
    entry_price::text, target_price::text, stop_price::text, reasoning,
    needs_review, review_status, credit_type, is_from_rewarded_ad, review_attempt_id, review_attempts,
    review_requested_at, review_completed_at, review_result, review_error, review_metadata,
    created_at, updated_at`

// PGTradeLogs stores trade logs in Postgres. Review transitions are single conditional UPDATEs.
type PGTradeLogs struct {
	pool *pgxpool.Pool
}

func NewPGTradeLogs(c *postgres.Client) *PGTradeLogs {
	return &PGTradeLogs{pool: c.Pool()}
}

func (s *PGTradeLogs) Create(ctx context.Context, e *models.TradeLogEntry) error {
	status := e.ReviewStatus
	if status == "" {
		status = models.ReviewNone
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO trade_logs
        (id, account_id, instrument, exchange, direction, quantity, entry_price, target_price, stop_price,
         reasoning, review_status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10, $11, $12, $13)`,
		e.ID, e.AccountID, e.Instrument, e.Exchange, string(e.Direction), e.Quantity,
		e.EntryPrice.String(), e.TargetPrice.String(), e.StopPrice.String(),
		e.Reasoning, string(status), e.CreatedAt, e.UpdatedAt)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("trade log %s already exists", e.ID)
	}
	return err
}

func (s *PGTradeLogs) Get(ctx context.Context, id string) (*models.TradeLogEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tradeLogColumns+` FROM trade_logs WHERE id = $1`, id)
	e, err := scanTradeLog(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return e, err
}

func (s *PGTradeLogs) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.TradeLogEntry, int64, error) {
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM trade_logs WHERE account_id = $1`, accountID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count trade logs: %w", err)
	}
	rows, err := s.pool.Query(ctx, `SELECT `+tradeLogColumns+` FROM trade_logs
        WHERE account_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list trade logs: %w", err)
	}
	defer rows.Close()

	out := make([]*models.TradeLogEntry, 0, limit)
	for rows.Next() {
		e, err := scanTradeLog(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (s *PGTradeLogs) UpdateParams(ctx context.Context, id, accountID string, p models.TradeParams, now time.Time) (*models.TradeLogEntry, error) {
	row := s.pool.QueryRow(ctx, `UPDATE trade_logs SET
            instrument = $3, exchange = $4, direction = $5, quantity = $6,
            entry_price = $7::numeric, target_price = $8::numeric, stop_price = $9::numeric,
            reasoning = $10, updated_at = $11
        WHERE id = $1 AND account_id = $2 AND NOT needs_review
        RETURNING `+tradeLogColumns,
		id, accountID, p.Instrument, p.Exchange, string(p.Direction), p.Quantity,
		p.EntryPrice.String(), p.TargetPrice.String(), p.StopPrice.String(), p.Reasoning, now)
	e, err := scanTradeLog(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.blocked(ctx, id, accountID, "update trade params")
	}
	return e, err
}

func (s *PGTradeLogs) BeginAttempt(ctx context.Context, start models.AttemptStart, now time.Time) (*models.TradeLogEntry, error) {
	from := make([]string, 0, len(start.FromStates))
	for _, st := range start.FromStates {
		from = append(from, string(st))
	}
	row := s.pool.QueryRow(ctx, `UPDATE trade_logs SET
            needs_review = TRUE,
            review_status = 'pending',
            credit_type = $4,
            is_from_rewarded_ad = $5,
            review_attempt_id = $6,
            review_attempts = review_attempts + 1,
            review_requested_at = $7,
            review_completed_at = NULL,
            review_result = NULL,
            review_error = NULL,
            review_metadata = NULL,
            updated_at = $7
        WHERE id = $1 AND account_id = $2 AND review_status = ANY($3)
        RETURNING `+tradeLogColumns,
		start.TradeLogID, start.AccountID, from, string(start.CreditType), start.IsFromRewardedAd, start.AttemptID, now)
	e, err := scanTradeLog(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.blocked(ctx, start.TradeLogID, start.AccountID, "begin review attempt")
	}
	return e, err
}

func (s *PGTradeLogs) FinishAttempt(ctx context.Context, fin models.AttemptFinish, now time.Time) (bool, error) {
	result, err := marshalNullable(fin.Result, len(fin.Result) > 0)
	if err != nil {
		return false, err
	}
	reviewErr, err := marshalNullable(fin.Error, fin.Error != nil)
	if err != nil {
		return false, err
	}
	meta, err := marshalNullable(fin.Metadata, fin.Metadata != nil)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE trade_logs SET
            review_status = $3,
            review_completed_at = $4,
            review_result = $5,
            review_error = $6,
            review_metadata = $7,
            updated_at = $4
        WHERE id = $1 AND review_status = 'pending' AND review_attempt_id = $2`,
		fin.TradeLogID, fin.AttemptID, string(fin.Status), now, result, reviewErr, meta)
	if err != nil {
		return false, fmt.Errorf("finish attempt: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGTradeLogs) ListStalePending(ctx context.Context, requestedBefore time.Time, limit int) ([]*models.TradeLogEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tradeLogColumns+` FROM trade_logs
        WHERE review_status = 'pending' AND review_requested_at < $1
        ORDER BY review_requested_at ASC LIMIT $2`, requestedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending: %w", err)
	}
	defer rows.Close()
	var out []*models.TradeLogEntry
	for rows.Next() {
		e, err := scanTradeLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PGTradeLogs) Health(ctx context.Context) error { return s.pool.Ping(ctx) }

// blocked explains why a conditional update matched no row.
func (s *PGTradeLogs) blocked(ctx context.Context, id, accountID, op string) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !e.OwnedBy(accountID) {
		return models.ErrNotFound
	}
	return &models.InvalidStateError{Current: e.ReviewStatus, Op: op}
}

func scanTradeLog(row pgx.Row) (*models.TradeLogEntry, error) {
	var (
		e                    models.TradeLogEntry
		direction, status    string
		creditType           string
		entry, target, stop  string
		result, rerr, meta   []byte
		requested, completed *time.Time
	)
	err := row.Scan(&e.ID, &e.AccountID, &e.Instrument, &e.Exchange, &direction, &e.Quantity,
		&entry, &target, &stop, &e.Reasoning,
		&e.NeedsReview, &status, &creditType, &e.IsFromRewardedAd, &e.ReviewAttemptID, &e.ReviewAttempts,
		&requested, &completed, &result, &rerr, &meta,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Direction = models.Direction(direction)
	e.ReviewStatus = models.ReviewStatus(status)
	e.CreditType = models.CreditBucket(creditType)
	e.ReviewRequestedAt = requested
	e.ReviewCompletedAt = completed
	if e.EntryPrice, err = decimal.NewFromString(entry); err != nil {
		return nil, fmt.Errorf("entry_price: %w", err)
	}
	if e.TargetPrice, err = decimal.NewFromString(target); err != nil {
		return nil, fmt.Errorf("target_price: %w", err)
	}
	if e.StopPrice, err = decimal.NewFromString(stop); err != nil {
		return nil, fmt.Errorf("stop_price: %w", err)
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &e.ReviewResult); err != nil {
			return nil, fmt.Errorf("review_result: %w", err)
		}
	}
	if len(rerr) > 0 {
		e.ReviewError = &models.ReviewError{}
		if err := json.Unmarshal(rerr, e.ReviewError); err != nil {
			return nil, fmt.Errorf("review_error: %w", err)
		}
	}
	if len(meta) > 0 {
		e.ReviewMetadata = &models.ReviewMetadata{}
		if err := json.Unmarshal(meta, e.ReviewMetadata); err != nil {
			return nil, fmt.Errorf("review_metadata: %w", err)
		}
	}
	return &e, nil
}

// marshalNullable encodes v for a JSONB column, or SQL NULL when present is false.
func marshalNullable(v any, present bool) ([]byte, error) {
	if !present {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode jsonb: %w", err)
	}
	return b, nil
}

var _ domrepo.TradeLogRepository = (*PGTradeLogs)(nil)
