package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TradeReview/internal/domain/models"
	domrepo "TradeReview/internal/domain/repository"
	"TradeReview/pkg/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ledgerColumns = `account_id, regular_credits, bonus_credits, bonus_credits_expiry, updated_at`

const holdColumns = `id, account_id, trade_log_id, bucket, amount, status, created_at, settled_at`

// PGCredits is the Postgres CreditStore. Each decrement is one UPDATE guarded by
// the remaining balance, so concurrent debits never drive a bucket negative.
type PGCredits struct {
	pool *pgxpool.Pool
}

func NewPGCredits(c *postgres.Client) *PGCredits {
	return &PGCredits{pool: c.Pool()}
}

func (s *PGCredits) GetLedger(ctx context.Context, accountID string) (*models.CreditLedger, error) {
	l, err := scanLedger(s.pool.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM credit_ledgers WHERE account_id = $1`, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrLedgerNotFound
	}
	return l, err
}

func (s *PGCredits) AddRegular(ctx context.Context, accountID string, amount int64, now time.Time) (*models.CreditLedger, error) {
	if amount < 0 {
		return nil, fmt.Errorf("regular grant must not be negative, got %d", amount)
	}
	return scanLedger(s.pool.QueryRow(ctx, `INSERT INTO credit_ledgers (account_id, regular_credits, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (account_id) DO UPDATE SET
            regular_credits = credit_ledgers.regular_credits + EXCLUDED.regular_credits,
            updated_at = EXCLUDED.updated_at
        RETURNING `+ledgerColumns, accountID, amount, now))
}

// EnsureLedger inserts the row unless one exists. The CTE returns the inserted row, or
// the existing one when the insert was skipped by the conflict.
func (s *PGCredits) EnsureLedger(ctx context.Context, accountID string, regular int64, now time.Time) (*models.CreditLedger, bool, error) {
	if regular < 0 {
		return nil, false, fmt.Errorf("regular grant must not be negative, got %d", regular)
	}
	var (
		l       models.CreditLedger
		created bool
	)
	err := s.pool.QueryRow(ctx, `WITH ins AS (
            INSERT INTO credit_ledgers (account_id, regular_credits, updated_at)
            VALUES ($1, $2, $3)
            ON CONFLICT (account_id) DO NOTHING
            RETURNING `+ledgerColumns+`
        )
        SELECT `+ledgerColumns+`, TRUE FROM ins
        UNION ALL
        SELECT `+ledgerColumns+`, FALSE FROM credit_ledgers WHERE account_id = $1 AND NOT EXISTS (SELECT 1 FROM ins)`,
		accountID, regular, now).Scan(&l.AccountID, &l.RegularCredits, &l.BonusCredits, &l.BonusCreditsExpiry, &l.UpdatedAt, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		// the conflicting row committed after this statement's snapshot
		ledger, gerr := s.GetLedger(ctx, accountID)
		return ledger, false, gerr
	}
	if err != nil {
		return nil, false, fmt.Errorf("ensure ledger: %w", err)
	}
	return &l, created, nil
}

func (s *PGCredits) GrantBonus(ctx context.Context, accountID string, amount int64, expiry, now time.Time) (*models.CreditLedger, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("bonus grant must be positive, got %d", amount)
	}
	return scanLedger(s.pool.QueryRow(ctx, `INSERT INTO credit_ledgers (account_id, bonus_credits, bonus_credits_expiry, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (account_id) DO UPDATE SET
            bonus_credits = CASE
                WHEN credit_ledgers.bonus_credits_expiry IS NULL OR credit_ledgers.bonus_credits_expiry <= EXCLUDED.updated_at
                THEN EXCLUDED.bonus_credits
                ELSE credit_ledgers.bonus_credits + EXCLUDED.bonus_credits END,
            bonus_credits_expiry = CASE
                WHEN credit_ledgers.bonus_credits_expiry IS NULL OR credit_ledgers.bonus_credits_expiry <= EXCLUDED.updated_at
                THEN EXCLUDED.bonus_credits_expiry
                ELSE GREATEST(credit_ledgers.bonus_credits_expiry, EXCLUDED.bonus_credits_expiry) END,
            updated_at = EXCLUDED.updated_at
        RETURNING `+ledgerColumns, accountID, amount, expiry, now))
}

func (s *PGCredits) Debit(ctx context.Context, accountID string, bucket models.CreditBucket, amount int64, now time.Time) error {
	return debit(ctx, s.pool, accountID, bucket, amount, now)
}

func (s *PGCredits) Credit(ctx context.Context, accountID string, bucket models.CreditBucket, amount int64, now time.Time) error {
	return credit(ctx, s.pool, accountID, bucket, amount, now)
}

func (s *PGCredits) CreateHold(ctx context.Context, auth *models.Authorization, now time.Time) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := debit(ctx, tx, auth.AccountID, auth.Bucket, auth.Amount, now); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO credit_authorizations (id, account_id, trade_log_id, bucket, amount, status, created_at)
            VALUES ($1, $2, $3, $4, $5, 'held', $6)`,
			auth.ID, auth.AccountID, auth.TradeLogID, string(auth.Bucket), auth.Amount, now)
		if err != nil {
			return fmt.Errorf("insert authorization: %w", err)
		}
		return nil
	})
}

func (s *PGCredits) SettleHold(ctx context.Context, authID string, to models.AuthorizationStatus, now time.Time) (*models.Authorization, bool, error) {
	if to != models.AuthorizationConsumed && to != models.AuthorizationRefunded {
		return nil, false, fmt.Errorf("invalid settlement %q", to)
	}
	var (
		hold    *models.Authorization
		changed bool
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		h, err := scanHold(tx.QueryRow(ctx, `UPDATE credit_authorizations SET status = $2, settled_at = $3
            WHERE id = $1 AND status = 'held'
            RETURNING `+holdColumns, authID, string(to), now))
		if errors.Is(err, pgx.ErrNoRows) {
			h, err = scanHold(tx.QueryRow(ctx, `SELECT `+holdColumns+` FROM credit_authorizations WHERE id = $1`, authID))
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFound
			}
			hold = h
			return err
		}
		if err != nil {
			return err
		}
		if to == models.AuthorizationRefunded {
			if err := credit(ctx, tx, h.AccountID, h.Bucket, h.Amount, now); err != nil {
				return err
			}
		}
		hold, changed = h, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return hold, changed, nil
}

func (s *PGCredits) GetHold(ctx context.Context, authID string) (*models.Authorization, error) {
	h, err := scanHold(s.pool.QueryRow(ctx, `SELECT `+holdColumns+` FROM credit_authorizations WHERE id = $1`, authID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return h, err
}

func (s *PGCredits) ListOpenHolds(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Authorization, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+holdColumns+` FROM credit_authorizations
        WHERE status = 'held' AND created_at < $1 ORDER BY created_at ASC LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list open holds: %w", err)
	}
	defer rows.Close()
	var out []*models.Authorization
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// debit is the conditional decrement. A bonus debit also requires an unexpired bucket.
func debit(ctx context.Context, q querier, accountID string, bucket models.CreditBucket, amount int64, now time.Time) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	var sql string
	switch bucket {
	case models.BucketRegular:
		sql = `UPDATE credit_ledgers SET regular_credits = regular_credits - $2, updated_at = $3
            WHERE account_id = $1 AND regular_credits >= $2`
	case models.BucketBonus:
		sql = `UPDATE credit_ledgers SET bonus_credits = bonus_credits - $2, updated_at = $3
            WHERE account_id = $1 AND bonus_credits >= $2 AND bonus_credits_expiry > $3`
	default:
		return fmt.Errorf("unknown bucket %q", bucket)
	}
	tag, err := q.Exec(ctx, sql, accountID, amount, now)
	if err != nil {
		return fmt.Errorf("debit %s: %w", bucket, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM credit_ledgers WHERE account_id = $1)`, accountID).Scan(&exists); err != nil {
		return fmt.Errorf("debit %s: %w", bucket, err)
	}
	if !exists {
		return models.ErrLedgerNotFound
	}
	return models.ErrInsufficientCredit
}

func credit(ctx context.Context, q querier, accountID string, bucket models.CreditBucket, amount int64, now time.Time) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	var sql string
	switch bucket {
	case models.BucketRegular:
		sql = `UPDATE credit_ledgers SET regular_credits = regular_credits + $2, updated_at = $3 WHERE account_id = $1`
	case models.BucketBonus:
		sql = `UPDATE credit_ledgers SET bonus_credits = bonus_credits + $2, updated_at = $3 WHERE account_id = $1`
	default:
		return fmt.Errorf("unknown bucket %q", bucket)
	}
	tag, err := q.Exec(ctx, sql, accountID, amount, now)
	if err != nil {
		return fmt.Errorf("credit %s: %w", bucket, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrLedgerNotFound
	}
	return nil
}

func scanLedger(row pgx.Row) (*models.CreditLedger, error) {
	var l models.CreditLedger
	if err := row.Scan(&l.AccountID, &l.RegularCredits, &l.BonusCredits, &l.BonusCreditsExpiry, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func scanHold(row pgx.Row) (*models.Authorization, error) {
	var (
		h              models.Authorization
		bucket, status string
	)
	if err := row.Scan(&h.ID, &h.AccountID, &h.TradeLogID, &bucket, &h.Amount, &status, &h.CreatedAt, &h.SettledAt); err != nil {
		return nil, err
	}
	h.Bucket = models.CreditBucket(bucket)
	h.Status = models.AuthorizationStatus(status)
	return &h, nil
}

var _ domrepo.CreditStore = (*PGCredits)(nil)
