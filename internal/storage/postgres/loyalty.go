package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krishna-marketing/grocer/internal/domain/customer"
	"github.com/krishna-marketing/grocer/internal/domain/loyalty"
)

const (
	adjustBalanceSQL = `UPDATE users SET loyalty_points = loyalty_points + $2
		WHERE id = $1 AND loyalty_points + $2 >= 0 RETURNING loyalty_points`

	userExistsSQL = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`

	insertEntrySQL = `INSERT INTO loyalty_entries (id, user_id, type, points, order_id, description, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`

	balanceSQL = `SELECT loyalty_points FROM users WHERE id = $1`

	historySQL = `SELECT id, user_id, type, points, order_id, description, expires_at, created_at
		FROM loyalty_entries WHERE user_id = $1 ORDER BY created_at DESC, id LIMIT $2`
)

var _ loyalty.Repository = (*LoyaltyRepository)(nil)

// LoyaltyRepository keeps the append-only ledger and the balance on the user
// row in step.
type LoyaltyRepository struct {
	pool *pgxpool.Pool
}

func NewLoyaltyRepository(pool *pgxpool.Pool) *LoyaltyRepository {
	return &LoyaltyRepository{pool: pool}
}

// Append adjusts the balance with a guarded update and records e in the same
// transaction.
func (r *LoyaltyRepository) Append(ctx context.Context, e *loyalty.Entry) (int64, error) {
	var balance int64
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, adjustBalanceSQL, e.UserID, e.Points).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, userExistsSQL, e.UserID).Scan(&exists); err != nil {
				return errors.Wrapf(err, "checking user %q", e.UserID)
			}
			if !exists {
				return customer.ErrNotFound
			}
			return loyalty.ErrInsufficientPoints
		}
		if err != nil {
			return errors.Wrapf(err, "adjusting points of %q", e.UserID)
		}

		err = tx.QueryRow(ctx, insertEntrySQL,
			e.ID, e.UserID, string(e.Type), e.Points, nullString(e.OrderID), e.Description, e.ExpiresAt,
		).Scan(&e.CreatedAt)
		if err != nil {
			return errors.Wrapf(err, "recording %s entry for %q", e.Type, e.UserID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *LoyaltyRepository) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	if err := conn(ctx, r.pool).QueryRow(ctx, balanceSQL, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, customer.ErrNotFound
		}
		return 0, errors.Wrapf(err, "getting balance of %q", userID)
	}
	return balance, nil
}

func (r *LoyaltyRepository) History(ctx context.Context, userID string, limit int) ([]loyalty.Entry, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, historySQL, userID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "listing loyalty history of %q", userID)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (loyalty.Entry, error) {
		var (
			e       loyalty.Entry
			orderID *string
		)
		err := row.Scan(&e.ID, &e.UserID, &e.Type, &e.Points, &orderID, &e.Description, &e.ExpiresAt, &e.CreatedAt)
		e.OrderID = deref(orderID)
		return e, err
	})
}
