package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krishna-marketing/grocer/internal/domain/coupon"
)

const (
	couponColumns = `id, code, description, type, value, min_order_amount, max_discount,
		max_usage, usage_count, max_usage_per_user, start_date, end_date, is_active, created_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	lockCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1 FOR UPDATE`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC, code`

	userUsageCountSQL = `SELECT count(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`

	insertUsageSQL = `INSERT INTO coupon_usages (coupon_id, user_id, order_id, used_at)
		VALUES ($1, $2, $3, $4)`

	incrementUsageSQL = `UPDATE coupons SET usage_count = usage_count + 1 WHERE id = $1`

	createCouponSQL = `INSERT INTO coupons (id, code, description, type, value, min_order_amount,
		max_discount, max_usage, max_usage_per_user, start_date, end_date, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	setCouponActiveSQL = `UPDATE coupons SET is_active = $2 WHERE id = $1`

	bulkBatchSize = 1000
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// GetByCode looks up a coupon by its normalized code, active or not.
// Returns coupon.ErrInvalidCode when no coupon has that code.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "finding coupon by code %q", code)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCode
		}
		return nil, errors.Wrapf(err, "finding coupon by code %q", code)
	}
	return &c, nil
}

// LockByID loads a coupon with its row locked, serializing concurrent
// redemptions of the same coupon.
func (r *CouponRepository) LockByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, lockCouponSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "locking coupon %q", id)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "locking coupon %q", id)
	}
	return &c, nil
}

func (r *CouponRepository) UserUsageCount(ctx context.Context, couponID, userID string) (int, error) {
	var n int
	if err := conn(ctx, r.pool).QueryRow(ctx, userUsageCountSQL, couponID, userID).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "counting uses of coupon %q", couponID)
	}
	return n, nil
}

// RecordUsage stores the usage and bumps the coupon's counter together.
func (r *CouponRepository) RecordUsage(ctx context.Context, u coupon.Usage) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertUsageSQL, u.CouponID, u.UserID, u.OrderID, u.UsedAt); err != nil {
			return errors.Wrapf(err, "recording usage of coupon %q", u.CouponID)
		}
		if _, err := tx.Exec(ctx, incrementUsageSQL, u.CouponID); err != nil {
			return errors.Wrapf(err, "incrementing uses for coupon %q", u.CouponID)
		}
		return nil
	})
}

func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := conn(ctx, r.pool).Exec(ctx, createCouponSQL, couponArgs(c)...)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrCodeTaken
		}
		return errors.Wrapf(err, "creating coupon %q", c.Code)
	}
	return nil
}

// BulkCreate inserts coupons in batches, skipping codes that already exist.
// It returns how many were inserted.
func (r *CouponRepository) BulkCreate(ctx context.Context, coupons []coupon.Coupon) (int64, error) {
	var inserted int64
	for start := 0; start < len(coupons); start += bulkBatchSize {
		chunk := coupons[start:min(start+bulkBatchSize, len(coupons))]

		b := &pgx.Batch{}
		for i := range chunk {
			b.Queue(createCouponSQL+` ON CONFLICT (code) DO NOTHING`, couponArgs(&chunk[i])...)
		}
		res := r.pool.SendBatch(ctx, b)
		for range chunk {
			tag, err := res.Exec()
			if err != nil {
				_ = res.Close()
				return inserted, errors.Wrap(err, "inserting coupons")
			}
			inserted += tag.RowsAffected()
		}
		if err := res.Close(); err != nil {
			return inserted, errors.Wrap(err, "inserting coupons")
		}
	}
	return inserted, nil
}

func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "listing coupons")
	}
	return pgx.CollectRows(rows, scanCoupon)
}

func (r *CouponRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setCouponActiveSQL, id, active)
	if err != nil {
		return errors.Wrapf(err, "setting coupon %q active=%t", id, active)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func couponArgs(c *coupon.Coupon) []any {
	return []any{
		c.ID, c.Code, c.Description, string(c.Type), c.Value, c.MinOrderAmount,
		c.MaxDiscount, c.MaxUsage, c.MaxUsagePerUser, c.StartDate, c.EndDate, c.IsActive, c.CreatedAt,
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c   coupon.Coupon
		typ string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &typ, &c.Value, &c.MinOrderAmount, &c.MaxDiscount,
		&c.MaxUsage, &c.UsageCount, &c.MaxUsagePerUser, &c.StartDate, &c.EndDate, &c.IsActive, &c.CreatedAt,
	)
	c.Type = coupon.Type(typ)
	return c, err
}
