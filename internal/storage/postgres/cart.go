package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/cart"
)

const (
	cartColumns = `id, user_id, coupon_id, coupon_code, coupon_discount, updated_at`

	getCartSQL  = `SELECT ` + cartColumns + ` FROM carts WHERE user_id = $1`
	lockCartSQL = getCartSQL + ` FOR UPDATE`

	ensureCartSQL = `INSERT INTO carts (id, user_id) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`

	upsertCartSQL = `INSERT INTO carts (id, user_id, coupon_id, coupon_code, coupon_discount, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (user_id) DO UPDATE SET coupon_id = EXCLUDED.coupon_id,
			coupon_code = EXCLUDED.coupon_code, coupon_discount = EXCLUDED.coupon_discount,
			updated_at = EXCLUDED.updated_at
		RETURNING id, updated_at`

	listCartItemsSQL = `SELECT id, product_id, variant, quantity, price FROM cart_items
		WHERE cart_id = $1 ORDER BY position`

	deleteCartItemsSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	insertCartItemSQL = `INSERT INTO cart_items (id, cart_id, product_id, variant, quantity, price, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. A user's
// cart row is created on first use.
type CartRepository struct {
	pool *pgxpool.Pool
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the user's cart, or an empty one if the user has none yet.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	c, err := r.load(ctx, conn(ctx, r.pool), getCartSQL, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &cart.Cart{UserID: userID, CouponDiscount: decimal.Zero}, nil
	}
	return c, err
}

// Lock returns the user's cart with its row locked, creating the row first
// if needed.
func (r *CartRepository) Lock(ctx context.Context, userID string) (*cart.Cart, error) {
	db := conn(ctx, r.pool)
	if _, err := db.Exec(ctx, ensureCartSQL, uuid.NewString(), userID); err != nil {
		return nil, errors.Wrapf(err, "creating cart for %q", userID)
	}
	return r.load(ctx, db, lockCartSQL, userID)
}

func (r *CartRepository) load(ctx context.Context, db querier, sql, userID string) (*cart.Cart, error) {
	var (
		c        cart.Cart
		couponID *string
	)
	err := db.QueryRow(ctx, sql, userID).Scan(
		&c.ID, &c.UserID, &couponID, &c.CouponCode, &c.CouponDiscount, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "getting cart of %q", userID)
	}
	c.CouponID = deref(couponID)

	rows, err := db.Query(ctx, listCartItemsSQL, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "listing cart items")
	}
	c.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var it cart.Item
		err := row.Scan(&it.ID, &it.ProductID, &it.Variant, &it.Quantity, &it.Price)
		return it, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing cart items")
	}
	return &c, nil
}

// Save replaces the cart's lines and coupon with c's.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, upsertCartSQL,
			c.ID, c.UserID, nullString(c.CouponID), c.CouponCode, c.CouponDiscount,
		).Scan(&c.ID, &c.UpdatedAt)
		if err != nil {
			return errors.Wrapf(err, "saving cart of %q", c.UserID)
		}
		if _, err := tx.Exec(ctx, deleteCartItemsSQL, c.ID); err != nil {
			return errors.Wrap(err, "clearing cart items")
		}
		if len(c.Items) == 0 {
			return nil
		}

		b := &pgx.Batch{}
		for i, it := range c.Items {
			b.Queue(insertCartItemSQL, it.ID, c.ID, it.ProductID, it.Variant, it.Quantity, it.Price, i)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return errors.Wrap(err, "inserting cart items")
		}
		return nil
	})
}
