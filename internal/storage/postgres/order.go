package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krishna-marketing/grocer/internal/domain/order"
)

const (
	orderColumns = `id, order_number, user_id, shipping_address, subtotal, delivery_charge,
		coupon_id, coupon_code, coupon_discount, loyalty_points_used, loyalty_points_discount,
		loyalty_points_earned, total_amount, payment_method, payment_status, payment_reference,
		status, delivery_agent_id, delivery_otp, cancel_reason, notes,
		confirmed_at, picked_up_at, delivered_at, cancelled_at, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (id, order_number, user_id, shipping_address, subtotal,
		delivery_charge, coupon_id, coupon_code, coupon_discount, loyalty_points_used,
		loyalty_points_discount, loyalty_points_earned, total_amount, payment_method, payment_status,
		status, delivery_otp, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, position, product_id, name, image, variant,
		price, quantity, total) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	insertHistorySQL = `INSERT INTO order_status_history (order_id, status, note, changed_at)
		VALUES ($1, $2, $3, $4)`

	getOrderSQL       = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderByNumSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`
	lockOrderSQL      = getOrderSQL + ` FOR UPDATE`
	listOrderItemsSQL = `SELECT order_id, product_id, name, image, variant, price, quantity, total
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`
	listHistorySQL = `SELECT order_id, status, note, changed_at
		FROM order_status_history WHERE order_id = ANY($1) ORDER BY order_id, id`

	// applyTransitionSQL moves the order only if it is still in the expected
	// state. Empty optional values keep the stored column.
	applyTransitionSQL = `UPDATE orders SET
		status = $3,
		updated_at = $4,
		delivery_agent_id = COALESCE(NULLIF($5, ''), delivery_agent_id),
		payment_status = COALESCE(NULLIF($6, ''), payment_status),
		cancel_reason = COALESCE(NULLIF($7, ''), cancel_reason),
		confirmed_at = CASE WHEN $3 = 'confirmed' THEN $4 ELSE confirmed_at END,
		picked_up_at = CASE WHEN $3 = 'picked_up' THEN $4 ELSE picked_up_at END,
		delivered_at = CASE WHEN $3 = 'delivered' THEN $4 ELSE delivered_at END,
		cancelled_at = CASE WHEN $3 IN ('cancelled', 'refunded') THEN $4 ELSE cancelled_at END
		WHERE id = $1 AND status = $2`

	setPaymentSQL = `UPDATE orders SET payment_status = $2, payment_reference = $3,
		loyalty_points_earned = GREATEST(loyalty_points_earned, $4), updated_at = now()
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order with its items and initial history.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, createOrderSQL,
			o.ID, o.Number, o.UserID, o.Address, o.Subtotal, o.DeliveryCharge,
			nullString(o.CouponID), o.CouponCode, o.CouponDiscount, o.LoyaltyPointsUsed,
			o.LoyaltyPointsDiscount, o.LoyaltyPointsEarned, o.TotalAmount,
			string(o.PaymentMethod), string(o.PaymentStatus), string(o.Status),
			o.DeliveryOTP, o.Notes, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "creating order %q", o.Number)
		}

		b := &pgx.Batch{}
		for i, it := range o.Items {
			b.Queue(insertOrderItemSQL,
				o.ID, i, it.ProductID, it.Name, it.Image, it.Variant, it.Price, it.Quantity, it.Total,
			)
		}
		for _, h := range o.History {
			b.Queue(insertHistorySQL, o.ID, string(h.Status), h.Note, h.At)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return errors.Wrapf(err, "creating order %q lines", o.Number)
		}
		return nil
	})
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderSQL, id)
}

func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByNumSQL, number)
}

// Lock loads the order with its row locked.
func (r *OrderRepository) Lock(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, lockOrderSQL, id)
}

func (r *OrderRepository) getOne(ctx context.Context, sql, key string) (*order.Order, error) {
	db := conn(ctx, r.pool)
	rows, err := db.Query(ctx, sql, key)
	if err != nil {
		return nil, errors.Wrapf(err, "getting order %q", key)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting order %q", key)
	}

	list := []order.Order{o}
	if err := r.attachLines(ctx, db, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// List returns one page of orders, newest first, and the total count.
func (r *OrderRepository) List(ctx context.Context, q order.ListQuery) ([]order.Order, int, error) {
	const cond = ` WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)`

	db := conn(ctx, r.pool)
	var total int
	if err := db.QueryRow(ctx, `SELECT count(*) FROM orders`+cond, q.UserID, string(q.Status)).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting orders")
	}
	if total == 0 {
		return nil, 0, nil
	}

	rows, err := db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders`+cond+` ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`,
		q.UserID, string(q.Status), q.Page.Limit, q.Page.Offset(),
	)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing orders")
	}
	list, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing orders")
	}
	if err := r.attachLines(ctx, db, list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// attachLines loads items and history for list in two queries.
func (r *OrderRepository) attachLines(ctx context.Context, db querier, list []order.Order) error {
	ids := make([]string, len(list))
	byID := make(map[string]*order.Order, len(list))
	for i := range list {
		ids[i] = list[i].ID
		byID[list[i].ID] = &list[i]
	}

	var (
		orderID string
		it      order.Item
		h       order.StatusChange
	)
	rows, err := db.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "listing order items")
	}
	_, err = pgx.ForEachRow(rows,
		[]any{&orderID, &it.ProductID, &it.Name, &it.Image, &it.Variant, &it.Price, &it.Quantity, &it.Total},
		func() error {
			o := byID[orderID]
			o.Items = append(o.Items, it)
			it.Variant = nil
			return nil
		},
	)
	if err != nil {
		return errors.Wrap(err, "listing order items")
	}

	rows, err = db.Query(ctx, listHistorySQL, ids)
	if err != nil {
		return errors.Wrap(err, "listing order history")
	}
	_, err = pgx.ForEachRow(rows, []any{&orderID, &h.Status, &h.Note, &h.At}, func() error {
		o := byID[orderID]
		o.History = append(o.History, h)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "listing order history")
	}
	return nil
}

// Apply performs a compare-and-swap on the status and appends the history
// entry. It returns order.ErrStatusChanged when another writer moved the
// order first.
func (r *OrderRepository) Apply(ctx context.Context, t order.Transition) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, applyTransitionSQL,
			t.OrderID, string(t.From), string(t.To), t.At,
			t.AgentID, string(t.PaymentStatus), t.CancelReason,
		)
		if err != nil {
			return errors.Wrapf(err, "updating order %q status", t.OrderID)
		}
		if tag.RowsAffected() == 0 {
			return order.ErrStatusChanged
		}
		if _, err := tx.Exec(ctx, insertHistorySQL, t.OrderID, string(t.To), t.Note, t.At); err != nil {
			return errors.Wrapf(err, "recording order %q history", t.OrderID)
		}
		return nil
	})
}

func (r *OrderRepository) SetPayment(ctx context.Context, p order.Payment) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setPaymentSQL,
		p.OrderID, string(p.Status), p.Reference, p.PointsEarned,
	)
	if err != nil {
		return errors.Wrapf(err, "setting payment of order %q", p.OrderID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o        order.Order
		couponID *string
		agentID  *string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.Address, &o.Subtotal, &o.DeliveryCharge,
		&couponID, &o.CouponCode, &o.CouponDiscount, &o.LoyaltyPointsUsed, &o.LoyaltyPointsDiscount,
		&o.LoyaltyPointsEarned, &o.TotalAmount, &o.PaymentMethod, &o.PaymentStatus, &o.PaymentReference,
		&o.Status, &agentID, &o.DeliveryOTP, &o.CancelReason, &o.Notes,
		&o.ConfirmedAt, &o.PickedUpAt, &o.DeliveredAt, &o.CancelledAt, &o.CreatedAt, &o.UpdatedAt,
	)
	o.CouponID = deref(couponID)
	o.DeliveryAgentID = deref(agentID)
	return o, err
}
