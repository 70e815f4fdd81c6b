package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/cart"
	"github.com/krishna-marketing/grocer/internal/domain/catalog"
	"github.com/krishna-marketing/grocer/internal/domain/coupon"
	"github.com/krishna-marketing/grocer/internal/domain/customer"
	"github.com/krishna-marketing/grocer/internal/domain/loyalty"
	"github.com/krishna-marketing/grocer/internal/domain/page"
	"github.com/krishna-marketing/grocer/internal/domain/txn"
)

// Inventory reads products and moves stock.
type Inventory interface {
	GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error)
	DecrementStock(ctx context.Context, id string, qty int) error
	RestoreStock(ctx context.Context, id string, qty int) error
}

// Addresses resolves a user's saved address.
type Addresses interface {
	GetAddress(ctx context.Context, userID, addressID string) (*customer.Address, error)
}

// CouponConsumer redeems a coupon inside the checkout transaction.
type CouponConsumer interface {
	Consume(ctx context.Context, couponID, userID, orderID string, amount decimal.Decimal) (*coupon.Result, error)
}

// Ledger moves loyalty points.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Earn(ctx context.Context, userID string, o loyalty.OrderRef, amount decimal.Decimal) (int64, error)
	Redeem(ctx context.Context, userID string, o loyalty.OrderRef, points int64) error
	Refund(ctx context.Context, userID string, o loyalty.OrderRef, points int64) error
	Reverse(ctx context.Context, userID string, o loyalty.OrderRef, points int64) (int64, error)
}

// Notifier is told about committed order changes.
type Notifier interface {
	OrderChanged(ctx context.Context, o *Order, change StatusChange)
}

// Deps are the collaborators of Service.
type Deps struct {
	Orders    Repository
	Carts     cart.Repository
	Inventory Inventory
	Addresses Addresses
	Coupons   CouponConsumer
	Ledger    Ledger
	Notifier  Notifier
	Tx        txn.Runner
	Meter     metric.Meter
}

// Service implements checkout and the order lifecycle. Every status change
// is checked against the transition table and written as a compare-and-swap.
type Service struct {
	orders    Repository
	carts     cart.Repository
	inventory Inventory
	addresses Addresses
	coupons   CouponConsumer
	ledger    Ledger
	notifier  Notifier
	tx        txn.Runner
	metrics   *metrics

	now       func() time.Time
	newNumber func() string
	newOTP    func() (string, error)
}

// NewService creates an order Service.
func NewService(d Deps) (*Service, error) {
	m, err := newMetrics(d.Meter)
	if err != nil {
		return nil, errors.Wrap(err, "metrics")
	}
	return &Service{
		orders:    d.Orders,
		carts:     d.Carts,
		inventory: d.Inventory,
		addresses: d.Addresses,
		coupons:   d.Coupons,
		ledger:    d.Ledger,
		notifier:  d.Notifier,
		tx:        d.Tx,
		metrics:   m,
		now:       time.Now,
		newNumber: NewNumber,
		newOTP:    NewOTP,
	}, nil
}

// CreateRequest holds the checkout input.
type CreateRequest struct {
	AddressID     string
	PaymentMethod PaymentMethod
	LoyaltyPoints int64
	Notes         string
}

// Create turns the user's cart into an order. Pricing, stock, coupon,
// loyalty and cart changes commit together or not at all.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*Order, error) {
	if !req.PaymentMethod.Valid() {
		return nil, apperr.Validation("payment method must be cod or online")
	}
	if req.LoyaltyPoints < 0 {
		return nil, apperr.Validation("loyalty points cannot be negative")
	}
	if req.AddressID == "" {
		return nil, apperr.Validation("delivery address is required")
	}

	var o *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.create(ctx, userID, req)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	s.metrics.orderPlaced(ctx, o)
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("total", o.TotalAmount.StringFixed(2)),
		zap.String("payment_method", string(o.PaymentMethod)),
	)
	return o, nil
}

func (s *Service) create(ctx context.Context, userID string, req CreateRequest) (*Order, error) {
	c, err := s.carts.Lock(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "lock cart")
	}
	if len(c.Items) == 0 {
		return nil, cart.ErrEmpty
	}

	addr, err := s.addresses.GetAddress(ctx, userID, req.AddressID)
	if err != nil {
		return nil, errors.Wrap(err, "get address")
	}

	items, err := s.priceItems(ctx, c.Items)
	if err != nil {
		return nil, err
	}

	now := s.now()
	o := &Order{
		ID:     uuid.NewString(),
		Number: s.newNumber(),
		UserID: userID,
		Items:  items,
		Address: Address{
			Label:   addr.Label,
			Line1:   addr.Line1,
			Line2:   addr.Line2,
			City:    addr.City,
			State:   addr.State,
			Pincode: addr.Pincode,
			Phone:   addr.Phone,
		},
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: PaymentPending,
		Status:        StatusPlaced,
		Notes:         req.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	o.History = []StatusChange{{Status: StatusPlaced, Note: "Order placed", At: now}}
	for _, it := range items {
		o.Subtotal = o.Subtotal.Add(it.Total)
	}
	o.DeliveryCharge = DeliveryChargeFor(o.Subtotal)

	if c.CouponID != "" {
		res, err := s.coupons.Consume(ctx, c.CouponID, userID, o.ID, o.Subtotal)
		if err != nil {
			return nil, errors.Wrap(err, "apply coupon")
		}
		o.CouponID = res.Coupon.ID
		o.CouponCode = res.Coupon.Code
		o.CouponDiscount = res.Discount
	}

	if req.LoyaltyPoints > 0 {
		balance, err := s.ledger.Balance(ctx, userID)
		if err != nil {
			return nil, errors.Wrap(err, "get loyalty balance")
		}
		o.LoyaltyPointsUsed = min(req.LoyaltyPoints, balance)
		o.LoyaltyPointsDiscount = loyalty.Value(o.LoyaltyPointsUsed)
	}

	total := o.Subtotal.Add(o.DeliveryCharge).Sub(o.CouponDiscount).Sub(o.LoyaltyPointsDiscount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	o.TotalAmount = total.Round(2)

	if o.DeliveryOTP, err = s.newOTP(); err != nil {
		return nil, errors.Wrap(err, "generate otp")
	}
	if o.PaymentMethod == PaymentCOD {
		o.LoyaltyPointsEarned = loyalty.EarnedFor(o.TotalAmount)
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "insert order")
	}

	for _, it := range o.Items {
		if err := s.inventory.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			return nil, errors.Wrapf(err, "decrement stock of %s", it.ProductID)
		}
	}

	ref := loyalty.OrderRef{ID: o.ID, Number: o.Number}
	if err := s.ledger.Redeem(ctx, userID, ref, o.LoyaltyPointsUsed); err != nil {
		return nil, err
	}

	c.Reset()
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}

	if o.PaymentMethod == PaymentCOD {
		if _, err := s.ledger.Earn(ctx, userID, ref, o.TotalAmount); err != nil {
			return nil, err
		}
	}

	s.afterCommit(ctx, o, "", o.History[0])
	return o, nil
}

// priceItems snapshots cart lines against the current catalog.
func (s *Service) priceItems(ctx context.Context, lines []cart.Item) ([]Item, error) {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := s.inventory.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]*catalog.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	// Quantities of the same product on different variant lines share the
	// product's stock.
	want := make(map[string]int, len(lines))
	for _, l := range lines {
		want[l.ProductID] += l.Quantity
	}

	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok || !p.IsActive {
			name := ""
			if l.Product != nil {
				name = l.Product.Name
			}
			if ok {
				name = p.Name
			}
			return nil, &ProductUnavailableError{ProductID: l.ProductID, Name: name}
		}
		if err := p.Reserve(want[p.ID]); err != nil {
			return nil, err
		}

		it := Item{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  l.Quantity,
		}
		if len(p.Images) > 0 {
			it.Image = p.Images[0]
		}
		if l.Variant != nil {
			v, ok := p.FindVariant(l.Variant.Name, l.Variant.Value)
			if !ok {
				return nil, &ProductUnavailableError{ProductID: p.ID, Name: p.Name + " (" + l.Variant.Value + ")"}
			}
			it.Variant = &Variant{Name: v.Name, Value: v.Value, Price: v.Price}
			it.Price = v.Price
		}
		it.Total = it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
		items = append(items, it)
	}
	return items, nil
}

// afterCommit records metrics and notifies subscribers once the surrounding
// transaction commits. from is empty for a newly placed order.
func (s *Service) afterCommit(ctx context.Context, o *Order, from Status, change StatusChange) {
	txn.AfterCommit(ctx, func(ctx context.Context) {
		if from != "" {
			s.metrics.transition(ctx, from, change.Status)
		}
		if s.notifier != nil {
			s.notifier.OrderChanged(ctx, o, change)
		}
	})
}

// ListMine returns the user's orders, newest first.
func (s *Service) ListMine(ctx context.Context, userID string, status Status, p page.Request) (*Page, error) {
	return s.list(ctx, ListQuery{UserID: userID, Status: status, Page: p})
}

// ListAll returns every order, newest first.
func (s *Service) ListAll(ctx context.Context, status Status, p page.Request) (*Page, error) {
	return s.list(ctx, ListQuery{Status: status, Page: p})
}

func (s *Service) list(ctx context.Context, q ListQuery) (*Page, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, apperr.Validationf("unknown status %q", q.Status)
	}
	q.Page = q.Page.Normalize()
	items, total, err := s.orders.List(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return &Page{Items: items, Pagination: q.Page.Of(total)}, nil
}

// GetMine returns one of the user's orders. Orders of other users are
// reported as not found.
func (s *Service) GetMine(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}
