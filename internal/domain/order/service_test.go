package order

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/cart"
	"github.com/krishna-marketing/grocer/internal/domain/catalog"
	"github.com/krishna-marketing/grocer/internal/domain/coupon"
	"github.com/krishna-marketing/grocer/internal/domain/customer"
	"github.com/krishna-marketing/grocer/internal/domain/loyalty"
	"github.com/krishna-marketing/grocer/internal/domain/page"
	"github.com/krishna-marketing/grocer/internal/domain/txn"
)

// --- Helpers ---

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	orders    *memOrders
	carts     *memCarts
	inventory *memInventory
	coupons   *mockCoupons
	loyalty   *memLoyalty
	notifier  *recordingNotifier
}

func newFixture(t *testing.T, products ...*catalog.Product) *fixture {
	t.Helper()
	f := &fixture{
		orders:    newMemOrders(),
		carts:     &memCarts{carts: map[string]*cart.Cart{}},
		inventory: &memInventory{products: map[string]*catalog.Product{}},
		coupons:   &mockCoupons{},
		loyalty:   &memLoyalty{balances: map[string]int64{}},
		notifier:  &recordingNotifier{},
	}
	for _, p := range products {
		f.inventory.products[p.ID] = p
	}
	svc, err := NewService(Deps{
		Orders:    f.orders,
		Carts:     f.carts,
		Inventory: f.inventory,
		Addresses: &memAddresses{byID: map[string]customer.Address{
			"a1": {ID: "a1", UserID: "u1", Label: "Home", Line1: "12 MG Road", City: "Pune", State: "MH", Pincode: "411001"},
		}},
		Coupons:  f.coupons,
		Ledger:   loyalty.NewLedger(f.loyalty),
		Notifier: f.notifier,
		Tx:       txn.Inline,
		Meter:    noop.NewMeterProvider().Meter("test"),
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }
	svc.newOTP = func() (string, error) { return "4321", nil }
	f.svc = svc
	return f
}

func product(id string, price int64, stock int) *catalog.Product {
	return &catalog.Product{
		ID:       id,
		Name:     "Product " + id,
		Price:    decimal.NewFromInt(price),
		MRP:      decimal.NewFromInt(price),
		Stock:    stock,
		IsActive: true,
		Images:   []string{"/uploads/" + id + ".jpg"},
	}
}

func (f *fixture) fillCart(userID string, lines ...cart.Item) {
	for i := range lines {
		if lines[i].ID == "" {
			lines[i].ID = uuid.NewString()
		}
		if lines[i].Price.IsZero() {
			lines[i].Price = f.inventory.products[lines[i].ProductID].Price
		}
	}
	f.carts.carts[userID] = &cart.Cart{ID: "cart-" + userID, UserID: userID, Items: lines}
}

func (f *fixture) placeCOD(t *testing.T) *Order {
	t.Helper()
	o, err := f.svc.Create(context.Background(), "u1", CreateRequest{AddressID: "a1", PaymentMethod: PaymentCOD})
	require.NoError(t, err)
	return o
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

// --- Create ---

func TestCreate_CODScenario(t *testing.T) {
	p1 := product("P1", 100, 10)
	f := newFixture(t, p1)
	f.fillCart("u1", cart.Item{ProductID: "P1", Quantity: 2})

	o := f.placeCOD(t)

	assertDec(t, "200", o.Subtotal, "subtotal")
	assertDec(t, "30", o.DeliveryCharge, "deliveryCharge")
	assertDec(t, "230", o.TotalAmount, "totalAmount")
	assert.Equal(t, StatusPlaced, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, "4321", o.DeliveryOTP)
	assert.Equal(t, "12 MG Road", o.Address.Line1)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Product P1", o.Items[0].Name)
	assertDec(t, "200", o.Items[0].Total, "item total")

	assert.Equal(t, 8, p1.Stock)
	assert.Equal(t, 2, p1.TotalSold)

	earned := f.loyalty.entriesOf(loyalty.TypeEarned)
	require.Len(t, earned, 1)
	assert.Equal(t, int64(23), earned[0].Points)
	assert.Equal(t, o.ID, earned[0].OrderID)
	assert.Equal(t, int64(23), f.loyalty.balances["u1"])
	assert.Equal(t, int64(23), o.LoyaltyPointsEarned)

	c, err := f.carts.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	require.Len(t, f.notifier.changes, 1)
	assert.Equal(t, StatusPlaced, f.notifier.changes[0].Status)
	_, stored := f.orders.byID[o.ID]
	assert.True(t, stored)
}

func TestCreate_TotalArithmetic(t *testing.T) {
	tests := []struct {
		name        string
		price       int64
		qty         int
		coupon      *coupon.Coupon
		balance     int64
		usePoints   int64
		wantCharge  string
		wantCoupon  string
		wantPoints  int64
		wantPtsDisc string
		wantTotal   string
	}{
		{
			name:        "free delivery at threshold",
			price:       250,
			qty:         2,
			wantCharge:  "0",
			wantCoupon:  "0",
			wantPtsDisc: "0",
			wantTotal:   "500",
		},
		{
			name:        "coupon and points stack",
			price:       150,
			qty:         4,
			coupon:      &coupon.Coupon{ID: "c1", Code: "SAVE20", Type: coupon.TypePercentage, Value: dec("20"), MaxDiscount: dec("100")},
			balance:     120,
			usePoints:   500,
			wantCharge:  "0",
			wantCoupon:  "100",
			wantPoints:  120,
			wantPtsDisc: "12",
			wantTotal:   "488",
		},
		{
			name:        "points limited to request",
			price:       100,
			qty:         1,
			balance:     1000,
			usePoints:   55,
			wantCharge:  "30",
			wantCoupon:  "0",
			wantPoints:  55,
			wantPtsDisc: "5.5",
			wantTotal:   "124.5",
		},
		{
			name:        "total floors at zero",
			price:       40,
			qty:         1,
			coupon:      &coupon.Coupon{ID: "c2", Code: "FLAT75", Type: coupon.TypeFlat, Value: dec("75")},
			balance:     2000,
			usePoints:   2000,
			wantCharge:  "30",
			wantCoupon:  "40",
			wantPoints:  2000,
			wantPtsDisc: "200",
			wantTotal:   "0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, product("P1", tt.price, 100))
			f.fillCart("u1", cart.Item{ProductID: "P1", Quantity: tt.qty})
			if tt.coupon != nil {
				f.coupons.res = &coupon.Result{Coupon: tt.coupon}
				f.carts.carts["u1"].CouponID = tt.coupon.ID
				f.carts.carts["u1"].CouponCode = tt.coupon.Code
			}
			f.loyalty.balances["u1"] = tt.balance

			o, err := f.svc.Create(context.Background(), "u1", CreateRequest{
				AddressID:     "a1",
				PaymentMethod: PaymentOnline,
				LoyaltyPoints: tt.usePoints,
			})
			require.NoError(t, err)

			assertDec(t, tt.wantCharge, o.DeliveryCharge, "deliveryCharge")
			assertDec(t, tt.wantCoupon, o.CouponDiscount, "couponDiscount")
			assert.Equal(t, tt.wantPoints, o.LoyaltyPointsUsed)
			assertDec(t, tt.wantPtsDisc, o.LoyaltyPointsDiscount, "loyaltyPointsDiscount")
			assertDec(t, tt.wantTotal, o.TotalAmount, "totalAmount")

			want := o.Subtotal.Add(o.DeliveryCharge).Sub(o.CouponDiscount).Sub(o.LoyaltyPointsDiscount)
			if want.IsNegative() {
				want = decimal.Zero
			}
			assert.True(t, want.Equal(o.TotalAmount))

			assert.Equal(t, tt.balance-tt.wantPoints, f.loyalty.balances["u1"])
			assert.Zero(t, o.LoyaltyPointsEarned, "online orders earn on payment")
			if tt.coupon != nil {
				assert.Equal(t, []string{tt.coupon.ID + "/" + o.ID}, f.coupons.consumed)
			}
		})
	}
}

func TestCreate_Failures(t *testing.T) {
	inactive := product("P2", 50, 5)
	inactive.IsActive = false

	tests := []struct {
		name    string
		lines   []cart.Item
		req     CreateRequest
		check   func(t *testing.T, err error)
		couponE error
	}{
		{
			name: "empty cart",
			req:  CreateRequest{AddressID: "a1", PaymentMethod: PaymentCOD},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, cart.ErrEmpty)
			},
		},
		{
			name:  "foreign address",
			lines: []cart.Item{{ProductID: "P1", Quantity: 1}},
			req:   CreateRequest{AddressID: "a-other", PaymentMethod: PaymentCOD},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, customer.ErrAddressNotFound)
			},
		},
		{
			name:  "inactive product",
			lines: []cart.Item{{ProductID: "P2", Quantity: 1}},
			req:   CreateRequest{AddressID: "a1", PaymentMethod: PaymentCOD},
			check: func(t *testing.T, err error) {
				var unavailable *ProductUnavailableError
				require.ErrorAs(t, err, &unavailable)
				assert.Equal(t, "P2", unavailable.ProductID)
			},
		},
		{
			name:  "insufficient stock across variant lines",
			lines: []cart.Item{{ProductID: "P1", Quantity: 6}, {ProductID: "P1", Quantity: 5, Variant: &cart.VariantRef{Name: "pack", Value: "2"}}},
			req:   CreateRequest{AddressID: "a1", PaymentMethod: PaymentCOD},
			check: func(t *testing.T, err error) {
				var stockErr *catalog.InsufficientStockError
				require.ErrorAs(t, err, &stockErr)
				assert.Equal(t, 10, stockErr.Available)
			},
		},
		{
			name:  "bad payment method",
			lines: []cart.Item{{ProductID: "P1", Quantity: 1}},
			req:   CreateRequest{AddressID: "a1", PaymentMethod: "upi"},
			check: func(t *testing.T, err error) {
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			},
		},
		{
			name:    "coupon no longer valid",
			lines:   []cart.Item{{ProductID: "P1", Quantity: 1}},
			req:     CreateRequest{AddressID: "a1", PaymentMethod: PaymentCOD},
			couponE: &coupon.RejectedError{Reason: "Coupon has expired"},
			check: func(t *testing.T, err error) {
				assert.Equal(t, "Coupon has expired", apperr.MessageOf(err))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p1 := product("P1", 100, 10)
			f := newFixture(t, p1, inactive)
			f.fillCart("u1", tt.lines...)
			if tt.couponE != nil {
				f.coupons.err = tt.couponE
				f.carts.carts["u1"].CouponID = "c1"
			}

			_, err := f.svc.Create(context.Background(), "u1", tt.req)
			require.Error(t, err)
			tt.check(t, err)

			assert.Equal(t, 10, p1.Stock)
			assert.Empty(t, f.orders.byID)
			assert.Empty(t, f.notifier.changes)
		})
	}
}

func TestCreate_UsesVariantPrice(t *testing.T) {
	p := product("P1", 100, 10)
	p.Variants = []catalog.Variant{{Name: "weight", Value: "5kg", Price: dec("450"), Stock: 3}}
	f := newFixture(t, p)
	f.fillCart("u1", cart.Item{
		ProductID: "P1",
		Quantity:  2,
		Price:     dec("400"),
		Variant:   &cart.VariantRef{Name: "weight", Value: "5kg", Price: dec("400")},
	})

	o := f.placeCOD(t)
	assertDec(t, "450", o.Items[0].Price, "variant price")
	assertDec(t, "900", o.Subtotal, "subtotal")
	assert.Equal(t, "5kg", o.Items[0].Variant.Value)
}

// --- Cancel ---

func TestCancel_RestoresStockAndPoints(t *testing.T) {
	p1 := product("P1", 100, 10)
	f := newFixture(t, p1)
	f.fillCart("u1", cart.Item{ProductID: "P1", Quantity: 3})
	f.loyalty.balances["u1"] = 50

	o, err := f.svc.Create(context.Background(), "u1", CreateRequest{AddressID: "a1", PaymentMethod: PaymentCOD, LoyaltyPoints: 50})
	require.NoError(t, err)
	assert.Equal(t, 7, p1.Stock)
	assert.Equal(t, int64(0)+o.LoyaltyPointsEarned, f.loyalty.balances["u1"])

	cancelled, err := f.svc.Cancel(context.Background(), "u1", o.ID, "")
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "Cancelled by customer", cancelled.CancelReason)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 10, p1.Stock)
	assert.Equal(t, 0, p1.TotalSold)
	assert.Equal(t, int64(50), f.loyalty.balances["u1"])
	require.Len(t, f.loyalty.entriesOf(loyalty.TypeRefunded), 1)
	require.Len(t, f.loyalty.entriesOf(loyalty.TypeReversed), 1)
	assert.Equal(t, -o.LoyaltyPointsEarned, f.loyalty.entriesOf(loyalty.TypeReversed)[0].Points)
	assert.Equal(t, StatusCancelled, f.orders.byID[o.ID].Status)

	require.Len(t, f.notifier.changes, 2)
	assert.Equal(t, StatusCancelled, f.notifier.changes[1].Status)
}

func TestCancel_Guards(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		userID  string
		wantErr error
	}{
		{"confirmed can cancel", StatusConfirmed, "u1", nil},
		{"preparing cannot", StatusPreparing, "u1", ErrNotCancellable},
		{"out for delivery cannot", StatusOutForDelivery, "u1", ErrNotCancellable},
		{"delivered cannot", StatusDelivered, "u1", ErrNotCancellable},
		{"other user", StatusPlaced, "u2", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p1 := product("P1", 100, 10)
			f := newFixture(t, p1)
			f.fillCart("u1", cart.Item{ProductID: "P1", Quantity: 2})
			o := f.placeCOD(t)
			f.orders.byID[o.ID].Status = tt.status

			_, err := f.svc.Cancel(context.Background(), tt.userID, o.ID, "changed my mind")
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, 10, p1.Stock)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 8, p1.Stock)
		})
	}
}

func TestCancel_ReversalBoundedByBalance(t *testing.T) {
	f := newFixture(t, product("P1", 100, 10))
	f.fillCart("u1", cart.Item{ProductID: "P1", Quantity: 2})
	o := f.placeCOD(t)

	// The customer spends part of the earned points elsewhere.
	f.loyalty.balances["u1"] = 5

	_, err := f.svc.Cancel(context.Background(), "u1", o.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.loyalty.balances["u1"])
}

// --- Admin status updates ---

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t, product("P1", 100, 10))
	f.fillCart("u1", cart.Item{ProductID: "P1", Quantity: 1})
	o := f.placeCOD(t)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, o.ID, StatusDelivered, "")
	require.ErrorIs(t, err, ErrDeliverByAgent)

	_, err = f.svc.UpdateStatus(ctx, o.ID, StatusPreparing, "")
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StatusPlaced, te.From)

	updated, err := f.svc.UpdateStatus(ctx, o.ID, StatusConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)
	assert.NotNil(t, updated.ConfirmedAt)
	assert.Equal(t, "Order confirmed", updated.History[len(updated.History)-1].Note)

	_, err = f.svc.UpdateStatus(ctx, o.ID, StatusOutForDelivery, "")
	require.ErrorIs(t, err, ErrDispatchByAgent)

	_, err = f.svc.UpdateStatus(ctx, o.ID, "shipped", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUpdateStatus_RefundRunsCancellation(t *testing.T) {
	p1 := product("P1", 100, 10)
	f := newFixture(t, p1)
	f.fillCart("u1", cart.Item{ProductID: "P1", Quantity: 4})
	o := f.placeCOD(t)
	f.orders.byID[o.ID].Status = StatusPreparing

	refunded, err := f.svc.UpdateStatus(context.Background(), o.ID, StatusRefunded, "damaged stock")
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, refunded.Status)
	assert.Equal(t, PaymentRefunded, refunded.PaymentStatus)
	assert.Equal(t, "damaged stock", refunded.CancelReason)
	assert.Equal(t, 10, p1.Stock)
}

func TestUpdateStatus_LostRace(t *testing.T) {
	f := newFixture(t, product("P1", 100, 10))
	f.fillCart("u1", cart.Item{ProductID: "P1", Quantity: 1})
	o := f.placeCOD(t)
	f.orders.beforeApply = func(stored *Order) { stored.Status = StatusCancelled }

	_, err := f.svc.UpdateStatus(context.Background(), o.ID, StatusConfirmed, "")
	require.ErrorIs(t, err, ErrStatusChanged)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Len(t, f.notifier.changes, 1)
}

// --- Delivery flow ---

func TestDispatchAndAdvance(t *testing.T) {
	f := newFixture(t, product("P1", 100, 10))
	f.fillCart("u1", cart.Item{ProductID: "P1", Quantity: 1})
	o := f.placeCOD(t)
	ctx := context.Background()

	_, err := f.svc.Dispatch(ctx, o.ID, "agent-1")
	var te *TransitionError
	require.ErrorAs(t, err, &te, "placed orders cannot be dispatched")

	f.orders.byID[o.ID].Status = StatusPreparing
	dispatched, err := f.svc.Dispatch(ctx, o.ID, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, StatusOutForDelivery, dispatched.Status)
	assert.Equal(t, "agent-1", dispatched.DeliveryAgentID)

	_, err = f.svc.Advance(ctx, o.ID, "agent-2", StatusPickedUp, "")
	require.ErrorIs(t, err, ErrNotAssigned)

	_, err = f.svc.Advance(ctx, o.ID, "agent-1", StatusDelivered, "4321")
	require.ErrorAs(t, err, &te, "cannot skip picked_up and arrived")

	_, err = f.svc.Advance(ctx, o.ID, "agent-1", StatusCancelled, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	for _, s := range []Status{StatusPickedUp, StatusArrived} {
		_, err = f.svc.Advance(ctx, o.ID, "agent-1", s, "")
		require.NoError(t, err)
	}

	_, err = f.svc.Advance(ctx, o.ID, "agent-1", StatusDelivered, "0000")
	require.ErrorIs(t, err, ErrInvalidOTP)

	delivered, err := f.svc.Advance(ctx, o.ID, "agent-1", StatusDelivered, "4321")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, delivered.Status)
	assert.Equal(t, PaymentPaid, delivered.PaymentStatus)
	assert.NotNil(t, delivered.DeliveredAt)
	assert.Len(t, f.notifier.changes, 5)
}

// --- Reorder ---

func TestReorder(t *testing.T) {
	p1 := product("P1", 100, 10)
	p2 := product("P2", 50, 10)
	p3 := product("P3", 20, 10)
	f := newFixture(t, p1, p2, p3)
	f.fillCart("u1",
		cart.Item{ProductID: "P1", Quantity: 4},
		cart.Item{ProductID: "P2", Quantity: 1},
		cart.Item{ProductID: "P3", Quantity: 1},
	)
	o := f.placeCOD(t)

	p1.Stock = 3
	p2.IsActive = false
	p3.Stock = 0
	f.fillCart("u1", cart.Item{ProductID: "P1", Quantity: 1})

	res, err := f.svc.Reorder(context.Background(), "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Product P1"}, res.Added)
	assert.ElementsMatch(t, []string{"Product P2", "Product P3"}, res.Skipped)

	require.Len(t, res.Cart.Items, 1)
	assert.Equal(t, 3, res.Cart.Items[0].Quantity, "capped at stock")

	_, err = f.svc.Reorder(context.Background(), "u2", o.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

// --- Payment webhook ---

func TestConfirmPayment(t *testing.T) {
	f := newFixture(t, product("P1", 100, 10))
	f.fillCart("u1", cart.Item{ProductID: "P1", Quantity: 3})
	o, err := f.svc.Create(context.Background(), "u1", CreateRequest{AddressID: "a1", PaymentMethod: PaymentOnline})
	require.NoError(t, err)
	assert.Zero(t, f.loyalty.balances["u1"])

	paid, err := f.svc.ConfirmPayment(context.Background(), o.Number, PaymentPaid, "pay_123")
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, int64(33), paid.LoyaltyPointsEarned)
	assert.Equal(t, int64(33), f.loyalty.balances["u1"])

	again, err := f.svc.ConfirmPayment(context.Background(), o.Number, PaymentPaid, "pay_123")
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, again.PaymentStatus)
	assert.Equal(t, int64(33), f.loyalty.balances["u1"], "repeat deliveries are no-ops")

	_, err = f.svc.ConfirmPayment(context.Background(), "KMUNKNOWN", PaymentPaid, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmPayment_RejectsCOD(t *testing.T) {
	f := newFixture(t, product("P1", 100, 10))
	f.fillCart("u1", cart.Item{ProductID: "P1", Quantity: 1})
	o := f.placeCOD(t)

	_, err := f.svc.ConfirmPayment(context.Background(), o.Number, PaymentPaid, "")
	require.ErrorIs(t, err, ErrNotOnline)
}

func TestConfirmPayment_ClosedOrder(t *testing.T) {
	p1 := product("P1", 100, 10)
	f := newFixture(t, p1)
	f.fillCart("u1", cart.Item{ProductID: "P1", Quantity: 3})
	ctx := context.Background()
	o, err := f.svc.Create(ctx, "u1", CreateRequest{AddressID: "a1", PaymentMethod: PaymentOnline})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, "u1", o.ID, "changed my mind")
	require.NoError(t, err)

	got, err := f.svc.ConfirmPayment(ctx, o.Number, PaymentPaid, "pay_late")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, PaymentRefunded, got.PaymentStatus)
	assert.Equal(t, "pay_late", got.PaymentReference)
	assert.Zero(t, got.LoyaltyPointsEarned)
	assert.Zero(t, f.loyalty.balances["u1"])
	assert.Equal(t, PaymentRefunded, f.orders.byID[o.ID].PaymentStatus)
	assert.Equal(t, 10, p1.Stock)
}

func TestAdvance_SettlesPendingOnlinePayment(t *testing.T) {
	f := newFixture(t, product("P1", 100, 10))
	f.fillCart("u1", cart.Item{ProductID: "P1", Quantity: 3})
	ctx := context.Background()
	o, err := f.svc.Create(ctx, "u1", CreateRequest{AddressID: "a1", PaymentMethod: PaymentOnline})
	require.NoError(t, err)

	f.orders.byID[o.ID].Status = StatusPreparing
	_, err = f.svc.Dispatch(ctx, o.ID, "agent-1")
	require.NoError(t, err)
	for _, s := range []Status{StatusPickedUp, StatusArrived} {
		_, err = f.svc.Advance(ctx, o.ID, "agent-1", s, "")
		require.NoError(t, err)
	}

	delivered, err := f.svc.Advance(ctx, o.ID, "agent-1", StatusDelivered, "4321")
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, delivered.PaymentStatus)
	assert.Equal(t, int64(33), delivered.LoyaltyPointsEarned)
	assert.Equal(t, int64(33), f.loyalty.balances["u1"])
	assert.Equal(t, int64(33), f.orders.byID[o.ID].LoyaltyPointsEarned)

	// The late webhook changes nothing.
	again, err := f.svc.ConfirmPayment(ctx, o.Number, PaymentPaid, "pay_123")
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, again.PaymentStatus)
	assert.Equal(t, int64(33), f.loyalty.balances["u1"])
}

// --- Reads ---

func TestListAndGet(t *testing.T) {
	f := newFixture(t, product("P1", 100, 10))
	f.fillCart("u1", cart.Item{ProductID: "P1", Quantity: 1})
	o := f.placeCOD(t)
	ctx := context.Background()

	mine, err := f.svc.ListMine(ctx, "u1", "", page.Request{})
	require.NoError(t, err)
	assert.Len(t, mine.Items, 1)
	assert.Equal(t, page.Info{Page: 1, Limit: page.DefaultLimit, Total: 1, Pages: 1}, mine.Pagination)

	others, err := f.svc.ListMine(ctx, "u2", "", page.Request{})
	require.NoError(t, err)
	assert.Empty(t, others.Items)

	_, err = f.svc.ListAll(ctx, "bogus", page.Request{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.GetMine(ctx, "u2", o.ID)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := f.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)
}
