package order

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/cart"
	"github.com/krishna-marketing/grocer/internal/domain/catalog"
	"github.com/krishna-marketing/grocer/internal/domain/coupon"
	"github.com/krishna-marketing/grocer/internal/domain/customer"
	"github.com/krishna-marketing/grocer/internal/domain/loyalty"
)

// --- Mock implementations ---

type memOrders struct {
	byID map[string]*Order

	// beforeApply runs before the compare-and-swap, simulating a
	// concurrent writer.
	beforeApply func(o *Order)
}

func newMemOrders() *memOrders {
	return &memOrders{byID: map[string]*Order{}}
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	cp.History = append([]StatusChange(nil), o.History...)
	return &cp
}

func (m *memOrders) Create(_ context.Context, o *Order) error {
	m.byID[o.ID] = cloneOrder(o)
	return nil
}

func (m *memOrders) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *memOrders) GetByNumber(_ context.Context, number string) (*Order, error) {
	for _, o := range m.byID {
		if o.Number == number {
			return cloneOrder(o), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memOrders) Lock(ctx context.Context, id string) (*Order, error) {
	return m.Get(ctx, id)
}

func (m *memOrders) List(_ context.Context, q ListQuery) ([]Order, int, error) {
	var out []Order
	for _, o := range m.byID {
		if q.UserID != "" && o.UserID != q.UserID {
			continue
		}
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (m *memOrders) Apply(_ context.Context, t Transition) error {
	o, ok := m.byID[t.OrderID]
	if !ok {
		return ErrNotFound
	}
	if m.beforeApply != nil {
		m.beforeApply(o)
	}
	if o.Status != t.From {
		return ErrStatusChanged
	}
	o.Status = t.To
	o.History = append(o.History, StatusChange{Status: t.To, Note: t.Note, At: t.At})
	if t.AgentID != "" {
		o.DeliveryAgentID = t.AgentID
	}
	if t.PaymentStatus != "" {
		o.PaymentStatus = t.PaymentStatus
	}
	if t.CancelReason != "" {
		o.CancelReason = t.CancelReason
	}
	return nil
}

func (m *memOrders) SetPayment(_ context.Context, p Payment) error {
	o, ok := m.byID[p.OrderID]
	if !ok {
		return ErrNotFound
	}
	o.PaymentStatus = p.Status
	o.PaymentReference = p.Reference
	o.LoyaltyPointsEarned = max(o.LoyaltyPointsEarned, p.PointsEarned)
	return nil
}

type memCarts struct {
	carts map[string]*cart.Cart
}

func (m *memCarts) load(userID string) *cart.Cart {
	c, ok := m.carts[userID]
	if !ok {
		c = &cart.Cart{ID: "cart-" + userID, UserID: userID}
		m.carts[userID] = c
	}
	cp := *c
	cp.Items = append([]cart.Item(nil), c.Items...)
	return &cp
}

func (m *memCarts) Get(_ context.Context, userID string) (*cart.Cart, error) {
	return m.load(userID), nil
}

func (m *memCarts) Lock(_ context.Context, userID string) (*cart.Cart, error) {
	return m.load(userID), nil
}

func (m *memCarts) Save(_ context.Context, c *cart.Cart) error {
	cp := *c
	cp.Items = append([]cart.Item(nil), c.Items...)
	m.carts[c.UserID] = &cp
	return nil
}

type memInventory struct {
	mu       sync.Mutex
	products map[string]*catalog.Product
}

func (m *memInventory) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memInventory) DecrementStock(_ context.Context, id string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[id]
	if p.Stock < qty {
		return &catalog.InsufficientStockError{ProductName: p.Name, Available: p.Stock}
	}
	p.Stock -= qty
	p.TotalSold += qty
	return nil
}

func (m *memInventory) RestoreStock(_ context.Context, id string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[id]
	p.Stock += qty
	p.TotalSold -= qty
	return nil
}

type memAddresses struct {
	byID map[string]customer.Address
}

func (m *memAddresses) GetAddress(_ context.Context, userID, addressID string) (*customer.Address, error) {
	a, ok := m.byID[addressID]
	if !ok || a.UserID != userID {
		return nil, customer.ErrAddressNotFound
	}
	return &a, nil
}

type mockCoupons struct {
	res *coupon.Result
	err error

	consumed []string
}

func (m *mockCoupons) Consume(_ context.Context, couponID, _, orderID string, amount decimal.Decimal) (*coupon.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.consumed = append(m.consumed, couponID+"/"+orderID)
	return &coupon.Result{Coupon: m.res.Coupon, Discount: coupon.CalculateDiscount(m.res.Coupon, amount)}, nil
}

type memLoyalty struct {
	balances map[string]int64
	entries  []loyalty.Entry
}

func (m *memLoyalty) Append(_ context.Context, e *loyalty.Entry) (int64, error) {
	next := m.balances[e.UserID] + e.Points
	if next < 0 {
		return 0, loyalty.ErrInsufficientPoints
	}
	m.balances[e.UserID] = next
	m.entries = append(m.entries, *e)
	return next, nil
}

func (m *memLoyalty) Balance(_ context.Context, userID string) (int64, error) {
	return m.balances[userID], nil
}

func (m *memLoyalty) History(context.Context, string, int) ([]loyalty.Entry, error) {
	return m.entries, nil
}

func (m *memLoyalty) entriesOf(typ loyalty.EntryType) []loyalty.Entry {
	var out []loyalty.Entry
	for _, e := range m.entries {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type recordingNotifier struct {
	changes []StatusChange
}

func (r *recordingNotifier) OrderChanged(_ context.Context, _ *Order, change StatusChange) {
	r.changes = append(r.changes, change)
}
