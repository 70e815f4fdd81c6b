// Package order implements checkout and the order lifecycle.
package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/page"
)

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentOnline PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool { return m == PaymentCOD || m == PaymentOnline }

// PaymentStatus tracks collection of the order total.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Delivery is free from FreeDeliveryThreshold; below it a flat charge applies.
var (
	FreeDeliveryThreshold = decimal.NewFromInt(500)
	DeliveryCharge        = decimal.NewFromInt(30)
)

// DeliveryChargeFor returns 0 when subtotal reaches the free delivery
// threshold and the flat charge otherwise.
func DeliveryChargeFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(FreeDeliveryThreshold) {
		return decimal.Zero
	}
	return DeliveryCharge
}

var (
	ErrNotFound        = apperr.NotFound("order not found")
	ErrNotCancellable  = apperr.Validation("order can no longer be cancelled")
	ErrStatusChanged   = apperr.Conflict("order status changed, please reload")
	ErrInvalidOTP      = apperr.Validation("invalid delivery OTP")
	ErrNotAssigned     = apperr.Forbidden("order is not assigned to you")
	ErrDispatchByAgent = apperr.Validation("assign a delivery agent to dispatch the order")
	ErrDeliverByAgent  = apperr.Validation("only the delivery agent can mark an order delivered")
	ErrNotOnline       = apperr.Validation("order is not an online payment order")
)

// ProductUnavailableError reports a cart product that can no longer be sold.
type ProductUnavailableError struct {
	ProductID string
	Name      string
}

func (e *ProductUnavailableError) Error() string {
	if e.Name == "" {
		return "a product in your cart is no longer available"
	}
	return e.Name + " is no longer available"
}

func (e *ProductUnavailableError) ErrorKind() apperr.Kind { return apperr.KindValidation }

// Variant is the variant snapshot of an order line.
type Variant struct {
	Name  string          `json:"name"`
	Value string          `json:"value"`
	Price decimal.Decimal `json:"price"`
}

// Item is a frozen copy of a purchased product.
type Item struct {
	ProductID string
	Name      string
	Image     string
	Variant   *Variant
	Price     decimal.Decimal
	Quantity  int
	Total     decimal.Decimal
}

// Address is the delivery address copied at checkout.
type Address struct {
	Label   string `json:"label"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Phone   string `json:"phone,omitempty"`
}

// StatusChange is one entry of the append-only status history.
type StatusChange struct {
	Status Status
	Note   string
	At     time.Time
}

// Order is an immutable snapshot of a checkout plus its lifecycle state.
type Order struct {
	ID      string
	Number  string
	UserID  string
	Items   []Item
	Address Address

	Subtotal              decimal.Decimal
	DeliveryCharge        decimal.Decimal
	CouponID              string
	CouponCode            string
	CouponDiscount        decimal.Decimal
	LoyaltyPointsUsed     int64
	LoyaltyPointsDiscount decimal.Decimal
	LoyaltyPointsEarned   int64
	TotalAmount           decimal.Decimal

	PaymentMethod    PaymentMethod
	PaymentStatus    PaymentStatus
	PaymentReference string

	Status          Status
	History         []StatusChange
	DeliveryAgentID string
	// DeliveryOTP is shared with the customer out of band and checked when
	// the agent completes the delivery.
	DeliveryOTP  string
	CancelReason string
	Notes        string

	ConfirmedAt *time.Time
	PickedUpAt  *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemCount sums the line quantities.
func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// Transition is a compare-and-swap status change.
type Transition struct {
	OrderID string
	From    Status
	To      Status
	Note    string
	At      time.Time

	// Optional fields written together with the status. Empty values leave
	// the stored column unchanged.
	AgentID       string
	PaymentStatus PaymentStatus
	CancelReason  string
}

// Payment is a payment gateway outcome.
type Payment struct {
	OrderID      string
	Status       PaymentStatus
	Reference    string
	PointsEarned int64
}

// ListQuery selects a page of orders.
type ListQuery struct {
	UserID string
	Status Status
	Page   page.Request
}

// Page is a page of orders.
type Page struct {
	Items      []Order
	Pagination page.Info
}

// Repository persists orders.
type Repository interface {
	// Create inserts the order with its items and first history entry.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// Lock loads the order and locks it until the surrounding transaction
	// ends.
	Lock(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, q ListQuery) ([]Order, int, error)
	// Apply performs t only if the order is still in t.From, appending a
	// history entry. It returns ErrStatusChanged otherwise.
	Apply(ctx context.Context, t Transition) error
	SetPayment(ctx context.Context, p Payment) error
}
