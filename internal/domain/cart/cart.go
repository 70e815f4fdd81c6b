// Package cart implements the per-user shopping cart.
package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/catalog"
)

var (
	ErrItemNotFound    = apperr.NotFound("cart item not found")
	ErrEmpty           = apperr.Validation("cart is empty")
	ErrInvalidQuantity = apperr.Validation("quantity must be at least 1")
	ErrVariantNotFound = apperr.Validation("selected variant is not available")
)

// VariantRef is the variant snapshot stored on a cart line.
type VariantRef struct {
	Name  string          `json:"name"`
	Value string          `json:"value"`
	Price decimal.Decimal `json:"price"`
}

// SameVariant reports whether two lines refer to the same variant. Two lines
// without a variant match.
func SameVariant(a, b *VariantRef) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Name == b.Name && a.Value == b.Value && a.Price.Equal(b.Price)
}

// Item is a cart line.
type Item struct {
	ID        string
	ProductID string
	Variant   *VariantRef
	Quantity  int
	Price     decimal.Decimal

	// Product is attached on read for display and is not persisted.
	Product *catalog.Product
}

// Total is price * quantity.
func (i Item) Total() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is a user's cart. At most one coupon is applied at a time.
type Cart struct {
	ID             string
	UserID         string
	Items          []Item
	CouponID       string
	CouponCode     string
	CouponDiscount decimal.Decimal
	UpdatedAt      time.Time
}

// Subtotal sums the line totals.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.Total())
	}
	return sum
}

// ItemCount sums the line quantities.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// ClearCoupon drops the applied coupon.
func (c *Cart) ClearCoupon() {
	c.CouponID = ""
	c.CouponCode = ""
	c.CouponDiscount = decimal.Zero
}

// Reset empties the cart.
func (c *Cart) Reset() {
	c.Items = nil
	c.ClearCoupon()
}

func (c *Cart) find(itemID string) int {
	for i, it := range c.Items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

// Repository persists carts. The cart row is created on first access.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	// Lock loads the cart and locks it until the surrounding transaction
	// ends, so mutations from concurrent requests serialize.
	Lock(ctx context.Context, userID string) (*Cart, error)
	// Save replaces the stored lines and coupon fields with c's.
	Save(ctx context.Context, c *Cart) error
}
