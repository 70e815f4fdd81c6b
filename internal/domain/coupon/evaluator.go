package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Verdict is the outcome of Check.
type Verdict struct {
	Valid  bool
	Reason string
}

func reject(reason string) Verdict { return Verdict{Reason: reason} }

// Check decides whether c can be applied to an order of amount by a user who
// has already redeemed it userUses times. Checks run in a fixed order and the
// first failure wins.
func Check(c *Coupon, userUses int, amount decimal.Decimal, now time.Time) Verdict {
	if !c.IsActive {
		return reject("Coupon is not active")
	}
	if !c.StartDate.IsZero() && now.Before(c.StartDate) {
		return reject("Coupon is not valid yet")
	}
	if !c.EndDate.IsZero() && now.After(c.EndDate) {
		return reject("Coupon has expired")
	}
	if c.MaxUsage >= 0 && c.UsageCount >= c.MaxUsage {
		return reject("Coupon usage limit reached")
	}
	if amount.LessThan(c.MinOrderAmount) {
		return reject("Minimum order amount is ₹" + c.MinOrderAmount.String())
	}
	if userUses >= c.MaxUsagePerUser {
		return reject("You have already used this coupon")
	}
	return Verdict{Valid: true}
}

// CalculateDiscount returns the discount c gives on amount, never more than
// amount itself.
func CalculateDiscount(c *Coupon, amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	var d decimal.Decimal
	switch c.Type {
	case TypePercentage:
		d = amount.Mul(c.Value).Div(hundred)
		if c.MaxDiscount.IsPositive() && d.GreaterThan(c.MaxDiscount) {
			d = c.MaxDiscount
		}
	case TypeFlat:
		d = c.Value
	}
	if d.IsNegative() {
		d = decimal.Zero
	}
	return decimal.Min(d, amount).Round(2)
}
