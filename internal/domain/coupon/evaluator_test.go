package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	base := func() *Coupon {
		return &Coupon{
			Code:            "SAVE20",
			Type:            TypePercentage,
			Value:           decimal.NewFromInt(20),
			MinOrderAmount:  decimal.NewFromInt(300),
			MaxUsage:        UnlimitedUsage,
			MaxUsagePerUser: 1,
			StartDate:       now.Add(-24 * time.Hour),
			EndDate:         now.Add(24 * time.Hour),
			IsActive:        true,
		}
	}

	tests := []struct {
		name     string
		mutate   func(c *Coupon)
		userUses int
		amount   int64
		want     Verdict
	}{
		{
			name:   "valid",
			amount: 300,
			want:   Verdict{Valid: true},
		},
		{
			name:   "inactive",
			mutate: func(c *Coupon) { c.IsActive = false },
			amount: 500,
			want:   Verdict{Reason: "Coupon is not active"},
		},
		{
			name:   "not started",
			mutate: func(c *Coupon) { c.StartDate = now.Add(time.Hour) },
			amount: 500,
			want:   Verdict{Reason: "Coupon is not valid yet"},
		},
		{
			name:   "expired",
			mutate: func(c *Coupon) { c.EndDate = now.Add(-time.Hour) },
			amount: 500,
			want:   Verdict{Reason: "Coupon has expired"},
		},
		{
			name:   "no window",
			mutate: func(c *Coupon) { c.StartDate, c.EndDate = time.Time{}, time.Time{} },
			amount: 500,
			want:   Verdict{Valid: true},
		},
		{
			name:   "global cap reached",
			mutate: func(c *Coupon) { c.MaxUsage, c.UsageCount = 10, 10 },
			amount: 500,
			want:   Verdict{Reason: "Coupon usage limit reached"},
		},
		{
			name:   "global cap not reached",
			mutate: func(c *Coupon) { c.MaxUsage, c.UsageCount = 10, 9 },
			amount: 500,
			want:   Verdict{Valid: true},
		},
		{
			name:   "below minimum",
			amount: 200,
			want:   Verdict{Reason: "Minimum order amount is ₹300"},
		},
		{
			name:     "per user cap",
			userUses: 1,
			amount:   500,
			want:     Verdict{Reason: "You have already used this coupon"},
		},
		{
			name:     "per user cap of three allows third use",
			mutate:   func(c *Coupon) { c.MaxUsagePerUser = 3 },
			userUses: 2,
			amount:   500,
			want:     Verdict{Valid: true},
		},
		{
			name:     "inactive wins over other failures",
			mutate:   func(c *Coupon) { c.IsActive = false; c.EndDate = now.Add(-time.Hour) },
			userUses: 5,
			amount:   1,
			want:     Verdict{Reason: "Coupon is not active"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			if tt.mutate != nil {
				tt.mutate(c)
			}
			got := Check(c, tt.userUses, decimal.NewFromInt(tt.amount), now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateDiscount(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		name   string
		coupon Coupon
		amount decimal.Decimal
		want   decimal.Decimal
	}{
		{
			name:   "percentage",
			coupon: Coupon{Type: TypePercentage, Value: d("20")},
			amount: d("450"),
			want:   d("90"),
		},
		{
			name:   "percentage capped by max discount",
			coupon: Coupon{Type: TypePercentage, Value: d("20"), MaxDiscount: d("50")},
			amount: d("450"),
			want:   d("50"),
		},
		{
			name:   "percentage rounds to paise",
			coupon: Coupon{Type: TypePercentage, Value: d("15")},
			amount: d("99.99"),
			want:   d("15"),
		},
		{
			name:   "flat",
			coupon: Coupon{Type: TypeFlat, Value: d("75")},
			amount: d("300"),
			want:   d("75"),
		},
		{
			name:   "flat capped at amount",
			coupon: Coupon{Type: TypeFlat, Value: d("75")},
			amount: d("40"),
			want:   d("40"),
		},
		{
			name:   "zero amount",
			coupon: Coupon{Type: TypeFlat, Value: d("75")},
			amount: decimal.Zero,
			want:   decimal.Zero,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateDiscount(&tt.coupon, tt.amount)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}
