package coupon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercentage takes a percentage of the order amount, capped by
	// MaxDiscount when one is set.
	TypePercentage Type = "percentage"
	// TypeFlat takes a fixed amount off the order.
	TypeFlat Type = "flat"
)

// UnlimitedUsage disables the global usage cap.
const UnlimitedUsage = -1

var (
	// ErrInvalidCode is returned when no coupon exists for a code.
	ErrInvalidCode = apperr.NotFound("invalid coupon code")
	ErrNotFound    = apperr.NotFound("coupon not found")
	ErrCodeTaken   = apperr.Validation("coupon code already exists")
)

// RejectedError carries the reason a coupon cannot be applied.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string          { return e.Reason }
func (e *RejectedError) ErrorKind() apperr.Kind { return apperr.KindValidation }

// Coupon is a discount code.
type Coupon struct {
	ID             string
	Code           string
	Description    string
	Type           Type
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	// MaxDiscount caps percentage coupons. Zero means no cap.
	MaxDiscount     decimal.Decimal
	MaxUsage        int
	UsageCount      int
	MaxUsagePerUser int
	StartDate       time.Time
	EndDate         time.Time
	IsActive        bool
	CreatedAt       time.Time
}

// Usage records one redemption of a coupon by a user on an order.
type Usage struct {
	CouponID string
	UserID   string
	OrderID  string
	UsedAt   time.Time
}

// Repository provides lookup and mutation of coupons.
type Repository interface {
	// GetByCode returns ErrInvalidCode when the code is unknown.
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	// LockByID loads a coupon and locks its row until the surrounding
	// transaction ends.
	LockByID(ctx context.Context, id string) (*Coupon, error)
	UserUsageCount(ctx context.Context, couponID, userID string) (int, error)
	// RecordUsage stores u and increments the coupon's usage count.
	RecordUsage(ctx context.Context, u Usage) error
	Create(ctx context.Context, c *Coupon) error
	List(ctx context.Context) ([]Coupon, error)
	SetActive(ctx context.Context, id string, active bool) error
}
