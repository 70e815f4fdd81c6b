package coupon

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
)

var codeRe = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

// NormalizeCode upper-cases and trims a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether a normalized code is well-formed.
func ValidCode(code string) bool { return codeRe.MatchString(code) }

// Result is an applicable coupon and the discount it gives.
type Result struct {
	Coupon   *Coupon
	Discount decimal.Decimal
}

// Input is the admin-supplied definition of a new coupon.
type Input struct {
	Code            string
	Description     string
	Type            Type
	Value           decimal.Decimal
	MinOrderAmount  decimal.Decimal
	MaxDiscount     decimal.Decimal
	MaxUsage        int
	MaxUsagePerUser int
	StartDate       time.Time
	EndDate         time.Time
}

// Validate normalizes in and checks it describes a usable coupon.
func (in *Input) Validate() error {
	in.Code = NormalizeCode(in.Code)
	if !ValidCode(in.Code) {
		return apperr.Validation("coupon code must be 3-32 letters, digits, '-' or '_'")
	}
	switch in.Type {
	case TypePercentage:
		if !in.Value.IsPositive() || in.Value.GreaterThan(hundred) {
			return apperr.Validation("percentage must be between 0 and 100")
		}
	case TypeFlat:
		if !in.Value.IsPositive() {
			return apperr.Validation("discount value must be greater than 0")
		}
	default:
		return apperr.Validationf("unknown coupon type %q", in.Type)
	}
	if in.MinOrderAmount.IsNegative() || in.MaxDiscount.IsNegative() {
		return apperr.Validation("amounts cannot be negative")
	}
	if in.MaxUsage == 0 {
		in.MaxUsage = UnlimitedUsage
	}
	if in.MaxUsage < UnlimitedUsage {
		return apperr.Validation("maxUsage must be -1 (unlimited) or a positive count")
	}
	if in.MaxUsagePerUser == 0 {
		in.MaxUsagePerUser = 1
	}
	if in.MaxUsagePerUser < 0 {
		return apperr.Validation("maxUsagePerUser must be positive")
	}
	if !in.StartDate.IsZero() && !in.EndDate.IsZero() && !in.EndDate.After(in.StartDate) {
		return apperr.Validation("endDate must be after startDate")
	}
	return nil
}

// Service implements coupon use cases.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Evaluate checks code for a user and amount without consuming it. A
// rejected coupon yields a *RejectedError. userID may be empty for anonymous
// previews, in which case per-user limits are not checked.
func (s *Service) Evaluate(ctx context.Context, code, userID string, amount decimal.Decimal) (*Result, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, apperr.Validation("coupon code is required")
	}
	c, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "get coupon")
	}
	return s.evaluate(ctx, c, userID, amount)
}

// Consume re-checks the coupon under a row lock and records its use on an
// order. It must run inside the transaction that creates the order.
func (s *Service) Consume(ctx context.Context, couponID, userID, orderID string, amount decimal.Decimal) (*Result, error) {
	c, err := s.repo.LockByID(ctx, couponID)
	if err != nil {
		return nil, errors.Wrap(err, "lock coupon")
	}
	res, err := s.evaluate(ctx, c, userID, amount)
	if err != nil {
		return nil, err
	}
	err = s.repo.RecordUsage(ctx, Usage{
		CouponID: c.ID,
		UserID:   userID,
		OrderID:  orderID,
		UsedAt:   s.now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "record usage")
	}
	return res, nil
}

func (s *Service) evaluate(ctx context.Context, c *Coupon, userID string, amount decimal.Decimal) (*Result, error) {
	uses := 0
	if userID != "" {
		n, err := s.repo.UserUsageCount(ctx, c.ID, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count usage")
		}
		uses = n
	}
	if v := Check(c, uses, amount, s.now()); !v.Valid {
		return nil, &RejectedError{Reason: v.Reason}
	}
	return &Result{Coupon: c, Discount: CalculateDiscount(c, amount)}, nil
}

func (s *Service) Create(ctx context.Context, in Input) (*Coupon, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	c := in.Build(s.now())
	if err := s.repo.Create(ctx, &c); err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}
	return &c, nil
}

// Build returns a new active coupon as described by a validated in.
func (in Input) Build(now time.Time) Coupon {
	return Coupon{
		ID:              uuid.NewString(),
		Code:            in.Code,
		Description:     in.Description,
		Type:            in.Type,
		Value:           in.Value,
		MinOrderAmount:  in.MinOrderAmount,
		MaxDiscount:     in.MaxDiscount,
		MaxUsage:        in.MaxUsage,
		MaxUsagePerUser: in.MaxUsagePerUser,
		StartDate:       in.StartDate,
		EndDate:         in.EndDate,
		IsActive:        true,
		CreatedAt:       now,
	}
}

func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return list, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return errors.Wrap(err, "deactivate coupon")
	}
	return nil
}
