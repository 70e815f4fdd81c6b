package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/auth"
	"github.com/krishna-marketing/grocer/internal/domain/coupon"
)

type couponPreviewDTO struct {
	Code        string  `json:"code"`
	Description string  `json:"description,omitempty"`
	Type        string  `json:"type"`
	Discount    float64 `json:"discount"`
	FinalAmount float64 `json:"finalAmount"`
}

// validateCoupon previews a coupon without consuming it. Per-user limits are
// only checked for signed-in callers.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code        string          `json:"code"`
		OrderAmount decimal.Decimal `json:"orderAmount"`
	}
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.OrderAmount.IsNegative() {
		fail(w, r, apperr.Validation("orderAmount cannot be negative"))
		return
	}
	p, _ := auth.FromContext(r.Context())

	res, err := h.coupons.Evaluate(r.Context(), req.Code, p.UserID, req.OrderAmount)
	if err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Coupon is valid", couponPreviewDTO{
		Code:        res.Coupon.Code,
		Description: res.Coupon.Description,
		Type:        string(res.Coupon.Type),
		Discount:    money(res.Discount),
		FinalAmount: money(req.OrderAmount.Sub(res.Discount)),
	})
}

type couponRequest struct {
	Code            string          `json:"code"`
	Description     string          `json:"description"`
	Type            coupon.Type     `json:"type"`
	Value           decimal.Decimal `json:"value"`
	MinOrderAmount  decimal.Decimal `json:"minOrderAmount"`
	MaxDiscount     decimal.Decimal `json:"maxDiscount"`
	MaxUsage        int             `json:"maxUsage"`
	MaxUsagePerUser int             `json:"maxUsagePerUser"`
	StartDate       time.Time       `json:"startDate"`
	EndDate         time.Time       `json:"endDate"`
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.coupons.Create(r.Context(), coupon.Input{
		Code:            req.Code,
		Description:     req.Description,
		Type:            req.Type,
		Value:           req.Value,
		MinOrderAmount:  req.MinOrderAmount,
		MaxDiscount:     req.MaxDiscount,
		MaxUsage:        req.MaxUsage,
		MaxUsagePerUser: req.MaxUsagePerUser,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	created(w, "Coupon created", couponOf(c))
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := h.coupons.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]couponDTO, len(list))
	for i := range list {
		out[i] = couponOf(&list[i])
	}
	ok(w, out)
}

func (h *Handler) deactivateCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.Deactivate(r.Context(), param(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Coupon deactivated", nil)
}
