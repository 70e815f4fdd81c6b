package handler

import (
	"net/http"

	"github.com/krishna-marketing/grocer/internal/domain/order"
)

type createOrderRequest struct {
	AddressID          string              `json:"addressId"`
	PaymentMethod      order.PaymentMethod `json:"paymentMethod"`
	LoyaltyPointsToUse int64               `json:"loyaltyPointsToUse"`
	Notes              string              `json:"notes"`
}

// createOrder checks out the caller's cart.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.Create(r.Context(), userID(r), order.CreateRequest{
		AddressID:     req.AddressID,
		PaymentMethod: req.PaymentMethod,
		LoyaltyPoints: req.LoyaltyPointsToUse,
		Notes:         req.Notes,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	created(w, "Order placed successfully", h.order(o))
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	status := order.Status(r.URL.Query().Get("status"))
	res, err := h.orders.ListMine(r.Context(), userID(r), status, pageOf(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, h.orderPage(res))
}

func (h *Handler) myOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetMine(r.Context(), userID(r), param(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, h.order(o))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	// The reason is optional, so is the body.
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
	}
	o, err := h.orders.Cancel(r.Context(), userID(r), param(r, "id"), req.Reason)
	if err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Order cancelled", h.order(o))
}

type reorderDTO struct {
	Cart    cartDTO  `json:"cart"`
	Added   []string `json:"added"`
	Skipped []string `json:"skipped"`
}

func (h *Handler) reorder(w http.ResponseWriter, r *http.Request) {
	res, err := h.orders.Reorder(r.Context(), userID(r), param(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	msg := "Items added to cart"
	if len(res.Skipped) > 0 {
		msg = "Some items are no longer available and were skipped"
	}
	okMessage(w, msg, reorderDTO{
		Cart:    h.cart(res.Cart),
		Added:   nonNil(res.Added),
		Skipped: nonNil(res.Skipped),
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (h *Handler) allOrders(w http.ResponseWriter, r *http.Request) {
	status := order.Status(r.URL.Query().Get("status"))
	res, err := h.orders.ListAll(r.Context(), status, pageOf(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, h.orderPage(res))
}

func (h *Handler) adminOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), param(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, h.order(o))
}

func (h *Handler) adminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status order.Status `json:"status"`
		Note   string       `json:"note"`
	}
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), param(r, "id"), req.Status, req.Note)
	if err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Order status updated", h.order(o))
}

func (h *Handler) assignAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agentId"`
	}
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.delivery.AssignAgent(r.Context(), param(r, "id"), req.AgentID)
	if err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Delivery partner assigned", h.order(o))
}
