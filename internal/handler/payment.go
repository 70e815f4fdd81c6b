package handler

import (
	"net/http"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/order"
)

// paymentWebhook records the outcome reported by the payment gateway. Repeated
// callbacks for a settled order are acknowledged without changes.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderNumber string              `json:"orderNumber"`
		Status      order.PaymentStatus `json:"status"`
		Reference   string              `json:"reference"`
	}
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.OrderNumber == "" {
		fail(w, r, apperr.Validation("orderNumber is required"))
		return
	}
	o, err := h.orders.ConfirmPayment(r.Context(), req.OrderNumber, req.Status, req.Reference)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, struct {
		OrderNumber   string `json:"orderNumber"`
		PaymentStatus string `json:"paymentStatus"`
	}{o.Number, string(o.PaymentStatus)})
}
