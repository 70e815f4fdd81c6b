package handler

import (
	"net/http"

	"github.com/krishna-marketing/grocer/internal/domain/customer"
)

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := h.customers.ListAddresses(r.Context(), userID(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]addressDTO, len(list))
	for i := range list {
		out[i] = address(&list[i])
	}
	ok(w, out)
}

func (h *Handler) createAddress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label     string `json:"label"`
		Line1     string `json:"line1"`
		Line2     string `json:"line2"`
		City      string `json:"city"`
		State     string `json:"state"`
		Pincode   string `json:"pincode"`
		Phone     string `json:"phone"`
		IsDefault bool   `json:"isDefault"`
	}
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	a, err := h.customers.CreateAddress(r.Context(), userID(r), customer.AddressInput(req))
	if err != nil {
		fail(w, r, err)
		return
	}
	created(w, "Address added", address(a))
}

func (h *Handler) loyaltySummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.loyalty.Summary(r.Context(), userID(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, loyaltyOf(s))
}
