package handler

import (
	"net/http"

	"github.com/krishna-marketing/grocer/internal/domain/auth"
	"github.com/krishna-marketing/grocer/internal/domain/cart"
)

// userID returns the authenticated caller. Routes using it sit behind
// authenticate.
func userID(r *http.Request) string {
	p, _ := auth.FromContext(r.Context())
	return p.UserID
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), userID(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, h.cart(c))
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Variant   *struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"variant"`
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	in := cart.AddItemRequest{ProductID: req.ProductID, Quantity: req.Quantity}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if req.Variant != nil {
		in.Variant = &cart.VariantChoice{Name: req.Variant.Name, Value: req.Variant.Value}
	}
	c, err := h.carts.AddItem(r.Context(), userID(r), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Item added to cart", h.cart(c))
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.carts.UpdateItem(r.Context(), userID(r), param(r, "itemId"), req.Quantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Cart updated", h.cart(c))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), userID(r), param(r, "itemId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Item removed from cart", h.cart(c))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Clear(r.Context(), userID(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Cart cleared", h.cart(c))
}

func (h *Handler) applyCartCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.carts.ApplyCoupon(r.Context(), userID(r), req.Code)
	if err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Coupon applied", h.cart(c))
}

func (h *Handler) removeCartCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveCoupon(r.Context(), userID(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Coupon removed", h.cart(c))
}
