package handler

import (
	"net/http"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/delivery"
	"github.com/krishna-marketing/grocer/internal/domain/order"
)

func (h *Handler) applyAsAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VehicleType   string `json:"vehicleType"`
		VehicleNumber string `json:"vehicleNumber"`
	}
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	a, err := h.delivery.Apply(r.Context(), userID(r), delivery.ApplyRequest(req))
	if err != nil {
		fail(w, r, err)
		return
	}
	created(w, "Application submitted", agent(a))
}

func (h *Handler) agentMe(w http.ResponseWriter, r *http.Request) {
	a, err := h.delivery.Me(r.Context(), userID(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, agent(a))
}

func (h *Handler) agentCurrentOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.delivery.CurrentOrder(r.Context(), userID(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, h.order(o))
}

func (h *Handler) toggleAvailability(w http.ResponseWriter, r *http.Request) {
	a, err := h.delivery.ToggleAvailability(r.Context(), userID(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	msg := "You are now offline"
	if a.IsOnline {
		msg = "You are now online"
	}
	okMessage(w, msg, agent(a))
}

func (h *Handler) updateLocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Lat == nil || req.Lng == nil {
		fail(w, r, apperr.Validation("lat and lng are required"))
		return
	}
	a, err := h.delivery.UpdateLocation(r.Context(), userID(r), delivery.Location{Lat: *req.Lat, Lng: *req.Lng})
	if err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Location updated", agent(a))
}

func (h *Handler) updateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string       `json:"orderId"`
		Status  order.Status `json:"status"`
		OTP     string       `json:"otp"`
	}
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.OrderID == "" {
		fail(w, r, apperr.Validation("orderId is required"))
		return
	}
	o, err := h.delivery.UpdateStatus(r.Context(), userID(r), req.OrderID, req.Status, req.OTP)
	if err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Order status updated", h.order(o))
}

func (h *Handler) completeDelivery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OTP string `json:"otp"`
	}
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.delivery.CompleteDelivery(r.Context(), userID(r), req.OTP)
	if err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Order delivered", h.order(o))
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	status := delivery.ApplicationStatus(r.URL.Query().Get("status"))
	list, err := h.delivery.List(r.Context(), status)
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]agentDTO, len(list))
	for i := range list {
		out[i] = agent(&list[i])
	}
	ok(w, out)
}

// nearbyAgents lists free agents around a point, closest first.
func (h *Handler) nearbyAgents(w http.ResponseWriter, r *http.Request) {
	lat, hasLat, err := floatQuery(r, "lat")
	if err != nil {
		fail(w, r, err)
		return
	}
	lng, hasLng, err := floatQuery(r, "lng")
	if err != nil {
		fail(w, r, err)
		return
	}
	if !hasLat || !hasLng {
		fail(w, r, apperr.Validation("lat and lng are required"))
		return
	}
	maxDistance, _, err := floatQuery(r, "maxDistance")
	if err != nil {
		fail(w, r, err)
		return
	}
	limit, _, err := floatQuery(r, "limit")
	if err != nil {
		fail(w, r, err)
		return
	}

	list, err := h.delivery.Nearby(r.Context(), delivery.NearbyQuery{
		Center:      delivery.Location{Lat: lat, Lng: lng},
		MaxDistance: maxDistance,
		Limit:       int(limit),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]agentDTO, len(list))
	for i := range list {
		out[i] = agent(&list[i].Agent)
		d := list[i].DistanceMeters
		out[i].DistanceMeters = &d
	}
	ok(w, out)
}

func (h *Handler) reviewAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status delivery.ApplicationStatus `json:"status"`
	}
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	a, err := h.delivery.Review(r.Context(), param(r, "id"), req.Status)
	if err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Application "+string(a.Status), agent(a))
}
