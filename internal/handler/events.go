package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/auth"
	"github.com/krishna-marketing/grocer/internal/domain/order"
	"github.com/krishna-marketing/grocer/internal/notify"
)

// orderEvents streams status and location updates of one order as
// server-sent events. The stream opens with the current status and ends once
// the order reaches a final state.
func (h *Handler) orderEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := auth.FromContext(ctx)

	o, err := h.orders.Get(ctx, param(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.canWatch(ctx, p, o); err != nil {
		fail(w, r, err)
		return
	}
	flusher, isFlusher := w.(http.Flusher)
	if !isFlusher {
		fail(w, r, errors.New("streaming unsupported"))
		return
	}

	// Subscribe before the snapshot so no transition falls in between.
	events, cancel := h.events.Subscribe(o.ID)
	defer cancel()

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	lg.Debug("Event stream opened")
	defer lg.Debug("Event stream closed")

	e := &jx.Encoder{}
	snapshot := notify.Event{
		Type:        notify.EventStatus,
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Status:      o.Status,
		At:          o.UpdatedAt,
	}
	if err := writeEvent(w, e, snapshot); err != nil {
		return
	}
	flusher.Flush()
	if o.Status.Terminal() {
		return
	}

	heartbeat := time.NewTicker(h.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeEvent(w, e, ev); err != nil {
				lg.Debug("Write event", zap.Error(err))
				return
			}
			flusher.Flush()
			if ev.Type == notify.EventStatus && ev.Status.Terminal() {
				return
			}
		}
	}
}

// canWatch admits the customer who placed o, admins and the agent carrying it.
func (h *Handler) canWatch(ctx context.Context, p auth.Principal, o *order.Order) error {
	switch {
	case p.IsAdmin(), p.UserID == o.UserID:
		return nil
	case p.Role == auth.RoleDelivery && o.DeliveryAgentID != "":
		a, err := h.delivery.Me(ctx, p.UserID)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				return err
			}
			return auth.ErrForbidden
		}
		if a.ID == o.DeliveryAgentID {
			return nil
		}
	}
	return auth.ErrForbidden
}

func writeEvent(w http.ResponseWriter, e *jx.Encoder, ev notify.Event) error {
	e.Reset()
	ev.Encode(e)
	buf := make([]byte, 0, len(e.Bytes())+32)
	buf = append(buf, "event: "...)
	buf = append(buf, string(ev.Type)...)
	buf = append(buf, "\ndata: "...)
	buf = append(buf, e.Bytes()...)
	buf = append(buf, "\n\n"...)
	_, err := w.Write(buf)
	return err
}
