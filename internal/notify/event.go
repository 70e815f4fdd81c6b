// Package notify fans order events out to live subscribers and e-mails
// customers about their orders.
package notify

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/krishna-marketing/grocer/internal/domain/delivery"
	"github.com/krishna-marketing/grocer/internal/domain/order"
)

// EventType names an order event.
type EventType string

const (
	EventStatus   EventType = "status"
	EventLocation EventType = "location"
)

// Event is published to subscribers of a single order.
type Event struct {
	Type        EventType
	OrderID     string
	OrderNumber string
	Status      order.Status
	Note        string
	Location    *delivery.Location
	At          time.Time
}

// Encode writes e as a JSON object.
func (e Event) Encode(enc *jx.Encoder) {
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("type", func(enc *jx.Encoder) { enc.Str(string(e.Type)) })
		enc.Field("orderId", func(enc *jx.Encoder) { enc.Str(e.OrderID) })
		if e.OrderNumber != "" {
			enc.Field("orderNumber", func(enc *jx.Encoder) { enc.Str(e.OrderNumber) })
		}
		if e.Status != "" {
			enc.Field("status", func(enc *jx.Encoder) { enc.Str(string(e.Status)) })
		}
		if e.Note != "" {
			enc.Field("note", func(enc *jx.Encoder) { enc.Str(e.Note) })
		}
		if e.Location != nil {
			enc.Field("location", func(enc *jx.Encoder) {
				enc.Obj(func(enc *jx.Encoder) {
					enc.Field("lat", func(enc *jx.Encoder) { enc.Float64(e.Location.Lat) })
					enc.Field("lng", func(enc *jx.Encoder) { enc.Float64(e.Location.Lng) })
				})
			})
		}
		enc.Field("at", func(enc *jx.Encoder) { enc.Str(e.At.UTC().Format(time.RFC3339)) })
	})
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	var enc jx.Encoder
	e.Encode(&enc)
	return enc.Bytes(), nil
}
