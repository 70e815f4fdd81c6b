package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/krishna-marketing/grocer/internal/domain/delivery"
	"github.com/krishna-marketing/grocer/internal/domain/order"
)

var (
	_ order.Notifier             = (*Notifier)(nil)
	_ delivery.LocationPublisher = (*Notifier)(nil)
)

// Notifier publishes order changes to the hub and e-mails the customer about
// the ones worth an e-mail. A nil outbox disables e-mail.
type Notifier struct {
	hub    *Hub
	outbox *Outbox
}

func NewNotifier(hub *Hub, outbox *Outbox) *Notifier {
	return &Notifier{hub: hub, outbox: outbox}
}

func (n *Notifier) OrderChanged(ctx context.Context, o *order.Order, change order.StatusChange) {
	n.hub.Publish(ctx, Event{
		Type:        EventStatus,
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Status:      change.Status,
		Note:        change.Note,
		At:          change.At,
	})

	if n.outbox == nil {
		return
	}
	if msg, ok := composeOrderMail(o, change); ok {
		n.outbox.enqueue(mailJob{userID: o.UserID, orderID: o.ID, msg: msg})
	}
}

func (n *Notifier) AgentMoved(ctx context.Context, orderID string, loc delivery.Location, at time.Time) {
	n.hub.Publish(ctx, Event{
		Type:     EventLocation,
		OrderID:  orderID,
		Location: &loc,
		At:       at,
	})
}

// composeOrderMail renders the e-mail for a status change, if any.
func composeOrderMail(o *order.Order, change order.StatusChange) (Message, bool) {
	var subject, body string
	switch change.Status {
	case order.StatusPlaced:
		subject = fmt.Sprintf("Order %s placed", o.Number)
		body = fmt.Sprintf("Thank you for shopping with Krishna Marketing!\n\n"+
			"Your order %s has been placed.\n\n%s\nPayment: %s",
			o.Number, orderSummary(o), paymentLabel(o.PaymentMethod))
	case order.StatusConfirmed:
		subject = fmt.Sprintf("Order %s confirmed", o.Number)
		body = fmt.Sprintf("Your order %s has been confirmed and will be packed shortly.", o.Number)
	case order.StatusOutForDelivery:
		subject = fmt.Sprintf("Order %s is out for delivery", o.Number)
		body = fmt.Sprintf("Your order %s is on its way.\n\n"+
			"Share this OTP with the delivery partner to receive it: %s", o.Number, o.DeliveryOTP)
	case order.StatusDelivered:
		subject = fmt.Sprintf("Order %s delivered", o.Number)
		body = fmt.Sprintf("Your order %s has been delivered.", o.Number)
		if o.LoyaltyPointsEarned > 0 {
			body += fmt.Sprintf(" You earned %d loyalty points.", o.LoyaltyPointsEarned)
		}
	case order.StatusCancelled, order.StatusRefunded:
		subject = fmt.Sprintf("Order %s %s", o.Number, change.Status)
		body = fmt.Sprintf("Your order %s has been %s.", o.Number, change.Status)
		if o.CancelReason != "" {
			body += "\nReason: " + o.CancelReason
		}
		if o.PaymentStatus == order.PaymentRefunded {
			body += fmt.Sprintf("\nA refund of ₹%s has been initiated.", o.TotalAmount.StringFixed(2))
		}
	default:
		return Message{}, false
	}
	return Message{Subject: subject, Text: body}, true
}

func orderSummary(o *order.Order) string {
	var b strings.Builder
	for _, it := range o.Items {
		name := it.Name
		if it.Variant != nil {
			name += " (" + it.Variant.Value + ")"
		}
		fmt.Fprintf(&b, "%d x %s  ₹%s\n", it.Quantity, name, it.Total.StringFixed(2))
	}
	fmt.Fprintf(&b, "Subtotal: ₹%s\n", o.Subtotal.StringFixed(2))
	fmt.Fprintf(&b, "Delivery: ₹%s\n", o.DeliveryCharge.StringFixed(2))
	if o.CouponDiscount.IsPositive() {
		fmt.Fprintf(&b, "Coupon %s: -₹%s\n", o.CouponCode, o.CouponDiscount.StringFixed(2))
	}
	if o.LoyaltyPointsDiscount.IsPositive() {
		fmt.Fprintf(&b, "Points: -₹%s\n", o.LoyaltyPointsDiscount.StringFixed(2))
	}
	fmt.Fprintf(&b, "Total: ₹%s\n", o.TotalAmount.StringFixed(2))
	return b.String()
}

func paymentLabel(m order.PaymentMethod) string {
	if m == order.PaymentCOD {
		return "cash on delivery"
	}
	return "online"
}
