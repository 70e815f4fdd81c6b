package order

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/loyalty"
)

// Cancel cancels one of the user's orders while it is still placed or
// confirmed, returning stock and loyalty points.
func (s *Service) Cancel(ctx context.Context, userID, orderID, reason string) (*Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Cancelled by customer"
	}
	var o *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orders.Lock(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "lock order")
		}
		if o.UserID != userID {
			return ErrNotFound
		}
		if !o.Status.Cancellable() {
			return ErrNotCancellable
		}
		return s.cancel(ctx, o, StatusCancelled, reason)
	})
	if err != nil {
		return nil, errors.Wrap(err, "cancel order")
	}
	return o, nil
}

// UpdateStatus moves an order along the lifecycle on behalf of an admin.
// Dispatch and delivery go through the agent flows instead.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, to Status, note string) (*Order, error) {
	switch {
	case !to.Valid():
		return nil, apperr.Validationf("unknown status %q", to)
	case to == StatusOutForDelivery:
		return nil, ErrDispatchByAgent
	case to == StatusDelivered:
		return nil, ErrDeliverByAgent
	}

	var o *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orders.Lock(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "lock order")
		}
		if err := checkTransition(o.Status, to); err != nil {
			return err
		}
		if to == StatusCancelled || to == StatusRefunded {
			if note == "" {
				note = "Cancelled by store"
			}
			return s.cancel(ctx, o, to, note)
		}
		return s.apply(ctx, o, Transition{To: to, Note: note})
	})
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	return o, nil
}

// apply performs t on o and mirrors the change on the in-memory order.
func (s *Service) apply(ctx context.Context, o *Order, t Transition) error {
	if err := checkTransition(o.Status, t.To); err != nil {
		return err
	}
	from := o.Status
	t.OrderID = o.ID
	t.From = from
	t.At = s.now()
	if t.Note == "" {
		t.Note = defaultNote(t.To)
	}
	if err := s.orders.Apply(ctx, t); err != nil {
		return errors.Wrapf(err, "%s -> %s", from, t.To)
	}

	change := StatusChange{Status: t.To, Note: t.Note, At: t.At}
	o.Status = t.To
	o.History = append(o.History, change)
	o.UpdatedAt = t.At
	if t.AgentID != "" {
		o.DeliveryAgentID = t.AgentID
	}
	if t.PaymentStatus != "" {
		o.PaymentStatus = t.PaymentStatus
	}
	if t.CancelReason != "" {
		o.CancelReason = t.CancelReason
	}
	at := t.At
	switch t.To {
	case StatusConfirmed:
		o.ConfirmedAt = &at
	case StatusPickedUp:
		o.PickedUpAt = &at
	case StatusDelivered:
		o.DeliveredAt = &at
	case StatusCancelled, StatusRefunded:
		o.CancelledAt = &at
	}

	s.afterCommit(ctx, o, from, change)
	return nil
}

func defaultNote(s Status) string {
	switch s {
	case StatusConfirmed:
		return "Order confirmed"
	case StatusPreparing:
		return "Order is being prepared"
	case StatusOutForDelivery:
		return "Order is out for delivery"
	case StatusPickedUp:
		return "Order picked up by delivery partner"
	case StatusArrived:
		return "Delivery partner has arrived"
	case StatusDelivered:
		return "Order delivered"
	case StatusRefunded:
		return "Order refunded"
	default:
		return "Order " + string(s)
	}
}

// cancel moves o to a cancelled or refunded state and compensates the
// checkout: stock goes back, spent points are refunded and points earned at
// placement are reversed.
func (s *Service) cancel(ctx context.Context, o *Order, to Status, reason string) error {
	t := Transition{To: to, Note: reason, CancelReason: reason}
	if to == StatusRefunded || o.PaymentStatus == PaymentPaid {
		t.PaymentStatus = PaymentRefunded
	}
	if err := s.apply(ctx, o, t); err != nil {
		return err
	}

	for _, it := range o.Items {
		if err := s.inventory.RestoreStock(ctx, it.ProductID, it.Quantity); err != nil {
			return errors.Wrapf(err, "restore stock of %s", it.ProductID)
		}
	}

	ref := loyalty.OrderRef{ID: o.ID, Number: o.Number}
	if err := s.ledger.Refund(ctx, o.UserID, ref, o.LoyaltyPointsUsed); err != nil {
		return err
	}
	reversed, err := s.ledger.Reverse(ctx, o.UserID, ref, o.LoyaltyPointsEarned)
	if err != nil {
		return err
	}
	if reversed < o.LoyaltyPointsEarned {
		zctx.From(ctx).Warn("Earned points partly spent before cancellation",
			zap.String("order_id", o.ID),
			zap.Int64("earned", o.LoyaltyPointsEarned),
			zap.Int64("reversed", reversed),
		)
	}
	return nil
}

// Dispatch hands a preparing order to a delivery agent. It is called by the
// delivery component inside the transaction that claims the agent.
func (s *Service) Dispatch(ctx context.Context, orderID, agentID string) (*Order, error) {
	o, err := s.orders.Lock(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "lock order")
	}
	if err := s.apply(ctx, o, Transition{To: StatusOutForDelivery, AgentID: agentID}); err != nil {
		return nil, err
	}
	return o, nil
}

// Advance records progress reported by the assigned agent. Delivering
// requires the OTP given to the customer and marks the order paid; an online
// order still waiting for its webhook earns its points here.
func (s *Service) Advance(ctx context.Context, orderID, agentID string, to Status, otp string) (*Order, error) {
	switch to {
	case StatusPickedUp, StatusArrived, StatusDelivered:
	default:
		return nil, apperr.Validationf("delivery partners cannot set status %q", to)
	}
	o, err := s.orders.Lock(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "lock order")
	}
	if o.DeliveryAgentID != agentID {
		return nil, ErrNotAssigned
	}
	t := Transition{To: to}
	if to == StatusDelivered {
		if err := checkTransition(o.Status, to); err != nil {
			return nil, err
		}
		if otp == "" || otp != o.DeliveryOTP {
			return nil, ErrInvalidOTP
		}
		if o.PaymentMethod == PaymentOnline && o.PaymentStatus == PaymentPending {
			if err := s.settleOnline(ctx, o, o.PaymentReference); err != nil {
				return nil, err
			}
		}
		t.PaymentStatus = PaymentPaid
	}
	if err := s.apply(ctx, o, t); err != nil {
		return nil, err
	}
	return o, nil
}

// ConfirmPayment records the gateway outcome for an online order. Paid
// orders earn loyalty points. A payment that lands on a cancelled order is
// recorded as refunded. Orders whose payment is already settled are returned
// unchanged.
func (s *Service) ConfirmPayment(ctx context.Context, number string, status PaymentStatus, reference string) (*Order, error) {
	if status != PaymentPaid && status != PaymentFailed {
		return nil, apperr.Validation("payment status must be paid or failed")
	}
	var o *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		found, err := s.orders.GetByNumber(ctx, number)
		if err != nil {
			return errors.Wrap(err, "get order")
		}
		if o, err = s.orders.Lock(ctx, found.ID); err != nil {
			return errors.Wrap(err, "lock order")
		}
		if o.PaymentMethod != PaymentOnline {
			return ErrNotOnline
		}
		if o.PaymentStatus != PaymentPending {
			return nil
		}

		switch {
		case status == PaymentPaid && o.Status.Terminal():
			zctx.From(ctx).Warn("Payment received for closed order, refund due",
				zap.String("order_id", o.ID),
				zap.String("status", string(o.Status)),
				zap.String("reference", reference),
			)
			return s.setPayment(ctx, o, Payment{OrderID: o.ID, Status: PaymentRefunded, Reference: reference})
		case status == PaymentPaid:
			return s.settleOnline(ctx, o, reference)
		default:
			return s.setPayment(ctx, o, Payment{OrderID: o.ID, Status: status, Reference: reference})
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "confirm payment")
	}
	return o, nil
}

// settleOnline marks an online order paid and grants its loyalty points.
func (s *Service) settleOnline(ctx context.Context, o *Order, reference string) error {
	earned, err := s.ledger.Earn(ctx, o.UserID, loyalty.OrderRef{ID: o.ID, Number: o.Number}, o.TotalAmount)
	if err != nil {
		return err
	}
	return s.setPayment(ctx, o, Payment{OrderID: o.ID, Status: PaymentPaid, Reference: reference, PointsEarned: earned})
}

func (s *Service) setPayment(ctx context.Context, o *Order, p Payment) error {
	if err := s.orders.SetPayment(ctx, p); err != nil {
		return errors.Wrap(err, "set payment")
	}
	o.PaymentStatus = p.Status
	o.PaymentReference = p.Reference
	o.LoyaltyPointsEarned = max(o.LoyaltyPointsEarned, p.PointsEarned)
	return nil
}
