package order

import (
	"fmt"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
)

// Status is a step in the order lifecycle.
type Status string

const (
	StatusPlaced         Status = "placed"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusPickedUp       Status = "picked_up"
	StatusArrived        Status = "arrived"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusRefunded       Status = "refunded"
)

// transitions lists every legal move. Statuses absent from the map are
// terminal.
var transitions = map[Status][]Status{
	StatusPlaced:         {StatusConfirmed, StatusCancelled, StatusRefunded},
	StatusConfirmed:      {StatusPreparing, StatusCancelled, StatusRefunded},
	StatusPreparing:      {StatusOutForDelivery, StatusRefunded},
	StatusOutForDelivery: {StatusPickedUp},
	StatusPickedUp:       {StatusArrived},
	StatusArrived:        {StatusDelivered},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPlaced, StatusConfirmed, StatusPreparing, StatusOutForDelivery,
		StatusPickedUp, StatusArrived, StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Cancellable reports whether a customer may still cancel.
func (s Status) Cancellable() bool {
	return s == StatusPlaced || s == StatusConfirmed
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next returns the statuses reachable from s.
func Next(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// TransitionError rejects a move the lifecycle does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	if e.From.Terminal() {
		return fmt.Sprintf("order is already %s", e.From)
	}
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

func (e *TransitionError) ErrorKind() apperr.Kind { return apperr.KindValidation }

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
