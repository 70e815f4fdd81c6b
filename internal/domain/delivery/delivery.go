// Package delivery manages delivery partners and their assignments.
package delivery

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
)

// ApplicationStatus is the onboarding state of an agent.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

func (s ApplicationStatus) Valid() bool {
	return s == ApplicationPending || s == ApplicationApproved || s == ApplicationRejected
}

// EarningPerDelivery is credited to an agent for each completed delivery.
var EarningPerDelivery = decimal.NewFromInt(30)

var (
	ErrNotFound        = apperr.NotFound("delivery partner not found")
	ErrAlreadyApplied  = apperr.Validation("you have already applied as a delivery partner")
	ErrNotApproved     = apperr.Forbidden("delivery partner account is not approved")
	ErrNoCurrentOrder  = apperr.NotFound("no order is currently assigned")
	ErrNotCurrentOrder = apperr.Forbidden("order is not your current delivery")
	// ErrAgentTaken is returned when another assignment claimed the agent
	// first.
	ErrAgentTaken = apperr.Conflict("delivery partner was just assigned another order")
)

// UnavailableError explains why an agent cannot take an order.
type UnavailableError struct {
	Reason string
}

func (e *UnavailableError) Error() string          { return "delivery partner " + e.Reason }
func (e *UnavailableError) ErrorKind() apperr.Kind { return apperr.KindValidation }

// Location is a WGS84 coordinate.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is in range.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// Agent is a delivery partner. An agent carries at most one order at a time.
type Agent struct {
	ID     string
	UserID string
	Name   string
	Phone  string

	VehicleType   string
	VehicleNumber string

	Status      ApplicationStatus
	IsActive    bool
	IsOnline    bool
	IsAvailable bool

	Location          *Location
	LocationUpdatedAt *time.Time
	CurrentOrderID    string

	TotalDeliveries int
	Rating          float64
	Earnings        decimal.Decimal
	CreatedAt       time.Time
}

// Assignable reports why a cannot take a new order, or nil if it can.
func (a *Agent) Assignable() error {
	switch {
	case a.Status != ApplicationApproved:
		return &UnavailableError{Reason: "is not approved"}
	case !a.IsActive:
		return &UnavailableError{Reason: "is not active"}
	case !a.IsOnline:
		return &UnavailableError{Reason: "is offline"}
	case a.CurrentOrderID != "":
		return &UnavailableError{Reason: "is already on a delivery"}
	case !a.IsAvailable:
		return &UnavailableError{Reason: "is not available"}
	}
	return nil
}

// Nearby is an agent with its distance from a point.
type Nearby struct {
	Agent
	DistanceMeters float64
}

// NearbyQuery selects the closest assignable agents.
type NearbyQuery struct {
	Center      Location
	MaxDistance float64 // meters
	Limit       int
}

// Repository persists agents.
type Repository interface {
	Create(ctx context.Context, a *Agent) error
	Get(ctx context.Context, id string) (*Agent, error)
	GetByUser(ctx context.Context, userID string) (*Agent, error)
	List(ctx context.Context, status ApplicationStatus) ([]Agent, error)
	// Lock and LockByUser load an agent and lock it until the surrounding
	// transaction ends.
	Lock(ctx context.Context, id string) (*Agent, error)
	LockByUser(ctx context.Context, userID string) (*Agent, error)
	SetReview(ctx context.Context, id string, status ApplicationStatus, active bool) error
	// Claim binds orderID to the agent only if the agent is still free; it
	// returns ErrAgentTaken otherwise.
	Claim(ctx context.Context, agentID, orderID string) error
	// Release clears the current order, restores availability and credits a
	// finished delivery.
	Release(ctx context.Context, agentID string, earning decimal.Decimal) error
	SetOnline(ctx context.Context, agentID string, online bool) error
	SetLocation(ctx context.Context, agentID string, loc Location, at time.Time) error
	Nearby(ctx context.Context, q NearbyQuery) ([]Nearby, error)
}
