package delivery

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/auth"
	"github.com/krishna-marketing/grocer/internal/domain/order"
	"github.com/krishna-marketing/grocer/internal/domain/txn"
)

const (
	DefaultNearbyDistance = 5000
	DefaultNearbyLimit    = 10
	MaxNearbyLimit        = 50
)

// Orders drives order status changes on behalf of agents.
type Orders interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	Dispatch(ctx context.Context, orderID, agentID string) (*order.Order, error)
	Advance(ctx context.Context, orderID, agentID string, to order.Status, otp string) (*order.Order, error)
}

// Users updates account roles.
type Users interface {
	SetRole(ctx context.Context, id string, role auth.Role) error
}

// LocationPublisher broadcasts agent movement to subscribers of an order.
type LocationPublisher interface {
	AgentMoved(ctx context.Context, orderID string, loc Location, at time.Time)
}

// Service implements delivery partner use cases.
type Service struct {
	agents    Repository
	orders    Orders
	users     Users
	locations LocationPublisher
	tx        txn.Runner
	now       func() time.Time
}

func NewService(agents Repository, orders Orders, users Users, locations LocationPublisher, tx txn.Runner) *Service {
	return &Service{
		agents:    agents,
		orders:    orders,
		users:     users,
		locations: locations,
		tx:        tx,
		now:       time.Now,
	}
}

// ApplyRequest is a delivery partner application.
type ApplyRequest struct {
	VehicleType   string
	VehicleNumber string
}

// Apply files a pending application for the user.
func (s *Service) Apply(ctx context.Context, userID string, req ApplyRequest) (*Agent, error) {
	req.VehicleType = strings.ToLower(strings.TrimSpace(req.VehicleType))
	switch req.VehicleType {
	case "bicycle", "motorcycle", "scooter", "car":
	default:
		return nil, apperr.Validation("vehicle type must be bicycle, motorcycle, scooter or car")
	}
	req.VehicleNumber = strings.ToUpper(strings.TrimSpace(req.VehicleNumber))
	if req.VehicleType != "bicycle" && req.VehicleNumber == "" {
		return nil, apperr.Validation("vehicle number is required")
	}

	if _, err := s.agents.GetByUser(ctx, userID); err == nil {
		return nil, ErrAlreadyApplied
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "get agent")
	}

	a := &Agent{
		ID:            uuid.NewString(),
		UserID:        userID,
		VehicleType:   req.VehicleType,
		VehicleNumber: req.VehicleNumber,
		Status:        ApplicationPending,
	}
	if err := s.agents.Create(ctx, a); err != nil {
		return nil, errors.Wrap(err, "create agent")
	}
	return a, nil
}

// List returns agents with the given application status, or all agents when
// status is empty.
func (s *Service) List(ctx context.Context, status ApplicationStatus) ([]Agent, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validationf("unknown application status %q", status)
	}
	list, err := s.agents.List(ctx, status)
	if err != nil {
		return nil, errors.Wrap(err, "list agents")
	}
	return list, nil
}

// Review approves or rejects an application. Approval activates the agent
// and grants the user the delivery role.
func (s *Service) Review(ctx context.Context, agentID string, decision ApplicationStatus) (*Agent, error) {
	if decision != ApplicationApproved && decision != ApplicationRejected {
		return nil, apperr.Validation("decision must be approved or rejected")
	}
	var a *Agent
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = s.agents.Lock(ctx, agentID); err != nil {
			return errors.Wrap(err, "lock agent")
		}
		if decision == ApplicationRejected && a.CurrentOrderID != "" {
			return apperr.Validation("delivery partner is on a delivery")
		}
		active := decision == ApplicationApproved
		if err := s.agents.SetReview(ctx, a.ID, decision, active); err != nil {
			return errors.Wrap(err, "set review")
		}
		role := auth.RoleCustomer
		if active {
			role = auth.RoleDelivery
		}
		if err := s.users.SetRole(ctx, a.UserID, role); err != nil {
			return errors.Wrap(err, "set role")
		}
		a.Status = decision
		a.IsActive = active
		if !active {
			a.IsOnline, a.IsAvailable = false, false
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "review agent")
	}
	return a, nil
}

// AssignAgent dispatches a preparing order with a free agent. The agent claim
// and the order transition commit together.
func (s *Service) AssignAgent(ctx context.Context, orderID, agentID string) (*order.Order, error) {
	var o *order.Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.agents.Lock(ctx, agentID)
		if err != nil {
			return errors.Wrap(err, "lock agent")
		}
		if err := a.Assignable(); err != nil {
			return err
		}
		if o, err = s.orders.Dispatch(ctx, orderID, a.ID); err != nil {
			return err
		}
		return s.agents.Claim(ctx, a.ID, o.ID)
	})
	if err != nil {
		return nil, errors.Wrap(err, "assign agent")
	}
	zctx.From(ctx).Info("Agent assigned",
		zap.String("order_id", o.ID),
		zap.String("agent_id", agentID),
	)
	return o, nil
}

// UpdateStatus records progress on an order by the agent assigned to it.
// Moving to delivered completes the delivery and requires the OTP.
func (s *Service) UpdateStatus(ctx context.Context, agentUserID, orderID string, to order.Status, otp string) (*order.Order, error) {
	if to == order.StatusDelivered {
		a, err := s.Me(ctx, agentUserID)
		if err != nil {
			return nil, err
		}
		if a.CurrentOrderID != orderID {
			return nil, ErrNotCurrentOrder
		}
		return s.CompleteDelivery(ctx, agentUserID, otp)
	}

	a, err := s.approved(ctx, agentUserID)
	if err != nil {
		return nil, err
	}
	o, err := s.orders.Advance(ctx, orderID, a.ID, to, "")
	if err != nil {
		return nil, errors.Wrap(err, "update delivery status")
	}
	return o, nil
}

// CompleteDelivery delivers the agent's current order after checking the OTP
// and frees the agent for the next one.
func (s *Service) CompleteDelivery(ctx context.Context, agentUserID, otp string) (*order.Order, error) {
	var o *order.Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.agents.LockByUser(ctx, agentUserID)
		if err != nil {
			return errors.Wrap(err, "lock agent")
		}
		if a.CurrentOrderID == "" {
			return ErrNoCurrentOrder
		}
		if o, err = s.orders.Advance(ctx, a.CurrentOrderID, a.ID, order.StatusDelivered, otp); err != nil {
			return err
		}
		if err := s.agents.Release(ctx, a.ID, EarningPerDelivery); err != nil {
			return errors.Wrap(err, "release agent")
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "complete delivery")
	}
	return o, nil
}

// ToggleAvailability flips the agent between online and offline. An online
// agent is available unless it carries an order.
func (s *Service) ToggleAvailability(ctx context.Context, agentUserID string) (*Agent, error) {
	var a *Agent
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = s.agents.LockByUser(ctx, agentUserID); err != nil {
			return errors.Wrap(err, "lock agent")
		}
		if a.Status != ApplicationApproved || !a.IsActive {
			return ErrNotApproved
		}
		a.IsOnline = !a.IsOnline
		a.IsAvailable = a.IsOnline && a.CurrentOrderID == ""
		if err := s.agents.SetOnline(ctx, a.ID, a.IsOnline); err != nil {
			return errors.Wrap(err, "set online")
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "toggle availability")
	}
	return a, nil
}

// UpdateLocation stores the agent's position and broadcasts it to the
// customer of the current order.
func (s *Service) UpdateLocation(ctx context.Context, agentUserID string, loc Location) (*Agent, error) {
	if !loc.Valid() {
		return nil, apperr.Validation("latitude must be within ±90 and longitude within ±180")
	}
	a, err := s.approved(ctx, agentUserID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.agents.SetLocation(ctx, a.ID, loc, now); err != nil {
		return nil, errors.Wrap(err, "set location")
	}
	a.Location = &loc
	a.LocationUpdatedAt = &now
	if a.CurrentOrderID != "" && s.locations != nil {
		s.locations.AgentMoved(ctx, a.CurrentOrderID, loc, now)
	}
	return a, nil
}

// Nearby lists online, available, active agents around a point, closest
// first.
func (s *Service) Nearby(ctx context.Context, q NearbyQuery) ([]Nearby, error) {
	if !q.Center.Valid() {
		return nil, apperr.Validation("invalid coordinates")
	}
	if q.MaxDistance <= 0 {
		q.MaxDistance = DefaultNearbyDistance
	}
	if q.Limit <= 0 {
		q.Limit = DefaultNearbyLimit
	}
	q.Limit = min(q.Limit, MaxNearbyLimit)
	list, err := s.agents.Nearby(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "nearby agents")
	}
	return list, nil
}

// CurrentOrder returns the order the agent is delivering.
func (s *Service) CurrentOrder(ctx context.Context, agentUserID string) (*order.Order, error) {
	a, err := s.Me(ctx, agentUserID)
	if err != nil {
		return nil, err
	}
	if a.CurrentOrderID == "" {
		return nil, ErrNoCurrentOrder
	}
	o, err := s.orders.Get(ctx, a.CurrentOrderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// Me returns the agent profile of a user.
func (s *Service) Me(ctx context.Context, agentUserID string) (*Agent, error) {
	a, err := s.agents.GetByUser(ctx, agentUserID)
	if err != nil {
		return nil, errors.Wrap(err, "get agent")
	}
	return a, nil
}

func (s *Service) approved(ctx context.Context, agentUserID string) (*Agent, error) {
	a, err := s.Me(ctx, agentUserID)
	if err != nil {
		return nil, err
	}
	if a.Status != ApplicationApproved || !a.IsActive {
		return nil, ErrNotApproved
	}
	return a, nil
}
