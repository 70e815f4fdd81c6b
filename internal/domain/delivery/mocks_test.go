package delivery

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/auth"
	"github.com/krishna-marketing/grocer/internal/domain/order"
)

type memAgents struct {
	byID map[string]*Agent
}

func newMemAgents(agents ...*Agent) *memAgents {
	m := &memAgents{byID: map[string]*Agent{}}
	for _, a := range agents {
		m.byID[a.ID] = a
	}
	return m
}

func (m *memAgents) Create(_ context.Context, a *Agent) error {
	cp := *a
	m.byID[a.ID] = &cp
	return nil
}

func (m *memAgents) Get(_ context.Context, id string) (*Agent, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAgents) GetByUser(_ context.Context, userID string) (*Agent, error) {
	for _, a := range m.byID {
		if a.UserID == userID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memAgents) List(_ context.Context, status ApplicationStatus) ([]Agent, error) {
	var out []Agent
	for _, a := range m.byID {
		if status == "" || a.Status == status {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAgents) Lock(ctx context.Context, id string) (*Agent, error) {
	return m.Get(ctx, id)
}

func (m *memAgents) LockByUser(ctx context.Context, userID string) (*Agent, error) {
	return m.GetByUser(ctx, userID)
}

func (m *memAgents) SetReview(_ context.Context, id string, status ApplicationStatus, active bool) error {
	a := m.byID[id]
	a.Status = status
	a.IsActive = active
	if !active {
		a.IsOnline, a.IsAvailable = false, false
	}
	return nil
}

func (m *memAgents) Claim(_ context.Context, agentID, orderID string) error {
	a := m.byID[agentID]
	if a.CurrentOrderID != "" || !a.IsAvailable {
		return ErrAgentTaken
	}
	a.CurrentOrderID = orderID
	a.IsAvailable = false
	return nil
}

func (m *memAgents) Release(_ context.Context, agentID string, earning decimal.Decimal) error {
	a := m.byID[agentID]
	a.CurrentOrderID = ""
	a.IsAvailable = a.IsOnline
	a.TotalDeliveries++
	a.Earnings = a.Earnings.Add(earning)
	return nil
}

func (m *memAgents) SetOnline(_ context.Context, agentID string, online bool) error {
	a := m.byID[agentID]
	a.IsOnline = online
	a.IsAvailable = online && a.CurrentOrderID == ""
	return nil
}

func (m *memAgents) SetLocation(_ context.Context, agentID string, loc Location, at time.Time) error {
	a := m.byID[agentID]
	a.Location = &loc
	a.LocationUpdatedAt = &at
	return nil
}

func (m *memAgents) Nearby(_ context.Context, q NearbyQuery) ([]Nearby, error) {
	var out []Nearby
	for _, a := range m.byID {
		if a.Location == nil || a.Assignable() != nil {
			continue
		}
		// Flat approximation is enough for test fixtures a few km apart.
		dLat := (a.Location.Lat - q.Center.Lat) * 111_320
		dLng := (a.Location.Lng - q.Center.Lng) * 111_320 * math.Cos(q.Center.Lat*math.Pi/180)
		d := math.Hypot(dLat, dLng)
		if d <= q.MaxDistance {
			out = append(out, Nearby{Agent: *a, DistanceMeters: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

type advanceCall struct {
	OrderID string
	AgentID string
	To      order.Status
	OTP     string
}

type mockOrders struct {
	orders     map[string]*order.Order
	dispatched []string
	advanced   []advanceCall
	otp        string
}

func newMockOrders(orders ...*order.Order) *mockOrders {
	m := &mockOrders{orders: map[string]*order.Order{}, otp: "1234"}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *mockOrders) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrders) Dispatch(_ context.Context, orderID, agentID string) (*order.Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	if !order.CanTransition(o.Status, order.StatusOutForDelivery) {
		return nil, &order.TransitionError{From: o.Status, To: order.StatusOutForDelivery}
	}
	o.Status = order.StatusOutForDelivery
	o.DeliveryAgentID = agentID
	m.dispatched = append(m.dispatched, orderID)
	return o, nil
}

func (m *mockOrders) Advance(_ context.Context, orderID, agentID string, to order.Status, otp string) (*order.Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.DeliveryAgentID != agentID {
		return nil, order.ErrNotAssigned
	}
	if !order.CanTransition(o.Status, to) {
		return nil, &order.TransitionError{From: o.Status, To: to}
	}
	if to == order.StatusDelivered && otp != m.otp {
		return nil, order.ErrInvalidOTP
	}
	o.Status = to
	m.advanced = append(m.advanced, advanceCall{OrderID: orderID, AgentID: agentID, To: to, OTP: otp})
	return o, nil
}

type memUsers struct {
	roles map[string]auth.Role
}

func (m *memUsers) SetRole(_ context.Context, id string, role auth.Role) error {
	m.roles[id] = role
	return nil
}

type moved struct {
	OrderID string
	Loc     Location
}

type recordingPublisher struct {
	events []moved
}

func (p *recordingPublisher) AgentMoved(_ context.Context, orderID string, loc Location, _ time.Time) {
	p.events = append(p.events, moved{OrderID: orderID, Loc: loc})
}
