package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/auth"
	"github.com/krishna-marketing/grocer/internal/domain/order"
	"github.com/krishna-marketing/grocer/internal/domain/txn"
)

type fixture struct {
	agents    *memAgents
	orders    *mockOrders
	users     *memUsers
	publisher *recordingPublisher
	svc       *Service
}

func newFixture(t *testing.T, agents []*Agent, orders ...*order.Order) *fixture {
	t.Helper()
	f := &fixture{
		agents:    newMemAgents(agents...),
		orders:    newMockOrders(orders...),
		users:     &memUsers{roles: map[string]auth.Role{}},
		publisher: &recordingPublisher{},
	}
	f.svc = NewService(f.agents, f.orders, f.users, f.publisher, txn.Inline)
	f.svc.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return f
}

func onlineAgent(id, userID string) *Agent {
	return &Agent{
		ID:          id,
		UserID:      userID,
		Status:      ApplicationApproved,
		IsActive:    true,
		IsOnline:    true,
		IsAvailable: true,
		Earnings:    decimal.Zero,
	}
}

func preparing(id string) *order.Order {
	return &order.Order{ID: id, Number: "KM" + id, Status: order.StatusPreparing}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		req     ApplyRequest
		wantErr string
	}{
		{name: "motorcycle", req: ApplyRequest{VehicleType: "Motorcycle", VehicleNumber: "mh12ab1234"}},
		{name: "bicycle without number", req: ApplyRequest{VehicleType: "bicycle"}},
		{name: "unknown vehicle", req: ApplyRequest{VehicleType: "truck"}, wantErr: "vehicle type must be"},
		{name: "missing number", req: ApplyRequest{VehicleType: "scooter"}, wantErr: "vehicle number is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			a, err := f.svc.Apply(context.Background(), "u1", tt.req)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ApplicationPending, a.Status)
			assert.False(t, a.IsActive)
			assert.NotEmpty(t, a.ID)
		})
	}
}

func TestApply_Twice(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, "u1", ApplyRequest{VehicleType: "bicycle"})
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, "u1", ApplyRequest{VehicleType: "bicycle"})
	assert.ErrorIs(t, err, ErrAlreadyApplied)
}

func TestReview(t *testing.T) {
	ctx := context.Background()

	t.Run("approve grants delivery role", func(t *testing.T) {
		f := newFixture(t, []*Agent{{ID: "a1", UserID: "u1", Status: ApplicationPending}})
		a, err := f.svc.Review(ctx, "a1", ApplicationApproved)
		require.NoError(t, err)
		assert.Equal(t, ApplicationApproved, a.Status)
		assert.True(t, a.IsActive)
		assert.Equal(t, auth.RoleDelivery, f.users.roles["u1"])
	})

	t.Run("reject revokes", func(t *testing.T) {
		f := newFixture(t, []*Agent{onlineAgent("a1", "u1")})
		a, err := f.svc.Review(ctx, "a1", ApplicationRejected)
		require.NoError(t, err)
		assert.False(t, a.IsActive)
		assert.False(t, f.agents.byID["a1"].IsOnline)
		assert.Equal(t, auth.RoleCustomer, f.users.roles["u1"])
	})

	t.Run("invalid decision", func(t *testing.T) {
		f := newFixture(t, []*Agent{{ID: "a1", UserID: "u1"}})
		_, err := f.svc.Review(ctx, "a1", ApplicationPending)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("unknown agent", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.svc.Review(ctx, "missing", ApplicationApproved)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAssignAgent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []*Agent{onlineAgent("a1", "u1")}, preparing("o1"), preparing("o2"))

	o, err := f.svc.AssignAgent(ctx, "o1", "a1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusOutForDelivery, o.Status)
	assert.Equal(t, "a1", o.DeliveryAgentID)
	assert.Equal(t, "o1", f.agents.byID["a1"].CurrentOrderID)
	assert.False(t, f.agents.byID["a1"].IsAvailable)

	// The same agent cannot carry a second order.
	_, err = f.svc.AssignAgent(ctx, "o2", "a1")
	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "delivery partner is already on a delivery", unavailable.Error())
	assert.Equal(t, order.StatusPreparing, f.orders.orders["o2"].Status)
}

func TestAssignAgent_Rejections(t *testing.T) {
	offline := onlineAgent("off", "u2")
	offline.IsOnline, offline.IsAvailable = false, false
	pending := onlineAgent("pend", "u3")
	pending.Status = ApplicationPending

	tests := []struct {
		name    string
		orderID string
		agentID string
		wantMsg string
	}{
		{name: "offline agent", orderID: "o1", agentID: "off", wantMsg: "delivery partner is offline"},
		{name: "pending agent", orderID: "o1", agentID: "pend", wantMsg: "delivery partner is not approved"},
		{name: "order not preparing", orderID: "placed", agentID: "a1", wantMsg: "cannot change order status from placed to out_for_delivery"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			placed := &order.Order{ID: "placed", Status: order.StatusPlaced}
			f := newFixture(t,
				[]*Agent{onlineAgent("a1", "u1"), offline, pending},
				preparing("o1"), placed,
			)
			_, err := f.svc.AssignAgent(context.Background(), tt.orderID, tt.agentID)
			require.Error(t, err)
			assert.Equal(t, tt.wantMsg, apperr.MessageOf(err))
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Empty(t, f.agents.byID[tt.agentID].CurrentOrderID)
		})
	}
}

func TestDeliveryFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []*Agent{onlineAgent("a1", "u1")}, preparing("o1"))

	_, err := f.svc.AssignAgent(ctx, "o1", "a1")
	require.NoError(t, err)

	for _, s := range []order.Status{order.StatusPickedUp, order.StatusArrived} {
		o, err := f.svc.UpdateStatus(ctx, "u1", "o1", s, "")
		require.NoError(t, err)
		assert.Equal(t, s, o.Status)
	}

	_, err = f.svc.CompleteDelivery(ctx, "u1", "0000")
	assert.ErrorIs(t, err, order.ErrInvalidOTP)
	assert.Equal(t, "o1", f.agents.byID["a1"].CurrentOrderID)

	o, err := f.svc.UpdateStatus(ctx, "u1", "o1", order.StatusDelivered, "1234")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, o.Status)

	a := f.agents.byID["a1"]
	assert.Empty(t, a.CurrentOrderID)
	assert.True(t, a.IsAvailable)
	assert.Equal(t, 1, a.TotalDeliveries)
	assert.True(t, a.Earnings.Equal(EarningPerDelivery))

	_, err = f.svc.CompleteDelivery(ctx, "u1", "1234")
	assert.ErrorIs(t, err, ErrNoCurrentOrder)
}

func TestUpdateStatus_Guards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []*Agent{onlineAgent("a1", "u1"), onlineAgent("a2", "u2")}, preparing("o1"))
	_, err := f.svc.AssignAgent(ctx, "o1", "a1")
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, "u2", "o1", order.StatusPickedUp, "")
	assert.ErrorIs(t, err, order.ErrNotAssigned)

	_, err = f.svc.UpdateStatus(ctx, "u2", "o1", order.StatusDelivered, "1234")
	assert.ErrorIs(t, err, ErrNotCurrentOrder)

	_, err = f.svc.UpdateStatus(ctx, "nobody", "o1", order.StatusPickedUp, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggleAvailability(t *testing.T) {
	ctx := context.Background()
	busy := onlineAgent("a2", "u2")
	busy.CurrentOrderID = "o9"
	busy.IsAvailable = false
	pending := &Agent{ID: "a3", UserID: "u3", Status: ApplicationPending}
	f := newFixture(t, []*Agent{onlineAgent("a1", "u1"), busy, pending})

	a, err := f.svc.ToggleAvailability(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, a.IsOnline)
	assert.False(t, a.IsAvailable)

	a, err = f.svc.ToggleAvailability(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, a.IsOnline)
	assert.True(t, a.IsAvailable)

	// Going offline and back while carrying an order keeps the agent busy.
	_, err = f.svc.ToggleAvailability(ctx, "u2")
	require.NoError(t, err)
	a, err = f.svc.ToggleAvailability(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, a.IsOnline)
	assert.False(t, a.IsAvailable)

	_, err = f.svc.ToggleAvailability(ctx, "u3")
	assert.ErrorIs(t, err, ErrNotApproved)
}

func TestUpdateLocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []*Agent{onlineAgent("a1", "u1")}, preparing("o1"))

	loc := Location{Lat: 19.076, Lng: 72.8777}
	a, err := f.svc.UpdateLocation(ctx, "u1", loc)
	require.NoError(t, err)
	require.NotNil(t, a.Location)
	assert.Equal(t, loc, *f.agents.byID["a1"].Location)
	assert.Empty(t, f.publisher.events, "idle agent movement is not broadcast")

	_, err = f.svc.AssignAgent(ctx, "o1", "a1")
	require.NoError(t, err)
	_, err = f.svc.UpdateLocation(ctx, "u1", loc)
	require.NoError(t, err)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "o1", f.publisher.events[0].OrderID)

	_, err = f.svc.UpdateLocation(ctx, "u1", Location{Lat: 91, Lng: 0})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestNearby(t *testing.T) {
	at := func(id string, lat, lng float64) *Agent {
		a := onlineAgent(id, "u-"+id)
		a.Location = &Location{Lat: lat, Lng: lng}
		return a
	}
	busy := at("busy", 19.0761, 72.8778)
	busy.CurrentOrderID = "o1"
	busy.IsAvailable = false

	f := newFixture(t, []*Agent{
		at("near", 19.0770, 72.8780),
		at("mid", 19.0900, 72.8777),
		at("far", 19.5000, 72.8777),
		busy,
	})

	list, err := f.svc.Nearby(context.Background(), NearbyQuery{Center: Location{Lat: 19.076, Lng: 72.8777}})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "near", list[0].ID)
	assert.Equal(t, "mid", list[1].ID)
	assert.Less(t, list[0].DistanceMeters, list[1].DistanceMeters)

	_, err = f.svc.Nearby(context.Background(), NearbyQuery{Center: Location{Lat: 0, Lng: 200}})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCurrentOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []*Agent{onlineAgent("a1", "u1")}, preparing("o1"))

	_, err := f.svc.CurrentOrder(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoCurrentOrder)

	_, err = f.svc.AssignAgent(ctx, "o1", "a1")
	require.NoError(t, err)
	o, err := f.svc.CurrentOrder(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)
}
