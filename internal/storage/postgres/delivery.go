package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/delivery"
)

const (
	agentColumns = `a.id, a.user_id, u.name, u.phone, a.vehicle_type, a.vehicle_number, a.status,
		a.is_active, a.is_online, a.is_available, a.lat, a.lng, a.location_updated_at,
		a.current_order_id, a.total_deliveries, a.rating, a.earnings, a.created_at`

	agentFrom = ` FROM delivery_agents a JOIN users u ON u.id = a.user_id`

	getAgentSQL        = `SELECT ` + agentColumns + agentFrom + ` WHERE a.id = $1`
	getAgentByUserSQL  = `SELECT ` + agentColumns + agentFrom + ` WHERE a.user_id = $1`
	lockAgentSQL       = getAgentSQL + ` FOR UPDATE OF a`
	lockAgentByUserSQL = getAgentByUserSQL + ` FOR UPDATE OF a`
	listAgentsSQL      = `SELECT ` + agentColumns + agentFrom + `
		WHERE $1 = '' OR a.status = $1 ORDER BY a.created_at`

	createAgentSQL = `INSERT INTO delivery_agents (id, user_id, vehicle_type, vehicle_number, status)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`

	setReviewSQL = `UPDATE delivery_agents SET status = $2, is_active = $3,
		is_online = is_online AND $3, is_available = is_available AND $3 WHERE id = $1`

	claimAgentSQL = `UPDATE delivery_agents SET current_order_id = $2, is_available = FALSE
		WHERE id = $1 AND current_order_id IS NULL AND is_available AND is_online AND is_active
			AND status = 'approved'`

	releaseAgentSQL = `UPDATE delivery_agents SET current_order_id = NULL, is_available = is_online,
		total_deliveries = total_deliveries + 1, earnings = earnings + $2 WHERE id = $1`

	setOnlineSQL = `UPDATE delivery_agents SET is_online = $2,
		is_available = $2 AND current_order_id IS NULL WHERE id = $1`

	setLocationSQL = `UPDATE delivery_agents SET lat = $2, lng = $3, location_updated_at = $4 WHERE id = $1`

	// nearbyAgentsSQL ranks assignable agents by great-circle distance.
	nearbyAgentsSQL = `SELECT * FROM (
		SELECT ` + agentColumns + `,
			6371000 * 2 * asin(sqrt(
				power(sin(radians(a.lat - $1) / 2), 2) +
				cos(radians($1)) * cos(radians(a.lat)) * power(sin(radians(a.lng - $2) / 2), 2)
			)) AS distance` + agentFrom + `
		WHERE a.status = 'approved' AND a.is_active AND a.is_online AND a.is_available
			AND a.current_order_id IS NULL AND a.lat IS NOT NULL AND a.lng IS NOT NULL
	) nearby WHERE distance <= $3 ORDER BY distance LIMIT $4`
)

var _ delivery.Repository = (*AgentRepository)(nil)

// AgentRepository implements delivery.Repository backed by PostgreSQL.
type AgentRepository struct {
	pool *pgxpool.Pool
}

func NewAgentRepository(pool *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{pool: pool}
}

func (r *AgentRepository) Create(ctx context.Context, a *delivery.Agent) error {
	err := conn(ctx, r.pool).QueryRow(ctx, createAgentSQL,
		a.ID, a.UserID, a.VehicleType, a.VehicleNumber, string(a.Status),
	).Scan(&a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return delivery.ErrAlreadyApplied
		}
		return errors.Wrapf(err, "creating agent for user %q", a.UserID)
	}
	return nil
}

func (r *AgentRepository) Get(ctx context.Context, id string) (*delivery.Agent, error) {
	return r.getOne(ctx, getAgentSQL, id)
}

func (r *AgentRepository) GetByUser(ctx context.Context, userID string) (*delivery.Agent, error) {
	return r.getOne(ctx, getAgentByUserSQL, userID)
}

func (r *AgentRepository) Lock(ctx context.Context, id string) (*delivery.Agent, error) {
	return r.getOne(ctx, lockAgentSQL, id)
}

func (r *AgentRepository) LockByUser(ctx context.Context, userID string) (*delivery.Agent, error) {
	return r.getOne(ctx, lockAgentByUserSQL, userID)
}

func (r *AgentRepository) getOne(ctx context.Context, sql, key string) (*delivery.Agent, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, key)
	if err != nil {
		return nil, errors.Wrapf(err, "getting agent %q", key)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAgent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting agent %q", key)
	}
	return &a, nil
}

func (r *AgentRepository) List(ctx context.Context, status delivery.ApplicationStatus) ([]delivery.Agent, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listAgentsSQL, string(status))
	if err != nil {
		return nil, errors.Wrap(err, "listing agents")
	}
	return pgx.CollectRows(rows, scanAgent)
}

func (r *AgentRepository) SetReview(ctx context.Context, id string, status delivery.ApplicationStatus, active bool) error {
	return r.exec(ctx, id, setReviewSQL, id, string(status), active)
}

// Claim binds the order to the agent only while the agent is still free.
func (r *AgentRepository) Claim(ctx context.Context, agentID, orderID string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, claimAgentSQL, agentID, orderID)
	if err != nil {
		return errors.Wrapf(err, "claiming agent %q", agentID)
	}
	if tag.RowsAffected() == 0 {
		return delivery.ErrAgentTaken
	}
	return nil
}

func (r *AgentRepository) Release(ctx context.Context, agentID string, earning decimal.Decimal) error {
	return r.exec(ctx, agentID, releaseAgentSQL, agentID, earning)
}

func (r *AgentRepository) SetOnline(ctx context.Context, agentID string, online bool) error {
	return r.exec(ctx, agentID, setOnlineSQL, agentID, online)
}

func (r *AgentRepository) SetLocation(ctx context.Context, agentID string, loc delivery.Location, at time.Time) error {
	return r.exec(ctx, agentID, setLocationSQL, agentID, loc.Lat, loc.Lng, at)
}

func (r *AgentRepository) exec(ctx context.Context, agentID, sql string, args ...any) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, sql, args...)
	if err != nil {
		return errors.Wrapf(err, "updating agent %q", agentID)
	}
	if tag.RowsAffected() == 0 {
		return delivery.ErrNotFound
	}
	return nil
}

// Nearby returns assignable agents within q.MaxDistance meters, closest
// first.
func (r *AgentRepository) Nearby(ctx context.Context, q delivery.NearbyQuery) ([]delivery.Nearby, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, nearbyAgentsSQL,
		q.Center.Lat, q.Center.Lng, q.MaxDistance, q.Limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "finding nearby agents")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (delivery.Nearby, error) {
		var n delivery.Nearby
		err := scanAgentInto(row, &n.Agent, &n.DistanceMeters)
		return n, err
	})
}

func scanAgent(row pgx.CollectableRow) (delivery.Agent, error) {
	var a delivery.Agent
	err := scanAgentInto(row, &a)
	return a, err
}

func scanAgentInto(row pgx.CollectableRow, a *delivery.Agent, extra ...any) error {
	var (
		lat, lng *float64
		orderID  *string
	)
	dest := []any{
		&a.ID, &a.UserID, &a.Name, &a.Phone, &a.VehicleType, &a.VehicleNumber, &a.Status,
		&a.IsActive, &a.IsOnline, &a.IsAvailable, &lat, &lng, &a.LocationUpdatedAt,
		&orderID, &a.TotalDeliveries, &a.Rating, &a.Earnings, &a.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	if lat != nil && lng != nil {
		a.Location = &delivery.Location{Lat: *lat, Lng: *lng}
	}
	a.CurrentOrderID = deref(orderID)
	return nil
}
