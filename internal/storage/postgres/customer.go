package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krishna-marketing/grocer/internal/domain/auth"
	"github.com/krishna-marketing/grocer/internal/domain/customer"
)

const (
	getUserSQL = `SELECT id, name, email, phone, role, is_active, loyalty_points, created_at
		FROM users WHERE id = $1`

	setRoleSQL = `UPDATE users SET role = $2 WHERE id = $1`

	addressColumns = `id, user_id, label, line1, line2, city, state, pincode, phone, is_default, created_at`

	createAddressSQL = `INSERT INTO addresses (id, user_id, label, line1, line2, city, state, pincode,
		phone, is_default) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING created_at`

	listAddressesSQL = `SELECT ` + addressColumns + ` FROM addresses WHERE user_id = $1
		ORDER BY is_default DESC, created_at`

	getAddressSQL = `SELECT ` + addressColumns + ` FROM addresses WHERE user_id = $1 AND id = $2`

	clearDefaultAddressSQL = `UPDATE addresses SET is_default = FALSE WHERE user_id = $1 AND is_default`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

func (r *CustomerRepository) Get(ctx context.Context, id string) (*customer.Customer, error) {
	var c customer.Customer
	err := conn(ctx, r.pool).QueryRow(ctx, getUserSQL, id).Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.Role, &c.IsActive, &c.LoyaltyPoints, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting user %q", id)
	}
	return &c, nil
}

func (r *CustomerRepository) SetRole(ctx context.Context, id string, role auth.Role) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setRoleSQL, id, string(role))
	if err != nil {
		return errors.Wrapf(err, "setting role of %q", id)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

func (r *CustomerRepository) CreateAddress(ctx context.Context, a *customer.Address) error {
	err := conn(ctx, r.pool).QueryRow(ctx, createAddressSQL,
		a.ID, a.UserID, a.Label, a.Line1, a.Line2, a.City, a.State, a.Pincode, a.Phone, a.IsDefault,
	).Scan(&a.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "creating address for %q", a.UserID)
	}
	return nil
}

func (r *CustomerRepository) ListAddresses(ctx context.Context, userID string) ([]customer.Address, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listAddressesSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing addresses of %q", userID)
	}
	return pgx.CollectRows(rows, scanAddress)
}

func (r *CustomerRepository) GetAddress(ctx context.Context, userID, addressID string) (*customer.Address, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getAddressSQL, userID, addressID)
	if err != nil {
		return nil, errors.Wrapf(err, "getting address %q", addressID)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrAddressNotFound
		}
		return nil, errors.Wrapf(err, "getting address %q", addressID)
	}
	return &a, nil
}

func (r *CustomerRepository) ClearDefaultAddress(ctx context.Context, userID string) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, clearDefaultAddressSQL, userID); err != nil {
		return errors.Wrapf(err, "clearing default address of %q", userID)
	}
	return nil
}

func scanAddress(row pgx.CollectableRow) (customer.Address, error) {
	var a customer.Address
	err := row.Scan(
		&a.ID, &a.UserID, &a.Label, &a.Line1, &a.Line2, &a.City, &a.State, &a.Pincode,
		&a.Phone, &a.IsDefault, &a.CreatedAt,
	)
	return a, err
}

const upsertUserSQL = `INSERT INTO users (id, name, email, phone, role, is_active)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone,
		role = EXCLUDED.role, is_active = EXCLUDED.is_active
	RETURNING id, loyalty_points, created_at`

// UpsertUser creates or refreshes an account keyed by email. Accounts are
// provisioned outside the API, so only tooling calls this.
func (r *CustomerRepository) UpsertUser(ctx context.Context, c *customer.Customer) error {
	err := conn(ctx, r.pool).QueryRow(ctx, upsertUserSQL,
		c.ID, c.Name, c.Email, c.Phone, string(c.Role), c.IsActive,
	).Scan(&c.ID, &c.LoyaltyPoints, &c.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "saving user %q", c.Email)
	}
	return nil
}
