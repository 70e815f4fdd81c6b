// Package customer manages user accounts and their delivery addresses.
package customer

import (
	"context"
	"time"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/auth"
)

var (
	ErrNotFound        = apperr.NotFound("user not found")
	ErrAddressNotFound = apperr.NotFound("address not found")
)

// Customer is a registered account. LoyaltyPoints mirrors the ledger balance.
type Customer struct {
	ID            string
	Name          string
	Email         string
	Phone         string
	Role          auth.Role
	IsActive      bool
	LoyaltyPoints int64
	CreatedAt     time.Time
}

// Address is a saved delivery address owned by a single user.
type Address struct {
	ID        string
	UserID    string
	Label     string
	Line1     string
	Line2     string
	City      string
	State     string
	Pincode   string
	Phone     string
	IsDefault bool
	CreatedAt time.Time
}

// Repository persists customers and addresses.
type Repository interface {
	Get(ctx context.Context, id string) (*Customer, error)
	SetRole(ctx context.Context, id string, role auth.Role) error

	CreateAddress(ctx context.Context, a *Address) error
	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	// GetAddress returns ErrAddressNotFound when the address does not exist
	// or belongs to another user.
	GetAddress(ctx context.Context, userID, addressID string) (*Address, error)
	ClearDefaultAddress(ctx context.Context, userID string) error
}
