// Package auth holds the authenticated principal and its roles.
package auth

import (
	"context"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
)

// Role is the access level of an account.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleDelivery   Role = "delivery"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleDelivery, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

var (
	ErrUnauthenticated = apperr.Unauthorized("authentication required")
	ErrInvalidToken    = apperr.Unauthorized("invalid or expired token")
	ErrInactiveAccount = apperr.Unauthorized("account is deactivated")
	ErrForbidden       = apperr.Forbidden("insufficient permissions")
)

// Principal is the caller resolved from a bearer token.
type Principal struct {
	UserID string
	Role   Role
}

// Satisfies reports whether the principal may act with role want.
// Superadmins satisfy admin checks; every other role matches exactly.
func (p Principal) Satisfies(want Role) bool {
	if p.Role == want {
		return true
	}
	return want == RoleAdmin && p.Role == RoleSuperAdmin
}

// IsAdmin reports whether the principal has admin rights.
func (p Principal) IsAdmin() bool { return p.Satisfies(RoleAdmin) }

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
