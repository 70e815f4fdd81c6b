package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/auth"
)

// APIKeyHeader carries the key of server-to-server callers.
const APIKeyHeader = "api_key"

// claims are the bearer token claims. The role claim is informational; the
// stored role of the user is authoritative.
type claims struct {
	Role auth.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// resolve verifies the bearer token of r and loads the caller.
func (h *Handler) resolve(r *http.Request) (auth.Principal, error) {
	raw, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	raw = strings.TrimSpace(raw)
	if !found || raw == "" {
		return auth.Principal{}, auth.ErrUnauthenticated
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return h.cfg.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || c.Subject == "" {
		return auth.Principal{}, auth.ErrInvalidToken
	}

	u, err := h.customers.Get(r.Context(), c.Subject)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return auth.Principal{}, auth.ErrInvalidToken
		}
		return auth.Principal{}, errors.Wrap(err, "load user")
	}
	if !u.IsActive {
		return auth.Principal{}, auth.ErrInactiveAccount
	}
	return auth.Principal{UserID: u.ID, Role: u.Role}, nil
}

func withPrincipal(r *http.Request, p auth.Principal) *http.Request {
	ctx := auth.WithPrincipal(r.Context(), p)
	ctx = zctx.With(ctx, zap.String("user_id", p.UserID))
	return r.WithContext(ctx)
}

// authenticate rejects requests without a valid bearer token.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := h.resolve(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		next.ServeHTTP(w, withPrincipal(r, p))
	})
}

// optionalAuth attaches the caller when a valid token is present and lets
// anonymous requests through.
func (h *Handler) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		p, err := h.resolve(r)
		if err != nil {
			zctx.From(r.Context()).Debug("Ignoring credentials", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, withPrincipal(r, p))
	})
}

// requireRole admits principals that satisfy one of roles.
func requireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, found := auth.FromContext(r.Context())
			if !found {
				fail(w, r, auth.ErrUnauthenticated)
				return
			}
			for _, role := range roles {
				if p.Satisfies(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			fail(w, r, auth.ErrForbidden)
		})
	}
}

// requireAPIKey authenticates a request by the HMAC-SHA256 of its API key
// and checks the key was granted scope.
func (h *Handler) requireAPIKey(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := h.checkAPIKey(r.Context(), r.Header.Get(APIKeyHeader))
			if err != nil {
				fail(w, r, err)
				return
			}
			if !info.HasScope(scope) {
				fail(w, r, auth.ErrForbidden)
				return
			}
			ctx := zctx.With(r.Context(), zap.String("api_key", info.Name))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (h *Handler) checkAPIKey(ctx context.Context, key string) (*auth.APIKeyInfo, error) {
	if key == "" {
		return nil, auth.ErrUnknownAPIKey
	}
	hexHash := auth.HashKey(h.cfg.APIKeyPepper, key)
	info, err := h.apikeys.FindByHash(ctx, hexHash)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			return nil, errors.Wrap(err, "find api key")
		}
		return nil, auth.ErrUnknownAPIKey
	}

	// The stored row must match the computed hash byte for byte.
	hash, _ := hex.DecodeString(hexHash)
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, auth.ErrUnknownAPIKey
	}
	return info, nil
}
