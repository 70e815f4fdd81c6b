package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
)

// ErrUnknownAPIKey is returned for missing, unknown or revoked keys.
var ErrUnknownAPIKey = apperr.Unauthorized("invalid API key")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key was granted scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ScopePaymentsWebhook allows posting payment gateway callbacks.
const ScopePaymentsWebhook = "payments:webhook"

// Repository provides lookup of API keys by their HMAC hash. FindByHash
// returns ErrUnknownAPIKey when no active key matches.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex HMAC-SHA256 of a raw API key under pepper. Only
// this hash is stored.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}
