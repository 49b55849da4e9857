package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/shukshop/storefront/internal/domain/auth"
)

// APIKeyHeader carries the back-office API key.
const APIKeyHeader = "api_key"

// ErrUnauthorized is returned for any authentication failure. The cause is
// deliberately not distinguished on the wire.
var ErrUnauthorized = errors.New("unauthorized")

// Security authenticates admin requests via HMAC-SHA256 hashed API keys.
// Raw keys are never stored; the database holds only peppered hashes.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity creates a Security with the given key repository and HMAC
// pepper.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{apikeys: apikeys, pepper: pepper}
}

// HashKey computes the peppered HMAC-SHA256 hex digest of a raw API key.
// Used both for lookups here and for seeding keys.
func (s *Security) HashKey(rawKey string) string {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(rawKey))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate validates a raw API key and returns its identity. The stored
// hash is re-compared in constant time so a stale or wrong repository row
// cannot authenticate.
func (s *Security) Authenticate(ctx context.Context, rawKey string) (*auth.APIKeyInfo, error) {
	if rawKey == "" {
		return nil, ErrUnauthorized
	}

	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(rawKey))
	hash := mac.Sum(nil)

	info, err := s.apikeys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		return nil, ErrUnauthorized
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, ErrUnauthorized
	}
	return info, nil
}

// requireAdmin wraps a handler with API key authentication and the admin
// scope check.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := h.security.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !info.HasScope("admin") {
			writeError(w, http.StatusForbidden, "insufficient scope")
			return
		}
		next(w, r)
	}
}
