package usage

import (
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"

	"skycheck/internal/types"
)

// HeaderAPIKey carries the caller's API key.
const HeaderAPIKey = "X-API-Key"

// hashBytes is the truncated digest length; 16 bytes gives 32 hex characters.
const hashBytes = 16

// Identity is the resolved caller of a metered request. Identifier is the raw
// key or address and must never be logged or stored; use Hash.
type Identity struct {
	Identifier string
	PlanID     types.PlanID
	Source     types.CallerSource
}

// Hash returns the storage-safe digest of the identifier.
func (id Identity) Hash() string {
	return HashIdentifier(id.Identifier)
}

// Caller converts the identity into the context-safe form.
func (id Identity) Caller() types.Caller {
	return types.Caller{HashedID: id.Hash(), Plan: id.PlanID, Source: id.Source}
}

// HashIdentifier returns BLAKE2b-256 of s truncated to 16 bytes, hex encoded.
func HashIdentifier(s string) string {
	sum := blake2b.Sum256([]byte(s))
	return hex.EncodeToString(sum[:hashBytes])
}

// extractAPIKey reads the key from X-API-Key, then from a Bearer token.
func extractAPIKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); k != "" {
		return k
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// extractClientIP returns the first X-Forwarded-For hop, then X-Real-IP,
// then RemoteAddr without its port.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr may not have a port (e.g., in tests).
		return r.RemoteAddr
	}
	return ip
}
