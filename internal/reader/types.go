package reader

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// provisioningTokenBytes is the entropy of a freshly issued token.
const provisioningTokenBytes = 24

// Reader is a registered physical appliance.
//
// TokenHash is the SHA-256 of the provisioning token; the plaintext token
// is returned exactly once at provisioning time and never stored.
type Reader struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	TokenHash       string     `json:"-"`
	FirmwareVersion string     `json:"firmware_version,omitempty"`
	IsActive        bool       `json:"is_active"`
	FirstSeenAt     *time.Time `json:"first_seen_at,omitempty"`
	LastSeenAt      *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewProvisioningToken generates a random token and its storage hash.
// The token is URL-safe hex; show it to the operator once and keep only
// the hash.
func NewProvisioningToken() (token, hash string, err error) {
	raw := make([]byte, provisioningTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	token = hex.EncodeToString(raw)
	return token, HashToken(token), nil
}

// HashToken returns the SHA-256 hex digest of a provisioning token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyToken reports whether the presented token matches the reader's
// stored hash, in constant time.
func (r *Reader) VerifyToken(token string) bool {
	presented := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(r.TokenHash)) == 1
}
