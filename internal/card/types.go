package card

import (
	"encoding/hex"
	"strings"
	"time"
)

// UID length bounds in bytes. Covers single (4), double (7) and
// triple (10) size NFC UIDs.
const (
	minUIDBytes = 4
	maxUIDBytes = 10
)

// Card represents a physical NFC card registered in the directory.
//
// The hardware UID is the card's identity: it is unique across the
// directory and never changes. Cards are disabled rather than deleted so
// that historical usage sessions keep a valid reference.
type Card struct {
	// ID is the internal identifier ("card-" prefix + short UUID).
	ID string `json:"id"`

	// UID is the card's hardware UID as lowercase hex, without separators.
	UID string `json:"uid"`

	// OwnerUserID is the user the card belongs to.
	OwnerUserID string `json:"owner_user_id"`

	// Label is an optional human-readable name ("Alice's fob").
	Label string `json:"label,omitempty"`

	// IsDisabled blocks the card from starting sessions when true.
	IsDisabled bool `json:"is_disabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Enabled reports whether the card may start sessions.
func (c *Card) Enabled() bool {
	return !c.IsDisabled
}

// NormalizeUID validates a hardware UID and returns its canonical form:
// lowercase hex with no separators. Readers report UIDs in varying case
// and sometimes with colon separators; the directory stores one form only.
func NormalizeUID(uid string) (string, error) {
	cleaned := strings.ToLower(strings.ReplaceAll(uid, ":", ""))

	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return "", ErrInvalidUID
	}
	if len(raw) < minUIDBytes || len(raw) > maxUIDBytes {
		return "", ErrInvalidUID
	}

	return cleaned, nil
}
