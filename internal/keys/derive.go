package keys

import (
	"crypto/aes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aead/cmac"
)

// Key sizing and slot constants.
const (
	// KeySize is the length of a derived application key in bytes (AES-128).
	KeySize = 16

	// MaxKeySlot is the highest addressable key slot. Matches the 14
	// application keys (0-13) of a DESFire-style secure element.
	MaxKeySlot = 13

	// minUIDBytes and maxUIDBytes bound ISO 14443 UID lengths
	// (4-byte single, 7-byte double, 10-byte triple size).
	minUIDBytes = 4
	maxUIDBytes = 10

	// diversificationPrefix is the AN10922 constant prepended to the
	// diversification input for AES-128 derivation.
	diversificationPrefix = 0x01
)

// Key is a derived application key.
//
// Key implements fmt.Stringer with a redacted representation so key material
// cannot leak through logging or %v formatting. Use Hex() at the protocol
// boundary, and nowhere else.
type Key [KeySize]byte

// Hex returns the key as lowercase hexadecimal text. This is the only place
// derived key material crosses a serialization boundary.
func (k Key) Hex() string {
	return hex.EncodeToString(k[:])
}

// String implements fmt.Stringer. It never reveals key bytes.
func (k Key) String() string {
	return "keys.Key(redacted)"
}

// Service derives per-card application keys from the process-wide master
// secret. It holds no mutable state; a single instance is shared by all
// reader connections.
type Service struct {
	master []byte
}

// New creates a key derivation service from the decoded master secret.
//
// Returns ErrInvalidMasterSecret if the secret is not exactly 16 bytes.
// Callers treat that as fatal at startup, never per-call.
func New(masterSecret []byte) (*Service, error) {
	if len(masterSecret) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidMasterSecret, len(masterSecret))
	}
	master := make([]byte, KeySize)
	copy(master, masterSecret)
	return &Service{master: master}, nil
}

// DeriveKey derives the application key for a card and key slot.
//
// The derivation is AES-128 CMAC over the AN10922 diversification input
// (0x01 || UID bytes || slot), keyed with the master secret. It is
// deterministic: the same (master, UID, slot) always yields the same key,
// and distinct slots on the same card yield computationally independent keys.
//
// Parameters:
//   - cardUID: the card's hardware UID as hex text, case-insensitive
//   - slot: key slot number, 0 through MaxKeySlot
//
// Returns:
//   - Key: the 16-byte diversified key
//   - error: ErrInvalidUID or ErrInvalidSlot on bad input
func (s *Service) DeriveKey(cardUID string, slot int) (Key, error) {
	var key Key

	uid, err := normalizeUID(cardUID)
	if err != nil {
		return key, err
	}
	if slot < 0 || slot > MaxKeySlot {
		return key, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}

	block, err := aes.NewCipher(s.master)
	if err != nil {
		// Master length is checked in New; aes.NewCipher cannot fail here.
		return key, fmt.Errorf("keys: cipher init: %w", err)
	}

	input := make([]byte, 0, 2+len(uid))
	input = append(input, diversificationPrefix)
	input = append(input, uid...)
	input = append(input, byte(slot))

	mac, err := cmac.Sum(input, block, block.BlockSize())
	if err != nil {
		return key, fmt.Errorf("keys: cmac: %w", err)
	}

	copy(key[:], mac)
	return key, nil
}

// normalizeUID decodes a hex UID string, accepting upper or lower case,
// and validates its length against ISO 14443 identifier sizes.
func normalizeUID(cardUID string) ([]byte, error) {
	uid, err := hex.DecodeString(strings.ToLower(cardUID))
	if err != nil {
		return nil, fmt.Errorf("%w: not hexadecimal", ErrInvalidUID)
	}
	if len(uid) < minUIDBytes || len(uid) > maxUIDBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidUID, len(uid))
	}
	return uid, nil
}
