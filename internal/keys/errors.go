package keys

import "errors"

// Domain errors for the keys package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidMasterSecret is returned by New when the master secret is
	// not exactly 16 bytes. This is a startup configuration error.
	ErrInvalidMasterSecret = errors.New("keys: master secret must be 16 bytes")

	// ErrInvalidUID is returned when a card UID is not valid hexadecimal
	// or is outside the 4-10 byte range of ISO 14443 identifiers.
	ErrInvalidUID = errors.New("keys: invalid card uid")

	// ErrInvalidSlot is returned when a key slot is outside the valid range.
	ErrInvalidSlot = errors.New("keys: invalid key slot")
)
