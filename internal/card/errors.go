package card

import "errors"

// Domain errors for the card package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, card.ErrCardNotFound) {
//	    // handle not found case
//	}
var (
	// ErrCardNotFound is returned when a card UID or ID does not exist.
	ErrCardNotFound = errors.New("card: not found")

	// ErrCardExists is returned when creating a card with a UID that already exists.
	ErrCardExists = errors.New("card: already exists")

	// ErrCardDisabled is returned when an operation requires an enabled card.
	ErrCardDisabled = errors.New("card: disabled")

	// ErrInvalidUID is returned when a card UID fails validation.
	ErrInvalidUID = errors.New("card: invalid uid")

	// ErrForbidden is returned when the requesting user lacks the rights
	// to perform the operation on the card.
	ErrForbidden = errors.New("card: forbidden")
)
