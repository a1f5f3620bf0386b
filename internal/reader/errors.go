package reader

import "errors"

// Domain errors for the reader package.
var (
	// ErrReaderNotFound is returned when a reader ID does not exist.
	ErrReaderNotFound = errors.New("reader: not found")

	// ErrReaderExists is returned when creating a reader with an ID that
	// already exists.
	ErrReaderExists = errors.New("reader: already exists")

	// ErrReaderInactive is returned when a deactivated reader tries to
	// authenticate.
	ErrReaderInactive = errors.New("reader: inactive")

	// ErrInvalidToken is returned when a reader presents a token that
	// does not match its stored hash.
	ErrInvalidToken = errors.New("reader: invalid token")

	// ErrNoEnrollment is returned when enrollment is requested for a
	// reader that is not connected.
	ErrNoEnrollment = errors.New("reader: no enrollment possible")
)
