package resource

import "errors"

// Domain errors for the resource package.
var (
	// ErrResourceNotFound is returned when a resource ID does not exist.
	ErrResourceNotFound = errors.New("resource: not found")

	// ErrResourceExists is returned when creating a resource with an ID
	// that already exists.
	ErrResourceExists = errors.New("resource: already exists")

	// ErrNoActiveSession is returned when ending a session on a resource
	// that has none running.
	ErrNoActiveSession = errors.New("resource: no active session")

	// ErrNotAttached is returned when detaching a reader that is not
	// attached to the resource.
	ErrNotAttached = errors.New("resource: not attached")
)
