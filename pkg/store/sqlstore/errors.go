package sqlstore

import "errors"

var (
	// ErrEndpointNotFound is returned when no endpoint row matches the given name.
	ErrEndpointNotFound = errors.New("endpoint not found")

	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = errors.New("database error")

	// ErrInvalidSeed is returned when a seed file cannot be decoded.
	ErrInvalidSeed = errors.New("invalid seed file")
)
