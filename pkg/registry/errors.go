package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrEndpointNotFound is returned when no active endpoint has the requested name.
	ErrEndpointNotFound = errors.New("endpoint not found")

	// ErrInvalidEndpoint is wrapped by every ConfigurationError.
	ErrInvalidEndpoint = errors.New("invalid endpoint configuration")

	// ErrStoreUnavailable is returned when the backing store cannot be read.
	ErrStoreUnavailable = errors.New("endpoint store unavailable")
)

// ConfigurationError reports a malformed endpoint record found while loading.
type ConfigurationError struct {
	Endpoint string
	Field    string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("endpoint %q: %s %s", e.Endpoint, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidEndpoint
}
