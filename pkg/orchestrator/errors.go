package orchestrator

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoHealthyEndpoint is returned when no eligible candidate appeared within the no-candidate wait budget.
	ErrNoHealthyEndpoint = errors.New("no healthy endpoint available")

	// ErrAllRetriesExhausted is returned when every attempted endpoint failed.
	ErrAllRetriesExhausted = errors.New("all retries exhausted")

	// ErrDispatchFailed wraps transport-level failures of a single attempt.
	ErrDispatchFailed = errors.New("dispatch failed")

	// ErrShutdown is returned for calls made after Shutdown.
	ErrShutdown = errors.New("orchestrator is shut down")
)

// StatusError is a dispatch answered with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("endpoint %s returned %d %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Unwrap() error {
	return ErrDispatchFailed
}

// RequestError is the terminal failure of one logical request.
type RequestError struct {
	Kind      error
	RequestID string
	Attempts  int
	Tried     []string
	Cause     error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	if len(e.Tried) > 0 {
		fmt.Fprintf(&b, " (tried %s)", strings.Join(e.Tried, ", "))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *RequestError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
