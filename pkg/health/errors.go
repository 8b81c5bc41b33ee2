package health

import (
	"errors"
	"net/http"
)

var (
	// ErrUnexpectedStatus is returned for probes answered with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected probe status")
	// ErrProbeFailed marks a probe that could not reach the endpoint.
	ErrProbeFailed = errors.New("probe failed")
)

// StatusError records the status code of a failed probe.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return "probe returned status " + http.StatusText(e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}
