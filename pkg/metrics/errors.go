package metrics

import "errors"

var (
	// ErrSinkFailed wraps failures reported by a state sink during sync.
	ErrSinkFailed = errors.New("state sink failed")
	// ErrInvalidSchedule is returned for cron specs that do not parse.
	ErrInvalidSchedule = errors.New("invalid schedule")
)
