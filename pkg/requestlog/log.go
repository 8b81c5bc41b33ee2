package requestlog

import (
	"context"
	"errors"
	"time"

	"apiorch/pkg/models"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultRetention = 7 * 24 * time.Hour

// Sink persists request log entries.
type Sink interface {
	Append(ctx context.Context, entry models.RequestLogEntry) error
}

// Pruner is implemented by sinks that can drop old entries.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Log is the append-only audit trail of dispatch attempts.
type Log struct {
	sinks     []Sink
	clock     clock.Clock
	retention time.Duration
	logger    zerolog.Logger
}

// New creates a log fanning out to sinks.
func New(logger zerolog.Logger, sinks ...Sink) *Log {
	return &Log{
		sinks:     sinks,
		clock:     clock.New(),
		retention: DefaultRetention,
		logger:    logger.With().Str("component", "request_log").Logger(),
	}
}

// WithClock replaces the clock used to stamp entries and compute retention.
func (l *Log) WithClock(clk clock.Clock) *Log {
	l.clock = clk
	return l
}

// WithRetention sets how long entries are kept by Prune.
func (l *Log) WithRetention(d time.Duration) *Log {
	if d > 0 {
		l.retention = d
	}
	return l
}

// Append records one attempt. Sink failures are logged and never returned.
func (l *Log) Append(ctx context.Context, entry models.RequestLogEntry) models.RequestLogEntry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.clock.Now().UTC()
	}

	for _, sink := range l.sinks {
		if err := sink.Append(ctx, entry); err != nil {
			l.logger.Warn().
				Err(err).
				Str("request_id", entry.RequestID).
				Str("endpoint", entry.Endpoint).
				Msg("failed to append request log entry")
		}
	}
	return entry
}

// Prune removes entries older than the retention period from every sink that supports it.
func (l *Log) Prune(ctx context.Context) error {
	cutoff := l.clock.Now().Add(-l.retention)

	var errs []error
	for _, sink := range l.sinks {
		pruner, ok := sink.(Pruner)
		if !ok {
			continue
		}
		removed, err := pruner.Prune(ctx, cutoff)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if removed > 0 {
			l.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("request log pruned")
		}
	}
	return errors.Join(errs...)
}
