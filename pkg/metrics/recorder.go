package metrics

import (
	"context"
	"errors"
	"fmt"

	"apiorch/pkg/models"
	"apiorch/pkg/ratelimit"
	"apiorch/pkg/registry"

	"github.com/rs/zerolog"
)

// StateSink receives the periodic runtime state of every endpoint.
type StateSink interface {
	SaveState(ctx context.Context, snapshots []models.StateSnapshot) error
}

// Recorder updates per-endpoint counters after each dispatch and synchronizes them out.
type Recorder struct {
	registry *registry.Registry
	limiter  *ratelimit.Limiter
	sinks    []StateSink
	logger   zerolog.Logger
}

// NewRecorder creates a recorder. limiter may be nil, in which case usage counters are not mirrored.
func NewRecorder(reg *registry.Registry, limiter *ratelimit.Limiter, logger zerolog.Logger, sinks ...StateSink) *Recorder {
	return &Recorder{
		registry: reg,
		limiter:  limiter,
		sinks:    sinks,
		logger:   logger.With().Str("component", "metrics").Logger(),
	}
}

// Update records one dispatch outcome. A positive latency replaces the average response time.
func (r *Recorder) Update(name string, success bool, latencyMs float64) error {
	return r.registry.Update(name, func(ep *models.Endpoint) {
		ep.TotalRequests++
		if !success {
			ep.TotalErrors++
		}
		ep.SuccessRate = successRate(ep.TotalRequests, ep.TotalErrors)
		if latencyMs > 0 {
			ep.AverageResponseTime = latencyMs
		}
	})
}

func successRate(total, errs int64) float64 {
	if total <= 0 {
		return 1
	}
	return float64(total-errs) / float64(total)
}

// MirrorUsage copies the limiter's window counters onto every registry record.
func (r *Recorder) MirrorUsage() {
	if r.limiter == nil {
		return
	}
	for _, entry := range r.registry.All() {
		minute, hour := r.limiter.Usage(entry.Name())
		entry.Update(func(ep *models.Endpoint) {
			ep.CurrentUsageMinute = minute
			ep.CurrentUsageHour = hour
		})
	}
}

// Snapshots returns the state that Sync persists.
func (r *Recorder) Snapshots() []models.StateSnapshot {
	r.MirrorUsage()

	endpoints := r.registry.Snapshots()
	out := make([]models.StateSnapshot, len(endpoints))
	for i, ep := range endpoints {
		out[i] = models.SnapshotOf(ep)
	}
	return out
}

// Sync writes the current snapshot to every sink. All sinks are attempted even when one fails.
func (r *Recorder) Sync(ctx context.Context) error {
	snapshots := r.Snapshots()
	if len(snapshots) == 0 || len(r.sinks) == 0 {
		return nil
	}

	var errs []error
	for _, sink := range r.sinks {
		if err := sink.SaveState(ctx, snapshots); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrSinkFailed, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	r.logger.Debug().Int("endpoints", len(snapshots)).Msg("state synchronized")
	return nil
}
