package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"apiorch/pkg/models"
	"apiorch/pkg/registry"
	"apiorch/pkg/transport"

	"github.com/alitto/pond/v2"
	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const (
	DefaultInterval     = 300 * time.Second
	DefaultProbeTimeout = 10 * time.Second
	defaultConcurrency  = 16
)

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the delay between probe rounds.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithProbeTimeout overrides the per-probe timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

// WithClock sets the clock used for the loop ticker and timestamps.
func WithClock(clk clock.Clock) Option {
	return func(m *Monitor) {
		if clk != nil {
			m.clock = clk
		}
	}
}

// WithClient sets the outbound HTTP client.
func WithClient(client *retryablehttp.Client) Option {
	return func(m *Monitor) {
		if client != nil {
			m.client = client
		}
	}
}

// WithConcurrency bounds how many probes run at once.
func WithConcurrency(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// Monitor periodically probes every registered endpoint and records its health.
type Monitor struct {
	registry *registry.Registry
	client   *retryablehttp.Client
	clock    clock.Clock
	logger   zerolog.Logger
	pool     pond.Pool

	interval     time.Duration
	probeTimeout time.Duration
	concurrency  int

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewMonitor creates a monitor over the endpoints held by reg.
func NewMonitor(reg *registry.Registry, logger zerolog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		registry:     reg,
		clock:        clock.New(),
		logger:       logger.With().Str("component", "health_monitor").Logger(),
		interval:     DefaultInterval,
		probeTimeout: DefaultProbeTimeout,
		concurrency:  defaultConcurrency,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.client == nil {
		m.client = transport.NewClient()
	}
	m.pool = pond.NewPool(m.concurrency)
	return m
}

// Start launches the probe loop. The first round runs immediately.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.loop(loopCtx)

	m.logger.Info().
		Int("endpoints", m.registry.Len()).
		Dur("interval", m.interval).
		Msg("health monitor started")
}

// Stop ends the loop and waits for an in-flight round to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info().Msg("health monitor stopped")
}

// Close stops the loop and releases the probe pool.
func (m *Monitor) Close() {
	m.Stop()
	m.pool.StopAndWait()
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	m.CheckAll(ctx)

	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll probes every active endpoint concurrently and waits for all of them.
func (m *Monitor) CheckAll(ctx context.Context) {
	entries := m.registry.All()
	if len(entries) == 0 {
		return
	}

	group := m.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, entry := range entries {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			m.checkEntry(groupCtx, entry)
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		m.logger.Warn().Err(err).Msg("health round ended with error")
	}
}

// checkEntry probes one endpoint. Failures are recorded on the entry and never returned.
func (m *Monitor) checkEntry(ctx context.Context, entry *registry.Entry) {
	ep := entry.Snapshot()
	if ep.Status != models.StatusActive {
		return
	}

	statusCode, latency, err := m.probe(ctx, ep)
	if ctx.Err() != nil {
		return
	}
	status := Classify(statusCode, latency, err)
	checkedAt := m.clock.Now()

	entry.Update(func(rec *models.Endpoint) {
		rec.HealthStatus = status
		rec.LastHealthCheck = checkedAt
		if statusCode != 0 {
			rec.AverageResponseTime = float64(latency) / float64(time.Millisecond)
		}
		if err == nil {
			rec.LastError = ""
		} else {
			rec.LastError = err.Error()
		}
	})

	event := m.logger.Debug()
	if status != ep.HealthStatus {
		event = m.logger.Info()
	}
	if err != nil {
		event = m.logger.Warn().Err(err)
	}
	event.
		Str("endpoint", ep.Name).
		Str("previous", string(ep.HealthStatus)).
		Str("status", string(status)).
		Int64("latency_ms", latency.Milliseconds()).
		Msg("health probe finished")
}

func (m *Monitor) probe(ctx context.Context, ep models.Endpoint) (int, time.Duration, error) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	req, err := transport.NewRequest(probeCtx, ep, http.MethodGet, ProbeURL(ep), nil, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	start := m.clock.Now()
	resp, err := m.client.Do(req)
	latency := m.clock.Since(start)
	if resp != nil {
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			if closeErr := resp.Body.Close(); closeErr != nil {
				m.logger.Warn().Err(closeErr).Msg("failed to close probe response body")
			}
		}()
	}
	if err != nil {
		return 0, latency, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, latency, &StatusError{StatusCode: resp.StatusCode}
	}
	return resp.StatusCode, latency, nil
}
