package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"apiorch/pkg/health"
	"apiorch/pkg/metrics"
	"apiorch/pkg/models"
	"apiorch/pkg/ratelimit"
	"apiorch/pkg/registry"
	"apiorch/pkg/requestlog"
	"apiorch/pkg/selector"
	"apiorch/pkg/transport"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// Config holds the tunables of a running orchestrator.
type Config struct {
	Strategy        selector.Strategy
	MaxRetries      int
	RequestTimeout  time.Duration
	MaxBackoff      time.Duration
	NoCandidateWait time.Duration
	PoolSize        int

	HealthInterval time.Duration
	ProbeTimeout   time.Duration

	SyncSpec     string
	PruneSpec    string
	LogRetention time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:        selector.Default,
		MaxRetries:      DefaultMaxRetries,
		RequestTimeout:  DefaultRequestTimeout,
		MaxBackoff:      DefaultMaxBackoff,
		NoCandidateWait: DefaultNoCandidateWait,
		PoolSize:        DefaultPoolSize,
		HealthInterval:  health.DefaultInterval,
		ProbeTimeout:    health.DefaultProbeTimeout,
		SyncSpec:        metrics.DefaultSyncSpec,
		PruneSpec:       metrics.DefaultPruneSpec,
		LogRetention:    requestlog.DefaultRetention,
	}
}

// Option adds collaborators to an Orchestrator.
type Option func(*Orchestrator)

// WithStateSinks adds sinks that receive periodic state snapshots.
func WithStateSinks(sinks ...metrics.StateSink) Option {
	return func(o *Orchestrator) {
		o.stateSinks = append(o.stateSinks, sinks...)
	}
}

// WithLogSinks adds request log sinks.
func WithLogSinks(sinks ...requestlog.Sink) Option {
	return func(o *Orchestrator) {
		o.logSinks = append(o.logSinks, sinks...)
	}
}

// WithClock replaces the clock driving rate-limit windows and sleeps.
func WithClock(clk clock.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = clk
	}
}

// WithSleeper replaces the backoff and no-candidate sleep.
func WithSleeper(sleeper Sleeper) Option {
	return func(o *Orchestrator) {
		o.sleeper = sleeper
	}
}

// WithHTTPClient replaces the outbound client used for dispatch and probes.
func WithHTTPClient(client *retryablehttp.Client) Option {
	return func(o *Orchestrator) {
		o.client = client
	}
}

// Orchestrator owns the registry and every background loop around it.
type Orchestrator struct {
	cfg    Config
	logger zerolog.Logger

	clock      clock.Clock
	sleeper    Sleeper
	client     *retryablehttp.Client
	stateSinks []metrics.StateSink
	logSinks   []requestlog.Sink

	registry  *registry.Registry
	limiter   *ratelimit.Limiter
	monitor   *health.Monitor
	recorder  *metrics.Recorder
	requests  *requestlog.Log
	executor  *Executor
	scheduler *metrics.Scheduler

	// lifecycle is cancelled by Shutdown so a Start in progress stops probing early.
	lifecycle context.Context
	abort     context.CancelFunc

	startMu sync.Mutex
	mu      sync.Mutex
	started bool
	closed  bool
}

// New builds an orchestrator reading endpoints from store.
func New(store registry.Store, cfg Config, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		logger: logger.With().Str("component", "orchestrator").Logger(),
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.client == nil {
		o.client = transport.NewClient()
	}

	o.registry = registry.New(store, logger)
	o.limiter = ratelimit.New(o.clock)
	o.recorder = metrics.NewRecorder(o.registry, o.limiter, logger, o.stateSinks...)
	o.requests = requestlog.New(logger, o.logSinks...).WithClock(o.clock).WithRetention(cfg.LogRetention)
	o.monitor = health.NewMonitor(o.registry, logger,
		health.WithInterval(cfg.HealthInterval),
		health.WithProbeTimeout(cfg.ProbeTimeout),
		health.WithClient(o.client),
	)
	o.executor = NewExecutor(o.registry, o.limiter, o.recorder, o.requests, logger, ExecutorOptions{
		Strategy:        cfg.Strategy,
		MaxRetries:      cfg.MaxRetries,
		RequestTimeout:  cfg.RequestTimeout,
		MaxBackoff:      cfg.MaxBackoff,
		NoCandidateWait: cfg.NoCandidateWait,
		PoolSize:        cfg.PoolSize,
		Sleeper:         o.sleeper,
		Clock:           o.clock,
		Client:          o.client,
	})
	o.scheduler = metrics.NewScheduler(logger)
	o.lifecycle, o.abort = context.WithCancel(context.Background())
	return o
}

// Registry exposes the endpoint registry, mainly for explicit registration.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// Start loads the registry, runs one synchronous health pass and starts the background loops.
// ctx bounds the load and the first pass only; background loops run until Shutdown.
// Shutdown may run concurrently and makes a pending Start return ErrShutdown.
// A malformed endpoint record makes Start fail with a *registry.ConfigurationError.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.startMu.Lock()
	defer o.startMu.Unlock()

	o.mu.Lock()
	closed, started := o.closed, o.started
	o.mu.Unlock()
	if closed {
		return ErrShutdown
	}
	if started {
		return nil
	}

	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopOnShutdown := context.AfterFunc(o.lifecycle, cancel)
	defer stopOnShutdown()

	if err := o.registry.Load(startCtx); err != nil {
		return fmt.Errorf("load endpoints: %w", err)
	}

	o.monitor.CheckAll(startCtx)
	if o.lifecycle.Err() != nil {
		return ErrShutdown
	}
	o.monitor.Start(o.lifecycle)

	if err := o.recorder.Schedule(o.scheduler, o.cfg.SyncSpec); err != nil {
		o.monitor.Stop()
		return err
	}
	pruneSpec := o.cfg.PruneSpec
	if pruneSpec == "" {
		pruneSpec = metrics.DefaultPruneSpec
	}
	if err := o.scheduler.Add(pruneSpec, "request_log_prune", o.requests.Prune); err != nil {
		o.monitor.Stop()
		return err
	}
	o.scheduler.Start()

	o.mu.Lock()
	o.started = true
	o.mu.Unlock()
	o.logger.Info().
		Int("endpoints", o.registry.Len()).
		Str("strategy", o.cfg.Strategy.String()).
		Msg("orchestrator started")
	return nil
}

// MakeRequest executes req with failover. See Executor.MakeRequest.
func (o *Orchestrator) MakeRequest(ctx context.Context, req models.Request, preferred string) (*models.Response, error) {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return nil, ErrShutdown
	}
	return o.executor.MakeRequest(ctx, req, preferred)
}

// GetStatus summarizes the pool by health classification.
func (o *Orchestrator) GetStatus() models.StatusReport {
	o.recorder.MirrorUsage()

	report := models.StatusReport{
		Strategy:    o.cfg.Strategy.String(),
		Endpoints:   o.registry.Snapshots(),
		GeneratedAt: o.clock.Now().UTC(),
	}
	report.Total = len(report.Endpoints)
	for _, ep := range report.Endpoints {
		switch ep.HealthStatus {
		case models.HealthHealthy:
			report.HealthyCount++
		case models.HealthDegraded:
			report.DegradedCount++
		case models.HealthUnhealthy:
			report.UnhealthyCount++
		default:
			report.UnknownCount++
		}
	}
	return report
}

// ReloadEndpoints re-reads the store. Endpoints that dropped out lose their rate-limit state.
func (o *Orchestrator) ReloadEndpoints(ctx context.Context) error {
	before := o.registry.All()
	if err := o.registry.Reload(ctx); err != nil {
		return err
	}
	for _, entry := range before {
		if _, ok := o.registry.Get(entry.Name()); !ok {
			o.limiter.Forget(entry.Name())
		}
	}
	return nil
}

// RequestLog returns the log that records every attempt.
func (o *Orchestrator) RequestLog() *requestlog.Log {
	return o.requests
}

// Shutdown stops health probing and scheduled jobs, flushes state once and releases the dispatch pool.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.abort()
	o.startMu.Lock()
	defer o.startMu.Unlock()

	o.mu.Lock()
	started := o.started
	o.mu.Unlock()

	o.monitor.Close()
	o.scheduler.Stop()
	if started {
		if err := o.recorder.Sync(ctx); err != nil {
			o.logger.Warn().Err(err).Msg("final state sync failed")
		}
	}
	o.executor.Close()
	o.logger.Info().Msg("orchestrator stopped")
}
