package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"apiorch/pkg/metrics"
	"apiorch/pkg/models"
	"apiorch/pkg/ratelimit"
	"apiorch/pkg/registry"
	"apiorch/pkg/requestlog"
	"apiorch/pkg/selector"
	"apiorch/pkg/transport"

	"github.com/alitto/pond/v2"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxRetries      = 3
	DefaultRequestTimeout  = 30 * time.Second
	DefaultMaxBackoff      = 30 * time.Second
	DefaultNoCandidateWait = 5 * time.Second
	DefaultPoolSize        = 64

	maxResponseBody = 32 << 20
	redacted        = "[redacted]"
)

var sensitiveHeaders = map[string]struct{}{
	"Authorization":       {},
	"Proxy-Authorization": {},
	"Cookie":              {},
	"X-Api-Key":           {},
}

// ExecutorOptions tunes the retry state machine.
type ExecutorOptions struct {
	Strategy        selector.Strategy
	MaxRetries      int
	RequestTimeout  time.Duration
	MaxBackoff      time.Duration
	NoCandidateWait time.Duration
	PoolSize        int
	Sleeper         Sleeper
	Clock           clock.Clock
	Client          *retryablehttp.Client
}

func (o *ExecutorOptions) setDefaults() {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.NoCandidateWait <= 0 {
		o.NoCandidateWait = DefaultNoCandidateWait
	}
	if o.PoolSize <= 0 {
		o.PoolSize = DefaultPoolSize
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Sleeper == nil {
		o.Sleeper = ClockSleeper(o.Clock)
	}
	if o.Client == nil {
		o.Client = transport.NewClient()
	}
}

// Executor runs one logical request across endpoints until one succeeds or the budget is spent.
type Executor struct {
	registry *registry.Registry
	limiter  *ratelimit.Limiter
	recorder *metrics.Recorder
	requests *requestlog.Log
	pool     pond.Pool
	opts     ExecutorOptions
	logger   zerolog.Logger

	closeOnce sync.Once
}

// NewExecutor wires the executor to its collaborators.
func NewExecutor(
	reg *registry.Registry,
	limiter *ratelimit.Limiter,
	recorder *metrics.Recorder,
	requests *requestlog.Log,
	logger zerolog.Logger,
	opts ExecutorOptions,
) *Executor {
	opts.setDefaults()
	return &Executor{
		registry: reg,
		limiter:  limiter,
		recorder: recorder,
		requests: requests,
		pool:     pond.NewPool(opts.PoolSize),
		opts:     opts,
		logger:   logger.With().Str("component", "executor").Logger(),
	}
}

// Close stops accepting dispatches and waits for in-flight ones.
func (e *Executor) Close() {
	e.closeOnce.Do(e.pool.StopAndWait)
}

// call is the per-request state: attempt count, exclusion set and the tried list.
type call struct {
	req        models.Request
	requestID  string
	preferred  string
	maxRetries int

	attempts int
	excluded map[string]struct{}
	tried    []string
	lastErr  error
}

func (c *call) exclude(name string, err error) {
	c.excluded[name] = struct{}{}
	c.tried = append(c.tried, name)
	c.lastErr = err
}

func (c *call) fail(kind error) *RequestError {
	return &RequestError{
		Kind:      kind,
		RequestID: c.requestID,
		Attempts:  c.attempts,
		Tried:     append([]string(nil), c.tried...),
		Cause:     c.lastErr,
	}
}

// MakeRequest dispatches req, failing over between endpoints. A returned Response always has Success set.
func (e *Executor) MakeRequest(ctx context.Context, req models.Request, preferred string) (*models.Response, error) {
	c := &call{
		req:        req,
		requestID:  req.ID,
		preferred:  preferred,
		maxRetries: e.opts.MaxRetries,
		excluded:   map[string]struct{}{},
	}
	if req.MaxRetries != nil {
		c.maxRetries = max(*req.MaxRetries, 0)
	}
	if c.requestID == "" {
		c.requestID = uuid.NewString()
	}

	for c.attempts <= c.maxRetries {
		entry, err := e.next(ctx, c)
		if err != nil {
			return nil, err
		}

		c.attempts++
		resp, err := e.dispatch(ctx, c, entry)
		if err == nil {
			return resp, nil
		}

		ep := entry.Snapshot()
		c.exclude(ep.Name, err)
		e.logger.Warn().
			Err(err).
			Str("request_id", c.requestID).
			Str("endpoint", ep.Name).
			Int("attempt", c.attempts).
			Msg("dispatch attempt failed")

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", c.fail(ErrAllRetriesExhausted), ctxErr)
		}
		if ep.Name == c.preferred && !ep.AllowAutomaticFailover {
			return nil, c.fail(ErrAllRetriesExhausted)
		}
		if c.attempts > c.maxRetries {
			break
		}

		if err := e.opts.Sleeper(ctx, Backoff(c.attempts-1, e.opts.MaxBackoff)); err != nil {
			return nil, fmt.Errorf("%w: %w", c.fail(ErrAllRetriesExhausted), err)
		}
	}

	return nil, c.fail(ErrAllRetriesExhausted)
}

// next picks the endpoint for the coming attempt: the preferred one while it is still eligible,
// otherwise the selector's choice, waiting for a candidate to appear if needed.
// The returned endpoint already holds a rate-limit slot.
func (e *Executor) next(ctx context.Context, c *call) (*registry.Entry, error) {
	if c.preferred != "" {
		if _, done := c.excluded[c.preferred]; !done {
			entry, ok := e.registry.Get(c.preferred)
			if ok && entry.Snapshot().Status == models.StatusActive {
				e.limiter.Increment(c.preferred)
				return e.assign(entry), nil
			}
			e.logger.Warn().
				Str("request_id", c.requestID).
				Str("endpoint", c.preferred).
				Msg("preferred endpoint not available, using selector")
			c.excluded[c.preferred] = struct{}{}
		}
	}

	// busy holds endpoints that lost the race for their last slot during this selection round.
	busy := map[string]struct{}{}
	gate := func(ep models.Endpoint) bool {
		if _, lost := busy[ep.Name]; lost {
			return false
		}
		return e.admit(ep)
	}

	for wait := 0; ; {
		snapshots := e.liveSnapshots()
		picked, found := selector.Select(e.opts.Strategy, snapshots, c.excluded, gate)
		if found {
			entry, ok := e.registry.Get(picked.Name)
			if ok && e.limiter.Acquire(picked.Name, picked.RateLimitPerMinute, picked.RateLimitPerHour) {
				return e.assign(entry), nil
			}
			busy[picked.Name] = struct{}{}
			continue
		}
		clear(busy)

		if c.attempts > 0 && !e.anyRecoverable(snapshots, c.excluded) {
			return nil, c.fail(ErrAllRetriesExhausted)
		}
		if wait >= c.maxRetries {
			return nil, c.fail(ErrNoHealthyEndpoint)
		}

		e.logger.Debug().
			Str("request_id", c.requestID).
			Int("wait", wait+1).
			Dur("delay", e.opts.NoCandidateWait).
			Msg("no candidate endpoint, waiting")
		if err := e.opts.Sleeper(ctx, e.opts.NoCandidateWait); err != nil {
			return nil, fmt.Errorf("%w: %w", c.fail(ErrNoHealthyEndpoint), err)
		}
		wait++
	}
}

// liveSnapshots copies the registry with usage counters read from the limiter,
// so load-based selection never ranks on values from the last sync.
func (e *Executor) liveSnapshots() []models.Endpoint {
	snapshots := e.registry.Snapshots()
	for i := range snapshots {
		snapshots[i].CurrentUsageMinute, snapshots[i].CurrentUsageHour = e.limiter.Usage(snapshots[i].Name)
	}
	return snapshots
}

// admit is the rate-limit gate handed to the selector.
func (e *Executor) admit(ep models.Endpoint) bool {
	return e.limiter.Check(ep.Name, ep.RateLimitPerMinute, ep.RateLimitPerHour)
}

// anyRecoverable reports whether some active endpoint outside the exclusion set could still become eligible.
func (e *Executor) anyRecoverable(snapshots []models.Endpoint, excluded map[string]struct{}) bool {
	for _, ep := range snapshots {
		if ep.Status != models.StatusActive {
			continue
		}
		if _, skip := excluded[ep.Name]; !skip {
			return true
		}
	}
	return false
}

func (e *Executor) assign(entry *registry.Entry) *registry.Entry {
	minute, hour := e.limiter.Usage(entry.Name())
	entry.Update(func(ep *models.Endpoint) {
		ep.TotalAssigned++
		ep.CurrentUsageMinute = minute
		ep.CurrentUsageHour = hour
	})
	return entry
}

// endpointTimeout resolves the per-attempt timeout: endpoint config, request, executor default.
func (e *Executor) endpointTimeout(ep models.Endpoint, req models.Request) time.Duration {
	if d := ep.ConfigDuration(models.ConfigTimeoutSeconds); d > 0 {
		return d
	}
	if req.Timeout > 0 {
		return req.Timeout
	}
	return e.opts.RequestTimeout
}

type outcome struct {
	status  int
	headers http.Header
	body    []byte
	latency time.Duration
}

// dispatch sends one attempt on the worker pool and records its metrics and log entry.
func (e *Executor) dispatch(ctx context.Context, c *call, entry *registry.Entry) (*models.Response, error) {
	ep := entry.Snapshot()

	var (
		result outcome
		sent   bool
	)
	task := e.pool.SubmitErr(func() error {
		var err error
		result, sent, err = e.send(ctx, ep, c.req)
		return err
	})
	err := task.Wait()
	if !sent {
		e.limiter.Release(ep.Name)
	}
	if errors.Is(err, pond.ErrPoolStopped) {
		return nil, ErrShutdown
	}

	success := err == nil
	latencyMs := 0.0
	if success {
		latencyMs = float64(result.latency) / float64(time.Millisecond)
	}
	if recErr := e.recorder.Update(ep.Name, success, latencyMs); recErr != nil {
		e.logger.Debug().Err(recErr).Str("endpoint", ep.Name).Msg("metrics update skipped")
	}

	logEntry := models.RequestLogEntry{
		RequestID:      c.requestID,
		Endpoint:       ep.Name,
		Attempt:        c.attempts,
		Method:         methodOf(c.req),
		Path:           c.req.Path,
		RequestHeaders: flattenHeaders(c.req.Headers),
		RequestSize:    len(c.req.Body),
		StatusCode:     result.status,
		ResponseSize:   len(result.body),
		Success:        success,
		LatencyMs:      float64(result.latency) / float64(time.Millisecond),
	}
	if err != nil {
		logEntry.Error = err.Error()
	}
	e.requests.Append(context.WithoutCancel(ctx), logEntry)

	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("request_id", c.requestID).
		Str("endpoint", ep.Name).
		Int("status", result.status).
		Dur("latency", result.latency).
		Msg("dispatch succeeded")

	return &models.Response{
		StatusCode: result.status,
		Headers:    result.headers,
		Body:       result.body,
		Latency:    result.latency,
		Endpoint:   ep.Name,
		Success:    true,
	}, nil
}

// send performs the HTTP exchange. sent reports whether the request left the process.
func (e *Executor) send(ctx context.Context, ep models.Endpoint, req models.Request) (outcome, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.endpointTimeout(ep, req))
	defer cancel()

	httpReq, err := transport.NewRequest(reqCtx, ep, methodOf(req), transport.JoinURL(ep.BaseURL, req.Path), req.Headers, req.Body)
	if err != nil {
		return outcome{}, false, fmt.Errorf("%w: build request: %w", ErrDispatchFailed, err)
	}

	start := e.opts.Clock.Now()
	resp, err := e.opts.Client.Do(httpReq)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return outcome{latency: e.opts.Clock.Since(start)}, true, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			e.logger.Warn().Err(closeErr).Msg("failed to close dispatch response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	result := outcome{
		status:  resp.StatusCode,
		headers: resp.Header.Clone(),
		body:    body,
		latency: e.opts.Clock.Since(start),
	}
	if err != nil {
		return result, true, fmt.Errorf("%w: read body: %w", ErrDispatchFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, true, &StatusError{Endpoint: ep.Name, StatusCode: resp.StatusCode}
	}
	return result, true, nil
}

func methodOf(req models.Request) string {
	if req.Method == "" {
		return http.MethodGet
	}
	return req.Method
}

func flattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if _, secret := sensitiveHeaders[http.CanonicalHeaderKey(key)]; secret {
			out[key] = redacted
			continue
		}
		out[key] = values[0]
	}
	return out
}
