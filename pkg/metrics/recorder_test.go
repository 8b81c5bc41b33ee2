package metrics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"apiorch/pkg/models"
	"apiorch/pkg/ratelimit"
	"apiorch/pkg/registry"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

type memorySink struct {
	mu    sync.Mutex
	saved [][]models.StateSnapshot
	err   error
}

func (m *memorySink) SaveState(_ context.Context, snapshots []models.StateSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, snapshots)
	return nil
}

func (m *memorySink) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

type RecorderTestSuite struct {
	suite.Suite
	registry *registry.Registry
	limiter  *ratelimit.Limiter
	clock    *clock.Mock
	sink     *memorySink
	recorder *Recorder
}

func (s *RecorderTestSuite) SetupTest() {
	s.registry = registry.New(nil, zerolog.Nop())
	s.clock = clock.NewMock()
	s.limiter = ratelimit.New(s.clock)
	s.sink = &memorySink{}
	s.recorder = NewRecorder(s.registry, s.limiter, zerolog.Nop(), s.sink)

	s.Require().NoError(s.registry.Register(models.Endpoint{
		Name:         "primary",
		BaseURL:      "http://primary.internal",
		Status:       models.StatusActive,
		HealthStatus: models.HealthHealthy,
	}))
}

func (s *RecorderTestSuite) snapshot() models.Endpoint {
	entry, ok := s.registry.Get("primary")
	s.Require().True(ok)
	return entry.Snapshot()
}

func (s *RecorderTestSuite) TestUpdateCountsAndSuccessRate() {
	s.Require().NoError(s.recorder.Update("primary", true, 120))
	s.Require().NoError(s.recorder.Update("primary", true, 80))
	s.Require().NoError(s.recorder.Update("primary", false, 0))
	s.Require().NoError(s.recorder.Update("primary", true, 100))

	snap := s.snapshot()
	s.Equal(int64(4), snap.TotalRequests)
	s.Equal(int64(1), snap.TotalErrors)
	s.InDelta(0.75, snap.SuccessRate, 1e-9)
	s.InDelta(float64(snap.TotalRequests-snap.TotalErrors)/float64(snap.TotalRequests), snap.SuccessRate, 1e-9)
}

func (s *RecorderTestSuite) TestLatencyIsLastWriterWins() {
	s.Require().NoError(s.recorder.Update("primary", true, 300))
	s.Equal(300.0, s.snapshot().AverageResponseTime)

	s.Require().NoError(s.recorder.Update("primary", false, 0))
	s.Equal(300.0, s.snapshot().AverageResponseTime, "failures do not reset latency")

	s.Require().NoError(s.recorder.Update("primary", true, 45))
	s.Equal(45.0, s.snapshot().AverageResponseTime)
}

func (s *RecorderTestSuite) TestFreshEndpointHasFullSuccessRate() {
	s.Equal(1.0, s.snapshot().SuccessRate)
	s.Equal(1.0, successRate(0, 0))
}

func (s *RecorderTestSuite) TestUpdateUnknownEndpoint() {
	err := s.recorder.Update("missing", true, 10)
	s.ErrorIs(err, registry.ErrEndpointNotFound)
}

func (s *RecorderTestSuite) TestSnapshotsMirrorLimiterUsage() {
	s.limiter.Increment("primary")
	s.limiter.Increment("primary")

	snaps := s.recorder.Snapshots()
	s.Require().Len(snaps, 1)
	s.Equal(2, snaps[0].CurrentUsageMinute)
	s.Equal(2, snaps[0].CurrentUsageHour)

	s.clock.Add(time.Minute)
	snaps = s.recorder.Snapshots()
	s.Equal(0, snaps[0].CurrentUsageMinute)
	s.Equal(2, snaps[0].CurrentUsageHour)
	s.Equal(0, s.snapshot().CurrentUsageMinute)
}

func (s *RecorderTestSuite) TestSyncWritesEverySink() {
	second := &memorySink{}
	recorder := NewRecorder(s.registry, s.limiter, zerolog.Nop(), s.sink, second)
	s.Require().NoError(recorder.Update("primary", true, 50))

	s.Require().NoError(recorder.Sync(context.Background()))
	s.Equal(1, s.sink.calls())
	s.Equal(1, second.calls())

	saved := s.sink.saved[0][0]
	s.Equal("primary", saved.Name)
	s.Equal(models.HealthHealthy, saved.HealthStatus)
	s.Equal(int64(1), saved.TotalRequests)
	s.Equal(50.0, saved.AverageResponseTime)
}

func (s *RecorderTestSuite) TestSyncContinuesPastFailingSink() {
	broken := &memorySink{err: errors.New("connection reset")}
	recorder := NewRecorder(s.registry, s.limiter, zerolog.Nop(), broken, s.sink)

	err := recorder.Sync(context.Background())
	s.ErrorIs(err, ErrSinkFailed)
	s.Equal(1, s.sink.calls())
}

func (s *RecorderTestSuite) TestSyncWithoutSinks() {
	recorder := NewRecorder(s.registry, nil, zerolog.Nop())
	s.NoError(recorder.Sync(context.Background()))
}

func (s *RecorderTestSuite) TestConcurrentUpdates() {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.recorder.Update("primary", n%5 != 0, float64(n+1))
		}(i)
	}
	wg.Wait()

	snap := s.snapshot()
	s.Equal(int64(50), snap.TotalRequests)
	s.Equal(int64(10), snap.TotalErrors)
	s.InDelta(0.8, snap.SuccessRate, 1e-9)
}

func (s *RecorderTestSuite) TestScheduledSync() {
	scheduler := NewScheduler(zerolog.Nop())
	s.Require().NoError(s.recorder.Schedule(scheduler, "* * * * * *"))
	scheduler.Start()
	defer scheduler.Stop()

	s.Eventually(func() bool { return s.sink.calls() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func (s *RecorderTestSuite) TestSchedulerRejectsBadSchedule() {
	scheduler := NewScheduler(zerolog.Nop())
	err := scheduler.Add("every now and then", "bogus", func(context.Context) error { return nil })
	s.ErrorIs(err, ErrInvalidSchedule)
}

func (s *RecorderTestSuite) TestSchedulerStopCancelsJobs() {
	scheduler := NewScheduler(zerolog.Nop())
	var started, cancelled atomic.Bool
	s.Require().NoError(scheduler.Add("* * * * * *", "blocking", func(ctx context.Context) error {
		started.Store(true)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))
	scheduler.Start()

	s.Eventually(started.Load, 3*time.Second, 20*time.Millisecond)
	scheduler.Stop()
	s.True(cancelled.Load())
}

func TestRecorderTestSuite(t *testing.T) {
	suite.Run(t, new(RecorderTestSuite))
}
