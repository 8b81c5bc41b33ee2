package orchestrator

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"apiorch/pkg/models"
	"apiorch/pkg/registry"
	"apiorch/pkg/requestlog"
	"apiorch/pkg/store/sqlstore"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

type OrchestratorTestSuite struct {
	suite.Suite
	ctx      context.Context
	store    *sqlstore.Store
	memory   *requestlog.MemorySink
	sleeper  *recordingSleeper
	backends map[string]*backend
}

func (s *OrchestratorTestSuite) SetupTest() {
	s.ctx = context.Background()
	var err error
	s.store, err = sqlstore.NewStore(filepath.Join(s.T().TempDir(), "orchestrator.db"))
	s.Require().NoError(err)
	s.memory = requestlog.NewMemorySink(50)
	s.sleeper = &recordingSleeper{}
	s.backends = map[string]*backend{}
}

func (s *OrchestratorTestSuite) TearDownTest() {
	for _, b := range s.backends {
		b.server.Close()
	}
	s.store.Close()
}

func (s *OrchestratorTestSuite) seed(name string, priority int) *backend {
	b := newBackend(name)
	s.backends[name] = b
	_, err := s.store.UpsertEndpoint(s.ctx, models.Endpoint{
		Name:                   name,
		BaseURL:                b.server.URL,
		Status:                 models.StatusActive,
		AllowAutomaticFailover: true,
		FailoverPriority:       priority,
	})
	s.Require().NoError(err)
	return b
}

func (s *OrchestratorTestSuite) newOrchestrator() *Orchestrator {
	cfg := DefaultConfig()
	cfg.ProbeTimeout = time.Second
	return New(s.store, cfg, zerolog.Nop(),
		WithStateSinks(s.store),
		WithLogSinks(s.store, s.memory),
		WithSleeper(s.sleeper.sleep),
	)
}

func (s *OrchestratorTestSuite) TestStartRunsInitialHealthPass() {
	s.seed("a", 1)
	down := s.seed("b", 2)
	down.status.Store(http.StatusServiceUnavailable)

	o := s.newOrchestrator()
	s.Require().NoError(o.Start(s.ctx))
	defer o.Shutdown(s.ctx)

	report := o.GetStatus()
	s.Equal(2, report.Total)
	s.Equal(1, report.HealthyCount)
	s.Equal(1, report.UnhealthyCount)
	s.Equal(0, report.DegradedCount)
	s.Equal(0, report.UnknownCount)
	s.Equal("priority_based", report.Strategy)
	s.Equal("a", report.Endpoints[0].Name)
}

func (s *OrchestratorTestSuite) TestStartFailsOnMalformedEndpoint() {
	_, err := s.store.UpsertEndpoint(s.ctx, models.Endpoint{
		Name:    "broken",
		BaseURL: "not-a-url",
		Status:  models.StatusActive,
	})
	s.Require().NoError(err)

	o := s.newOrchestrator()
	defer o.Shutdown(s.ctx)

	err = o.Start(s.ctx)
	var cfgErr *registry.ConfigurationError
	s.Require().ErrorAs(err, &cfgErr)
	s.Equal("broken", cfgErr.Endpoint)
}

func (s *OrchestratorTestSuite) TestRequestsFlowThroughToStores() {
	s.seed("a", 1).status.Store(http.StatusInternalServerError)
	s.seed("b", 2)

	o := s.newOrchestrator()
	s.Require().NoError(o.Start(s.ctx))

	// the failing endpoint is unhealthy after the first pass; force it eligible to exercise failover
	s.Require().NoError(o.Registry().Update("a", func(ep *models.Endpoint) {
		ep.HealthStatus = models.HealthHealthy
	}))

	resp, err := o.MakeRequest(s.ctx, models.Request{ID: "req-1", Path: "/work"}, "")
	s.Require().NoError(err)
	s.Equal("b", resp.Endpoint)
	s.True(resp.Success)

	o.Shutdown(s.ctx)

	a, err := s.store.GetEndpoint(s.ctx, "a")
	s.Require().NoError(err)
	s.Equal(int64(1), a.TotalErrors)
	s.Equal(1, a.CurrentUsageMinute)

	b, err := s.store.GetEndpoint(s.ctx, "b")
	s.Require().NoError(err)
	s.Equal(int64(1), b.TotalRequests)
	s.Equal(models.HealthHealthy, b.HealthStatus)

	attempts, err := s.store.RequestAttempts(s.ctx, "req-1")
	s.Require().NoError(err)
	s.Len(attempts, 2)
	s.Len(s.memory.ByRequest("req-1"), 2)
}

func (s *OrchestratorTestSuite) TestReloadEndpoints() {
	s.seed("a", 1)
	o := s.newOrchestrator()
	s.Require().NoError(o.Start(s.ctx))
	defer o.Shutdown(s.ctx)

	s.seed("b", 0)
	s.Require().NoError(s.store.SetStatus(s.ctx, "a", models.StatusInactive))
	s.Require().NoError(o.ReloadEndpoints(s.ctx))

	report := o.GetStatus()
	s.Equal(1, report.Total)
	s.Equal("b", report.Endpoints[0].Name)
	s.Equal(1, report.UnknownCount)
}

func (s *OrchestratorTestSuite) TestShutdown() {
	s.seed("a", 1)
	o := s.newOrchestrator()
	s.Require().NoError(o.Start(s.ctx))

	o.Shutdown(s.ctx)
	o.Shutdown(s.ctx)

	_, err := o.MakeRequest(s.ctx, models.Request{}, "")
	s.ErrorIs(err, ErrShutdown)
	s.ErrorIs(o.Start(s.ctx), ErrShutdown)
}

func (s *OrchestratorTestSuite) TestStartDoesNotBlockCallers() {
	slow := s.seed("a", 1)
	slow.delay.Store(int64(5 * time.Second))

	cfg := DefaultConfig()
	cfg.ProbeTimeout = 10 * time.Second
	o := New(s.store, cfg, zerolog.Nop(), WithSleeper(s.sleeper.sleep))

	started := make(chan error, 1)
	go func() { started <- o.Start(s.ctx) }()
	s.Require().Eventually(func() bool { return slow.hits.Load() > 0 }, 2*time.Second, 10*time.Millisecond)

	begin := time.Now()
	_, err := o.MakeRequest(s.ctx, models.Request{}, "")
	s.ErrorIs(err, ErrNoHealthyEndpoint)
	s.Less(time.Since(begin), time.Second)

	begin = time.Now()
	o.Shutdown(s.ctx)
	s.Less(time.Since(begin), 2*time.Second)

	select {
	case err := <-started:
		s.ErrorIs(err, ErrShutdown)
	case <-time.After(2 * time.Second):
		s.Fail("Start did not return after Shutdown")
	}
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}
