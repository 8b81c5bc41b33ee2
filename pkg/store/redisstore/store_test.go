package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"apiorch/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// StoreTestSuite runs against a live redis named by APIORCH_TEST_REDIS_ADDR.
type StoreTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
}

func (s *StoreTestSuite) SetupSuite() {
	addr := os.Getenv("APIORCH_TEST_REDIS_ADDR")
	if addr == "" {
		s.T().Skip("APIORCH_TEST_REDIS_ADDR not set")
	}

	s.ctx = context.Background()
	var err error
	s.store, err = Connect(s.ctx, addr, "apiorch-test-"+uuid.NewString())
	s.Require().NoError(err)
}

func (s *StoreTestSuite) TearDownTest() {
	if s.store == nil {
		return
	}
	s.store.client.Del(s.ctx, s.store.key(requestsKey), s.store.key(stateKey), s.store.key(stateKey+":meta"))
}

func (s *StoreTestSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *StoreTestSuite) TestAppendRecentAndPrune() {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		s.Require().NoError(s.store.Append(s.ctx, models.RequestLogEntry{
			ID:        uuid.NewString(),
			RequestID: "req",
			Endpoint:  "primary",
			Attempt:   i + 1,
			Success:   i == 3,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	recent, err := s.store.Recent(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal(4, recent[0].Attempt)
	s.True(recent[0].Success)
	s.Equal(3, recent[1].Attempt)

	removed, err := s.store.Prune(s.ctx, base.Add(2*time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(2), removed)

	left, err := s.store.Recent(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(left, 2)
}

func (s *StoreTestSuite) TestSaveAndLoadState() {
	checked := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.SaveState(s.ctx, []models.StateSnapshot{
		{Name: "primary", HealthStatus: models.HealthHealthy, SuccessRate: 0.9, TotalRequests: 10, TotalErrors: 1, LastHealthCheck: checked},
		{Name: "backup", HealthStatus: models.HealthUnhealthy, SuccessRate: 1},
	}))

	state, err := s.store.LoadState(s.ctx)
	s.Require().NoError(err)
	s.Len(state, 2)
	s.Equal(models.HealthHealthy, state["primary"].HealthStatus)
	s.Equal(int64(10), state["primary"].TotalRequests)
	s.True(checked.Equal(state["primary"].LastHealthCheck))
	s.Equal(models.HealthUnhealthy, state["backup"].HealthStatus)
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func TestConnectRejectsEmptyAddress(t *testing.T) {
	_, err := Connect(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrUnavailable)
}
