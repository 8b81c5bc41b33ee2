package requestlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"apiorch/pkg/models"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type failingSink struct{}

func (failingSink) Append(context.Context, models.RequestLogEntry) error {
	return errors.New("sink down")
}

type LogTestSuite struct {
	suite.Suite
	clock  *clock.Mock
	memory *MemorySink
	log    *Log
}

func (s *LogTestSuite) SetupTest() {
	s.clock = clock.NewMock()
	s.clock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.memory = NewMemorySink(10)
	s.log = New(zerolog.Nop(), failingSink{}, s.memory).WithClock(s.clock)
}

func (s *LogTestSuite) TestAppendStampsIDAndTimestamp() {
	entry := s.log.Append(context.Background(), models.RequestLogEntry{RequestID: "req-1", Endpoint: "a", Attempt: 1})

	s.NotEmpty(entry.ID)
	s.Equal(s.clock.Now().UTC(), entry.Timestamp)

	held := s.memory.Recent(1)
	s.Require().Len(held, 1)
	s.Equal(entry, held[0])
}

func (s *LogTestSuite) TestAppendKeepsGivenFields() {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := s.log.Append(context.Background(), models.RequestLogEntry{ID: "fixed", Timestamp: ts})
	s.Equal("fixed", entry.ID)
	s.Equal(ts, entry.Timestamp)
}

func (s *LogTestSuite) TestAppendSurvivesSinkFailure() {
	for i := 0; i < 3; i++ {
		s.log.Append(context.Background(), models.RequestLogEntry{RequestID: "req", Attempt: i + 1})
	}
	s.Equal(3, s.memory.Len())
}

func (s *LogTestSuite) TestUniqueIDs() {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		entry := s.log.Append(context.Background(), models.RequestLogEntry{})
		s.False(seen[entry.ID])
		seen[entry.ID] = true
	}
}

func (s *LogTestSuite) TestPruneUsesRetention() {
	s.log.WithRetention(time.Hour)
	s.log.Append(context.Background(), models.RequestLogEntry{RequestID: "old"})
	s.clock.Add(2 * time.Hour)
	s.log.Append(context.Background(), models.RequestLogEntry{RequestID: "new"})

	s.Require().NoError(s.log.Prune(context.Background()))

	held := s.memory.Recent(0)
	s.Require().Len(held, 1)
	s.Equal("new", held[0].RequestID)
}

func TestLogTestSuite(t *testing.T) {
	suite.Run(t, new(LogTestSuite))
}

func TestMemorySinkRingOrder(t *testing.T) {
	sink := NewMemorySink(3)
	for i := 1; i <= 5; i++ {
		require.NoError(t, sink.Append(context.Background(), models.RequestLogEntry{ID: fmt.Sprint(i)}))
	}

	assert.Equal(t, 3, sink.Len())
	ids := []string{}
	for _, e := range sink.Recent(0) {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"5", "4", "3"}, ids)
	assert.Len(t, sink.Recent(2), 2)
	assert.Len(t, sink.Recent(10), 3)
}

func TestMemorySinkByRequest(t *testing.T) {
	sink := NewMemorySink(0)
	for i := 1; i <= 3; i++ {
		_ = sink.Append(context.Background(), models.RequestLogEntry{RequestID: "r1", Attempt: i})
		_ = sink.Append(context.Background(), models.RequestLogEntry{RequestID: "r2", Attempt: i})
	}

	attempts := sink.ByRequest("r1")
	require.Len(t, attempts, 3)
	for i, e := range attempts {
		assert.Equal(t, i+1, e.Attempt)
	}
	assert.Empty(t, sink.ByRequest("missing"))
}

func TestMemorySinkPruneWrapped(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sink := NewMemorySink(4)
	for i := 0; i < 6; i++ {
		_ = sink.Append(context.Background(), models.RequestLogEntry{ID: fmt.Sprint(i), Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	removed, err := sink.Prune(context.Background(), base.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	ids := []string{}
	for _, e := range sink.Recent(0) {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"5", "4"}, ids)

	_ = sink.Append(context.Background(), models.RequestLogEntry{ID: "6", Timestamp: base.Add(6 * time.Minute)})
	assert.Equal(t, "6", sink.Recent(1)[0].ID)
	assert.Equal(t, 3, sink.Len())
}

func TestMemorySinkConcurrentAppend(t *testing.T) {
	sink := NewMemorySink(100)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = sink.Append(context.Background(), models.RequestLogEntry{})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, sink.Len())
}
