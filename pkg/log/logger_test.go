package log

import (
	"bytes"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

type LoggerTestSuite struct {
	suite.Suite
	saved  zerolog.Logger
	output *bytes.Buffer
}

func (s *LoggerTestSuite) SetupTest() {
	s.saved = Logger
	s.output = &bytes.Buffer{}
	Configure(zerolog.SyncWriter(s.output), zerolog.DebugLevel)
}

func (s *LoggerTestSuite) TearDownTest() {
	Logger = s.saved
}

func (s *LoggerTestSuite) TestGoroutineIDIsNumeric() {
	id := goroutineID()
	s.NotEmpty(id)
	s.NotEqual("unknown", id)
	for _, char := range id {
		s.True(char >= '0' && char <= '9', "goroutine id should be numeric")
	}
	s.Equal(id, goroutineID())
}

func (s *LoggerTestSuite) TestLevelsCarryGoroutineID() {
	Debug().Msg("debug line")
	Info().Msg("info line")
	Warn().Msg("warn line")
	Error().Msg("error line")

	out := s.output.String()
	for _, want := range []string{"debug line", "info line", "warn line", "error line", `"goid"`} {
		s.Contains(out, want)
	}
}

func (s *LoggerTestSuite) TestForTagsComponent() {
	logger := For("health_monitor")
	logger.Info().Str("endpoint", "primary").Msg("probe done")

	out := s.output.String()
	s.Contains(out, `"component":"health_monitor"`)
	s.Contains(out, `"endpoint":"primary"`)
}

func (s *LoggerTestSuite) TestSetLevel() {
	SetLevel("warn")
	s.Equal(zerolog.WarnLevel, Logger.GetLevel())

	Info().Msg("hidden")
	Warn().Msg("visible")
	s.NotContains(s.output.String(), "hidden")
	s.Contains(s.output.String(), "visible")

	SetLevel("not-a-level")
	s.Equal(zerolog.WarnLevel, Logger.GetLevel())

	SetDebugMode()
	s.Equal(zerolog.DebugLevel, Logger.GetLevel())
}

func (s *LoggerTestSuite) TestConcurrentLogging() {
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			Info().Int("n", n).Msg("concurrent")
		}(i)
	}
	wg.Wait()
	s.Contains(s.output.String(), "concurrent")
}

func TestLoggerTestSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}
