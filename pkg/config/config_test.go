package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"apiorch/pkg/selector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8090", cfg.ListenAddr)
	assert.Equal(t, "priority_based", cfg.Strategy)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 300*time.Second, cfg.HealthInterval)
	assert.Equal(t, 10*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
	assert.Equal(t, "@every 30s", cfg.SyncSpec)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{
		"APIORCH_LISTEN_ADDR":     ":9999",
		"APIORCH_STRATEGY":        "round_robin",
		"APIORCH_MAX_RETRIES":     "5",
		"APIORCH_HEALTH_INTERVAL": "1m",
		"APIORCH_DEBUG":           "true",
		"APIORCH_REDIS_ADDR":      "  ",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "round_robin", cfg.Strategy)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, time.Minute, cfg.HealthInterval)
	assert.True(t, cfg.Debug)
	assert.Empty(t, cfg.RedisAddr)
}

func TestApplyEnvCollectsErrors(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{
		"APIORCH_MAX_RETRIES":     "many",
		"APIORCH_REQUEST_TIMEOUT": "soon",
		"APIORCH_LOG_JSON":        "maybe",
	}))
	require.ErrorIs(t, err, ErrInvalidValue)
	assert.Contains(t, err.Error(), "APIORCH_MAX_RETRIES")
	assert.Contains(t, err.Error(), "APIORCH_REQUEST_TIMEOUT")
	assert.Contains(t, err.Error(), "APIORCH_LOG_JSON")
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("APIORCH_POOL_SIZE=7\nAPIORCH_PRUNE_SCHEDULE=@every 2h\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("APIORCH_POOL_SIZE")
		os.Unsetenv("APIORCH_PRUNE_SCHEDULE")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.PoolSize)
	assert.Equal(t, "@every 2h", cfg.PruneSpec)
}

func TestLoadIgnoresMissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestFlagsOverrideValues(t *testing.T) {
	cfg := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)

	require.NoError(t, fs.Parse([]string{"-addr", ":7000", "-strategy", "least_loaded", "-max-retries", "1"}))
	assert.Equal(t, ":7000", cfg.ListenAddr)
	assert.Equal(t, "least_loaded", cfg.Strategy)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, "apiorch.db", cfg.DBPath)
}

func TestOrchestratorConfig(t *testing.T) {
	cfg := Default()
	cfg.Strategy = "performance_based"
	orch, err := cfg.Orchestrator()
	require.NoError(t, err)
	assert.Equal(t, selector.PerformanceBased, orch.Strategy)
	assert.Equal(t, cfg.MaxRetries, orch.MaxRetries)

	cfg.Strategy = "fastest"
	_, err = cfg.Orchestrator()
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.ErrorIs(t, err, selector.ErrUnknownStrategy)

	cfg.Strategy = ""
	cfg.MaxRetries = -1
	_, err = cfg.Orchestrator()
	assert.ErrorIs(t, err, ErrInvalidValue)
}
