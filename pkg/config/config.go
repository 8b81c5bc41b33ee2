package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"apiorch/pkg/orchestrator"
	"apiorch/pkg/selector"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "APIORCH_"

var (
	// ErrInvalidValue is returned when a setting cannot be parsed.
	ErrInvalidValue = errors.New("invalid configuration value")
)

// Config is the daemon configuration. Zero values are replaced by Default.
type Config struct {
	ListenAddr      string
	DBPath          string
	SeedFile        string
	RedisAddr       string
	RedisPrefix     string
	Strategy        string
	MaxRetries      int
	RequestTimeout  time.Duration
	MaxBackoff      time.Duration
	NoCandidateWait time.Duration
	HealthInterval  time.Duration
	ProbeTimeout    time.Duration
	SyncSpec        string
	PruneSpec       string
	LogRetention    time.Duration
	PoolSize        int
	RecentLogSize   int
	ShutdownTimeout time.Duration
	LogLevel        string
	LogJSON         bool
	Debug           bool
}

// Default returns the built-in settings.
func Default() Config {
	orch := orchestrator.DefaultConfig()
	return Config{
		ListenAddr:      ":8090",
		DBPath:          "apiorch.db",
		RedisPrefix:     "apiorch",
		Strategy:        orch.Strategy.String(),
		MaxRetries:      orch.MaxRetries,
		RequestTimeout:  orch.RequestTimeout,
		MaxBackoff:      orch.MaxBackoff,
		NoCandidateWait: orch.NoCandidateWait,
		HealthInterval:  orch.HealthInterval,
		ProbeTimeout:    orch.ProbeTimeout,
		SyncSpec:        orch.SyncSpec,
		PruneSpec:       orch.PruneSpec,
		LogRetention:    orch.LogRetention,
		PoolSize:        orch.PoolSize,
		RecentLogSize:   1000,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
	}
}

// Load reads optional .env files and then the process environment on top of the defaults.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	cfg := Default()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from APIORCH_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str("LISTEN_ADDR", &c.ListenAddr)
	e.str("DB_PATH", &c.DBPath)
	e.str("SEED_FILE", &c.SeedFile)
	e.str("REDIS_ADDR", &c.RedisAddr)
	e.str("REDIS_PREFIX", &c.RedisPrefix)
	e.str("STRATEGY", &c.Strategy)
	e.integer("MAX_RETRIES", &c.MaxRetries)
	e.duration("REQUEST_TIMEOUT", &c.RequestTimeout)
	e.duration("MAX_BACKOFF", &c.MaxBackoff)
	e.duration("NO_CANDIDATE_WAIT", &c.NoCandidateWait)
	e.duration("HEALTH_INTERVAL", &c.HealthInterval)
	e.duration("PROBE_TIMEOUT", &c.ProbeTimeout)
	e.str("SYNC_SCHEDULE", &c.SyncSpec)
	e.str("PRUNE_SCHEDULE", &c.PruneSpec)
	e.duration("LOG_RETENTION", &c.LogRetention)
	e.integer("POOL_SIZE", &c.PoolSize)
	e.integer("RECENT_LOG_SIZE", &c.RecentLogSize)
	e.duration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
	e.str("LOG_LEVEL", &c.LogLevel)
	e.boolean("LOG_JSON", &c.LogJSON)
	e.boolean("DEBUG", &c.Debug)

	return errors.Join(e.errs...)
}

// RegisterFlags binds every field to fs, using the current values as flag defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ListenAddr, "addr", c.ListenAddr, "HTTP listen address")
	fs.StringVar(&c.DBPath, "db", c.DBPath, "SQLite database path for the endpoint registry and request log")
	fs.StringVar(&c.SeedFile, "seed", c.SeedFile, "JSON file of endpoints upserted into the database at startup")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address for state and request log mirroring (optional)")
	fs.StringVar(&c.RedisPrefix, "redis-prefix", c.RedisPrefix, "Key prefix used in redis")
	fs.StringVar(&c.Strategy, "strategy", c.Strategy, "Selection strategy: priority_based, performance_based, least_loaded, round_robin")
	fs.IntVar(&c.MaxRetries, "max-retries", c.MaxRetries, "Maximum retries per request")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "Default per-attempt timeout")
	fs.DurationVar(&c.MaxBackoff, "max-backoff", c.MaxBackoff, "Upper bound for the exponential backoff between attempts")
	fs.DurationVar(&c.NoCandidateWait, "no-candidate-wait", c.NoCandidateWait, "Wait before retrying selection when no endpoint is eligible")
	fs.DurationVar(&c.HealthInterval, "health-interval", c.HealthInterval, "Interval between health probe rounds")
	fs.DurationVar(&c.ProbeTimeout, "probe-timeout", c.ProbeTimeout, "Timeout of a single health probe")
	fs.StringVar(&c.SyncSpec, "sync-schedule", c.SyncSpec, "Cron spec for state synchronization")
	fs.StringVar(&c.PruneSpec, "prune-schedule", c.PruneSpec, "Cron spec for request log pruning")
	fs.DurationVar(&c.LogRetention, "log-retention", c.LogRetention, "How long request log entries are kept")
	fs.IntVar(&c.PoolSize, "pool-size", c.PoolSize, "Maximum concurrent dispatches")
	fs.IntVar(&c.RecentLogSize, "recent-log-size", c.RecentLogSize, "Entries kept in memory for /requests/recent")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "Graceful shutdown timeout")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level")
	fs.BoolVar(&c.LogJSON, "log-json", c.LogJSON, "Write logs as JSON instead of console output")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable debug logging")
}

// Orchestrator converts the settings into an orchestrator configuration.
func (c Config) Orchestrator() (orchestrator.Config, error) {
	strategy, err := selector.ParseStrategy(c.Strategy)
	if err != nil {
		return orchestrator.Config{}, fmt.Errorf("%w: strategy: %w", ErrInvalidValue, err)
	}
	if c.MaxRetries < 0 {
		return orchestrator.Config{}, fmt.Errorf("%w: max retries must not be negative", ErrInvalidValue)
	}

	return orchestrator.Config{
		Strategy:        strategy,
		MaxRetries:      c.MaxRetries,
		RequestTimeout:  c.RequestTimeout,
		MaxBackoff:      c.MaxBackoff,
		NoCandidateWait: c.NoCandidateWait,
		PoolSize:        c.PoolSize,
		HealthInterval:  c.HealthInterval,
		ProbeTimeout:    c.ProbeTimeout,
		SyncSpec:        c.SyncSpec,
		PruneSpec:       c.PruneSpec,
		LogRetention:    c.LogRetention,
	}, nil
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(name string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) integer(name string, dst *int) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s%s=%q", ErrInvalidValue, EnvPrefix, name, v))
		return
	}
	*dst = n
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s%s=%q", ErrInvalidValue, EnvPrefix, name, v))
		return
	}
	*dst = d
}

func (e *envReader) boolean(name string, dst *bool) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s%s=%q", ErrInvalidValue, EnvPrefix, name, v))
		return
	}
	*dst = b
}
