package main

import (
	"context"
	"flag"
	"os"
	"time"

	"apiorch/pkg/config"
	"apiorch/pkg/log"
	"apiorch/pkg/metrics"
	"apiorch/pkg/orchestrator"
	"apiorch/pkg/requestlog"
	"apiorch/pkg/server"
	"apiorch/pkg/store/redisstore"
	"apiorch/pkg/store/sqlstore"
)

const startupTimeout = 30 * time.Second

func main() {
	// Initialize logger
	_ = log.Logger

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Parse command-line flags; environment values become the flag defaults
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	// Configure logger
	if cfg.LogJSON {
		log.UseJSON()
	}
	log.SetLevel(cfg.LogLevel)
	if cfg.Debug {
		log.SetDebugMode()
		log.Debug().Msg("Debug mode enabled")
	}

	orchCfg, err := cfg.Orchestrator()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	store, err := sqlstore.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", cfg.DBPath).Msg("Failed to open endpoint database")
	}

	if cfg.SeedFile != "" {
		seedEndpoints(ctx, store, cfg.SeedFile)
	}

	recent := requestlog.NewMemorySink(cfg.RecentLogSize)
	stateSinks := []metrics.StateSink{store}
	logSinks := []requestlog.Sink{store, recent}

	var mirror *redisstore.Store
	if cfg.RedisAddr != "" {
		mirror, err = redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPrefix)
		if err != nil {
			log.Fatal().Err(err).Str("redis_addr", cfg.RedisAddr).Msg("Failed to connect to redis")
		}
		stateSinks = append(stateSinks, mirror)
		logSinks = append(logSinks, mirror)
		log.Info().Str("redis_addr", cfg.RedisAddr).Str("prefix", cfg.RedisPrefix).Msg("Mirroring state to redis")
	}

	orch := orchestrator.New(store, orchCfg, log.Logger,
		orchestrator.WithStateSinks(stateSinks...),
		orchestrator.WithLogSinks(logSinks...),
	)
	if err := orch.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start orchestrator")
	}

	log.Info().
		Str("strategy", orchCfg.Strategy.String()).
		Int("max_retries", orchCfg.MaxRetries).
		Dur("health_interval", orchCfg.HealthInterval).
		Dur("request_timeout", orchCfg.RequestTimeout).
		Msg("Configured orchestrator")

	srv := server.NewServer(orch, recent, cfg.ShutdownTimeout)
	code := 0
	if err := srv.Start(cfg.ListenAddr); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		code = 1
	}

	cancel()
	if mirror != nil {
		mirror.Close()
	}
	store.Close()
	os.Exit(code)
}

func seedEndpoints(ctx context.Context, store *sqlstore.Store, path string) {
	endpoints, err := sqlstore.LoadSeedFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("seed", path).Msg("Failed to read seed file")
	}
	for _, ep := range endpoints {
		if _, err := store.UpsertEndpoint(ctx, ep); err != nil {
			log.Fatal().Err(err).Str("endpoint", ep.Name).Msg("Failed to seed endpoint")
		}
	}
	log.Info().Int("count", len(endpoints)).Str("seed", path).Msg("Seeded endpoints")
}
