package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sawpanic/cascadeengine/internal/calibration"
	"github.com/sawpanic/cascadeengine/internal/config"
	"github.com/sawpanic/cascadeengine/internal/store"
	"github.com/sawpanic/cascadeengine/internal/store/cache"
	"github.com/sawpanic/cascadeengine/internal/store/memory"
	"github.com/sawpanic/cascadeengine/internal/store/postgres"
	"github.com/sawpanic/cascadeengine/internal/telemetry/logging"
)

// repos bundles the three persisted-store repositories plus the
// optional Postgres handle they share, so callers can Close it on exit.
type repos struct {
	scores      store.RiskScoreRepo
	cascades    store.CascadeEventRepo
	calibration store.CalibrationRepo
	closeFn     func() error
}

// loadConfig reads --config if set, otherwise returns config.Default().
func loadConfig(cmd *cobra.Command) (config.EngineConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// newLogger builds the process logger from the --log-level/--log-pretty
// persistent flags, the same zerolog.Options the teacher seeds its CLI
// logger with.
func newLogger(cmd *cobra.Command, cfg config.EngineConfig) zerolog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	pretty, _ := cmd.Flags().GetBool("log-pretty")
	if level == "" {
		level = cfg.Logging.Level
	}
	return logging.New(logging.Options{Level: level, Pretty: pretty})
}

// openRepos selects Postgres when cfg.Database.DSN is set, falling back
// to the dependency-free in-memory repos for local runs and tests.
func openRepos(cfg config.EngineConfig) (repos, error) {
	if cfg.Database.DSN == "" {
		return repos{
			scores:      memory.NewRiskScoreRepo(),
			cascades:    memory.NewCascadeEventRepo(),
			calibration: memory.NewCalibrationRepo(),
			closeFn:     func() error { return nil },
		}, nil
	}

	db, err := postgres.Open(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifeMin)*time.Minute,
	)
	if err != nil {
		return repos{}, fmt.Errorf("opening postgres: %w", err)
	}

	timeout := 5 * time.Second
	return repos{
		scores:      postgres.NewRiskScoreRepo(db, timeout),
		cascades:    postgres.NewCascadeEventRepo(db, timeout),
		calibration: postgres.NewCalibrationRepo(db, timeout),
		closeFn:     db.Close,
	}, nil
}

// openCache constructs the optional Redis latest-snapshot cache; nil
// when no address is configured (the scheduler tolerates a nil cache).
func openCache(cfg config.EngineConfig) *cache.LatestCache {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, time.Duration(cfg.Redis.TTLSec)*time.Second)
}

// newCalibrationStore seeds the live calibration.Store from the most
// recent persisted fit report, falling back to the configured prior
// when nothing has been fit yet.
func newCalibrationStore(ctx context.Context, r store.CalibrationRepo, prior calibration.Params, log zerolog.Logger) *calibration.Store {
	latest, err := r.Latest(ctx)
	if err == nil && latest != nil {
		return calibration.NewStore(latest.Params)
	}
	log.Info().Msg("no persisted calibration report found, starting from the configured prior")
	return calibration.NewStore(prior)
}
