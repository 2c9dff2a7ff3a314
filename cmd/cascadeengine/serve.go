package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/cascadeengine/internal/aggregator"
	"github.com/sawpanic/cascadeengine/internal/broadcast"
	"github.com/sawpanic/cascadeengine/internal/health"
	"github.com/sawpanic/cascadeengine/internal/scheduler"
	"github.com/sawpanic/cascadeengine/internal/store"
	"github.com/sawpanic/cascadeengine/internal/stress"
	"github.com/sawpanic/cascadeengine/internal/telemetry/metrics"
)

// runServe wires every engine component and blocks until SIGINT/SIGTERM,
// grounded on the teacher's runMonitor (HTTP server for /health and
// /metrics) generalized to also host /ws and drive the scheduler.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	r, err := openRepos(cfg)
	if err != nil {
		return err
	}
	defer r.closeFn()

	snapshotCache := openCache(cfg)
	if snapshotCache != nil {
		defer snapshotCache.Close()
	}

	reg := metrics.NewRegistry()
	calibStore := newCalibrationStore(context.Background(), r.calibration, cfg.ToStressConfig().CalibrationPrior, logger)
	engine := stress.New(cfg.ToStressConfig(), calibStore, logger, reg)
	hub := broadcast.NewHub(logger)

	// No real exchange feed is wired in this release: the aggregator
	// package is an interface-only boundary (spec non-goal), so `serve`
	// drives the scheduler off a Fake until a real SnapshotSource lands.
	feed := aggregator.NewFake()

	backtestSource := store.BacktestSource{Scores: r.scores, Cascades: r.cascades}
	const calibrationHorizonMin = 240 // same default horizon as the backtest/calibrate --horizon-min flag
	calibSource := store.CalibrationBinSource{
		Source:     backtestSource,
		Lookback:   90 * 24 * time.Hour,
		HorizonMin: calibrationHorizonMin,
		PageSize:   5000,
	}

	sched := scheduler.New(
		cfg.ToSchedulerConfig(),
		logger,
		feed,
		feed,
		engine,
		r.scores,
		r.cascades,
		calibStore,
		r.calibration,
		calibSource,
		hub,
		reg,
		cfg.Symbols,
		cfg.ToCascadeConfig(),
	)

	if snapshotCache != nil {
		sched.WithLatestCache(snapshotCache)
	}

	lastSeen := newLastSeenTracker()
	sched.OnAssessment(lastSeen.observe)

	checks := []health.Check{}
	if cfg.Database.DSN != "" {
		checks = append(checks, health.Check{Name: "postgres", Probe: func(ctx context.Context) error {
			return nil // repos hide *sqlx.DB; a broken connection surfaces through scheduler errors instead
		}})
	}
	healthHandler := health.New(cfg.Symbols, time.Duration(cfg.Scheduler.PollIntervalSec)*3*time.Second, lastSeen.lastSeen, checks...)

	mux := http.NewServeMux()
	mux.Handle("/healthz", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", hub.ServeHTTP)

	addr, _ := cmd.Flags().GetString("addr")
	httpServer := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	go func() {
		defer wg.Done()
		if err := sched.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("scheduler stopped with error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	wg.Wait()
	return nil
}

// lastSeenTracker is the in-memory map the scheduler's OnAssessment hook
// populates for internal/health's LastSeenFunc, keeping health decoupled
// from the store package.
type lastSeenTracker struct {
	mu sync.Mutex
	at map[string]time.Time
}

func newLastSeenTracker() *lastSeenTracker {
	return &lastSeenTracker{at: make(map[string]time.Time)}
}

func (t *lastSeenTracker) observe(symbol string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.at[symbol] = at
}

func (t *lastSeenTracker) lastSeen(symbol string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.at[symbol]
	return at, ok
}
