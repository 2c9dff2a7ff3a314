// Package scheduler drives the engine's three recurring jobs — risk
// analysis, ground-truth cascade detection, and calibration refit —
// off independent tickers, the same Job-dispatch shape as the
// teacher's internal/scheduler.Scheduler (cron-like Job list driven by
// a single poll Ticker with a checkAndRunJobs dispatch), generalized
// here to one ticker per job type since each runs on its own natural
// cadence rather than sharing a single cron table. Per-symbol fan-out
// within a risk-analysis tick is bounded by a semaphore channel, the
// same shape as the teacher's internal/infrastructure/async.WorkerPool.
// Calibration refits share a golang.org/x/time/rate token bucket
// between the scheduled tick and any operator-forced refit, so a
// manually triggered fit can pull the next one forward but never stack
// concurrent IRLS runs.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sawpanic/cascadeengine/internal/aggregator"
	"github.com/sawpanic/cascadeengine/internal/calibration"
	"github.com/sawpanic/cascadeengine/internal/cascade"
	"github.com/sawpanic/cascadeengine/internal/store"
	"github.com/sawpanic/cascadeengine/internal/stress"
	"github.com/sawpanic/cascadeengine/internal/telemetry/logging"
)

// Config controls the scheduler's three tick cadences and the
// per-tick fan-out bound.
type Config struct {
	PollInterval        time.Duration
	SoftDeadline        time.Duration // risk-analysis ticks slower than this log a warning and bump a counter
	MaxConcurrency      int
	CascadeInterval     time.Duration
	CalibrationInterval time.Duration
	CascadeWindow       time.Duration // lookback fed to GroundTruthSource per cascade tick
	FitConfig           calibration.FitConfig
}

// MetricsSink is the subset of internal/telemetry/metrics.Registry the
// scheduler reports through.
type MetricsSink interface {
	ObserveSchedulerTick(d time.Duration)
	IncSchedulerOverrun()
	ObserveCascadeEvent(symbol, direction string)
}

// LatestCache is the subset of internal/store/cache.LatestCache the
// scheduler write-throughs every persisted assessment into, so readers
// needing only the newest score per symbol never have to hit Postgres.
type LatestCache interface {
	Set(ctx context.Context, symbol string, a stress.RiskAssessment) error
}

// Scheduler owns the three poll loops. It holds no engine-internal
// state itself: all mutable state lives in the injected Engine,
// calibration.Store, and repositories, so Scheduler is safe to
// construct fresh in tests without any symbol partitioning concerns.
type Scheduler struct {
	cfg Config
	log zerolog.Logger

	snapshots    aggregator.SnapshotSource
	groundTruth  aggregator.GroundTruthSource
	engine       *stress.Engine
	scores       store.RiskScoreRepo
	cascades     store.CascadeEventRepo
	calibStore   *calibration.Store
	calibRepo    store.CalibrationRepo
	calibSource  CalibrationSource
	alertSink    AlertSink
	metrics      MetricsSink
	symbols      []string
	cascadeCfg   cascade.Config

	inFlight atomic.Bool

	// calibLimiter bounds how often a calibration refit can actually run,
	// shared between the ticker-driven path and ForceCalibrationRefit; a
	// forced refit spends the same token, so the next scheduled tick
	// inside that interval finds none and skips its refit.
	calibLimiter *rate.Limiter

	cache        LatestCache
	onAssessment func(symbol string, at time.Time)
}

// WithLatestCache attaches an optional write-through cache for the
// newest assessment per symbol. A cache write failure is logged and
// otherwise ignored: it must never block persistence to the repo.
func (s *Scheduler) WithLatestCache(c LatestCache) *Scheduler {
	s.cache = c
	return s
}

// OnAssessment registers a callback invoked once per persisted
// assessment, after the repo upsert. internal/health uses this to
// track each symbol's last-seen timestamp for its staleness check.
func (s *Scheduler) OnAssessment(fn func(symbol string, at time.Time)) {
	s.onAssessment = fn
}

// AlertSink receives a stress.Alert for every assessment at or above
// RiskLevel elevated. internal/broadcast.Hub implements this.
type AlertSink interface {
	Broadcast(a stress.Alert)
}

// CalibrationSource supplies the observed (score, outcome) bins the
// calibration-refit tick fits against.
type CalibrationSource interface {
	Bins(ctx context.Context) ([]calibration.Bin, error)
}

// New constructs a Scheduler. metrics and alertSink may be nil, in
// which case the corresponding reporting step is skipped.
func New(
	cfg Config,
	log zerolog.Logger,
	snapshots aggregator.SnapshotSource,
	groundTruth aggregator.GroundTruthSource,
	engine *stress.Engine,
	scores store.RiskScoreRepo,
	cascades store.CascadeEventRepo,
	calibStore *calibration.Store,
	calibRepo store.CalibrationRepo,
	calibSource CalibrationSource,
	alertSink AlertSink,
	metrics MetricsSink,
	symbols []string,
	cascadeCfg cascade.Config,
) *Scheduler {
	// One token per CalibrationInterval, burst of 1: at most one refit
	// (scheduled or forced) runs per interval; a scheduled tick that finds
	// the token already spent by ForceCalibrationRefit skips its refit.
	refillInterval := cfg.CalibrationInterval
	if refillInterval <= 0 {
		refillInterval = time.Hour
	}
	return &Scheduler{
		cfg:          cfg,
		log:          log,
		snapshots:    snapshots,
		groundTruth:  groundTruth,
		engine:       engine,
		scores:       scores,
		cascades:     cascades,
		calibStore:   calibStore,
		calibRepo:    calibRepo,
		calibSource:  calibSource,
		alertSink:    alertSink,
		metrics:      metrics,
		symbols:      symbols,
		cascadeCfg:   cascadeCfg,
		calibLimiter: rate.NewLimiter(rate.Every(refillInterval), 1),
	}
}

// ForceCalibrationRefit runs a calibration refit immediately, sharing
// the same rate limit as the scheduled ticker so a manual trigger (an
// admin endpoint, an operator CLI) can never cause back-to-back IRLS
// fits. Returns false without fitting if the limiter has no token
// available.
func (s *Scheduler) ForceCalibrationRefit(ctx context.Context) bool {
	if !s.calibLimiter.Allow() {
		s.log.Warn().Msg("forced calibration refit rejected: rate limit exceeded")
		return false
	}
	s.tickCalibrationRefit(ctx)
	return true
}

// Run blocks, driving all three ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		s.loop(ctx, s.cfg.PollInterval, s.tickRiskAnalysis)
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, s.cfg.CascadeInterval, s.tickCascadeDetect)
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, s.cfg.CalibrationInterval, func(tickCtx context.Context) {
			if s.calibLimiter.Allow() {
				s.tickCalibrationRefit(tickCtx)
			}
		})
	}()

	wg.Wait()
	return ctx.Err()
}

// loop runs fn synchronously once per interval tick, so calls from one
// loop never overlap; while fn runs, the ticker holds at most one
// pending tick and drops the rest.
func (s *Scheduler) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// tickRiskAnalysis polls one batch of snapshots, fans it out across a
// bounded worker pool partitioned by symbol, persists every
// assessment, and broadcasts alerts for elevated-or-above risk.
func (s *Scheduler) tickRiskAnalysis(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Warn().Msg("risk analysis tick skipped: previous tick still running")
		return
	}
	defer s.inFlight.Store(false)

	ctx, log := logging.WithCorrelationID(ctx, s.log)
	start := time.Now()

	batch, err := s.snapshots.PollSnapshots(ctx)
	if err != nil {
		log.Error().Err(err).Msg("poll snapshots failed")
		return
	}

	partitions := partitionBySymbol(batch)

	maxConcurrency := s.cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for symbol, snaps := range partitions {
		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string, snaps []stress.SymbolSnapshot) {
			defer wg.Done()
			defer func() { <-sem }()
			s.analyzeSymbolBatch(ctx, log, symbol, snaps)
		}(symbol, snaps)
	}
	wg.Wait()

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveSchedulerTick(elapsed)
	}
	if s.cfg.SoftDeadline > 0 && elapsed > s.cfg.SoftDeadline {
		log.Warn().
			Dur("elapsed", elapsed).
			Dur("soft_deadline", s.cfg.SoftDeadline).
			Msg("risk analysis tick exceeded soft deadline")
		if s.metrics != nil {
			s.metrics.IncSchedulerOverrun()
		}
	}
}

func (s *Scheduler) analyzeSymbolBatch(ctx context.Context, log zerolog.Logger, symbol string, snaps []stress.SymbolSnapshot) {
	assessments := s.engine.Analyze(snaps)
	for _, a := range assessments {
		if s.scores != nil {
			if err := s.scores.Upsert(ctx, symbol, a); err != nil {
				log.Error().Err(err).Str("symbol", symbol).Msg("persist risk score failed")
			}
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, symbol, a); err != nil {
				log.Warn().Err(err).Str("symbol", symbol).Msg("latest-cache write failed")
			}
		}
		if s.onAssessment != nil {
			s.onAssessment(symbol, time.UnixMilli(a.TimestampMs))
		}
		if s.alertSink != nil && isAlertWorthy(a.RiskLevel) {
			s.alertSink.Broadcast(stress.Alert{
				Symbol:     a.Symbol,
				RiskScore:  a.RiskScore,
				RiskLevel:  a.RiskLevel,
				Prediction: a.Prediction,
				At:         time.UnixMilli(a.TimestampMs),
			})
		}
	}
}

func isAlertWorthy(level stress.RiskLevel) bool {
	switch level {
	case stress.LevelElevated, stress.LevelHigh, stress.LevelCritical:
		return true
	default:
		return false
	}
}

func partitionBySymbol(batch []stress.SymbolSnapshot) map[string][]stress.SymbolSnapshot {
	out := make(map[string][]stress.SymbolSnapshot)
	for _, snap := range batch {
		out[snap.Symbol] = append(out[snap.Symbol], snap)
	}
	return out
}

// tickCascadeDetect re-runs ground-truth cascade detection over the
// trailing CascadeWindow for every configured symbol and upserts any
// newly detected events.
func (s *Scheduler) tickCascadeDetect(ctx context.Context) {
	if s.groundTruth == nil || s.cascades == nil {
		return
	}
	ctx, log := logging.WithCorrelationID(ctx, s.log)
	toMs := time.Now().UnixMilli()
	fromMs := toMs - s.cfg.CascadeWindow.Milliseconds()

	for _, symbol := range s.symbols {
		prices, err := s.groundTruth.PriceSeries(ctx, symbol, fromMs, toMs)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("fetch price series failed")
			continue
		}
		liqs, err := s.groundTruth.LiquidationSeries(ctx, symbol, fromMs, toMs)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("fetch liquidation series failed")
			continue
		}

		events := cascade.Detect(symbol, prices, liqs, s.cascadeCfg)
		for _, e := range events {
			if err := s.cascades.Upsert(ctx, e); err != nil {
				log.Error().Err(err).Str("symbol", symbol).Msg("persist cascade event failed")
				continue
			}
			log.Info().
				Str("symbol", e.Symbol).
				Str("direction", string(e.Direction)).
				Int64("start_ms", e.StartTimeMs).
				Int64("end_ms", e.EndTimeMs).
				Float64("price_change_pct", e.PriceChangePct).
				Float64("liquidation_volume_usd", e.LiquidationVolumeUSD).
				Msg("cascade event detected")
			if s.metrics != nil {
				s.metrics.ObserveCascadeEvent(e.Symbol, string(e.Direction))
			}
		}
	}
}

// tickCalibrationRefit fits fresh calibration parameters against
// observed bins and, if the fit converged, swaps the live params and
// persists the report.
func (s *Scheduler) tickCalibrationRefit(ctx context.Context) {
	if s.calibSource == nil || s.calibStore == nil {
		return
	}
	ctx, log := logging.WithCorrelationID(ctx, s.log)
	bins, err := s.calibSource.Bins(ctx)
	if err != nil {
		log.Error().Err(err).Msg("fetch calibration bins failed")
		return
	}

	fitCfg := s.cfg.FitConfig
	if fitCfg.MaxIterations == 0 {
		fitCfg = calibration.DefaultFitConfig()
	}
	report := calibration.Fit(bins, fitCfg)
	if !report.Converged {
		log.Warn().
			Int("total_samples", report.TotalSamples).
			Msg("calibration refit did not converge, keeping prior params")
		return
	}

	s.calibStore.Set(report.Params)
	log.Info().
		Float64("intercept", report.Params.Intercept).
		Float64("coefficient", report.Params.Coefficient).
		Int("iterations", report.Iterations).
		Float64("base_rate", report.BaseRate).
		Msg("calibration refit applied")

	if s.calibRepo != nil {
		if err := s.calibRepo.Save(ctx, time.Now(), report); err != nil {
			log.Error().Err(err).Msg("persist calibration report failed")
		}
	}
}
