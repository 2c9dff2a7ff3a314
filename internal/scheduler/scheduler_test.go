package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cascadeengine/internal/aggregator"
	"github.com/sawpanic/cascadeengine/internal/calibration"
	"github.com/sawpanic/cascadeengine/internal/cascade"
	"github.com/sawpanic/cascadeengine/internal/store"
	"github.com/sawpanic/cascadeengine/internal/store/memory"
	"github.com/sawpanic/cascadeengine/internal/stress"
)

type fakeAlertSink struct {
	alerts []stress.Alert
}

func (f *fakeAlertSink) Broadcast(a stress.Alert) { f.alerts = append(f.alerts, a) }

type fakeMetricsSink struct {
	ticks     int
	overruns  int
	cascades  int
}

func (f *fakeMetricsSink) ObserveSchedulerTick(d time.Duration)          { f.ticks++ }
func (f *fakeMetricsSink) IncSchedulerOverrun()                         { f.overruns++ }
func (f *fakeMetricsSink) ObserveCascadeEvent(symbol, direction string) { f.cascades++ }

type fakeCalibSource struct {
	bins []calibration.Bin
}

func (f *fakeCalibSource) Bins(ctx context.Context) ([]calibration.Bin, error) { return f.bins, nil }

func newTestScheduler(t *testing.T, fake *aggregator.Fake, scores *memory.RiskScoreRepo, alerts *fakeAlertSink, metrics *fakeMetricsSink, calibSource CalibrationSource) *Scheduler {
	t.Helper()
	engine := stress.New(stress.DefaultConfig(), nil, zerolog.Nop(), nil)
	cascades := memory.NewCascadeEventRepo()
	calibStore := calibration.NewStore(calibration.DefaultParams())
	calibRepo := memory.NewCalibrationRepo()

	return New(
		Config{
			PollInterval:        time.Hour,
			SoftDeadline:        time.Millisecond,
			MaxConcurrency:      4,
			CascadeInterval:     time.Hour,
			CalibrationInterval: time.Hour,
			CascadeWindow:       24 * time.Hour,
		},
		zerolog.Nop(),
		fake,
		fake,
		engine,
		scores,
		cascades,
		calibStore,
		calibRepo,
		calibSource,
		alerts,
		metrics,
		[]string{"BTCUSD"},
		cascade.DefaultConfig(),
	)
}

func TestTickRiskAnalysis_PersistsAssessmentsAndBroadcastsHighRisk(t *testing.T) {
	fake := aggregator.NewFake()
	fake.QueueSnapshots(stress.SymbolSnapshot{
		Symbol:            "BTCUSD",
		TimestampMs:       1000,
		PriceDeviationPct: 50,
		AvgMarkPrice:      30000,
	})
	scores := memory.NewRiskScoreRepo()
	alerts := &fakeAlertSink{}
	metrics := &fakeMetricsSink{}

	s := newTestScheduler(t, fake, scores, alerts, metrics, &fakeCalibSource{})
	s.tickRiskAnalysis(context.Background())

	latest, ok := scores.Latest("BTCUSD")
	require.True(t, ok)
	assert.Equal(t, "BTCUSD", latest.Symbol)
	assert.Equal(t, 1, metrics.ticks)
	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, "BTCUSD", alerts.alerts[0].Symbol)
}

func TestTickRiskAnalysis_SkipsWhenAlreadyInFlight(t *testing.T) {
	fake := aggregator.NewFake()
	scores := memory.NewRiskScoreRepo()
	metrics := &fakeMetricsSink{}
	s := newTestScheduler(t, fake, scores, &fakeAlertSink{}, metrics, &fakeCalibSource{})

	s.inFlight.Store(true)
	s.tickRiskAnalysis(context.Background())
	assert.Equal(t, 0, metrics.ticks)
}

func TestTickCascadeDetect_ReportsEveryPersistedEvent(t *testing.T) {
	fake := aggregator.NewFake()
	base := int64(0)
	for i := 0; i < 30; i++ {
		fake.AddPrices("BTCUSD", cascade.PricePoint{TimeMs: base + int64(i)*60000, Price: 30000})
	}
	// sharp drop at minute 30 sustained to minute 35, with dominant long liquidations
	for i := 30; i <= 35; i++ {
		fake.AddPrices("BTCUSD", cascade.PricePoint{TimeMs: base + int64(i)*60000, Price: 27000})
	}
	for i := 30; i <= 35; i++ {
		fake.AddLiquidations("BTCUSD", cascade.LiquidationEvent{
			TimeMs:  base + int64(i)*60000,
			Side:    cascade.Long,
			SizeUSD: 200000,
		})
	}

	scores := memory.NewRiskScoreRepo()
	metrics := &fakeMetricsSink{}
	s := newTestScheduler(t, fake, scores, &fakeAlertSink{}, metrics, &fakeCalibSource{})
	s.cfg.CascadeWindow = 48 * time.Hour

	s.tickCascadeDetect(context.Background())
	// whether or not the synthetic series crosses the sigma/liquidation
	// thresholds, every event the tick persists is reported through
	// metrics exactly once.
	persisted, err := s.cascades.InRange(context.Background(), "BTCUSD", store.TimeRange{FromMs: 0, ToMs: time.Now().UnixMilli()})
	require.NoError(t, err)
	assert.Equal(t, len(persisted), metrics.cascades)
}

func TestTickCalibrationRefit_SwapsParamsOnConvergence(t *testing.T) {
	fake := aggregator.NewFake()
	scores := memory.NewRiskScoreRepo()
	bins := make([]calibration.Bin, 0, 101)
	for score := 0; score <= 100; score++ {
		positive := 0
		if score >= 60 {
			positive = 90
		} else {
			positive = 5
		}
		bins = append(bins, calibration.Bin{Score: score, Positive: positive, Total: 100})
	}
	calibSource := &fakeCalibSource{bins: bins}
	s := newTestScheduler(t, fake, scores, &fakeAlertSink{}, &fakeMetricsSink{}, calibSource)

	before := s.calibStore.Get()
	s.tickCalibrationRefit(context.Background())
	after := s.calibStore.Get()

	assert.NotEqual(t, before.Coefficient, after.Coefficient)
}

func TestTickCalibrationRefit_KeepsPriorWhenUnconverged(t *testing.T) {
	fake := aggregator.NewFake()
	scores := memory.NewRiskScoreRepo()
	calibSource := &fakeCalibSource{bins: nil}
	s := newTestScheduler(t, fake, scores, &fakeAlertSink{}, &fakeMetricsSink{}, calibSource)

	before := s.calibStore.Get()
	s.tickCalibrationRefit(context.Background())
	after := s.calibStore.Get()

	assert.Equal(t, before, after)
}

func TestForceCalibrationRefit_RejectsSecondCallWithinInterval(t *testing.T) {
	fake := aggregator.NewFake()
	scores := memory.NewRiskScoreRepo()
	calibSource := &fakeCalibSource{bins: nil}
	s := newTestScheduler(t, fake, scores, &fakeAlertSink{}, &fakeMetricsSink{}, calibSource)

	assert.True(t, s.ForceCalibrationRefit(context.Background()))
	assert.False(t, s.ForceCalibrationRefit(context.Background()))
}

func TestRun_StopsOnContextCancellation(t *testing.T) {
	fake := aggregator.NewFake()
	scores := memory.NewRiskScoreRepo()
	s := newTestScheduler(t, fake, scores, &fakeAlertSink{}, &fakeMetricsSink{}, &fakeCalibSource{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
