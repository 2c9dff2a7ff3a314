// Package metrics exposes the engine's Prometheus instrumentation,
// grounded on internal/interfaces/http/metrics.go's MetricsRegistry
// shape (typed struct of CounterVec/GaugeVec/HistogramVec fields,
// registered once at construction via prometheus.MustRegister).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric the engine emits and implements
// internal/stress.Recorder so the Engine can report directly into it.
type Registry struct {
	RiskScore         *prometheus.HistogramVec
	PredictionsTotal  *prometheus.CounterVec
	ColdStartTotal    *prometheus.CounterVec
	DroppedOutOfOrder *prometheus.CounterVec

	CascadeEventsTotal  *prometheus.CounterVec
	SchedulerTickSeconds prometheus.Histogram
	SchedulerOverruns    prometheus.Counter

	CalibrationFitSeconds prometheus.Histogram
	CalibrationBaseRate   prometheus.Gauge
	CalibrationSampleSize prometheus.Gauge

	BacktestF1        *prometheus.GaugeVec
	BacktestPrecision *prometheus.GaugeVec
	BacktestRecall    *prometheus.GaugeVec
}

// NewRegistry builds and registers every metric exactly once.
func NewRegistry() *Registry {
	r := &Registry{
		RiskScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cascadeengine_risk_score",
				Help:    "Distribution of emitted risk scores (0-100) by symbol",
				Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
			[]string{"symbol"},
		),
		PredictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascadeengine_predictions_total",
				Help: "Total number of squeeze predictions emitted by symbol",
			},
			[]string{"symbol"},
		),
		ColdStartTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascadeengine_cold_start_total",
				Help: "Total number of cold-start scorings by symbol",
			},
			[]string{"symbol"},
		),
		DroppedOutOfOrder: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascadeengine_dropped_out_of_order_total",
				Help: "Total number of snapshots dropped for non-monotonic timestamps by symbol",
			},
			[]string{"symbol"},
		),
		CascadeEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascadeengine_cascade_events_total",
				Help: "Total number of ground-truth cascade events detected by symbol and direction",
			},
			[]string{"symbol", "direction"},
		),
		SchedulerTickSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cascadeengine_scheduler_tick_seconds",
				Help:    "Duration of each scheduler poll tick",
				Buckets: prometheus.DefBuckets,
			},
		),
		SchedulerOverruns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cascadeengine_scheduler_overruns_total",
				Help: "Total number of scheduler ticks that exceeded the soft deadline",
			},
		),
		CalibrationFitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cascadeengine_calibration_fit_seconds",
				Help:    "Duration of each IRLS calibration fit",
				Buckets: prometheus.DefBuckets,
			},
		),
		CalibrationBaseRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cascadeengine_calibration_base_rate",
				Help: "Base rate of positive outcomes in the most recent calibration fit",
			},
		),
		CalibrationSampleSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cascadeengine_calibration_sample_size",
				Help: "Total samples used in the most recent calibration fit",
			},
		),
		BacktestF1: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cascadeengine_backtest_f1",
				Help: "F1 score of the most recent backtest run by symbol set",
			},
			[]string{"run"},
		),
		BacktestPrecision: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cascadeengine_backtest_precision",
				Help: "Precision of the most recent backtest run by symbol set",
			},
			[]string{"run"},
		),
		BacktestRecall: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cascadeengine_backtest_recall",
				Help: "Recall of the most recent backtest run by symbol set",
			},
			[]string{"run"},
		),
	}

	prometheus.MustRegister(
		r.RiskScore,
		r.PredictionsTotal,
		r.ColdStartTotal,
		r.DroppedOutOfOrder,
		r.CascadeEventsTotal,
		r.SchedulerTickSeconds,
		r.SchedulerOverruns,
		r.CalibrationFitSeconds,
		r.CalibrationBaseRate,
		r.CalibrationSampleSize,
		r.BacktestF1,
		r.BacktestPrecision,
		r.BacktestRecall,
	)

	return r
}

// ObserveRiskScore implements internal/stress.Recorder.
func (r *Registry) ObserveRiskScore(symbol string, score int) {
	r.RiskScore.WithLabelValues(symbol).Observe(float64(score))
}

// IncPredictions implements internal/stress.Recorder.
func (r *Registry) IncPredictions(symbol string) {
	r.PredictionsTotal.WithLabelValues(symbol).Inc()
}

// IncColdStart implements internal/stress.Recorder.
func (r *Registry) IncColdStart(symbol string) {
	r.ColdStartTotal.WithLabelValues(symbol).Inc()
}

// IncDroppedOutOfOrder implements internal/stress.Recorder.
func (r *Registry) IncDroppedOutOfOrder(symbol string) {
	r.DroppedOutOfOrder.WithLabelValues(symbol).Inc()
}

// ObserveSchedulerTick implements internal/scheduler.MetricsSink.
func (r *Registry) ObserveSchedulerTick(d time.Duration) {
	r.SchedulerTickSeconds.Observe(d.Seconds())
}

// IncSchedulerOverrun implements internal/scheduler.MetricsSink.
func (r *Registry) IncSchedulerOverrun() {
	r.SchedulerOverruns.Inc()
}

// ObserveCascadeEvent records one detected cascade event.
func (r *Registry) ObserveCascadeEvent(symbol, direction string) {
	r.CascadeEventsTotal.WithLabelValues(symbol, direction).Inc()
}

// ObserveBacktest records the headline metrics of one named backtest run.
func (r *Registry) ObserveBacktest(runLabel string, precision, recall, f1 float64) {
	r.BacktestPrecision.WithLabelValues(runLabel).Set(precision)
	r.BacktestRecall.WithLabelValues(runLabel).Set(recall)
	r.BacktestF1.WithLabelValues(runLabel).Set(f1)
}
