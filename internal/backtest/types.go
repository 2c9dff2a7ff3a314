// Package backtest implements the evaluation driver from spec §4.5: it
// pairs persisted risk scores with detected cascade events through a
// sliding horizon and computes precision/recall/F1/lead-time/Brier and
// threshold-sweep metrics. Grounded on the teacher's
// internal/backtest/smoke90 runner/writer shape (streaming windows,
// confusion-style pass/fail accounting), generalized from momentum
// hit-rate scoring to cascade classification.
package backtest

import "time"

// ScoredPoint is one persisted risk-score observation fed into the
// classifier (spec §4.5 "Loading").
type ScoredPoint struct {
	Symbol      string
	TimestampMs int64
	RiskScore   int
	Confidence  float64
}

// CascadeStart is the minimal cascade-event projection the driver
// needs: symbol + start time, sorted ascending per symbol.
type CascadeStart struct {
	Symbol      string
	StartTimeMs int64
}

// Config parameterizes one backtest run (spec §4.5's `run` args).
type Config struct {
	Symbols              []string // empty means "all symbols returned by the source"
	StartMs              int64
	EndMs                int64
	ScoreThreshold       int
	ConfidenceThreshold  float64
	HorizonMin           int
	PageSize             int
}

// DefaultPageSize matches spec §4.5's "fixed page size (e.g., 50,000)".
const DefaultPageSize = 50000

// ConfusionMatrix holds raw counts; all derived metrics are computed
// from these via the safe-division helper in internal/numeric.
type ConfusionMatrix struct {
	TP, FP, FN, TN int
}

// Baseline holds the naive-classifier comparison metrics.
type Baseline struct {
	RandomF1 float64
	NaiveF1  float64 // always 0, per spec
}

// Result is the full output of one backtest run.
type Result struct {
	Precision        float64
	Recall           float64
	F1               float64
	FPR              float64
	AvgLeadTimeMin   float64
	Confusion        ConfusionMatrix
	TotalPoints      int
	CascadesInWindow int
	PredictionRate   float64
	BaseRate         float64
	Baseline         Baseline
	BrierScore       float64
	CalibrationCurve []CalibrationCurvePoint
}

// CalibrationCurvePoint is one decile bin of the reliability diagram:
// the mean predicted confidence against the observed cascade rate for
// every scored point whose RiskScore falls in [ScoreBin, ScoreBin+10),
// except that the top bin (ScoreBin 90) also holds scores of 100.
type CalibrationCurvePoint struct {
	ScoreBin       int
	MeanConfidence float64
	ObservedRate   float64
	Count          int
}

// brierAccumulator tracks the running sum of squared probability
// errors (predicted confidence vs. the 0/1 outcome) needed for the
// Brier score.
type brierAccumulator struct {
	sumSquaredError float64
	count           int
}

func (b *brierAccumulator) add(confidence float64, actual bool) {
	outcome := 0.0
	if actual {
		outcome = 1.0
	}
	diff := confidence - outcome
	b.sumSquaredError += diff * diff
	b.count++
}

func (b *brierAccumulator) score() float64 {
	if b.count == 0 {
		return 0
	}
	return b.sumSquaredError / float64(b.count)
}

// calibrationCurveAccumulator buckets scored points into ten
// score-width deciles to build the reliability diagram.
type calibrationCurveAccumulator struct {
	bins [10]curveBin
}

type curveBin struct {
	sumConfidence float64
	positives     int
	count         int
}

func (c *calibrationCurveAccumulator) add(score int, confidence float64, actual bool) {
	idx := score / 10
	if idx < 0 {
		idx = 0
	}
	if idx > 9 {
		idx = 9
	}
	b := &c.bins[idx]
	b.sumConfidence += confidence
	b.count++
	if actual {
		b.positives++
	}
}

func (c *calibrationCurveAccumulator) points() []CalibrationCurvePoint {
	out := make([]CalibrationCurvePoint, 0, len(c.bins))
	for i, b := range c.bins {
		if b.count == 0 {
			continue
		}
		out = append(out, CalibrationCurvePoint{
			ScoreBin:       i * 10,
			MeanConfidence: b.sumConfidence / float64(b.count),
			ObservedRate:   float64(b.positives) / float64(b.count),
			Count:          b.count,
		})
	}
	return out
}

// leadAccumulator tracks the running sum needed for avg_lead_time_min.
type leadAccumulator struct {
	sumMs time.Duration
	count int
}

func (l *leadAccumulator) add(d time.Duration) {
	l.sumMs += d
	l.count++
}

func (l *leadAccumulator) avgMinutes() float64 {
	if l.count == 0 {
		return 0
	}
	return float64(l.sumMs) / float64(l.count) / float64(time.Minute)
}
