// Package stress implements the per-symbol online stress engine: the
// cold/warm-gated risk score, volatility-regime classification, and
// squeeze prediction described in spec §4.2. Grounded on the teacher's
// internal/domain/premove (per-symbol candidate analysis shape) and
// internal/score/composite (gated score assembly), generalized from
// pre-movement gate scoring to the cascade-risk scoring pipeline.
package stress

import "time"

// SymbolSnapshot is the per-symbol, per-tick input produced by the
// external aggregator (out of scope for this core; see
// internal/aggregator for the consumed interface).
type SymbolSnapshot struct {
	Symbol               string
	TimestampMs          int64
	OraclePrice          *float64 // nil when unavailable
	AvgMarkPrice         float64
	PriceDeviationPct    float64 // percent, primary stress signal
	TotalOpenInterestUSD float64
	AvgFundingRate       float64 // fraction, 8h-normalized
}

// RiskLevel is the coarse classification of a RiskAssessment.
type RiskLevel string

const (
	LevelLow      RiskLevel = "low"
	LevelModerate RiskLevel = "moderate"
	LevelElevated RiskLevel = "elevated"
	LevelHigh     RiskLevel = "high"
	LevelCritical RiskLevel = "critical"
)

// Direction is the squeeze direction of a Prediction.
type Direction string

const (
	LongSqueeze  Direction = "long_squeeze"
	ShortSqueeze Direction = "short_squeeze"
)

// TimeWindow buckets a prediction's expected onset.
type TimeWindow string

const (
	Window1To4h   TimeWindow = "1-4h"
	Window4To12h  TimeWindow = "4-12h"
	Window12To24h TimeWindow = "12-24h"
)

// Factor is a single diagnostic triple surfaced for the UI.
type Factor struct {
	Name  string
	Value float64
	Note  string
}

// Prediction is the optional directional squeeze forecast attached to
// a RiskAssessment whose RiskScore reaches Config.PredictionMinScore.
type Prediction struct {
	Direction           Direction
	Probability         float64
	EstimatedImpactUSD  float64
	TimeWindow          TimeWindow
	TriggerPrice        float64
	TriggerDistancePct  float64
}

// RiskAssessment is the per-symbol, per-tick output of Analyze.
type RiskAssessment struct {
	Symbol      string
	TimestampMs int64
	RiskScore   int // 0..100
	RiskLevel   RiskLevel
	Confidence  float64 // calibrated P, 0..1
	Factors     []Factor
	Prediction  *Prediction // nil unless RiskScore >= PredictionMinScore
}

// Alert is emitted alongside elevated/high/critical assessments for
// the broadcast channel (spec §6).
type Alert struct {
	Symbol     string
	RiskScore  int
	RiskLevel  RiskLevel
	Prediction *Prediction
	At         time.Time
}
