package stress

import (
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sawpanic/cascadeengine/internal/calibration"
	"github.com/sawpanic/cascadeengine/internal/numeric"
)

// volRegime is the internal volatility-of-stress classification.
type volRegime int

const (
	regimeLow volRegime = iota
	regimeMedium
	regimeHigh
)

// Recorder is the optional telemetry sink the Engine reports through.
// Left nil, the Engine is a pure function with no side effects, which
// is what every unit test in this package relies on; a non-nil
// Recorder is wired in by cmd/cascadeengine for Prometheus metrics.
type Recorder interface {
	ObserveRiskScore(symbol string, score int)
	IncPredictions(symbol string)
	IncColdStart(symbol string)
	IncDroppedOutOfOrder(symbol string)
}

// Engine owns one symbolState per symbol and implements spec §4.2's
// Analyze/ToPredictions operations. The symbol->state map is
// partitioned by an external caller (internal/scheduler) rather than
// locked globally: Engine itself only guards the map's existence
// checks, never a whole-state critical section (spec §5).
type Engine struct {
	cfg      Config
	calib    *calibration.Store
	log      zerolog.Logger
	recorder Recorder

	mu     sync.Mutex
	states map[string]*symbolState
}

// New constructs an Engine. calib may be nil, in which case the
// engine's own cfg.CalibrationPrior is used as a fixed, never-updated
// source of confidence.
func New(cfg Config, calib *calibration.Store, log zerolog.Logger, recorder Recorder) *Engine {
	if calib == nil {
		calib = calibration.NewStore(cfg.CalibrationPrior)
	}
	return &Engine{
		cfg:      cfg,
		calib:    calib,
		log:      log,
		recorder: recorder,
		states:   make(map[string]*symbolState),
	}
}

// Analyze processes a batch of snapshots (any symbol mix, any order
// across symbols) and returns one RiskAssessment per snapshot that was
// not dropped as out-of-order.
func (e *Engine) Analyze(batch []SymbolSnapshot) []RiskAssessment {
	out := make([]RiskAssessment, 0, len(batch))
	for _, snap := range batch {
		if a, ok := e.analyzeOne(snap); ok {
			out = append(out, a)
		}
	}
	return out
}

// ToPredictions filters a slice of assessments to those carrying a
// non-nil Prediction.
func ToPredictions(assessments []RiskAssessment) []Prediction {
	out := make([]Prediction, 0, len(assessments))
	for _, a := range assessments {
		if a.Prediction != nil {
			out = append(out, *a.Prediction)
		}
	}
	return out
}

func (e *Engine) stateFor(symbol string) *symbolState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[symbol]
	if !ok {
		st = newSymbolState(e.cfg.HistoryLength)
		e.states[symbol] = st
	}
	return st
}

func (e *Engine) analyzeOne(snap SymbolSnapshot) (RiskAssessment, bool) {
	st := e.stateFor(snap.Symbol)

	if st.hasLastTs && snap.TimestampMs <= st.lastTsMs {
		e.log.Warn().
			Str("symbol", snap.Symbol).
			Int64("timestamp_ms", snap.TimestampMs).
			Int64("last_timestamp_ms", st.lastTsMs).
			Msg("dropping out-of-order snapshot")
		if e.recorder != nil {
			e.recorder.IncDroppedOutOfOrder(snap.Symbol)
		}
		return RiskAssessment{}, false
	}

	s := numeric.SafeFloat(snap.PriceDeviationPct)
	if s < 0 {
		s = 0
	}

	st.spreadBuf.Push(s)

	mean := st.spreadBuf.Mean()
	stddev := st.spreadBuf.StdDev()
	z := 0.0
	if stddev > 0 {
		z = (s - mean) / stddev
	}
	st.zScoreBuf.Push(z)

	if e.cfg.EnableLiquidityAdjustment {
		st.oiBuf.Push(numeric.SafeFloat(snap.TotalOpenInterestUSD))
	}

	warm := st.spreadBuf.Len() >= e.cfg.MinHistoryLength

	var riskScore int
	var elevated, high, critical float64
	var mult float64

	if !warm {
		if e.recorder != nil {
			e.recorder.IncColdStart(snap.Symbol)
		}
		elevated, high, critical = e.cfg.ColdStart.Elevated, e.cfg.ColdStart.High, e.cfg.ColdStart.Critical
		riskScore = coldScore(s, elevated, high, critical)
	} else {
		regime, _ := e.volatilityRegime(st)
		mult = e.multiplierFor(regime)

		elevated = st.spreadBuf.Quantile(e.cfg.ThresholdPercentiles.Elevated) * mult
		high = st.spreadBuf.Quantile(e.cfg.ThresholdPercentiles.High) * mult
		critical = st.spreadBuf.Quantile(e.cfg.ThresholdPercentiles.Critical) * mult

		raw := numeric.Round(z * e.cfg.ZScoreScaling)
		riskScore = int(numeric.Clamp(raw, 0, 100))
	}

	level := classifyLevel(s, riskScore, elevated, high, critical)

	if e.cfg.EnableLiquidityAdjustment && st.oiBuf.Len() >= 60 {
		median := st.oiBuf.Quantile(0.5)
		if median > 0 {
			adj := float64(riskScore) * sqrtSafe(numeric.SafeFloat(snap.TotalOpenInterestUSD)/median)
			riskScore = int(numeric.Clamp(numeric.Round(adj), 0, 100))
		}
	}

	calib := e.calib.Get()
	confidence := numeric.Sigmoid(calib.Intercept + calib.Coefficient*float64(riskScore))

	var prediction *Prediction
	if riskScore >= e.cfg.PredictionMinScore {
		prediction = e.buildPrediction(snap, riskScore, z, calib)
		if e.recorder != nil {
			e.recorder.IncPredictions(snap.Symbol)
		}
	}

	if e.recorder != nil {
		e.recorder.ObserveRiskScore(snap.Symbol, riskScore)
	}

	st.lastTsMs = snap.TimestampMs
	st.hasLastTs = true

	return RiskAssessment{
		Symbol:      snap.Symbol,
		TimestampMs: snap.TimestampMs,
		RiskScore:   riskScore,
		RiskLevel:   level,
		Confidence:  confidence,
		Factors: []Factor{
			{Name: "price_deviation_pct", Value: s},
			{Name: "z_score", Value: z},
			{Name: "elevated_threshold", Value: elevated},
			{Name: "high_threshold", Value: high},
			{Name: "critical_threshold", Value: critical},
			{Name: "vol_multiplier", Value: mult},
		},
		Prediction: prediction,
	}, true
}

// coldScore implements the piecewise-linear cold-path score mapping
// from spec §4.2 step 3.
func coldScore(s, elevated, high, critical float64) int {
	switch {
	case s < elevated:
		return int(numeric.Round(numeric.SafeDiv(s, elevated) * 40))
	case s < high:
		frac := numeric.SafeDiv(s-elevated, high-elevated)
		return int(numeric.Round(40 + frac*20))
	case s < critical:
		frac := numeric.SafeDiv(s-high, critical-high)
		return int(numeric.Round(60 + frac*20))
	default:
		extra := numeric.SafeDiv(s-critical, critical)
		score := 80 + extra*20
		return int(numeric.Clamp(numeric.Round(score), 80, 100))
	}
}

// classifyLevel applies spec §4.2 step 7's first-satisfied-wins rule.
func classifyLevel(s float64, riskScore int, elevated, high, critical float64) RiskLevel {
	switch {
	case s >= critical:
		return LevelCritical
	case s >= high:
		return LevelHigh
	case s >= elevated:
		return LevelElevated
	case riskScore >= 20:
		return LevelModerate
	default:
		return LevelLow
	}
}

// volatilityRegime classifies vol_of_stress (stddev of the z-score
// buffer's recent tail) against the z-score buffer's own tercile
// quantiles. This preserves the source behavior flagged as an open
// question in spec §9 option (b): comparing a std-of-recent-zscores
// scalar against quantiles of the full z-score distribution, rather
// than against quantiles of a vol-of-stress series. See DESIGN.md.
func (e *Engine) volatilityRegime(st *symbolState) (volRegime, float64) {
	tail := st.zScoreBuf.Tail(e.cfg.VolLookback)
	volOfStress := stdDevOf(tail)

	lowBound := st.zScoreBuf.Quantile(e.cfg.VolRegimePercentiles.LowHigh)
	highBound := st.zScoreBuf.Quantile(e.cfg.VolRegimePercentiles.HighLow)

	switch {
	case volOfStress < lowBound:
		return regimeLow, volOfStress
	case volOfStress >= highBound:
		return regimeHigh, volOfStress
	default:
		return regimeMedium, volOfStress
	}
}

func (e *Engine) multiplierFor(r volRegime) float64 {
	switch r {
	case regimeLow:
		return e.cfg.VolMultipliers.Low
	case regimeHigh:
		return e.cfg.VolMultipliers.High
	default:
		return e.cfg.VolMultipliers.Medium
	}
}

func (e *Engine) buildPrediction(snap SymbolSnapshot, riskScore int, z float64, calib calibration.Params) *Prediction {
	direction := ShortSqueeze
	if snap.AvgFundingRate > 0 {
		direction = LongSqueeze
	}

	probability := numeric.Clamp(numeric.Sigmoid(calib.Intercept+calib.Coefficient*float64(riskScore)), 0.05, 0.95)

	severity := float64(riskScore) / 100
	liquidationPct := 0.03 + severity*0.07

	totalOI := numeric.SafeFloat(snap.TotalOpenInterestUSD)
	estimatedImpact := 0.0
	if totalOI > 0 {
		estimatedImpact = totalOI * liquidationPct
	}

	distance := numeric.Clamp(6-severity*4, 2, 6)

	basePrice := snap.AvgMarkPrice
	if snap.OraclePrice != nil {
		basePrice = *snap.OraclePrice
	}
	basePrice = numeric.SafeFloat(basePrice)

	var triggerPrice float64
	if basePrice > 0 {
		if direction == LongSqueeze {
			triggerPrice = basePrice * (1 - distance/100)
		} else {
			triggerPrice = basePrice * (1 + distance/100)
		}
	}

	window := Window12To24h
	absZ := z
	if absZ < 0 {
		absZ = -absZ
	}
	switch {
	case absZ >= 3:
		window = Window1To4h
	case absZ >= 2:
		window = Window4To12h
	}

	return &Prediction{
		Direction:          direction,
		Probability:        probability,
		EstimatedImpactUSD: estimatedImpact,
		TimeWindow:         window,
		TriggerPrice:       triggerPrice,
		TriggerDistancePct: distance,
	}
}

func stdDevOf(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum, sumSq float64
	for _, x := range xs {
		sum += x
		sumSq += x * x
	}
	n := float64(len(xs))
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return sqrtSafe(variance)
}

func sqrtSafe(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Sqrt(x)
}
