package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/cascadeengine/internal/numeric"
)

// Run executes one backtest per spec §4.5: it streams scored points
// for each symbol, classifies every point against the sorted cascade
// starts for that symbol via a horizon window, and micro-averages the
// resulting confusion matrix across symbols.
func Run(ctx context.Context, scores ScoreSource, cascades CascadeSource, symbols SymbolLister, cfg Config, log zerolog.Logger) (Result, error) {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	horizonMs := int64(cfg.HorizonMin) * int64(time.Minute/time.Millisecond)

	symbolList := cfg.Symbols
	if len(symbolList) == 0 {
		var err error
		symbolList, err = symbols.DistinctSymbols(ctx, cfg.StartMs, cfg.EndMs)
		if err != nil {
			return Result{}, fmt.Errorf("backtest: listing symbols: %w", err)
		}
	}

	var matrix ConfusionMatrix
	var lead leadAccumulator
	var brier brierAccumulator
	var curve calibrationCurveAccumulator
	cascadeCount := 0

	for _, symbol := range symbolList {
		starts, err := cascades.CascadesInRange(ctx, symbol, cfg.StartMs, cfg.EndMs)
		if err != nil {
			return Result{}, fmt.Errorf("backtest: loading cascades for %s: %w", symbol, err)
		}
		sort.Slice(starts, func(i, j int) bool { return starts[i].StartTimeMs < starts[j].StartTimeMs })
		cascadeCount += len(starts)

		startTimes := make([]int64, len(starts))
		for i, s := range starts {
			startTimes[i] = s.StartTimeMs
		}

		cursor := ""
		for {
			page, err := scores.PageScores(ctx, symbol, cfg.StartMs, cfg.EndMs, cursor, pageSize)
			if err != nil {
				return Result{}, fmt.Errorf("backtest: paging scores for %s: %w", symbol, err)
			}
			for _, p := range page.Points {
				classifyPoint(p, startTimes, horizonMs, cfg, &matrix, &lead, &brier, &curve)
			}
			if page.Done || page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
	}

	return buildResult(matrix, cascadeCount, &lead, &brier, &curve), nil
}

// classifyPoint applies spec §4.5's per-point labeling: predicted
// positive iff score/confidence clear both thresholds; actual positive
// iff a cascade starts in (t, t+horizon]. Every point also feeds the
// Brier score and calibration-curve accumulators regardless of
// threshold classification, since both are calibration diagnostics
// over the raw predicted confidence.
func classifyPoint(p ScoredPoint, sortedStarts []int64, horizonMs int64, cfg Config, matrix *ConfusionMatrix, lead *leadAccumulator, brier *brierAccumulator, curve *calibrationCurveAccumulator) {
	predicted := p.RiskScore >= cfg.ScoreThreshold && p.Confidence >= cfg.ConfidenceThreshold

	nextIdx := sort.Search(len(sortedStarts), func(i int) bool { return sortedStarts[i] > p.TimestampMs })
	actual := false
	var matchedStart int64
	if nextIdx < len(sortedStarts) && sortedStarts[nextIdx] <= p.TimestampMs+horizonMs {
		actual = true
		matchedStart = sortedStarts[nextIdx]
	}

	brier.add(p.Confidence, actual)
	curve.add(p.RiskScore, p.Confidence, actual)

	switch {
	case predicted && actual:
		matrix.TP++
		lead.add(time.Duration(matchedStart-p.TimestampMs) * time.Millisecond)
	case predicted && !actual:
		matrix.FP++
	case !predicted && actual:
		matrix.FN++
	default:
		matrix.TN++
	}
}

func buildResult(m ConfusionMatrix, cascadesInWindow int, lead *leadAccumulator, brier *brierAccumulator, curve *calibrationCurveAccumulator) Result {
	total := m.TP + m.FP + m.FN + m.TN
	precision := numeric.SafeDiv(float64(m.TP), float64(m.TP+m.FP))
	recall := numeric.SafeDiv(float64(m.TP), float64(m.TP+m.FN))
	f1 := harmonicMean(precision, recall)
	fpr := numeric.SafeDiv(float64(m.FP), float64(m.FP+m.TN))
	predictionRate := numeric.SafeDiv(float64(m.TP+m.FP), float64(total))
	baseRate := numeric.SafeDiv(float64(m.TP+m.FN), float64(total))

	return Result{
		Precision:        precision,
		Recall:           recall,
		F1:               f1,
		FPR:              fpr,
		AvgLeadTimeMin:   lead.avgMinutes(),
		Confusion:        m,
		TotalPoints:      total,
		CascadesInWindow: cascadesInWindow,
		PredictionRate:   predictionRate,
		BaseRate:         baseRate,
		Baseline: Baseline{
			RandomF1: harmonicMean(baseRate, predictionRate),
			NaiveF1:  0,
		},
		BrierScore:       brier.score(),
		CalibrationCurve: curve.points(),
	}
}

func harmonicMean(a, b float64) float64 {
	return numeric.SafeDiv(2*a*b, a+b)
}

// symbolData holds one symbol's full page-drained score stream plus its
// sorted cascade starts, loaded once per Sweep and reused across every
// threshold combination in that sweep.
type symbolData struct {
	points []ScoredPoint
	starts []int64
}

// Sweep evaluates every (scoreThreshold, confidenceThreshold) pair
// against a single load of scores and cascades per symbol (spec §4.5
// "threshold sweep reuses loaded cascades"): the streaming source is
// drained exactly once regardless of how many combinations are swept.
func Sweep(ctx context.Context, scores ScoreSource, cascades CascadeSource, symbols SymbolLister, base Config, scoreThresholds []int, confidenceThresholds []float64, log zerolog.Logger) ([]Result, error) {
	pageSize := base.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	symbolList := base.Symbols
	if len(symbolList) == 0 {
		var err error
		symbolList, err = symbols.DistinctSymbols(ctx, base.StartMs, base.EndMs)
		if err != nil {
			return nil, fmt.Errorf("backtest: sweep listing symbols: %w", err)
		}
	}

	loaded := make([]symbolData, 0, len(symbolList))
	for _, symbol := range symbolList {
		starts, err := cascades.CascadesInRange(ctx, symbol, base.StartMs, base.EndMs)
		if err != nil {
			return nil, fmt.Errorf("backtest: sweep loading cascades for %s: %w", symbol, err)
		}
		sort.Slice(starts, func(i, j int) bool { return starts[i].StartTimeMs < starts[j].StartTimeMs })
		startTimes := make([]int64, len(starts))
		for i, s := range starts {
			startTimes[i] = s.StartTimeMs
		}

		var points []ScoredPoint
		cursor := ""
		for {
			page, err := scores.PageScores(ctx, symbol, base.StartMs, base.EndMs, cursor, pageSize)
			if err != nil {
				return nil, fmt.Errorf("backtest: sweep paging scores for %s: %w", symbol, err)
			}
			points = append(points, page.Points...)
			if page.Done || page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
		loaded = append(loaded, symbolData{points: points, starts: startTimes})
	}

	horizonMs := int64(base.HorizonMin) * int64(time.Minute/time.Millisecond)
	results := make([]Result, 0, len(scoreThresholds)*len(confidenceThresholds))
	for _, st := range scoreThresholds {
		for _, ct := range confidenceThresholds {
			cfg := base
			cfg.ScoreThreshold = st
			cfg.ConfidenceThreshold = ct

			var matrix ConfusionMatrix
			var lead leadAccumulator
			var brier brierAccumulator
			var curve calibrationCurveAccumulator
			cascadeCount := 0
			for _, sd := range loaded {
				cascadeCount += len(sd.starts)
				for _, p := range sd.points {
					classifyPoint(p, sd.starts, horizonMs, cfg, &matrix, &lead, &brier, &curve)
				}
			}
			results = append(results, buildResult(matrix, cascadeCount, &lead, &brier, &curve))
		}
	}
	log.Debug().Int("combinations", len(results)).Msg("backtest sweep complete")
	return results, nil
}
