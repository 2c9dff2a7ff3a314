package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sawpanic/cascadeengine/internal/calibration"
)

// BuildCalibrationBins streams scored points the same way Run does and
// buckets each one by its integer risk score into the (positive, total)
// sufficient statistic internal/calibration.Fit needs, labeling a point
// positive iff a cascade starts within horizonMin of it (the same
// actual-label rule Run uses for its confusion matrix). This is the
// scheduler's CalibrationSource.
func BuildCalibrationBins(ctx context.Context, scores ScoreSource, cascades CascadeSource, symbols SymbolLister, startMs, endMs int64, horizonMin, pageSize int) ([]calibration.Bin, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	horizonMs := int64(horizonMin) * int64(time.Minute/time.Millisecond)

	symbolList, err := symbols.DistinctSymbols(ctx, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("backtest: listing symbols for calibration: %w", err)
	}

	counts := make([]calibration.Bin, 101)
	for score := range counts {
		counts[score].Score = score
	}

	for _, symbol := range symbolList {
		starts, err := cascades.CascadesInRange(ctx, symbol, startMs, endMs)
		if err != nil {
			return nil, fmt.Errorf("backtest: loading cascades for %s: %w", symbol, err)
		}
		sort.Slice(starts, func(i, j int) bool { return starts[i].StartTimeMs < starts[j].StartTimeMs })
		startTimes := make([]int64, len(starts))
		for i, s := range starts {
			startTimes[i] = s.StartTimeMs
		}

		cursor := ""
		for {
			page, err := scores.PageScores(ctx, symbol, startMs, endMs, cursor, pageSize)
			if err != nil {
				return nil, fmt.Errorf("backtest: paging scores for %s: %w", symbol, err)
			}
			for _, p := range page.Points {
				score := p.RiskScore
				if score < 0 || score > 100 {
					continue
				}
				counts[score].Total++
				if cascadeWithinHorizon(p.TimestampMs, startTimes, horizonMs) {
					counts[score].Positive++
				}
			}
			if page.Done || page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
	}

	bins := make([]calibration.Bin, 0, len(counts))
	for _, b := range counts {
		if b.Total > 0 {
			bins = append(bins, b)
		}
	}
	return bins, nil
}

func cascadeWithinHorizon(tsMs int64, sortedStarts []int64, horizonMs int64) bool {
	idx := sort.Search(len(sortedStarts), func(i int) bool { return sortedStarts[i] > tsMs })
	return idx < len(sortedStarts) && sortedStarts[idx] <= tsMs+horizonMs
}
