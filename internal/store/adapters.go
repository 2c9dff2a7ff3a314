package store

import (
	"context"
	"time"

	"github.com/sawpanic/cascadeengine/internal/backtest"
	"github.com/sawpanic/cascadeengine/internal/calibration"
)

// BacktestSource adapts a RiskScoreRepo and CascadeEventRepo pair into
// the three narrow interfaces internal/backtest drives its streaming
// cursor through, the same adapter-over-repository shape the teacher
// uses to keep its scanners independent of the persistence package.
type BacktestSource struct {
	Scores   RiskScoreRepo
	Cascades CascadeEventRepo
}

// PageScores implements backtest.ScoreSource.
func (s BacktestSource) PageScores(ctx context.Context, symbol string, startMs, endMs int64, cursor string, pageSize int) (backtest.ScorePage, error) {
	return s.Scores.Page(ctx, symbol, TimeRange{FromMs: startMs, ToMs: endMs}, cursor, pageSize)
}

// CascadesInRange implements backtest.CascadeSource.
func (s BacktestSource) CascadesInRange(ctx context.Context, symbol string, startMs, endMs int64) ([]backtest.CascadeStart, error) {
	events, err := s.Cascades.InRange(ctx, symbol, TimeRange{FromMs: startMs, ToMs: endMs})
	if err != nil {
		return nil, err
	}
	starts := make([]backtest.CascadeStart, 0, len(events))
	for _, e := range events {
		starts = append(starts, backtest.CascadeStart{Symbol: e.Symbol, StartTimeMs: e.StartTimeMs})
	}
	return starts, nil
}

// DistinctSymbols implements backtest.SymbolLister, delegating to the
// risk-score repo since every scored symbol has assessments on record.
func (s BacktestSource) DistinctSymbols(ctx context.Context, startMs, endMs int64) ([]string, error) {
	return s.Scores.DistinctSymbols(ctx, TimeRange{FromMs: startMs, ToMs: endMs})
}

// CalibrationBinSource adapts a BacktestSource into
// internal/scheduler.CalibrationSource, feeding the refit tick the
// trailing Lookback window of scored points labeled against ground-truth
// cascades.
type CalibrationBinSource struct {
	Source     BacktestSource
	Lookback   time.Duration
	HorizonMin int
	PageSize   int
}

// Bins implements internal/scheduler.CalibrationSource.
func (c CalibrationBinSource) Bins(ctx context.Context) ([]calibration.Bin, error) {
	toMs := time.Now().UnixMilli()
	fromMs := toMs - c.Lookback.Milliseconds()
	return backtest.BuildCalibrationBins(ctx, c.Source, c.Source, c.Source, fromMs, toMs, c.HorizonMin, c.PageSize)
}
