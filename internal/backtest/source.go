package backtest

import "context"

// ScorePage is one page of a streaming risk-score cursor read.
type ScorePage struct {
	Points     []ScoredPoint
	NextCursor string
	Done       bool
}

// ScoreSource streams persisted risk scores page by page so a backtest
// never materializes an entire window in memory at once (spec §4.5
// "Loading"). An empty cursor requests the first page.
type ScoreSource interface {
	PageScores(ctx context.Context, symbol string, startMs, endMs int64, cursor string, pageSize int) (ScorePage, error)
}

// CascadeSource returns the sorted ground-truth cascade starts for a
// symbol within a window, used for classification (spec §4.5 "actual").
type CascadeSource interface {
	CascadesInRange(ctx context.Context, symbol string, startMs, endMs int64) ([]CascadeStart, error)
}

// SymbolLister returns the distinct symbols a backtest should cover
// when Config.Symbols is empty.
type SymbolLister interface {
	DistinctSymbols(ctx context.Context, startMs, endMs int64) ([]string, error)
}
