// Package store defines the repository contracts the engine persists
// through, mirroring the teacher's internal/persistence package split
// of an interfaces.go contract plus a postgres/ implementation. Risk
// scores and cascade events are written by the scheduler/backtest
// drivers and read back by internal/backtest's streaming cursor.
package store

import (
	"context"
	"time"

	"github.com/sawpanic/cascadeengine/internal/backtest"
	"github.com/sawpanic/cascadeengine/internal/calibration"
	"github.com/sawpanic/cascadeengine/internal/cascade"
	"github.com/sawpanic/cascadeengine/internal/stress"
)

// TimeRange bounds a query window with millisecond-epoch endpoints,
// generalizing the teacher's time.Time-keyed TimeRange to the spec's
// millisecond-epoch domain.
type TimeRange struct {
	FromMs int64
	ToMs   int64
}

// RiskScoreRepo persists and pages risk assessments. Page implements
// the cursor contract internal/backtest.ScoreSource depends on.
type RiskScoreRepo interface {
	Upsert(ctx context.Context, symbol string, a stress.RiskAssessment) error
	Page(ctx context.Context, symbol string, tr TimeRange, cursor string, pageSize int) (backtest.ScorePage, error)
	DistinctSymbols(ctx context.Context, tr TimeRange) ([]string, error)
}

// CascadeEventRepo persists detected ground-truth cascade events,
// upserting on (symbol, direction, start_time_ms).
type CascadeEventRepo interface {
	Upsert(ctx context.Context, e cascade.Event) error
	InRange(ctx context.Context, symbol string, tr TimeRange) ([]cascade.Event, error)
}

// CalibrationRepo persists calibration fit reports for audit/history.
type CalibrationRepo interface {
	Save(ctx context.Context, fittedAt time.Time, report calibration.Report) error
	Latest(ctx context.Context) (*calibration.Report, error)
}
