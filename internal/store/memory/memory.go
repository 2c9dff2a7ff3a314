// Package memory provides a dependency-free, mutex-protected
// implementation of the store interfaces for tests and local
// development, following the Engine's own mu-guarded-map style in
// internal/stress/engine.go rather than introducing a new locking idiom.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sawpanic/cascadeengine/internal/backtest"
	"github.com/sawpanic/cascadeengine/internal/calibration"
	"github.com/sawpanic/cascadeengine/internal/cascade"
	"github.com/sawpanic/cascadeengine/internal/stress"
	"github.com/sawpanic/cascadeengine/internal/store"
)

// RiskScoreRepo is an in-memory store.RiskScoreRepo.
type RiskScoreRepo struct {
	mu     sync.Mutex
	bySym  map[string][]backtest.ScoredPoint
	latest map[string]stress.RiskAssessment
}

// NewRiskScoreRepo constructs an empty in-memory risk score repository.
func NewRiskScoreRepo() *RiskScoreRepo {
	return &RiskScoreRepo{
		bySym:  make(map[string][]backtest.ScoredPoint),
		latest: make(map[string]stress.RiskAssessment),
	}
}

func (r *RiskScoreRepo) Upsert(_ context.Context, symbol string, a stress.RiskAssessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	confidence := a.Confidence
	if a.Prediction != nil {
		confidence = a.Prediction.Probability
	}
	point := backtest.ScoredPoint{Symbol: symbol, TimestampMs: a.TimestampMs, RiskScore: a.RiskScore, Confidence: confidence}

	pts := r.bySym[symbol]
	idx := sort.Search(len(pts), func(i int) bool { return pts[i].TimestampMs >= a.TimestampMs })
	if idx < len(pts) && pts[idx].TimestampMs == a.TimestampMs {
		pts[idx] = point
	} else {
		pts = append(pts, backtest.ScoredPoint{})
		copy(pts[idx+1:], pts[idx:])
		pts[idx] = point
	}
	r.bySym[symbol] = pts
	r.latest[symbol] = a
	return nil
}

func (r *RiskScoreRepo) Page(_ context.Context, symbol string, tr store.TimeRange, cursor string, pageSize int) (backtest.ScorePage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var windowed []backtest.ScoredPoint
	for _, p := range r.bySym[symbol] {
		if p.TimestampMs >= tr.FromMs && p.TimestampMs <= tr.ToMs {
			windowed = append(windowed, p)
		}
	}

	offset := 0
	if cursor != "" {
		var parsed int64
		if _, err := fmt.Sscanf(cursor, "%d", &parsed); err != nil {
			return backtest.ScorePage{}, fmt.Errorf("memory: invalid cursor %q: %w", cursor, err)
		}
		offset = sort.Search(len(windowed), func(i int) bool { return windowed[i].TimestampMs > parsed })
	}
	end := offset + pageSize
	if end > len(windowed) {
		end = len(windowed)
	}
	page := append([]backtest.ScoredPoint(nil), windowed[offset:end]...)

	done := end >= len(windowed)
	next := ""
	if !done && len(page) > 0 {
		next = fmt.Sprintf("%d", page[len(page)-1].TimestampMs)
	}
	return backtest.ScorePage{Points: page, NextCursor: next, Done: done}, nil
}

func (r *RiskScoreRepo) DistinctSymbols(_ context.Context, tr store.TimeRange) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var symbols []string
	for symbol, pts := range r.bySym {
		for _, p := range pts {
			if p.TimestampMs >= tr.FromMs && p.TimestampMs <= tr.ToMs {
				symbols = append(symbols, symbol)
				break
			}
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Latest returns the most recent assessment cached for symbol, for
// callers that don't need the full cursor contract (e.g. health checks).
func (r *RiskScoreRepo) Latest(symbol string) (stress.RiskAssessment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.latest[symbol]
	return a, ok
}

// CascadeEventRepo is an in-memory store.CascadeEventRepo.
type CascadeEventRepo struct {
	mu     sync.Mutex
	events map[string][]cascade.Event // keyed by symbol
}

// NewCascadeEventRepo constructs an empty in-memory cascade event repository.
func NewCascadeEventRepo() *CascadeEventRepo {
	return &CascadeEventRepo{events: make(map[string][]cascade.Event)}
}

func (r *CascadeEventRepo) Upsert(_ context.Context, e cascade.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.events[e.Symbol]
	for i, existing := range events {
		if existing.Direction == e.Direction && existing.StartTimeMs == e.StartTimeMs {
			events[i] = e
			r.events[e.Symbol] = events
			return nil
		}
	}
	r.events[e.Symbol] = append(events, e)
	return nil
}

func (r *CascadeEventRepo) InRange(_ context.Context, symbol string, tr store.TimeRange) ([]cascade.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []cascade.Event
	for _, e := range r.events[symbol] {
		if e.StartTimeMs >= tr.FromMs && e.StartTimeMs <= tr.ToMs {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTimeMs < out[j].StartTimeMs })
	return out, nil
}

// CalibrationRepo is an in-memory store.CalibrationRepo.
type CalibrationRepo struct {
	mu     sync.Mutex
	latest *calibration.Report
}

// NewCalibrationRepo constructs an empty in-memory calibration repository.
func NewCalibrationRepo() *CalibrationRepo {
	return &CalibrationRepo{}
}

func (r *CalibrationRepo) Save(_ context.Context, fittedAt time.Time, report calibration.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := report
	copied.Params.FittedAt = fittedAt
	r.latest = &copied
	return nil
}

func (r *CalibrationRepo) Latest(_ context.Context) (*calibration.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, nil
}
