// Package aggregator defines the external market-data boundary the
// scheduler polls. Per the non-goal that feed ingestion/deduplication
// is out of scope for this engine, the package carries interfaces only
// plus a deterministic in-memory fake for tests, the same small
// per-concern provider-interface-plus-stub shape the teacher uses for
// its exchange clients (exchanges/binance/book.go's BookProvider
// interface, stubbed out in exchanges/coinbase/book_stub.go and
// exchanges/okx/book_stub.go).
package aggregator

import (
	"context"
	"sort"
	"sync"

	"github.com/sawpanic/cascadeengine/internal/cascade"
	"github.com/sawpanic/cascadeengine/internal/stress"
)

// SnapshotSource supplies the per-tick perpetual-futures state the
// scheduler feeds into stress.Engine.Analyze.
type SnapshotSource interface {
	PollSnapshots(ctx context.Context) ([]stress.SymbolSnapshot, error)
}

// GroundTruthSource supplies the mark-price and liquidation series the
// scheduler feeds into cascade.Detect for a given symbol and window.
type GroundTruthSource interface {
	PriceSeries(ctx context.Context, symbol string, fromMs, toMs int64) ([]cascade.PricePoint, error)
	LiquidationSeries(ctx context.Context, symbol string, fromMs, toMs int64) ([]cascade.LiquidationEvent, error)
}

// Fake is a deterministic, mutex-guarded in-memory SnapshotSource and
// GroundTruthSource for tests and local development, analogous to the
// teacher's fake exchange clients.
type Fake struct {
	mu        sync.Mutex
	snapshots []stress.SymbolSnapshot
	prices    map[string][]cascade.PricePoint
	liqs      map[string][]cascade.LiquidationEvent
}

// NewFake constructs an empty Fake.
func NewFake() *Fake {
	return &Fake{
		prices: make(map[string][]cascade.PricePoint),
		liqs:   make(map[string][]cascade.LiquidationEvent),
	}
}

// QueueSnapshots appends snapshots to be returned, in the order queued,
// by the next call to PollSnapshots, which drains the whole queue at once.
func (f *Fake) QueueSnapshots(snaps ...stress.SymbolSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snaps...)
}

// PollSnapshots returns and clears whatever has been queued.
func (f *Fake) PollSnapshots(ctx context.Context) ([]stress.SymbolSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.snapshots
	f.snapshots = nil
	return out, nil
}

// AddPrices appends price points for a symbol, keeping the series sorted.
func (f *Fake) AddPrices(symbol string, points ...cascade.PricePoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = append(f.prices[symbol], points...)
	sort.Slice(f.prices[symbol], func(i, j int) bool {
		return f.prices[symbol][i].TimeMs < f.prices[symbol][j].TimeMs
	})
}

// AddLiquidations appends liquidation events for a symbol, keeping the
// series sorted.
func (f *Fake) AddLiquidations(symbol string, events ...cascade.LiquidationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liqs[symbol] = append(f.liqs[symbol], events...)
	sort.Slice(f.liqs[symbol], func(i, j int) bool {
		return f.liqs[symbol][i].TimeMs < f.liqs[symbol][j].TimeMs
	})
}

// PriceSeries returns the slice of stored prices within [fromMs, toMs].
func (f *Fake) PriceSeries(ctx context.Context, symbol string, fromMs, toMs int64) ([]cascade.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filterPrices(f.prices[symbol], fromMs, toMs), nil
}

// LiquidationSeries returns the slice of stored liquidations within
// [fromMs, toMs].
func (f *Fake) LiquidationSeries(ctx context.Context, symbol string, fromMs, toMs int64) ([]cascade.LiquidationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filterLiqs(f.liqs[symbol], fromMs, toMs), nil
}

func filterPrices(in []cascade.PricePoint, fromMs, toMs int64) []cascade.PricePoint {
	out := make([]cascade.PricePoint, 0, len(in))
	for _, p := range in {
		if p.TimeMs >= fromMs && p.TimeMs <= toMs {
			out = append(out, p)
		}
	}
	return out
}

func filterLiqs(in []cascade.LiquidationEvent, fromMs, toMs int64) []cascade.LiquidationEvent {
	out := make([]cascade.LiquidationEvent, 0, len(in))
	for _, e := range in {
		if e.TimeMs >= fromMs && e.TimeMs <= toMs {
			out = append(out, e)
		}
	}
	return out
}
