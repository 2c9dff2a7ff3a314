package cascade

import (
	"math"
	"sort"

	"github.com/sawpanic/cascadeengine/internal/numeric"
)

// Detect runs the full sliding-window sweep over prices and
// liquidations for one symbol and returns merged ground-truth events,
// sorted by StartTimeMs. Inputs are defensively copied and sorted
// before use, so repeated calls on identical inputs are deterministic
// regardless of caller-side mutation or pre-sort order.
func Detect(symbol string, prices []PricePoint, liqs []LiquidationEvent, cfg Config) []Event {
	prices = sortedCopyPrices(prices)
	liqs = sortedCopyLiqs(liqs)

	if len(prices) < 2 {
		return nil
	}

	returns := logReturns(prices)

	windowMs := cfg.Window.Milliseconds()
	stepMs := cfg.Step.Milliseconds()
	lookbackMs := cfg.VolLookback.Milliseconds()

	var candidates []Event

	firstT := prices[0].TimeMs
	lastT := prices[len(prices)-1].TimeMs

	for t := firstT; t+windowMs <= lastT; t += stepMs {
		pStart, okStart := interpolatePrice(prices, t)
		pEnd, okEnd := interpolatePrice(prices, t+windowMs)
		if !okStart || !okEnd || pStart == 0 {
			continue
		}
		deltaP := (pEnd - pStart) / pStart

		sigma, ok := trailingVol(prices, returns, t, lookbackMs)
		if !ok {
			continue
		}
		windowMinutes := float64(windowMs) / 60000.0
		threshold := cfg.SigmaMultiplier * numeric.DeannualizeToWindow(sigma, windowMinutes)

		if math.Abs(deltaP) < threshold {
			continue
		}

		longVol, shortVol := sumLiqRange(liqs, t, t+windowMs)
		total := longVol + shortVol
		if total == 0 {
			continue
		}

		liqThreshold := liquidationThreshold(liqs, t, lookbackMs, cfg)
		if total < liqThreshold {
			continue
		}

		dominant := longVol
		if shortVol > dominant {
			dominant = shortVol
		}
		if numeric.SafeDiv(dominant, total) < cfg.DominanceRatio {
			continue
		}

		direction := ShortSqueeze
		if longVol > shortVol {
			direction = LongSqueeze
		}

		candidates = append(candidates, Event{
			Symbol:               symbol,
			Direction:            direction,
			StartTimeMs:          t,
			EndTimeMs:            t + windowMs,
			PriceChangePct:       deltaP * 100,
			LiquidationVolumeUSD: total,
		})
	}

	return mergeAdjacent(candidates, prices, liqs)
}

func sortedCopyPrices(in []PricePoint) []PricePoint {
	out := append([]PricePoint(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].TimeMs < out[j].TimeMs })
	return out
}

func sortedCopyLiqs(in []LiquidationEvent) []LiquidationEvent {
	out := append([]LiquidationEvent(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].TimeMs < out[j].TimeMs })
	return out
}

// interpolatePrice linearly interpolates the price at time t from the
// sorted series, via binary search for the bracketing interval.
func interpolatePrice(prices []PricePoint, t int64) (float64, bool) {
	n := len(prices)
	if n == 0 {
		return 0, false
	}
	if t <= prices[0].TimeMs {
		if t < prices[0].TimeMs {
			return 0, false
		}
		return prices[0].Price, true
	}
	if t >= prices[n-1].TimeMs {
		if t > prices[n-1].TimeMs {
			return 0, false
		}
		return prices[n-1].Price, true
	}

	i := sort.Search(n, func(i int) bool { return prices[i].TimeMs >= t })
	if prices[i].TimeMs == t {
		return prices[i].Price, true
	}
	lo, hi := prices[i-1], prices[i]
	frac := float64(t-lo.TimeMs) / float64(hi.TimeMs-lo.TimeMs)
	return lo.Price + frac*(hi.Price-lo.Price), true
}

// logReturns computes consecutive log returns over the price series.
func logReturns(prices []PricePoint) []float64 {
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1].Price <= 0 || prices[i].Price <= 0 {
			continue
		}
		out = append(out, math.Log(prices[i].Price/prices[i-1].Price))
	}
	return out
}

// trailingVol computes the annualized stddev of log returns observed
// in [t-lookback, t], requiring at least 30 observations.
func trailingVol(prices []PricePoint, returns []float64, t int64, lookbackMs int64) (float64, bool) {
	// returns[i] corresponds to the transition prices[i] -> prices[i+1];
	// approximate its timestamp as prices[i+1].TimeMs.
	var window []float64
	idx := 0
	for i := 1; i < len(prices); i++ {
		if prices[i-1].Price <= 0 || prices[i].Price <= 0 {
			continue
		}
		if prices[i].TimeMs > t {
			break
		}
		if prices[i].TimeMs >= t-lookbackMs {
			window = append(window, returns[idx])
		}
		idx++
	}
	if len(window) < 30 {
		return 0, false
	}
	return numeric.AnnualizeVol(stdDev(window)), true
}

func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return math.Sqrt(sq / float64(len(xs)))
}

// sumLiqRange sums long/short liquidation volume in [from, to) via a
// binary-searched range over the sorted liquidation series.
func sumLiqRange(liqs []LiquidationEvent, from, to int64) (long, short float64) {
	lo := sort.Search(len(liqs), func(i int) bool { return liqs[i].TimeMs >= from })
	hi := sort.Search(len(liqs), func(i int) bool { return liqs[i].TimeMs >= to })
	for i := lo; i < hi; i++ {
		if liqs[i].Side == Long {
			long += liqs[i].SizeUSD
		} else {
			short += liqs[i].SizeUSD
		}
	}
	return
}

// liquidationThreshold buckets historical liquidations into
// non-overlapping window-sized buckets over [t-lookback, t] and
// returns max(p95 of bucket totals, MinLiqUSD), falling back to
// MinLiqUSD when there are fewer than 10 buckets.
func liquidationThreshold(liqs []LiquidationEvent, t int64, lookbackMs int64, cfg Config) float64 {
	windowMs := cfg.Window.Milliseconds()
	start := t - lookbackMs
	numBuckets := int(lookbackMs / windowMs)
	if numBuckets < 10 {
		return cfg.MinLiqUSD
	}

	buckets := make([]float64, numBuckets)
	lo := sort.Search(len(liqs), func(i int) bool { return liqs[i].TimeMs >= start })
	hi := sort.Search(len(liqs), func(i int) bool { return liqs[i].TimeMs >= t })
	for i := lo; i < hi; i++ {
		b := int((liqs[i].TimeMs - start) / windowMs)
		if b >= 0 && b < numBuckets {
			buckets[b] += liqs[i].SizeUSD
		}
	}

	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)
	p95 := numeric.SortedQuantile(sorted, cfg.LiqPercentile)
	if p95 > cfg.MinLiqUSD {
		return p95
	}
	return cfg.MinLiqUSD
}

// mergeAdjacent merges overlapping or touching same-direction
// candidates, recomputing price change via interpolation across the
// merged span and liquidation volume via re-sum.
func mergeAdjacent(candidates []Event, prices []PricePoint, liqs []LiquidationEvent) []Event {
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].StartTimeMs < candidates[j].StartTimeMs })

	merged := []Event{candidates[0]}
	for _, c := range candidates[1:] {
		last := &merged[len(merged)-1]
		if c.Direction == last.Direction && c.StartTimeMs <= last.EndTimeMs {
			if c.EndTimeMs > last.EndTimeMs {
				last.EndTimeMs = c.EndTimeMs
			}
		} else {
			merged = append(merged, c)
		}
	}

	for i := range merged {
		e := &merged[i]
		pStart, okStart := interpolatePrice(prices, e.StartTimeMs)
		pEnd, okEnd := interpolatePrice(prices, e.EndTimeMs)
		if okStart && okEnd && pStart != 0 {
			e.PriceChangePct = (pEnd - pStart) / pStart * 100
		}
		long, short := sumLiqRange(liqs, e.StartTimeMs, e.EndTimeMs)
		e.LiquidationVolumeUSD = long + short
	}

	return merged
}
