// Package rolling implements the fixed-capacity order-statistic buffer
// that backs every per-symbol window in the stress engine: a FIFO ring
// paired with a sorted mirror, giving O(1) mean/stddev and O(log n)
// rank/quantile queries. Grounded on the teacher's calibration bin
// maintenance in internal/score/calibration (sorted-slice manipulation)
// generalized into a reusable structure, since the source repo had no
// single shared rolling-window type.
package rolling

import (
	"math"
	"sort"

	"github.com/sawpanic/cascadeengine/internal/numeric"
)

// Stats is a fixed-capacity rolling window of float64 samples. It is
// single-owner: callers must not share one instance across goroutines
// without external synchronization, matching the spec's "single-owner"
// SymbolState rule.
type Stats struct {
	capacity int
	fifo     []float64 // ring buffer contents in insertion order
	head     int        // index of oldest element in fifo
	count    int        // number of valid elements in fifo

	sorted []float64 // sorted mirror of the current window's contents

	sum   float64
	sumSq float64
}

// New creates a Stats with the given capacity. capacity must be > 0.
func New(capacity int) *Stats {
	if capacity <= 0 {
		capacity = 1
	}
	return &Stats{
		capacity: capacity,
		fifo:     make([]float64, capacity),
		sorted:   make([]float64, 0, capacity),
	}
}

// Len returns the number of samples currently held (<= capacity).
func (s *Stats) Len() int { return s.count }

// Capacity returns the configured fixed capacity.
func (s *Stats) Capacity() int { return s.capacity }

// Push adds x, evicting the oldest sample if the buffer is full.
// Non-finite x is treated as 0, per the spec's degrade-to-neutral rule.
func (s *Stats) Push(x float64) {
	x = numeric.SafeFloat(x)

	if s.count == s.capacity {
		oldest := s.fifo[s.head]
		s.removeFromSorted(oldest)
		s.sum -= oldest
		s.sumSq -= oldest * oldest

		s.fifo[s.head] = x
		s.head = (s.head + 1) % s.capacity
	} else {
		idx := (s.head + s.count) % s.capacity
		s.fifo[idx] = x
		s.count++
	}

	s.insertSorted(x)
	s.sum += x
	s.sumSq += x * x
}

// removeFromSorted deletes exactly one occurrence of v from the sorted
// mirror via exact-match binary search.
func (s *Stats) removeFromSorted(v float64) {
	i := sort.SearchFloat64s(s.sorted, v)
	if i < len(s.sorted) && s.sorted[i] == v {
		s.sorted = append(s.sorted[:i], s.sorted[i+1:]...)
	}
}

// insertSorted inserts v into the sorted mirror at its lower bound.
func (s *Stats) insertSorted(v float64) {
	i := sort.SearchFloat64s(s.sorted, v)
	s.sorted = append(s.sorted, 0)
	copy(s.sorted[i+1:], s.sorted[i:])
	s.sorted[i] = v
}

// Mean returns the arithmetic mean of the current window, 0 if empty.
func (s *Stats) Mean() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.count)
}

// StdDev returns the population standard deviation of the current
// window. Returns 0 for 0 or 1 samples, and clamps the variance at 0
// to guard against floating-point underflow.
func (s *Stats) StdDev() float64 {
	if s.count < 2 {
		return 0
	}
	mean := s.Mean()
	n := float64(s.count)
	variance := s.sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// PercentileRank returns 100 * (count of samples <= x) / len, using an
// upper-bound binary search. Returns 0 for an empty window.
func (s *Stats) PercentileRank(x float64) float64 {
	if s.count == 0 {
		return 0
	}
	i := sort.SearchFloat64s(s.sorted, x)
	for i < len(s.sorted) && s.sorted[i] == x {
		i++
	}
	return 100 * float64(i) / float64(s.count)
}

// Quantile returns the linearly interpolated q-quantile (q in [0,1])
// of the current window. Returns 0 for an empty window.
func (s *Stats) Quantile(q float64) float64 {
	if s.count == 0 {
		return 0
	}
	return numeric.SortedQuantile(s.sorted, q)
}

// Tail returns up to the k most recently pushed samples, oldest first.
// If k > Len(), the full window is returned.
func (s *Stats) Tail(k int) []float64 {
	if k <= 0 || s.count == 0 {
		return nil
	}
	if k > s.count {
		k = s.count
	}
	out := make([]float64, k)
	start := (s.head + s.count - k) % s.capacity
	for i := 0; i < k; i++ {
		out[i] = s.fifo[(start+i)%s.capacity]
	}
	return out
}

// Snapshot returns a copy of the sorted contents of the window, for
// callers that need the full sorted set rather than a single quantile.
func (s *Stats) Snapshot() []float64 {
	out := make([]float64, len(s.sorted))
	copy(out, s.sorted)
	return out
}
