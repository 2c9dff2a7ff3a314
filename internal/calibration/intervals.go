package calibration

import (
	"math"

	"github.com/sawpanic/cascadeengine/internal/numeric"
)

// Interval is a [lower, point, upper] probability confidence interval.
type Interval struct {
	Lower float64
	Point float64
	Upper float64
}

// WaldInterval computes the Wald confidence interval for P(y|s) on the
// logit scale, mapped back through the sigmoid so it stays in [0,1]
// and preserves monotonicity (spec §9 "preferred because it preserves
// monotonicity and bounds under sigmoid"). zAlpha is the two-sided
// z critical value (e.g. 1.96 for 95%). Returns a degenerate interval
// equal to the point estimate when no covariance is available.
func WaldInterval(p Params, score float64, zAlpha float64) Interval {
	z := p.Intercept + p.Coefficient*score
	point := numeric.Sigmoid(z)

	if p.Covariance == nil {
		return Interval{Lower: point, Point: point, Upper: point}
	}

	varZ := p.Covariance.VarA + 2*score*p.Covariance.CovAB + score*score*p.Covariance.VarB
	if varZ < 0 {
		varZ = 0
	}
	spread := zAlpha * math.Sqrt(varZ)

	return Interval{
		Lower: numeric.Sigmoid(z - spread),
		Point: point,
		Upper: numeric.Sigmoid(z + spread),
	}
}

// WilsonInterval computes the Wilson score interval directly on
// (positives, total) for small-sample per-bin diagnostics, independent
// of the fitted logistic model.
func WilsonInterval(positives, total int, zAlpha float64) Interval {
	if total == 0 {
		return Interval{}
	}
	n := float64(total)
	p := float64(positives) / n
	z2 := zAlpha * zAlpha

	denom := 1 + z2/n
	center := (p + z2/(2*n)) / denom
	half := zAlpha * math.Sqrt(p*(1-p)/n+z2/(4*n*n)) / denom

	lower := numeric.Clamp(center-half, 0, 1)
	upper := numeric.Clamp(center+half, 0, 1)

	return Interval{Lower: lower, Point: p, Upper: upper}
}

// ZAlpha95 is the two-sided 95% critical value used throughout the
// calibration-curve diagnostics unless a caller overrides it.
const ZAlpha95 = 1.959963984540054
