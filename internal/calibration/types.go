// Package calibration fits P(cascade | risk_score) = sigmoid(a + b*score)
// by IRLS over 101 integer-score bins, and exposes Wald (logit-scale)
// and Wilson-score confidence intervals. Grounded on the pool-adjacent-
// violators calibration in the teacher's internal/score/calibration
// package, adapted from isotonic regression to a parametric 2-parameter
// logistic GLM per spec §4.3 (the spec's IRLS Newton step needs a
// closed-form 2x2 solve that the teacher's isotonic fit does not do).
package calibration

import (
	"time"

	"github.com/sawpanic/cascadeengine/internal/numeric"
)

// Params is the fitted (or prior) logistic-regression coefficients
// mapping an integer risk score to a calibrated cascade probability.
// Covariance is nil until a well-conditioned fit produces one; it is
// replaced wholesale (never partially updated), matching the engine's
// read-only shared ownership of calibration state.
type Params struct {
	Intercept    float64    // a
	Coefficient  float64    // b
	Covariance   *Cov       // nil when unavailable
	FittedAt     time.Time
}

// Cov is the packed upper triangle of the 2x2 inverse-Fisher-information
// matrix at the MLE: [Var(a), Cov(a,b), Var(b)].
type Cov struct {
	VarA    float64
	CovAB   float64
	VarB    float64
}

// DefaultParams is the uncalibrated prior: a=-5, b=0.1 (matches a
// score=50 midpoint sigmoid, so a completely uncalibrated engine still
// centers elevated scores near P=0.5).
func DefaultParams() Params {
	return Params{Intercept: -5, Coefficient: 0.1}
}

// Predict returns sigmoid(a + b*score).
func (p Params) Predict(score float64) float64 {
	return numeric.Sigmoid(p.Intercept + p.Coefficient*score)
}

// Bin is the observed (positive, total) count for one integer score
// 0..100, used as the sufficient statistic for the IRLS fit.
type Bin struct {
	Score    int
	Positive int
	Total    int
}

// Report is the full output of a calibration fit: the parameters plus
// enough metadata to decide whether to accept them (spec §6 "fit_calibration").
type Report struct {
	Params        Params
	TotalSamples  int
	Positives     int
	BaseRate      float64
	Iterations    int
	LogLikelihood float64
	Converged     bool
	Bins          []Bin
}
