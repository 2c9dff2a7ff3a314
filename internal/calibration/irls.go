package calibration

import (
	"math"

	"github.com/sawpanic/cascadeengine/internal/numeric"
)

// FitConfig controls the IRLS solver.
type FitConfig struct {
	Lambda        float64 // L2 regularization strength
	MaxIterations int
}

// DefaultFitConfig matches spec §4.3's defaults.
func DefaultFitConfig() FitConfig {
	return FitConfig{Lambda: 0.001, MaxIterations: 25}
}

const irlsTolerance = 1e-8
const singularDetThreshold = 1e-30

// Fit runs IRLS over the given bins and returns a full Report. Bin
// ordering never affects the result: all sums are order-independent.
func Fit(bins []Bin, cfg FitConfig) Report {
	total, positives := 0, 0
	for _, b := range bins {
		total += b.Total
		positives += b.Positive
	}

	report := Report{
		TotalSamples: total,
		Positives:    positives,
		Bins:         append([]Bin(nil), bins...),
	}
	if total > 0 {
		report.BaseRate = float64(positives) / float64(total)
	}

	if total == 0 || report.BaseRate == 0 || report.BaseRate == 1 {
		report.Params = DefaultParams()
		report.Converged = false
		return report
	}

	a := numeric.Logit(report.BaseRate)
	b := 0.0

	var logLik float64
	iter := 0
	converged := false

	for ; iter < cfg.MaxIterations; iter++ {
		var gA, gB float64
		var jAA, jAB, jBB float64

		for _, bin := range bins {
			if bin.Total == 0 {
				continue
			}
			s := float64(bin.Score)
			p := numeric.Sigmoid(a + b*s)
			n := float64(bin.Total)
			y := float64(bin.Positive)

			r := y - n*p
			w := n * p * (1 - p)

			gA += r
			gB += r * s
			jAA += w
			jAB += w * s
			jBB += w * s * s
		}

		// L2 regularization: J += lambda*I, g -= lambda*(a,b).
		jAA += cfg.Lambda
		jBB += cfg.Lambda
		gA -= cfg.Lambda * a
		gB -= cfg.Lambda * b

		det := jAA*jBB - jAB*jAB
		if math.Abs(det) < singularDetThreshold {
			break
		}

		// Solve [[jAA,jAB],[jAB,jBB]] * delta = [gA,gB] via Cramer's rule.
		deltaA := (gA*jBB - gB*jAB) / det
		deltaB := (jAA*gB - jAB*gA) / det

		a += deltaA
		b += deltaB

		if math.Max(math.Abs(deltaA), math.Abs(deltaB)) < irlsTolerance {
			converged = true
			iter++
			break
		}
	}

	logLik = logLikelihood(bins, a, b)

	report.Params = Params{Intercept: a, Coefficient: b}
	report.Iterations = iter
	report.LogLikelihood = logLik
	report.Converged = converged

	if converged {
		if cov, ok := covarianceAt(bins, a, b, cfg.Lambda); ok {
			report.Params.Covariance = cov
		}
	}

	return report
}

func logLikelihood(bins []Bin, a, b float64) float64 {
	var ll float64
	for _, bin := range bins {
		if bin.Total == 0 {
			continue
		}
		s := float64(bin.Score)
		p := numeric.Clamp(numeric.Sigmoid(a+b*s), 1e-15, 1-1e-15)
		y := float64(bin.Positive)
		n := float64(bin.Total)
		ll += y*math.Log(p) + (n-y)*math.Log(1-p)
	}
	return ll
}

// covarianceAt returns Sigma = J^-1 at (a,b) if J is well-conditioned.
func covarianceAt(bins []Bin, a, b, lambda float64) (*Cov, bool) {
	var jAA, jAB, jBB float64
	for _, bin := range bins {
		if bin.Total == 0 {
			continue
		}
		s := float64(bin.Score)
		p := numeric.Sigmoid(a + b*s)
		n := float64(bin.Total)
		w := n * p * (1 - p)
		jAA += w
		jAB += w * s
		jBB += w * s * s
	}
	jAA += lambda
	jBB += lambda

	det := jAA*jBB - jAB*jAB
	if math.Abs(det) < singularDetThreshold {
		return nil, false
	}

	return &Cov{
		VarA:  jBB / det,
		CovAB: -jAB / det,
		VarB:  jAA / det,
	}, true
}
