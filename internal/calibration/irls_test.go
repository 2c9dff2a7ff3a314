package calibration

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioBins() []Bin {
	bins := make([]Bin, 0, 101)
	for s := 0; s <= 49; s++ {
		bins = append(bins, Bin{Score: s, Positive: 1, Total: 1000})
	}
	for s := 50; s <= 100; s++ {
		bins = append(bins, Bin{Score: s, Positive: 100, Total: 1000})
	}
	return bins
}

func TestFit_ConvergesOnSeparatedBins(t *testing.T) {
	report := Fit(scenarioBins(), DefaultFitConfig())
	require.True(t, report.Converged)
	assert.Greater(t, report.Params.Coefficient, 0.0)

	p25 := report.Params.Predict(25)
	p75 := report.Params.Predict(75)
	assert.Less(t, p25, 0.1)
	assert.Greater(t, p75, 0.5)
}

func TestFit_MonotoneInScoreWhenBPositive(t *testing.T) {
	report := Fit(scenarioBins(), DefaultFitConfig())
	require.Greater(t, report.Params.Coefficient, 0.0)

	prev := -1.0
	for s := 0; s <= 100; s += 5 {
		p := report.Params.Predict(float64(s))
		assert.GreaterOrEqual(t, p, prev)
		prev = p
	}
}

func TestFit_EmptyDataReturnsPriorNotConverged(t *testing.T) {
	report := Fit(nil, DefaultFitConfig())
	assert.False(t, report.Converged)
	assert.Equal(t, DefaultParams(), report.Params)
	assert.Nil(t, report.Params.Covariance)
}

func TestFit_ZeroBaseRateReturnsPrior(t *testing.T) {
	bins := []Bin{{Score: 10, Positive: 0, Total: 500}, {Score: 90, Positive: 0, Total: 500}}
	report := Fit(bins, DefaultFitConfig())
	assert.False(t, report.Converged)
	assert.Equal(t, DefaultParams(), report.Params)
}

func TestFit_AllPositiveBaseRateReturnsPrior(t *testing.T) {
	bins := []Bin{{Score: 10, Positive: 500, Total: 500}}
	report := Fit(bins, DefaultFitConfig())
	assert.False(t, report.Converged)
}

func TestFit_OrderIndependent(t *testing.T) {
	bins := scenarioBins()
	shuffled := append([]Bin(nil), bins...)
	rand.New(rand.NewSource(42)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	r1 := Fit(bins, DefaultFitConfig())
	r2 := Fit(shuffled, DefaultFitConfig())

	assert.InDelta(t, r1.Params.Intercept, r2.Params.Intercept, 1e-9)
	assert.InDelta(t, r1.Params.Coefficient, r2.Params.Coefficient, 1e-9)
}

func TestFit_ProducesCovarianceWhenConverged(t *testing.T) {
	report := Fit(scenarioBins(), DefaultFitConfig())
	require.True(t, report.Converged)
	require.NotNil(t, report.Params.Covariance)
	assert.GreaterOrEqual(t, report.Params.Covariance.VarA, 0.0)
	assert.GreaterOrEqual(t, report.Params.Covariance.VarB, 0.0)
}

func TestWaldInterval_ContainsPointEstimate(t *testing.T) {
	report := Fit(scenarioBins(), DefaultFitConfig())
	iv := WaldInterval(report.Params, 60, ZAlpha95)
	assert.LessOrEqual(t, iv.Lower, iv.Point)
	assert.GreaterOrEqual(t, iv.Upper, iv.Point)
}

func TestWaldInterval_DegenerateWithoutCovariance(t *testing.T) {
	p := DefaultParams()
	iv := WaldInterval(p, 50, ZAlpha95)
	assert.Equal(t, iv.Lower, iv.Point)
	assert.Equal(t, iv.Upper, iv.Point)
}

func TestWilsonInterval_WithinUnitRange(t *testing.T) {
	iv := WilsonInterval(7, 10, ZAlpha95)
	assert.GreaterOrEqual(t, iv.Lower, 0.0)
	assert.LessOrEqual(t, iv.Upper, 1.0)
	assert.InDelta(t, 0.7, iv.Point, 1e-9)
}

func TestWilsonInterval_ZeroTotal(t *testing.T) {
	iv := WilsonInterval(0, 0, ZAlpha95)
	assert.Equal(t, Interval{}, iv)
}
