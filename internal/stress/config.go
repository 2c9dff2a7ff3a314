package stress

import "github.com/sawpanic/cascadeengine/internal/calibration"

// ColdStartThresholds are the fixed percent thresholds used before a
// symbol has accumulated min_history_length samples.
type ColdStartThresholds struct {
	Elevated float64
	High     float64
	Critical float64
}

// ThresholdPercentiles are the warm-path spread_buf quantiles used to
// derive dynamic elevated/high/critical thresholds.
type ThresholdPercentiles struct {
	Elevated float64
	High     float64
	Critical float64
}

// VolRegimePercentiles splits the tercile boundaries used to classify
// the volatility-of-stress regime.
type VolRegimePercentiles struct {
	LowHigh  float64 // below this -> LOW
	HighLow  float64 // at/above this -> HIGH
}

// VolMultipliers scale dynamic thresholds by volatility regime.
type VolMultipliers struct {
	Low    float64
	Medium float64
	High   float64
}

// Config is the full recognized option set from spec §6.
type Config struct {
	HistoryLength            int
	MinHistoryLength         int
	ColdStart                ColdStartThresholds
	ThresholdPercentiles     ThresholdPercentiles
	VolRegimePercentiles     VolRegimePercentiles
	VolMultipliers           VolMultipliers
	VolLookback              int
	EnableLiquidityAdjustment bool
	CalibrationPrior         calibration.Params
	ZScoreScaling            float64
	PredictionMinScore       int
}

// DefaultConfig returns every default named in spec §6.
func DefaultConfig() Config {
	return Config{
		HistoryLength:    43200,
		MinHistoryLength: 1440,
		ColdStart: ColdStartThresholds{
			Elevated: 0.15,
			High:     0.30,
			Critical: 0.60,
		},
		ThresholdPercentiles: ThresholdPercentiles{
			Elevated: 0.90,
			High:     0.95,
			Critical: 0.99,
		},
		VolRegimePercentiles: VolRegimePercentiles{
			LowHigh: 0.33,
			HighLow: 0.67,
		},
		VolMultipliers: VolMultipliers{
			Low:    0.75,
			Medium: 1.0,
			High:   1.5,
		},
		VolLookback:               4320,
		EnableLiquidityAdjustment: false,
		CalibrationPrior:          calibration.DefaultParams(),
		ZScoreScaling:             20,
		PredictionMinScore:        40,
	}
}
