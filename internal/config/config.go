// Package config loads the engine's YAML configuration file, mirroring
// the teacher's cmd/cryptorun/cmd_artifacts.go and cmd_ops_status.go
// pattern of os.ReadFile + yaml.Unmarshal against a typed struct rather
// than a general-purpose config framework.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/cascadeengine/internal/calibration"
	"github.com/sawpanic/cascadeengine/internal/cascade"
	"github.com/sawpanic/cascadeengine/internal/scheduler"
	"github.com/sawpanic/cascadeengine/internal/stress"
)

// StressYAML mirrors stress.Config with yaml tags.
type StressYAML struct {
	HistoryLength             int     `yaml:"history_length"`
	MinHistoryLength          int     `yaml:"min_history_length"`
	ColdStartElevated         float64 `yaml:"cold_start_elevated"`
	ColdStartHigh             float64 `yaml:"cold_start_high"`
	ColdStartCritical         float64 `yaml:"cold_start_critical"`
	ThresholdPctElevated      float64 `yaml:"threshold_pct_elevated"`
	ThresholdPctHigh          float64 `yaml:"threshold_pct_high"`
	ThresholdPctCritical      float64 `yaml:"threshold_pct_critical"`
	VolRegimeLowHigh          float64 `yaml:"vol_regime_low_high"`
	VolRegimeHighLow          float64 `yaml:"vol_regime_high_low"`
	VolMultiplierLow          float64 `yaml:"vol_multiplier_low"`
	VolMultiplierMedium       float64 `yaml:"vol_multiplier_medium"`
	VolMultiplierHigh         float64 `yaml:"vol_multiplier_high"`
	VolLookback               int     `yaml:"vol_lookback"`
	EnableLiquidityAdjustment bool    `yaml:"enable_liquidity_adjustment"`
	CalibrationIntercept      float64 `yaml:"calibration_intercept"`
	CalibrationCoefficient    float64 `yaml:"calibration_coefficient"`
	ZScoreScaling             float64 `yaml:"z_score_scaling"`
	PredictionMinScore        int     `yaml:"prediction_min_score"`
}

// CascadeYAML mirrors cascade.Config, durations expressed in minutes/hours.
type CascadeYAML struct {
	WindowMinutes    int     `yaml:"window_minutes"`
	StepMinutes      int     `yaml:"step_minutes"`
	SigmaMultiplier  float64 `yaml:"sigma_multiplier"`
	LiqPercentile    float64 `yaml:"liq_percentile"`
	MinLiqUSD        float64 `yaml:"min_liq_usd"`
	DominanceRatio   float64 `yaml:"dominance_ratio"`
	VolLookbackHours int     `yaml:"vol_lookback_hours"`
}

// CalibrationYAML mirrors the IRLS fit knobs and the default prior.
type CalibrationYAML struct {
	RidgeLambda      float64 `yaml:"ridge_lambda"`
	MaxIterations    int     `yaml:"max_iterations"`
	PriorIntercept   float64 `yaml:"prior_intercept"`
	PriorCoefficient float64 `yaml:"prior_coefficient"`
	RefitIntervalMin int     `yaml:"refit_interval_min"`
}

// DatabaseYAML holds Postgres connection settings.
type DatabaseYAML struct {
	DSN            string `yaml:"dsn"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
	MaxIdleConns   int    `yaml:"max_idle_conns"`
	ConnMaxLifeMin int    `yaml:"conn_max_life_min"`
}

// RedisYAML holds the latest-snapshot cache settings.
type RedisYAML struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLSec   int    `yaml:"ttl_sec"`
}

// SchedulerYAML controls the polling loop cadence.
type SchedulerYAML struct {
	PollIntervalSec       int `yaml:"poll_interval_sec"`
	SoftDeadlineSec       int `yaml:"soft_deadline_sec"`
	MaxConcurrency        int `yaml:"max_concurrency"`
	CascadeIntervalSec    int `yaml:"cascade_interval_sec"`
	CalibrationIntervalSec int `yaml:"calibration_interval_sec"`
}

// LoggingYAML controls zerolog's global level and output format.
type LoggingYAML struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// EngineConfig is the top-level YAML document for `cascadeengine serve`
// and `cascadeengine backtest`.
type EngineConfig struct {
	Symbols     []string        `yaml:"symbols"`
	Stress      StressYAML      `yaml:"stress"`
	Cascade     CascadeYAML     `yaml:"cascade"`
	Calibration CalibrationYAML `yaml:"calibration"`
	Database    DatabaseYAML    `yaml:"database"`
	Redis       RedisYAML       `yaml:"redis"`
	Scheduler   SchedulerYAML   `yaml:"scheduler"`
	Logging     LoggingYAML     `yaml:"logging"`
}

// Load reads and parses a YAML config file at path.
func Load(path string) (EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns an EngineConfig whose nested sections match each
// subsystem's own DefaultConfig(), for use when no file is supplied.
func Default() EngineConfig {
	sd := stress.DefaultConfig()
	cd := cascade.DefaultConfig()
	cf := calibration.DefaultFitConfig()
	dp := calibration.DefaultParams()

	return EngineConfig{
		Symbols: []string{"BTCUSD", "ETHUSD"},
		Stress: StressYAML{
			HistoryLength:             sd.HistoryLength,
			MinHistoryLength:          sd.MinHistoryLength,
			ColdStartElevated:         sd.ColdStart.Elevated,
			ColdStartHigh:             sd.ColdStart.High,
			ColdStartCritical:         sd.ColdStart.Critical,
			ThresholdPctElevated:      sd.ThresholdPercentiles.Elevated,
			ThresholdPctHigh:          sd.ThresholdPercentiles.High,
			ThresholdPctCritical:      sd.ThresholdPercentiles.Critical,
			VolRegimeLowHigh:          sd.VolRegimePercentiles.LowHigh,
			VolRegimeHighLow:          sd.VolRegimePercentiles.HighLow,
			VolMultiplierLow:          sd.VolMultipliers.Low,
			VolMultiplierMedium:       sd.VolMultipliers.Medium,
			VolMultiplierHigh:         sd.VolMultipliers.High,
			VolLookback:               sd.VolLookback,
			EnableLiquidityAdjustment: sd.EnableLiquidityAdjustment,
			CalibrationIntercept:      sd.CalibrationPrior.Intercept,
			CalibrationCoefficient:    sd.CalibrationPrior.Coefficient,
			ZScoreScaling:             sd.ZScoreScaling,
			PredictionMinScore:        sd.PredictionMinScore,
		},
		Cascade: CascadeYAML{
			WindowMinutes:    int(cd.Window / time.Minute),
			StepMinutes:      int(cd.Step / time.Minute),
			SigmaMultiplier:  cd.SigmaMultiplier,
			LiqPercentile:    cd.LiqPercentile,
			MinLiqUSD:        cd.MinLiqUSD,
			DominanceRatio:   cd.DominanceRatio,
			VolLookbackHours: int(cd.VolLookback / time.Hour),
		},
		Calibration: CalibrationYAML{
			RidgeLambda:      cf.Lambda,
			MaxIterations:    cf.MaxIterations,
			PriorIntercept:   dp.Intercept,
			PriorCoefficient: dp.Coefficient,
			RefitIntervalMin: 60,
		},
		Database: DatabaseYAML{
			MaxOpenConns:   10,
			MaxIdleConns:   5,
			ConnMaxLifeMin: 30,
		},
		Redis: RedisYAML{
			Addr:   "localhost:6379",
			TTLSec: 300,
		},
		Scheduler: SchedulerYAML{
			PollIntervalSec:        60,
			SoftDeadlineSec:        45,
			MaxConcurrency:         8,
			CascadeIntervalSec:     300,
			CalibrationIntervalSec: 3600,
		},
		Logging: LoggingYAML{
			Level:  "info",
			Pretty: false,
		},
	}
}

// ToStressConfig converts the YAML section into stress.Config.
func (c EngineConfig) ToStressConfig() stress.Config {
	return stress.Config{
		HistoryLength:    c.Stress.HistoryLength,
		MinHistoryLength: c.Stress.MinHistoryLength,
		ColdStart: stress.ColdStartThresholds{
			Elevated: c.Stress.ColdStartElevated,
			High:     c.Stress.ColdStartHigh,
			Critical: c.Stress.ColdStartCritical,
		},
		ThresholdPercentiles: stress.ThresholdPercentiles{
			Elevated: c.Stress.ThresholdPctElevated,
			High:     c.Stress.ThresholdPctHigh,
			Critical: c.Stress.ThresholdPctCritical,
		},
		VolRegimePercentiles: stress.VolRegimePercentiles{
			LowHigh: c.Stress.VolRegimeLowHigh,
			HighLow: c.Stress.VolRegimeHighLow,
		},
		VolMultipliers: stress.VolMultipliers{
			Low:    c.Stress.VolMultiplierLow,
			Medium: c.Stress.VolMultiplierMedium,
			High:   c.Stress.VolMultiplierHigh,
		},
		VolLookback:               c.Stress.VolLookback,
		EnableLiquidityAdjustment: c.Stress.EnableLiquidityAdjustment,
		CalibrationPrior: calibration.Params{
			Intercept:   c.Stress.CalibrationIntercept,
			Coefficient: c.Stress.CalibrationCoefficient,
		},
		ZScoreScaling:      c.Stress.ZScoreScaling,
		PredictionMinScore: c.Stress.PredictionMinScore,
	}
}

// ToCascadeConfig converts the YAML section into cascade.Config.
func (c EngineConfig) ToCascadeConfig() cascade.Config {
	return cascade.Config{
		Window:          time.Duration(c.Cascade.WindowMinutes) * time.Minute,
		Step:            time.Duration(c.Cascade.StepMinutes) * time.Minute,
		SigmaMultiplier: c.Cascade.SigmaMultiplier,
		LiqPercentile:   c.Cascade.LiqPercentile,
		MinLiqUSD:       c.Cascade.MinLiqUSD,
		DominanceRatio:  c.Cascade.DominanceRatio,
		VolLookback:     time.Duration(c.Cascade.VolLookbackHours) * time.Hour,
	}
}

// ToSchedulerConfig converts the YAML section into scheduler.Config.
// CascadeWindow is pinned to the cascade detector's own VolLookback so
// every detection tick has enough trailing history to compute
// trailing volatility at the window's earliest step.
func (c EngineConfig) ToSchedulerConfig() scheduler.Config {
	return scheduler.Config{
		PollInterval:        time.Duration(c.Scheduler.PollIntervalSec) * time.Second,
		SoftDeadline:        time.Duration(c.Scheduler.SoftDeadlineSec) * time.Second,
		MaxConcurrency:      c.Scheduler.MaxConcurrency,
		CascadeInterval:     time.Duration(c.Scheduler.CascadeIntervalSec) * time.Second,
		CalibrationInterval: time.Duration(c.Scheduler.CalibrationIntervalSec) * time.Second,
		CascadeWindow:       c.ToCascadeConfig().VolLookback,
		FitConfig:           c.ToFitConfig(),
	}
}

// ToFitConfig converts the YAML section into calibration.FitConfig.
func (c EngineConfig) ToFitConfig() calibration.FitConfig {
	return calibration.FitConfig{
		Lambda:        c.Calibration.RidgeLambda,
		MaxIterations: c.Calibration.MaxIterations,
	}
}
