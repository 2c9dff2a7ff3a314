package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/cascadeengine/internal/backtest"
	"github.com/sawpanic/cascadeengine/internal/calibration"
	"github.com/sawpanic/cascadeengine/internal/store"
	"github.com/sawpanic/cascadeengine/internal/telemetry/logging"
)

const defaultCalibrationWindow = 90 * 24 * time.Hour

// runCalibrate fits calibration parameters once against persisted
// scores and ground-truth cascades and writes the result, the
// one-shot counterpart to the scheduler's recurring refit tick.
func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	startMs, _ := cmd.Flags().GetInt64("start-ms")
	endMs, _ := cmd.Flags().GetInt64("end-ms")
	horizonMin, _ := cmd.Flags().GetInt("horizon-min")
	if endMs == 0 {
		endMs = time.Now().UnixMilli()
	}
	if startMs == 0 {
		startMs = endMs - defaultCalibrationWindow.Milliseconds()
	}

	r, err := openRepos(cfg)
	if err != nil {
		return err
	}
	defer r.closeFn()

	src := store.BacktestSource{Scores: r.scores, Cascades: r.cascades}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx, logger = logging.WithCorrelationID(ctx, logger)

	bins, err := backtest.BuildCalibrationBins(ctx, src, src, src, startMs, endMs, horizonMin, backtest.DefaultPageSize)
	if err != nil {
		return fmt.Errorf("calibrate: building bins: %w", err)
	}
	logger.Info().Int("bins", len(bins)).Msg("calibration bins built")

	report := calibration.Fit(bins, cfg.ToFitConfig())
	if !report.Converged {
		logger.Warn().Int("total_samples", report.TotalSamples).Msg("calibration fit did not converge")
	}

	if err := r.calibration.Save(ctx, time.Now(), report); err != nil {
		return fmt.Errorf("calibrate: persisting report: %w", err)
	}

	fmt.Printf("Calibration fit: intercept=%.4f coefficient=%.4f iterations=%d converged=%t samples=%d base_rate=%.4f\n",
		report.Params.Intercept, report.Params.Coefficient, report.Iterations, report.Converged, report.TotalSamples, report.BaseRate)
	return nil
}
