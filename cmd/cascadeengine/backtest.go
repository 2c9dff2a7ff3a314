package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/cascadeengine/internal/backtest"
	"github.com/sawpanic/cascadeengine/internal/config"
	"github.com/sawpanic/cascadeengine/internal/store"
	"github.com/sawpanic/cascadeengine/internal/telemetry/logging"
)

const defaultBacktestWindow = 90 * 24 * time.Hour

// parseBacktestConfig reads the flags addBacktestFlags registers into a
// backtest.Config, defaulting the window to the trailing 90 days and
// the symbol list to cfg.Symbols.
func parseBacktestConfig(cmd *cobra.Command, cfg config.EngineConfig) (backtest.Config, error) {
	startMs, _ := cmd.Flags().GetInt64("start-ms")
	endMs, _ := cmd.Flags().GetInt64("end-ms")
	scoreThreshold, _ := cmd.Flags().GetInt("score-threshold")
	confidenceThreshold, _ := cmd.Flags().GetFloat64("confidence-threshold")
	horizonMin, _ := cmd.Flags().GetInt("horizon-min")

	if endMs == 0 {
		endMs = time.Now().UnixMilli()
	}
	if startMs == 0 {
		startMs = endMs - defaultBacktestWindow.Milliseconds()
	}
	if startMs >= endMs {
		return backtest.Config{}, fmt.Errorf("start-ms (%d) must precede end-ms (%d)", startMs, endMs)
	}
	if horizonMin <= 0 {
		return backtest.Config{}, fmt.Errorf("horizon-min must be positive, got %d", horizonMin)
	}

	return backtest.Config{
		Symbols:             cfg.Symbols,
		StartMs:             startMs,
		EndMs:               endMs,
		ScoreThreshold:      scoreThreshold,
		ConfidenceThreshold: confidenceThreshold,
		HorizonMin:          horizonMin,
		PageSize:            backtest.DefaultPageSize,
	}, nil
}

// runBacktest executes one threshold evaluation and writes report.md
// plus summary.json, grounded on the teacher's runBacktestSmoke90
// (flag parsing -> context.WithTimeout -> run -> writer.WriteResults/
// WriteReport), generalized from the 90-day momentum smoke test to
// this engine's cascade-classification Config/Result.
func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	bcfg, err := parseBacktestConfig(cmd, cfg)
	if err != nil {
		return err
	}
	outputDir, _ := cmd.Flags().GetString("output")

	r, err := openRepos(cfg)
	if err != nil {
		return err
	}
	defer r.closeFn()

	src := store.BacktestSource{Scores: r.scores, Cascades: r.cascades}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx, logger = logging.WithCorrelationID(ctx, logger)

	fmt.Printf("Running backtest: score>=%d confidence>=%.2f horizon=%dmin\n", bcfg.ScoreThreshold, bcfg.ConfidenceThreshold, bcfg.HorizonMin)

	result, err := backtest.Run(ctx, src, src, src, bcfg, logger)
	if err != nil {
		log.Error().Err(err).Msg("backtest failed")
		return fmt.Errorf("backtest: %w", err)
	}

	absOutputDir, err := filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("resolving output directory: %w", err)
	}
	writer := backtest.NewWriter(absOutputDir)
	if err := writer.WriteReport(bcfg, result); err != nil {
		log.Warn().Err(err).Msg("failed to write markdown report")
	}
	if err := writer.WriteSummaryJSON(bcfg, result); err != nil {
		log.Warn().Err(err).Msg("failed to write summary json")
	}

	fmt.Printf("Precision=%.3f Recall=%.3f F1=%.3f FPR=%.3f AvgLeadTime=%.1fmin Brier=%.4f\n",
		result.Precision, result.Recall, result.F1, result.FPR, result.AvgLeadTimeMin, result.BrierScore)
	fmt.Printf("Report written to %s\n", absOutputDir)
	return nil
}
