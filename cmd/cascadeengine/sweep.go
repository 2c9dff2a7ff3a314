package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/cascadeengine/internal/backtest"
	"github.com/sawpanic/cascadeengine/internal/store"
	"github.com/sawpanic/cascadeengine/internal/telemetry/logging"
)

// runSweep evaluates a threshold grid in one pass, reusing the same
// loaded scores/cascades across every combination per spec §4.5's
// "threshold sweep reuses loaded cascades".
func runSweep(cmd *cobra.Command, args []string) error {
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

	scoreThresholds, err := parseIntList(cmd, "score-thresholds")
	if err != nil {
		return err
	}
	confidenceThresholds, err := parseFloatList(cmd, "confidence-thresholds")
	if err != nil {
		return err
	}

	r, err := openRepos(cfg)
	if err != nil {
		return err
	}
	defer r.closeFn()

	src := store.BacktestSource{Scores: r.scores, Cascades: r.cascades}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx, logger = logging.WithCorrelationID(ctx, logger)

	fmt.Printf("Running threshold sweep: %d score thresholds x %d confidence thresholds\n", len(scoreThresholds), len(confidenceThresholds))

	results, err := backtest.Sweep(ctx, src, src, src, bcfg, scoreThresholds, confidenceThresholds, logger)
	if err != nil {
		log.Error().Err(err).Msg("sweep failed")
		return fmt.Errorf("sweep: %w", err)
	}

	absOutputDir, err := filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("resolving output directory: %w", err)
	}
	writer := backtest.NewWriter(absOutputDir)
	scoreThresholdsF := make([]float64, len(scoreThresholds))
	for i, v := range scoreThresholds {
		scoreThresholdsF[i] = float64(v)
	}
	if err := writer.WriteSweepReport(scoreThresholdsF, confidenceThresholds, results); err != nil {
		log.Warn().Err(err).Msg("failed to write sweep report")
	}

	best := bestByF1(results)
	fmt.Printf("Best F1=%.3f across %d combinations. Report written to %s\n", best, len(results), absOutputDir)
	return nil
}

func bestByF1(results []backtest.Result) float64 {
	best := 0.0
	for _, r := range results {
		if r.F1 > best {
			best = r.F1
		}
	}
	return best
}

func parseIntList(cmd *cobra.Command, flag string) ([]int, error) {
	raw, _ := cmd.Flags().GetString(flag)
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parsing --%s value %q: %w", flag, p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloatList(cmd *cobra.Command, flag string) ([]float64, error) {
	raw, _ := cmd.Flags().GetString(flag)
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing --%s value %q: %w", flag, p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
