// Command cascadeengine drives the perpetual-futures cascade risk
// engine: a streaming `serve` entrypoint plus offline `backtest`,
// `sweep`, and `calibrate` subcommands, grounded on the teacher's
// cmd/cryptorun/main.go root-command construction (global zerolog
// setup, cobra.Command tree, per-subcommand Flags()).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	appName = "cascadeengine"
	version = "v0.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Perpetual-futures cascade risk assessment engine",
		Version: version,
		Long: `cascadeengine streams per-symbol stress scores off perpetual-futures
order book and funding data, predicts squeeze cascades, and backtests
those predictions against recorded ground-truth cascade events.`,
	}

	rootCmd.PersistentFlags().String("config", "", "path to engine.yaml (defaults to built-in defaults)")
	rootCmd.PersistentFlags().String("log-level", "info", "debug|info|warn|error")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "console-formatted logs instead of JSON")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the streaming risk-analysis, cascade-detection, and calibration-refit scheduler",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", ":8080", "HTTP listen address for /healthz, /metrics, and /ws")

	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Evaluate persisted risk scores against recorded cascade events",
		RunE:  runBacktest,
	}
	addBacktestFlags(backtestCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evaluate a grid of score/confidence thresholds in one pass",
		RunE:  runSweep,
	}
	addBacktestFlags(sweepCmd)
	sweepCmd.Flags().String("score-thresholds", "50,60,70,80,90", "comma-separated integer score thresholds")
	sweepCmd.Flags().String("confidence-thresholds", "0.5,0.6,0.7,0.8", "comma-separated float confidence thresholds")

	calibrateCmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Fit calibration parameters once against persisted scores and cascades, without starting the scheduler",
		RunE:  runCalibrate,
	}
	calibrateCmd.Flags().Int64("start-ms", 0, "window start, epoch milliseconds (0 = 90 days ago)")
	calibrateCmd.Flags().Int64("end-ms", 0, "window end, epoch milliseconds (0 = now)")
	calibrateCmd.Flags().Int("horizon-min", 240, "minutes after a score at which a cascade still counts as predicted")

	rootCmd.AddCommand(serveCmd, backtestCmd, sweepCmd, calibrateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func addBacktestFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("start-ms", 0, "window start, epoch milliseconds (0 = 90 days ago)")
	cmd.Flags().Int64("end-ms", 0, "window end, epoch milliseconds (0 = now)")
	cmd.Flags().Int("score-threshold", 70, "minimum risk score counted as a positive prediction")
	cmd.Flags().Float64("confidence-threshold", 0.6, "minimum calibrated confidence counted as a positive prediction")
	cmd.Flags().Int("horizon-min", 240, "minutes after a score at which a cascade still counts as predicted")
	cmd.Flags().String("output", "./backtest-out", "directory for the written reports (report.md and summary.json; sweep_report.md for sweep)")
}
