package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Writer renders a Result to a Markdown report and a compact JSON
// summary on disk, grounded on the teacher's
// internal/backtest/smoke90.Writer (generateMarkdownReport +
// WriteSummaryJSON), generalized from smoke90's fixed 90-day window
// report to this package's Config/Result shape.
type Writer struct {
	outputDir string
}

// NewWriter constructs a Writer rooted at outputDir.
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir}
}

// WriteReport renders report.md for a single threshold run.
func (w *Writer) WriteReport(cfg Config, r Result) error {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("backtest: creating output dir: %w", err)
	}
	path := filepath.Join(w.outputDir, "report.md")
	if err := os.WriteFile(path, []byte(renderMarkdown(cfg, r)), 0o644); err != nil {
		return fmt.Errorf("backtest: writing report: %w", err)
	}
	return nil
}

// WriteSummaryJSON renders a compact summary.json for a single run.
func (w *Writer) WriteSummaryJSON(cfg Config, r Result) error {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("backtest: creating output dir: %w", err)
	}
	summary := map[string]interface{}{
		"timestamp":           time.Now().Format(time.RFC3339),
		"score_threshold":     cfg.ScoreThreshold,
		"confidence_threshold": cfg.ConfidenceThreshold,
		"precision":           r.Precision,
		"recall":              r.Recall,
		"f1":                  r.F1,
		"false_positive_rate": r.FPR,
		"avg_lead_time_min":   r.AvgLeadTimeMin,
		"total_points":        r.TotalPoints,
		"cascades_in_window":  r.CascadesInWindow,
		"baseline_random_f1":  r.Baseline.RandomF1,
		"brier_score":         r.BrierScore,
	}
	path := filepath.Join(w.outputDir, "summary.json")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("backtest: creating summary: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("backtest: encoding summary: %w", err)
	}
	return nil
}

// WriteSweepReport renders a report.md table across every sweep result.
func (w *Writer) WriteSweepReport(scoreThresholds, confidenceThresholds []float64, results []Result) error {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("backtest: creating output dir: %w", err)
	}
	path := filepath.Join(w.outputDir, "sweep_report.md")
	if err := os.WriteFile(path, []byte(renderSweepMarkdown(scoreThresholds, confidenceThresholds, results)), 0o644); err != nil {
		return fmt.Errorf("backtest: writing sweep report: %w", err)
	}
	return nil
}

func renderMarkdown(cfg Config, r Result) string {
	var b strings.Builder
	b.WriteString("# Cascade Risk Backtest Report\n\n")
	b.WriteString(fmt.Sprintf("**Generated**: %s\n", time.Now().Format("2006-01-02 15:04:05 UTC")))
	b.WriteString(fmt.Sprintf("**Symbols**: %s\n", strings.Join(cfg.Symbols, ", ")))
	b.WriteString(fmt.Sprintf("**Thresholds**: score >= %d, confidence >= %.2f\n", cfg.ScoreThreshold, cfg.ConfidenceThreshold))
	b.WriteString(fmt.Sprintf("**Horizon**: %d minutes\n\n", cfg.HorizonMin))

	b.WriteString("## Summary\n\n")
	b.WriteString(fmt.Sprintf("- **Precision**: %.3f\n", r.Precision))
	b.WriteString(fmt.Sprintf("- **Recall**: %.3f\n", r.Recall))
	b.WriteString(fmt.Sprintf("- **F1**: %.3f\n", r.F1))
	b.WriteString(fmt.Sprintf("- **False Positive Rate**: %.3f\n", r.FPR))
	b.WriteString(fmt.Sprintf("- **Average Lead Time**: %.1f minutes\n", r.AvgLeadTimeMin))
	b.WriteString(fmt.Sprintf("- **Total Scored Points**: %d\n", r.TotalPoints))
	b.WriteString(fmt.Sprintf("- **Cascades In Window**: %d\n", r.CascadesInWindow))
	b.WriteString(fmt.Sprintf("- **Random-Classifier Baseline F1**: %.3f\n", r.Baseline.RandomF1))
	b.WriteString(fmt.Sprintf("- **Brier Score**: %.4f\n\n", r.BrierScore))

	b.WriteString("## Confusion Matrix\n\n")
	b.WriteString("| | Predicted Positive | Predicted Negative |\n")
	b.WriteString("|---|---|---|\n")
	b.WriteString(fmt.Sprintf("| **Actual Positive** | TP=%d | FN=%d |\n", r.Confusion.TP, r.Confusion.FN))
	b.WriteString(fmt.Sprintf("| **Actual Negative** | FP=%d | TN=%d |\n", r.Confusion.FP, r.Confusion.TN))

	if len(r.CalibrationCurve) > 0 {
		b.WriteString("\n## Calibration Curve\n\n")
		b.WriteString("| Score Bin | Mean Confidence | Observed Rate | Count |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, p := range r.CalibrationCurve {
			hi := p.ScoreBin + 9
			if p.ScoreBin == 90 {
				hi = 100
			}
			b.WriteString(fmt.Sprintf("| %d-%d | %.3f | %.3f | %d |\n", p.ScoreBin, hi, p.MeanConfidence, p.ObservedRate, p.Count))
		}
	}

	return b.String()
}

func renderSweepMarkdown(scoreThresholds, confidenceThresholds []float64, results []Result) string {
	var b strings.Builder
	b.WriteString("# Cascade Risk Threshold Sweep\n\n")
	b.WriteString(fmt.Sprintf("**Generated**: %s\n", time.Now().Format("2006-01-02 15:04:05 UTC")))
	b.WriteString(fmt.Sprintf("**Grid**: %d score thresholds x %d confidence thresholds\n\n", len(scoreThresholds), len(confidenceThresholds)))

	b.WriteString("| Score Threshold | Confidence Threshold | Precision | Recall | F1 | FPR |\n")
	b.WriteString("|---|---|---|---|---|---|\n")

	i := 0
	for _, st := range scoreThresholds {
		for _, ct := range confidenceThresholds {
			if i >= len(results) {
				break
			}
			r := results[i]
			b.WriteString(fmt.Sprintf("| %.1f | %.2f | %.3f | %.3f | %.3f | %.3f |\n",
				st, ct, r.Precision, r.Recall, r.F1, r.FPR))
			i++
		}
	}
	return b.String()
}
