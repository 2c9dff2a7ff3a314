package backtest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult() Result {
	return Result{
		Precision:        0.8,
		Recall:           0.6,
		F1:               0.686,
		FPR:              0.05,
		AvgLeadTimeMin:   12.5,
		Confusion:        ConfusionMatrix{TP: 8, FP: 2, FN: 5, TN: 100},
		TotalPoints:      115,
		CascadesInWindow: 13,
		Baseline:         Baseline{RandomF1: 0.2},
		BrierScore:       0.12,
		CalibrationCurve: []CalibrationCurvePoint{
			{ScoreBin: 70, MeanConfidence: 0.72, ObservedRate: 0.65, Count: 40},
		},
	}
}

func TestWriteReport_RendersMarkdownWithSummaryAndConfusion(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	cfg := Config{Symbols: []string{"BTCUSD", "ETHUSD"}, ScoreThreshold: 70, ConfidenceThreshold: 0.6, HorizonMin: 60}

	require.NoError(t, w.WriteReport(cfg, testResult()))

	contents, err := os.ReadFile(filepath.Join(dir, "report.md"))
	require.NoError(t, err)
	body := string(contents)

	assert.Contains(t, body, "# Cascade Risk Backtest Report")
	assert.Contains(t, body, "BTCUSD, ETHUSD")
	assert.Contains(t, body, "Precision")
	assert.Contains(t, body, "TP=8")
	assert.Contains(t, body, "TN=100")
	assert.Contains(t, body, "Brier Score")
	assert.Contains(t, body, "## Calibration Curve")
	assert.Contains(t, body, "| 70-79 | 0.720 | 0.650 | 40 |")
}

func TestWriteSummaryJSON_EncodesCompactSummary(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	cfg := Config{ScoreThreshold: 70, ConfidenceThreshold: 0.6}

	require.NoError(t, w.WriteSummaryJSON(cfg, testResult()))

	contents, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(contents, &decoded))
	assert.Equal(t, 0.8, decoded["precision"])
	assert.Equal(t, float64(13), decoded["cascades_in_window"])
	assert.Equal(t, 0.12, decoded["brier_score"])
}

func TestWriteSweepReport_RendersOneRowPerGridCell(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	scoreThresholds := []float64{60, 70}
	confThresholds := []float64{0.5, 0.7}
	results := []Result{testResult(), testResult(), testResult(), testResult()}

	require.NoError(t, w.WriteSweepReport(scoreThresholds, confThresholds, results))

	contents, err := os.ReadFile(filepath.Join(dir, "sweep_report.md"))
	require.NoError(t, err)
	body := string(contents)

	assert.Contains(t, body, "# Cascade Risk Threshold Sweep")
	assert.Contains(t, body, "| 60.0 | 0.50 |")
	assert.Contains(t, body, "| 70.0 | 0.70 |")
}
