package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_RoundTripsIntoSubsystemConfigs(t *testing.T) {
	cfg := Default()

	sc := cfg.ToStressConfig()
	assert.Equal(t, 43200, sc.HistoryLength)
	assert.Equal(t, 1440, sc.MinHistoryLength)
	assert.Equal(t, 0.15, sc.ColdStart.Elevated)

	cc := cfg.ToCascadeConfig()
	assert.Equal(t, int64(5*60*1000), cc.Window.Milliseconds())
	assert.Equal(t, 0.65, cc.DominanceRatio)

	fc := cfg.ToFitConfig()
	assert.Equal(t, 0.001, fc.Lambda)
	assert.Equal(t, 25, fc.MaxIterations)

	scd := cfg.ToSchedulerConfig()
	assert.Equal(t, 60*time.Second, scd.PollInterval)
	assert.Equal(t, cc.VolLookback, scd.CascadeWindow)
}

func TestLoad_ParsesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	contents := `
symbols: ["BTCUSD"]
stress:
  history_length: 100
  min_history_length: 10
cascade:
  window_minutes: 5
  step_minutes: 1
scheduler:
  poll_interval_sec: 30
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSD"}, cfg.Symbols)
	assert.Equal(t, 100, cfg.Stress.HistoryLength)
	assert.Equal(t, 5, cfg.Cascade.WindowMinutes)
	assert.Equal(t, 30, cfg.Scheduler.PollIntervalSec)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
