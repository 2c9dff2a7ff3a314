package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cascadeengine/internal/calibration"
	"github.com/sawpanic/cascadeengine/internal/cascade"
	"github.com/sawpanic/cascadeengine/internal/stress"
	"github.com/sawpanic/cascadeengine/internal/store"
)

func TestRiskScoreRepo_UpsertAndPage(t *testing.T) {
	repo := NewRiskScoreRepo()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := repo.Upsert(ctx, "BTCUSD", stress.RiskAssessment{
			Symbol:      "BTCUSD",
			TimestampMs: int64(i * 1000),
			RiskScore:   i * 10,
			Confidence:  0.5,
		})
		require.NoError(t, err)
	}

	page, err := repo.Page(ctx, "BTCUSD", store.TimeRange{FromMs: 0, ToMs: 10000}, "", 2)
	require.NoError(t, err)
	assert.Len(t, page.Points, 2)
	assert.False(t, page.Done)

	page2, err := repo.Page(ctx, "BTCUSD", store.TimeRange{FromMs: 0, ToMs: 10000}, page.NextCursor, 2)
	require.NoError(t, err)
	assert.Len(t, page2.Points, 2)
	assert.False(t, page2.Done)

	page3, err := repo.Page(ctx, "BTCUSD", store.TimeRange{FromMs: 0, ToMs: 10000}, page2.NextCursor, 2)
	require.NoError(t, err)
	assert.Len(t, page3.Points, 1)
	assert.True(t, page3.Done)

	last, ok := repo.Latest("BTCUSD")
	require.True(t, ok)
	assert.Equal(t, 40, last.RiskScore)
}

func TestRiskScoreRepo_UpsertReplacesSameTimestamp(t *testing.T) {
	repo := NewRiskScoreRepo()
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, "ETHUSD", stress.RiskAssessment{Symbol: "ETHUSD", TimestampMs: 100, RiskScore: 10}))
	require.NoError(t, repo.Upsert(ctx, "ETHUSD", stress.RiskAssessment{Symbol: "ETHUSD", TimestampMs: 100, RiskScore: 20}))

	page, err := repo.Page(ctx, "ETHUSD", store.TimeRange{FromMs: 0, ToMs: 1000}, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Points, 1)
	assert.Equal(t, 20, page.Points[0].RiskScore)
}

func TestCascadeEventRepo_UpsertAndInRange(t *testing.T) {
	repo := NewCascadeEventRepo()
	ctx := context.Background()

	e := cascade.Event{Symbol: "BTCUSD", Direction: cascade.LongSqueeze, StartTimeMs: 1000, EndTimeMs: 2000}
	require.NoError(t, repo.Upsert(ctx, e))
	e.EndTimeMs = 2500
	require.NoError(t, repo.Upsert(ctx, e))

	events, err := repo.InRange(ctx, "BTCUSD", store.TimeRange{FromMs: 0, ToMs: 5000})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(2500), events[0].EndTimeMs)
}

func TestCalibrationRepo_SaveAndLatest(t *testing.T) {
	repo := NewCalibrationRepo()
	ctx := context.Background()

	_, err := repo.Latest(ctx)
	require.NoError(t, err)

	report := calibration.Report{Params: calibration.Params{Intercept: -5, Coefficient: 0.1}, Converged: true}
	require.NoError(t, repo.Save(ctx, time.Unix(0, 0), report))

	got, err := repo.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Converged)
	assert.Equal(t, -5.0, got.Params.Intercept)
}
