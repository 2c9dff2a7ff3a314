package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cascadeengine/internal/stress"
	"github.com/sawpanic/cascadeengine/internal/store"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestRiskScoreRepo_UpsertExecutesOnConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRiskScoreRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO risk_scores").
		WithArgs("BTCUSD", int64(1000), 75, "high", 0.8, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Upsert(context.Background(), "BTCUSD", stress.RiskAssessment{
		Symbol:      "BTCUSD",
		TimestampMs: 1000,
		RiskScore:   75,
		RiskLevel:   stress.LevelHigh,
		Confidence:  0.8,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRiskScoreRepo_PageReturnsDoneWhenShortOfPageSize(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRiskScoreRepo(db, time.Second)

	rows := sqlmock.NewRows([]string{"ts_ms", "risk_score", "confidence"}).
		AddRow(int64(1000), 50, 0.5).
		AddRow(int64(2000), 60, 0.6)

	mock.ExpectQuery("SELECT ts_ms, risk_score").
		WithArgs("BTCUSD", int64(0), int64(10000), 51).
		WillReturnRows(rows)

	page, err := repo.Page(context.Background(), "BTCUSD", store.TimeRange{FromMs: 0, ToMs: 10000}, "", 50)
	require.NoError(t, err)
	assert.True(t, page.Done)
	assert.Len(t, page.Points, 2)
	assert.Equal(t, "2000", page.NextCursor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRiskScoreRepo_DistinctSymbols(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRiskScoreRepo(db, time.Second)

	rows := sqlmock.NewRows([]string{"symbol"}).AddRow("BTCUSD").AddRow("ETHUSD")
	mock.ExpectQuery("SELECT DISTINCT symbol").
		WithArgs(int64(0), int64(100)).
		WillReturnRows(rows)

	symbols, err := repo.DistinctSymbols(context.Background(), store.TimeRange{FromMs: 0, ToMs: 100})
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSD", "ETHUSD"}, symbols)
}
