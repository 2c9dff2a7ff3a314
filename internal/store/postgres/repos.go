// Package postgres implements store's repository interfaces against
// PostgreSQL via sqlx + lib/pq, grounded on the teacher's
// internal/persistence/postgres/regime_repo.go: context-scoped query
// timeouts, ON CONFLICT upserts, and JSON-marshaled map/struct columns.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sawpanic/cascadeengine/internal/backtest"
	"github.com/sawpanic/cascadeengine/internal/calibration"
	"github.com/sawpanic/cascadeengine/internal/cascade"
	"github.com/sawpanic/cascadeengine/internal/stress"
	"github.com/sawpanic/cascadeengine/internal/store"
)

// Open connects to Postgres and applies the pool tuning the teacher
// wires through its config-loaded DatabaseYAML section.
func Open(dsn string, maxOpen, maxIdle int, connMaxLife time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLife)
	return db, nil
}

type riskScoreRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRiskScoreRepo constructs a store.RiskScoreRepo backed by Postgres.
func NewRiskScoreRepo(db *sqlx.DB, timeout time.Duration) store.RiskScoreRepo {
	return &riskScoreRepo{db: db, timeout: timeout}
}

func (r *riskScoreRepo) Upsert(ctx context.Context, symbol string, a stress.RiskAssessment) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	factorsJSON, err := json.Marshal(a.Factors)
	if err != nil {
		return fmt.Errorf("postgres: marshal factors: %w", err)
	}
	var predJSON []byte
	if a.Prediction != nil {
		predJSON, err = json.Marshal(a.Prediction)
		if err != nil {
			return fmt.Errorf("postgres: marshal prediction: %w", err)
		}
	}

	confidence := a.Confidence
	var probability sql.NullFloat64
	if a.Prediction != nil {
		probability = sql.NullFloat64{Float64: a.Prediction.Probability, Valid: true}
	}

	query := `
		INSERT INTO risk_scores
		(symbol, ts_ms, risk_score, risk_level, confidence, probability, factors, prediction)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, ts_ms) DO UPDATE SET
			risk_score = EXCLUDED.risk_score,
			risk_level = EXCLUDED.risk_level,
			confidence = EXCLUDED.confidence,
			probability = EXCLUDED.probability,
			factors = EXCLUDED.factors,
			prediction = EXCLUDED.prediction`

	_, err = r.db.ExecContext(ctx, query,
		symbol, a.TimestampMs, a.RiskScore, string(a.RiskLevel), confidence, probability, factorsJSON, predJSON)
	if err != nil {
		return fmt.Errorf("postgres: upsert risk score: %w", err)
	}
	return nil
}

func (r *riskScoreRepo) Page(ctx context.Context, symbol string, tr store.TimeRange, cursor string, pageSize int) (backtest.ScorePage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	afterMs := tr.FromMs
	if cursor != "" {
		var parsed int64
		if _, err := fmt.Sscanf(cursor, "%d", &parsed); err != nil {
			return backtest.ScorePage{}, fmt.Errorf("postgres: invalid cursor %q: %w", cursor, err)
		}
		afterMs = parsed + 1
	}

	query := `
		SELECT ts_ms, risk_score, COALESCE(probability, confidence) AS confidence
		FROM risk_scores
		WHERE symbol = $1 AND ts_ms >= $2 AND ts_ms <= $3
		ORDER BY ts_ms ASC
		LIMIT $4`

	rows, err := r.db.QueryxContext(ctx, query, symbol, afterMs, tr.ToMs, pageSize+1)
	if err != nil {
		return backtest.ScorePage{}, fmt.Errorf("postgres: page risk scores: %w", err)
	}
	defer rows.Close()

	var points []backtest.ScoredPoint
	for rows.Next() {
		var ts int64
		var score int
		var confidence float64
		if err := rows.Scan(&ts, &score, &confidence); err != nil {
			return backtest.ScorePage{}, fmt.Errorf("postgres: scan risk score row: %w", err)
		}
		points = append(points, backtest.ScoredPoint{
			Symbol:      symbol,
			TimestampMs: ts,
			RiskScore:   score,
			Confidence:  confidence,
		})
	}
	if err := rows.Err(); err != nil {
		return backtest.ScorePage{}, fmt.Errorf("postgres: iterate risk score rows: %w", err)
	}

	done := len(points) <= pageSize
	if !done {
		points = points[:pageSize]
	}
	next := ""
	if len(points) > 0 {
		next = fmt.Sprintf("%d", points[len(points)-1].TimestampMs)
	}
	return backtest.ScorePage{Points: points, NextCursor: next, Done: done}, nil
}

func (r *riskScoreRepo) DistinctSymbols(ctx context.Context, tr store.TimeRange) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT DISTINCT symbol FROM risk_scores WHERE ts_ms >= $1 AND ts_ms <= $2 ORDER BY symbol`
	var symbols []string
	if err := r.db.SelectContext(ctx, &symbols, query, tr.FromMs, tr.ToMs); err != nil {
		return nil, fmt.Errorf("postgres: distinct symbols: %w", err)
	}
	return symbols, nil
}

type cascadeEventRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCascadeEventRepo constructs a store.CascadeEventRepo backed by Postgres.
func NewCascadeEventRepo(db *sqlx.DB, timeout time.Duration) store.CascadeEventRepo {
	return &cascadeEventRepo{db: db, timeout: timeout}
}

func (r *cascadeEventRepo) Upsert(ctx context.Context, e cascade.Event) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO cascade_events
		(symbol, direction, start_time_ms, end_time_ms, price_change_pct, liquidation_volume_usd)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol, direction, start_time_ms) DO UPDATE SET
			end_time_ms = EXCLUDED.end_time_ms,
			price_change_pct = EXCLUDED.price_change_pct,
			liquidation_volume_usd = EXCLUDED.liquidation_volume_usd`

	_, err := r.db.ExecContext(ctx, query,
		e.Symbol, string(e.Direction), e.StartTimeMs, e.EndTimeMs, e.PriceChangePct, e.LiquidationVolumeUSD)
	if err != nil {
		return fmt.Errorf("postgres: upsert cascade event: %w", err)
	}
	return nil
}

func (r *cascadeEventRepo) InRange(ctx context.Context, symbol string, tr store.TimeRange) ([]cascade.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT symbol, direction, start_time_ms, end_time_ms, price_change_pct, liquidation_volume_usd
		FROM cascade_events
		WHERE symbol = $1 AND start_time_ms >= $2 AND start_time_ms <= $3
		ORDER BY start_time_ms ASC`

	rows, err := r.db.QueryxContext(ctx, query, symbol, tr.FromMs, tr.ToMs)
	if err != nil {
		return nil, fmt.Errorf("postgres: query cascade events: %w", err)
	}
	defer rows.Close()

	var out []cascade.Event
	for rows.Next() {
		var e cascade.Event
		var direction string
		if err := rows.Scan(&e.Symbol, &direction, &e.StartTimeMs, &e.EndTimeMs, &e.PriceChangePct, &e.LiquidationVolumeUSD); err != nil {
			return nil, fmt.Errorf("postgres: scan cascade event row: %w", err)
		}
		e.Direction = cascade.Direction(direction)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate cascade event rows: %w", err)
	}
	return out, nil
}

type calibrationRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCalibrationRepo constructs a store.CalibrationRepo backed by Postgres.
func NewCalibrationRepo(db *sqlx.DB, timeout time.Duration) store.CalibrationRepo {
	return &calibrationRepo{db: db, timeout: timeout}
}

func (r *calibrationRepo) Save(ctx context.Context, fittedAt time.Time, report calibration.Report) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	binsJSON, err := json.Marshal(report.Bins)
	if err != nil {
		return fmt.Errorf("postgres: marshal calibration bins: %w", err)
	}

	query := `
		INSERT INTO calibration_fits
		(fitted_at, intercept, coefficient, total_samples, positives, base_rate, iterations, log_likelihood, converged, bins)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.ExecContext(ctx, query,
		fittedAt, report.Params.Intercept, report.Params.Coefficient,
		report.TotalSamples, report.Positives, report.BaseRate,
		report.Iterations, report.LogLikelihood, report.Converged, binsJSON)
	if err != nil {
		return fmt.Errorf("postgres: save calibration fit: %w", err)
	}
	return nil
}

func (r *calibrationRepo) Latest(ctx context.Context) (*calibration.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT intercept, coefficient, total_samples, positives, base_rate, iterations, log_likelihood, converged, bins, fitted_at
		FROM calibration_fits
		ORDER BY fitted_at DESC
		LIMIT 1`

	row := r.db.QueryRowxContext(ctx, query)
	var report calibration.Report
	var binsJSON []byte
	var fittedAt time.Time
	err := row.Scan(
		&report.Params.Intercept, &report.Params.Coefficient,
		&report.TotalSamples, &report.Positives, &report.BaseRate,
		&report.Iterations, &report.LogLikelihood, &report.Converged, &binsJSON, &fittedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: latest calibration fit: %w", err)
	}
	report.Params.FittedAt = fittedAt
	if err := json.Unmarshal(binsJSON, &report.Bins); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal calibration bins: %w", err)
	}
	return &report, nil
}
