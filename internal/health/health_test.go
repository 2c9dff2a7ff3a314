package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeHTTP_AllPassReturns200Healthy(t *testing.T) {
	lastSeen := func(symbol string) (time.Time, bool) { return time.Now(), true }
	h := New([]string{"BTCUSD"}, time.Minute, lastSeen, Check{
		Name:  "postgres",
		Probe: func(ctx context.Context) error { return nil },
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusPass, resp.Status)
	assert.Equal(t, StatusPass, resp.Checks["postgres"].Status)
	assert.Equal(t, StatusPass, resp.Checks["staleness:BTCUSD"].Status)
}

func TestServeHTTP_FailingDependencyReturns503Unhealthy(t *testing.T) {
	h := New(nil, time.Minute, nil, Check{
		Name:  "postgres",
		Probe: func(ctx context.Context) error { return errors.New("connection refused") },
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusFail, resp.Status)
}

func TestServeHTTP_StaleSymbolDegradesToFail(t *testing.T) {
	lastSeen := func(symbol string) (time.Time, bool) { return time.Now().Add(-time.Hour), true }
	h := New([]string{"BTCUSD"}, time.Minute, lastSeen)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServeHTTP_NeverSeenSymbolWarnsButStaysHealthy(t *testing.T) {
	lastSeen := func(symbol string) (time.Time, bool) { return time.Time{}, false }
	h := New([]string{"BTCUSD"}, time.Minute, lastSeen)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusWarn, resp.Status)
}
