// Package health serves spec §7's "user-visible failure" surface as a
// stdlib net/http handler, grounded on the teacher's
// internal/interfaces/http.HealthHandler (per-check CheckResult map,
// first-fail-wins overall status) generalized from provider health to
// per-symbol staleness (now - last_compute) plus dependency pings.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Status is the coarse verdict of a single check or of the endpoint
// overall.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// CheckResult is one named dependency or staleness probe's outcome.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Response is the full /healthz body.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	UptimeSec float64                `json:"uptime_seconds"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Check is a named dependency probe, e.g. a Postgres or Redis ping.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// LastSeenFunc reports the most recent timestamp an engine processed
// for a symbol, and whether anything has been seen at all.
type LastSeenFunc func(symbol string) (time.Time, bool)

// Handler serves /healthz.
type Handler struct {
	start      time.Time
	symbols    []string
	staleAfter time.Duration
	lastSeen   LastSeenFunc
	checks     []Check
}

// New constructs a Handler. lastSeen may be nil, in which case
// staleness is skipped (useful for a backtest-only deployment with no
// live scheduler).
func New(symbols []string, staleAfter time.Duration, lastSeen LastSeenFunc, checks ...Check) *Handler {
	return &Handler{
		start:      time.Now(),
		symbols:    symbols,
		staleAfter: staleAfter,
		lastSeen:   lastSeen,
		checks:     checks,
	}
}

// ServeHTTP implements net/http.Handler for GET /healthz.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.gather(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	switch resp.Status {
	case StatusPass:
		w.WriteHeader(http.StatusOK)
	case StatusWarn:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) gather(ctx context.Context) Response {
	checks := make(map[string]CheckResult, len(h.checks)+len(h.symbols))

	for _, c := range h.checks {
		if err := c.Probe(ctx); err != nil {
			checks[c.Name] = CheckResult{Status: StatusFail, Message: err.Error()}
		} else {
			checks[c.Name] = CheckResult{Status: StatusPass, Message: "ok"}
		}
	}

	if h.lastSeen != nil {
		for _, symbol := range h.symbols {
			checks["staleness:"+symbol] = h.stalenessCheck(symbol)
		}
	}

	return Response{
		Status:    overallStatus(checks),
		Timestamp: time.Now(),
		UptimeSec: time.Since(h.start).Seconds(),
		Checks:    checks,
	}
}

func (h *Handler) stalenessCheck(symbol string) CheckResult {
	seenAt, ok := h.lastSeen(symbol)
	if !ok {
		return CheckResult{Status: StatusWarn, Message: "no data processed yet"}
	}
	age := time.Since(seenAt)
	if age > h.staleAfter {
		return CheckResult{Status: StatusFail, Message: "stale: " + age.String() + " since last update"}
	}
	return CheckResult{Status: StatusPass, Message: "fresh: " + age.String() + " since last update"}
}

func overallStatus(checks map[string]CheckResult) Status {
	sawWarn := false
	for _, c := range checks {
		if c.Status == StatusFail {
			return StatusFail
		}
		if c.Status == StatusWarn {
			sawWarn = true
		}
	}
	if sawWarn {
		return StatusWarn
	}
	return StatusPass
}
