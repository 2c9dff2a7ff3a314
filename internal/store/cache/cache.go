// Package cache caches the latest RiskAssessment per symbol in Redis,
// grounded on the teacher's data/cache.go key-prefix/TTL pattern and
// wrapped with a sony/gobreaker circuit breaker per
// internal/infrastructure/providers/circuitbreakers.go, so a Redis
// outage degrades latency instead of blocking the scheduler loop.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/cascadeengine/internal/stress"
)

const keyPrefix = "cascadeengine:latest:"

// LatestCache caches the most recent RiskAssessment per symbol.
type LatestCache struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

// New constructs a LatestCache. addr/password/db configure the Redis
// connection; ttl is the per-key expiry (spec §6 redis.ttl_sec).
func New(addr, password string, db int, ttl time.Duration) *LatestCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	settings := gobreaker.Settings{
		Name:        "redis-latest-cache",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
	}

	return &LatestCache{
		client:  client,
		ttl:     ttl,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Set writes the latest assessment for symbol, failing soft: callers
// should log and continue rather than treat a cache-write error as fatal.
func (c *LatestCache) Set(ctx context.Context, symbol string, a stress.RiskAssessment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("cache: marshal assessment: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, keyPrefix+symbol, data, c.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("cache: set %s: %w", symbol, err)
	}
	return nil
}

// Get returns the most recently cached assessment, or ok=false on a
// miss, a broken circuit, or any Redis error.
func (c *LatestCache) Get(ctx context.Context, symbol string) (stress.RiskAssessment, bool) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.client.Get(ctx, keyPrefix+symbol).Bytes()
	})
	if err != nil {
		return stress.RiskAssessment{}, false
	}

	data, ok := result.([]byte)
	if !ok {
		return stress.RiskAssessment{}, false
	}

	var a stress.RiskAssessment
	if err := json.Unmarshal(data, &a); err != nil {
		return stress.RiskAssessment{}, false
	}
	return a, true
}

// Close releases the underlying Redis connection pool.
func (c *LatestCache) Close() error {
	return c.client.Close()
}
