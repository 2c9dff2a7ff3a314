package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/cascadeengine/internal/stress"
)

// TestLatestCache_GetMissOnUnreachableRedisDegradesSoft exercises the
// circuit-breaker fail-soft path: with no Redis listening on the given
// address, Get must return ok=false rather than block or panic.
func TestLatestCache_GetMissOnUnreachableRedisDegradesSoft(t *testing.T) {
	c := New("127.0.0.1:1", "", 0, time.Minute)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, ok := c.Get(ctx, "BTCUSD")
	assert.False(t, ok)
}

func TestLatestCache_SetOnUnreachableRedisReturnsError(t *testing.T) {
	c := New("127.0.0.1:1", "", 0, time.Minute)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := c.Set(ctx, "BTCUSD", stress.RiskAssessment{Symbol: "BTCUSD", RiskScore: 50})
	assert.Error(t, err)
}
