package cascade

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minute(n int) int64 { return int64(n) * 60000 }

func buildFlatThenDropSeries() ([]PricePoint, []LiquidationEvent) {
	var prices []PricePoint
	for m := 0; m <= 120; m++ {
		prices = append(prices, PricePoint{TimeMs: minute(m), Price: 100})
	}
	// linear drop from 100 to 94 across minutes 120..125
	for m := 121; m <= 125; m++ {
		frac := float64(m-120) / 5.0
		prices = append(prices, PricePoint{TimeMs: minute(m), Price: 100 - 6*frac})
	}
	for m := 126; m <= 200; m++ {
		prices = append(prices, PricePoint{TimeMs: minute(m), Price: 94})
	}

	var liqs []LiquidationEvent
	// 5M USD of LONG liquidations spread across the drop window only
	perMinute := 5_000_000.0 / 5.0
	for m := 120; m < 125; m++ {
		liqs = append(liqs, LiquidationEvent{TimeMs: minute(m) + 30000, Side: Long, SizeUSD: perMinute})
	}

	return prices, liqs
}

func TestDetect_CascadeScenario(t *testing.T) {
	prices, liqs := buildFlatThenDropSeries()
	events := Detect("BTCUSD", prices, liqs, DefaultConfig())

	require.NotEmpty(t, events)

	var totalLiq float64
	foundBigMove := false
	for _, e := range events {
		assert.Equal(t, LongSqueeze, e.Direction)
		assert.Greater(t, e.EndTimeMs, e.StartTimeMs)
		assert.Less(t, e.PriceChangePct, 0.0)
		totalLiq += e.LiquidationVolumeUSD
		if e.PriceChangePct <= -2 {
			foundBigMove = true
		}
		assert.GreaterOrEqual(t, e.StartTimeMs, minute(115))
		assert.LessOrEqual(t, e.StartTimeMs, minute(126))
	}
	assert.True(t, foundBigMove)
	assert.InDelta(t, 5_000_000.0, totalLiq, 5_000_000.0*0.5)
}

func TestDetect_NoLiquidationFeedYieldsNoEvents(t *testing.T) {
	prices, _ := buildFlatThenDropSeries()
	events := Detect("BTCUSD", prices, nil, DefaultConfig())
	assert.Empty(t, events)
}

func TestDetect_Deterministic(t *testing.T) {
	prices, liqs := buildFlatThenDropSeries()

	shuffledPrices := append([]PricePoint(nil), prices...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffledPrices), func(i, j int) {
		shuffledPrices[i], shuffledPrices[j] = shuffledPrices[j], shuffledPrices[i]
	})
	shuffledLiqs := append([]LiquidationEvent(nil), liqs...)
	rand.New(rand.NewSource(9)).Shuffle(len(shuffledLiqs), func(i, j int) {
		shuffledLiqs[i], shuffledLiqs[j] = shuffledLiqs[j], shuffledLiqs[i]
	})

	e1 := Detect("BTCUSD", prices, liqs, DefaultConfig())
	e2 := Detect("BTCUSD", shuffledPrices, shuffledLiqs, DefaultConfig())
	assert.Equal(t, e1, e2)
}

func TestDetect_NoAdjacentSameDirectionEvents(t *testing.T) {
	prices, liqs := buildFlatThenDropSeries()
	events := Detect("BTCUSD", prices, liqs, DefaultConfig())
	for i := 1; i < len(events); i++ {
		if events[i].Direction == events[i-1].Direction {
			assert.Greater(t, events[i].StartTimeMs, events[i-1].EndTimeMs)
		}
	}
}

func TestDetect_TooFewPricePointsYieldsNoEvents(t *testing.T) {
	events := Detect("X", []PricePoint{{TimeMs: 0, Price: 100}}, nil, DefaultConfig())
	assert.Empty(t, events)
}

func TestInterpolatePrice_Bounds(t *testing.T) {
	prices := sortedCopyPrices([]PricePoint{{TimeMs: 0, Price: 10}, {TimeMs: 100, Price: 20}})
	p, ok := interpolatePrice(prices, 50)
	require.True(t, ok)
	assert.InDelta(t, 15, p, 1e-9)

	_, ok = interpolatePrice(prices, -1)
	assert.False(t, ok)
	_, ok = interpolatePrice(prices, 101)
	assert.False(t, ok)
}

func TestDetect_Idempotent(t *testing.T) {
	prices, liqs := buildFlatThenDropSeries()
	e1 := Detect("BTCUSD", prices, liqs, DefaultConfig())
	e2 := Detect("BTCUSD", prices, liqs, DefaultConfig())
	assert.Equal(t, e1, e2)
}
