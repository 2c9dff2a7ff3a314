package aggregator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cascadeengine/internal/cascade"
	"github.com/sawpanic/cascadeengine/internal/stress"
)

func TestFake_PollSnapshotsDrainsQueueOnce(t *testing.T) {
	f := NewFake()
	f.QueueSnapshots(
		stress.SymbolSnapshot{Symbol: "BTCUSD", TimestampMs: 1},
		stress.SymbolSnapshot{Symbol: "ETHUSD", TimestampMs: 1},
	)

	batch, err := f.PollSnapshots(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	again, err := f.PollSnapshots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestFake_PriceAndLiquidationSeriesFilterByRangeAndSort(t *testing.T) {
	f := NewFake()
	f.AddPrices("BTCUSD",
		cascade.PricePoint{TimeMs: 300, Price: 3},
		cascade.PricePoint{TimeMs: 100, Price: 1},
		cascade.PricePoint{TimeMs: 200, Price: 2},
	)
	f.AddLiquidations("BTCUSD",
		cascade.LiquidationEvent{TimeMs: 250, Side: cascade.Long, SizeUSD: 1000},
		cascade.LiquidationEvent{TimeMs: 50, Side: cascade.Short, SizeUSD: 500},
	)

	prices, err := f.PriceSeries(context.Background(), "BTCUSD", 150, 300)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, int64(200), prices[0].TimeMs)
	assert.Equal(t, int64(300), prices[1].TimeMs)

	liqs, err := f.LiquidationSeries(context.Background(), "BTCUSD", 0, 300)
	require.NoError(t, err)
	require.Len(t, liqs, 2)
	assert.Equal(t, int64(50), liqs[0].TimeMs)
}
