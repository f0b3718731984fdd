package repository

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesync/src/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAggregatePositionsEmpty(t *testing.T) {
	groups := AggregatePositions(nil, time.Now())
	assert.Empty(t, groups)
}

func TestAggregatePositionsWeightedPrice(t *testing.T) {
	now := time.Now()
	positions := []model.Position{
		{AccountID: 7, MagicNumber: 1, Pair: "GBPUSD", OrderType: "buy", Volume: dec("1.0"), OpenPrice: dec("1.2"), Profit: dec("3")},
		{AccountID: 7, MagicNumber: 1, Pair: "GBPUSD", OrderType: "buy", Volume: dec("3.0"), OpenPrice: dec("1.3"), Profit: dec("-1")},
	}

	groups := AggregatePositions(positions, now)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.True(t, g.TotalVolume.Equal(dec("4")), "volume %s", g.TotalVolume)
	assert.True(t, g.WeightedOpenPrice.Equal(dec("1.275")), "wop %s", g.WeightedOpenPrice)
	assert.True(t, g.Profit.Equal(dec("2")), "profit %s", g.Profit)
	assert.Equal(t, now, g.LastUpdate)
}

func TestAggregatePositionsSplitsByKey(t *testing.T) {
	positions := []model.Position{
		{AccountID: 7, MagicNumber: 2, Pair: "USDJPY", OrderType: "sell", Volume: dec("0.3"), OpenPrice: dec("150"), Profit: dec("0")},
		{AccountID: 7, MagicNumber: 1, Pair: "EURUSD", OrderType: "buy", Volume: dec("0.1"), OpenPrice: dec("1.1"), Profit: dec("0")},
		{AccountID: 7, MagicNumber: 1, Pair: "EURUSD", OrderType: "sell", Volume: dec("0.2"), OpenPrice: dec("1.2"), Profit: dec("0")},
	}

	groups := AggregatePositions(positions, time.Now())
	require.Len(t, groups, 3)

	// Ordered by (magic_number, pair, order_type).
	assert.Equal(t, "buy", groups[0].OrderType)
	assert.Equal(t, "sell", groups[1].OrderType)
	assert.Equal(t, "USDJPY", groups[2].Pair)
}

func TestAggregatePositionsZeroVolumeGuard(t *testing.T) {
	positions := []model.Position{
		{AccountID: 7, MagicNumber: 1, Pair: "EURUSD", OrderType: "buy", Volume: dec("0"), OpenPrice: dec("1.1"), Profit: dec("0")},
	}

	groups := AggregatePositions(positions, time.Now())
	require.Len(t, groups, 1)
	assert.True(t, groups[0].WeightedOpenPrice.IsZero())
}
