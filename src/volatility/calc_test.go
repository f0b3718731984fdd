package volatility

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

func sample(symbol, value, avg string) model.Volatility {
	return model.Volatility{
		Symbol:     symbol,
		Value1:     dec(value),
		Value4:     dec(value),
		Value24:    dec(value),
		AvgValue1:  dec(avg),
		AvgValue4:  dec(avg),
		AvgValue24: dec(avg),
	}
}

func TestCalculateCurrencyIndices(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	indices := CalculateCurrencyIndices([]model.Volatility{
		sample("EURUSD", "1.5", "1.0"), // relative 1.5
		sample("GBPUSD", "0.5", "1.0"), // relative 0.5
	}, at)

	require.Len(t, indices, 3)

	// Sorted by currency.
	assert.Equal(t, "EUR", indices[0].Currency)
	assert.Equal(t, "GBP", indices[1].Currency)
	assert.Equal(t, "USD", indices[2].Currency)

	// Base currencies carry their pair's relative volatility.
	assert.True(t, indices[0].Value1.Equal(dec("1.5")), "EUR %s", indices[0].Value1)
	assert.True(t, indices[1].Value1.Equal(dec("0.5")), "GBP %s", indices[1].Value1)
	// USD is quote in both pairs: mean of -1.5 and -0.5.
	assert.True(t, indices[2].Value1.Equal(dec("-1")), "USD %s", indices[2].Value1)

	for _, idx := range indices {
		assert.Equal(t, at, idx.DataTime)
	}
}

func TestCalculateCurrencyIndicesSkipsUnusable(t *testing.T) {
	at := time.Now()

	indices := CalculateCurrencyIndices([]model.Volatility{
		sample("EURUSD", "1.5", "0"), // no baseline yet
		sample("XAU", "1.0", "1.0"),  // not a currency pair
	}, at)

	assert.Empty(t, indices)
}

func TestCalculateCurrencyIndicesIgnoresNonMajors(t *testing.T) {
	indices := CalculateCurrencyIndices([]model.Volatility{
		sample("EURSEK", "2.0", "1.0"),
	}, time.Now())

	// SEK is not tracked; only the EUR side contributes.
	require.Len(t, indices, 1)
	assert.Equal(t, "EUR", indices[0].Currency)
	assert.True(t, indices[0].Value1.Equal(dec("2")), "EUR %s", indices[0].Value1)
}
