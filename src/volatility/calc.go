package volatility

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tradesync/src/model"
)

// MajorCurrencies are the eight currencies the relative volatility index is
// computed for. The 28 collected pairs are exactly their combinations.
var MajorCurrencies = []string{"EUR", "USD", "GBP", "JPY", "AUD", "CAD", "CHF", "NZD"}

// ExpectedPairCount is how many pair samples one time point needs before
// the index is computed.
const ExpectedPairCount = 28

type accumulator struct {
	value1  decimal.Decimal
	value4  decimal.Decimal
	value24 decimal.Decimal
	count   int64
}

// CalculateCurrencyIndices reduces per-pair volatility samples to one
// relative volatility index per major currency. Each pair contributes its
// current/average ratio positively to the base currency and negatively to
// the quote currency; a currency's index is the mean of its contributions.
// Pairs with a zero average (no established baseline yet) are skipped.
func CalculateCurrencyIndices(rows []model.Volatility, dataTime time.Time) []model.CurrencyVolatility {
	majors := make(map[string]*accumulator, len(MajorCurrencies))
	for _, c := range MajorCurrencies {
		majors[c] = &accumulator{}
	}

	for _, row := range rows {
		if len(row.Symbol) < 6 {
			continue
		}
		if row.AvgValue1.IsZero() || row.AvgValue4.IsZero() || row.AvgValue24.IsZero() {
			continue
		}

		base := row.Symbol[0:3]
		quote := row.Symbol[3:6]

		rel1 := row.Value1.Div(row.AvgValue1)
		rel4 := row.Value4.Div(row.AvgValue4)
		rel24 := row.Value24.Div(row.AvgValue24)

		if acc, ok := majors[base]; ok {
			acc.value1 = acc.value1.Add(rel1)
			acc.value4 = acc.value4.Add(rel4)
			acc.value24 = acc.value24.Add(rel24)
			acc.count++
		}
		if acc, ok := majors[quote]; ok {
			acc.value1 = acc.value1.Sub(rel1)
			acc.value4 = acc.value4.Sub(rel4)
			acc.value24 = acc.value24.Sub(rel24)
			acc.count++
		}
	}

	indices := make([]model.CurrencyVolatility, 0, len(majors))
	for currency, acc := range majors {
		if acc.count == 0 {
			continue
		}
		n := decimal.NewFromInt(acc.count)
		indices = append(indices, model.CurrencyVolatility{
			Currency: currency,
			Value1:   acc.value1.DivRound(n, 8),
			Value4:   acc.value4.DivRound(n, 8),
			Value24:  acc.value24.DivRound(n, 8),
			DataTime: dataTime,
		})
	}

	sort.Slice(indices, func(i, j int) bool {
		return indices[i].Currency < indices[j].Currency
	})

	return indices
}
