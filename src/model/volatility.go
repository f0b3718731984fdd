package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceTick is one price sample for a currency pair at a collection time.
type PriceTick struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	Symbol   string          `gorm:"size:20;uniqueIndex:idx_price_data_symbol_time" json:"symbol"`
	Price    decimal.Decimal `gorm:"type:numeric" json:"price"`
	DataTime time.Time       `gorm:"uniqueIndex:idx_price_data_symbol_time" json:"data_time"`
}

func (PriceTick) TableName() string {
	return "price_data"
}

// Volatility holds the H1/H4/D1 volatility sample for one currency pair at
// one collection time, plus the pair's average volatility for each horizon.
type Volatility struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Symbol    string          `gorm:"size:20;uniqueIndex:idx_volatility_symbol_time" json:"symbol"`
	Value1    decimal.Decimal `gorm:"type:numeric" json:"value1"`
	Value4    decimal.Decimal `gorm:"type:numeric" json:"value4"`
	Value24   decimal.Decimal `gorm:"type:numeric" json:"value24"`
	AvgValue1 decimal.Decimal `gorm:"type:numeric" json:"avg_value1"`
	AvgValue4 decimal.Decimal `gorm:"type:numeric" json:"avg_value4"`
	AvgValue24 decimal.Decimal `gorm:"type:numeric" json:"avg_value24"`
	DataTime  time.Time       `gorm:"uniqueIndex:idx_volatility_symbol_time" json:"data_time"`
}

func (Volatility) TableName() string {
	return "volatility"
}

// CurrencyVolatility is the derived relative volatility index of one major
// currency at one collection time.
type CurrencyVolatility struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	Currency string          `gorm:"size:3;uniqueIndex:idx_currency_volatility_ccy_time" json:"currency"`
	Value1   decimal.Decimal `gorm:"type:numeric" json:"value1"`
	Value4   decimal.Decimal `gorm:"type:numeric" json:"value4"`
	Value24  decimal.Decimal `gorm:"type:numeric" json:"value24"`
	DataTime time.Time       `gorm:"uniqueIndex:idx_currency_volatility_ccy_time" json:"data_time"`
}

func (CurrencyVolatility) TableName() string {
	return "currency_volatility"
}
