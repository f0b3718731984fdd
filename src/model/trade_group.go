package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GroupKey identifies one aggregate of open positions.
type GroupKey struct {
	AccountID   uint
	MagicNumber int
	Pair        string
	OrderType   string
}

// TradeGroup is the materialized aggregate of all open positions sharing
// (account, magic number, pair, order type). Rows are recomputed wholesale
// on every sync: a row exists iff at least one open position maps to its key.
type TradeGroup struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	AccountID         uint            `gorm:"uniqueIndex:idx_trades_group_key" json:"account_id"`
	MagicNumber       int             `gorm:"uniqueIndex:idx_trades_group_key" json:"magic_number"`
	Pair              string          `gorm:"size:20;uniqueIndex:idx_trades_group_key" json:"pair"`
	OrderType         string          `gorm:"size:10;uniqueIndex:idx_trades_group_key" json:"order_type"`
	TotalVolume       decimal.Decimal `gorm:"type:numeric" json:"total_volume"`
	WeightedOpenPrice decimal.Decimal `gorm:"type:numeric" json:"weighted_open_price"`
	Profit            decimal.Decimal `gorm:"type:numeric" json:"profit"`
	LastUpdate        time.Time       `json:"last_update"`
}

// TableName keeps the table name used by the collector schema.
func (TradeGroup) TableName() string {
	return "trades_group"
}

// Key returns the group's aggregation key.
func (g TradeGroup) Key() GroupKey {
	return GroupKey{
		AccountID:   g.AccountID,
		MagicNumber: g.MagicNumber,
		Pair:        g.Pair,
		OrderType:   g.OrderType,
	}
}
