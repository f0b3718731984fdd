package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderTypeBuy  = "buy"
	OrderTypeSell = "sell"
)

// Position is one open trade leg as last reported by the trading agent.
// Identity is (account_id, ticket). The ticket is assigned by the agent
// and kept as an opaque string so very large broker ticket numbers never
// lose precision.
type Position struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	AccountID   uint            `gorm:"uniqueIndex:idx_trades_open_account_ticket" json:"account_id"`
	Ticket      string          `gorm:"size:64;uniqueIndex:idx_trades_open_account_ticket" json:"ticket"`
	MagicNumber int             `gorm:"index" json:"magic_number"`
	Pair        string          `gorm:"size:20" json:"pair"`
	OrderType   string          `gorm:"size:10" json:"order_type"`
	Volume      decimal.Decimal `gorm:"type:numeric" json:"volume"`
	OpenPrice   decimal.Decimal `gorm:"type:numeric" json:"open_price"`
	Profit      decimal.Decimal `gorm:"type:numeric" json:"profit"`
	BidPrice    decimal.Decimal `gorm:"type:numeric" json:"bid_price"`
	AskPrice    decimal.Decimal `gorm:"type:numeric" json:"ask_price"`
	Commission  decimal.Decimal `gorm:"type:numeric" json:"commission"`
	Comment     string          `gorm:"size:120" json:"comment"`
	OpenTime    *time.Time      `json:"open_time,omitempty"`
	LastUpdate  time.Time       `json:"last_update"`
}

// TableName keeps the table name used by the collector schema.
func (Position) TableName() string {
	return "trades_open"
}

// GroupKey returns the aggregation key this position contributes to.
func (p Position) GroupKey() GroupKey {
	return GroupKey{
		AccountID:   p.AccountID,
		MagicNumber: p.MagicNumber,
		Pair:        p.Pair,
		OrderType:   p.OrderType,
	}
}
