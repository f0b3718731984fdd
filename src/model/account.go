package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the reporting context pushed by the trading agent alongside
// trade snapshots. It is owned by the account telemetry path; the sync
// pipeline only references it by login.
type Account struct {
	Login       uint            `gorm:"primaryKey;autoIncrement:false" json:"login"`
	AccountName string          `gorm:"size:120" json:"name"`
	BrokerName  string          `gorm:"size:120" json:"broker_name"`
	Leverage    int             `json:"leverage"`
	Balance     decimal.Decimal `gorm:"type:numeric" json:"balance"`
	Equity      decimal.Decimal `gorm:"type:numeric" json:"equity"`
	FreeMargin  decimal.Decimal `gorm:"type:numeric" json:"free_margin"`
	OpenCount   int             `json:"open_count"`
	TotalVolume decimal.Decimal `gorm:"type:numeric" json:"total_volume"`
	EAVersion   string          `gorm:"column:ea_version;size:40" json:"ea_version"`
	InitDate    time.Time       `json:"init_date"`
	LastUpdate  time.Time       `json:"last_update"`
}

// TableName keeps the table name used by the collector schema.
func (Account) TableName() string {
	return "accounts"
}
