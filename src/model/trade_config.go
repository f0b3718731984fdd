package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Authorization flag parameter names accepted by the operator endpoints.
const (
	AuthParamFirstTrade   = "auth_FT"
	AuthParamAddTrade     = "auth_AT"
	AuthParamClosePartial = "auth_CP"
	AuthParamStopLoss     = "auth_SL"
	AuthParamCloseLoss    = "auth_CL"
)

// TradeConfig holds the operator-maintained risk and authorization
// parameters attached to one group key. Rows are created by the sync
// pipeline with deny-by-default flags; only operator endpoints mutate the
// risk/authorization fields. When the backing group disappears the row is
// retained and flagged orphaned so operator-entered parameters survive a
// later re-opening of the same key.
type TradeConfig struct {
	ID            uint                `gorm:"primaryKey" json:"id"`
	AccountID     uint                `gorm:"uniqueIndex:idx_trades_config_key" json:"account_id"`
	MagicNumber   int                 `gorm:"uniqueIndex:idx_trades_config_key" json:"magic_number"`
	Pair          string              `gorm:"size:20;uniqueIndex:idx_trades_config_key" json:"pair"`
	OrderType     string              `gorm:"size:10;uniqueIndex:idx_trades_config_key" json:"order_type"`
	GroupID       *uint               `gorm:"index" json:"group_id,omitempty"`
	StopLoss      decimal.NullDecimal `gorm:"type:numeric" json:"stop_loss"`
	TakeProfit    decimal.NullDecimal `gorm:"type:numeric" json:"take_profit"`
	TriggerPrice  decimal.NullDecimal `gorm:"type:numeric" json:"trigger_price"`
	TrailDistance decimal.NullDecimal `gorm:"type:numeric" json:"trail_distance"`
	Remark        string              `gorm:"size:255" json:"remark"`
	AuthFT        bool                `gorm:"column:auth_ft;not null;default:false" json:"auth_FT"`
	AuthAT        bool                `gorm:"column:auth_at;not null;default:false" json:"auth_AT"`
	AuthCP        bool                `gorm:"column:auth_cp;not null;default:false" json:"auth_CP"`
	AuthSL        bool                `gorm:"column:auth_sl;not null;default:false" json:"auth_SL"`
	AuthCL        bool                `gorm:"column:auth_cl;not null;default:false" json:"auth_CL"`
	Orphaned      bool                `gorm:"not null;default:false" json:"orphaned"`
	LastUpdate    time.Time           `json:"last_update"`
}

// TableName keeps the table name used by the collector schema.
func (TradeConfig) TableName() string {
	return "trades_config"
}

// Key returns the config's group key.
func (c TradeConfig) Key() GroupKey {
	return GroupKey{
		AccountID:   c.AccountID,
		MagicNumber: c.MagicNumber,
		Pair:        c.Pair,
		OrderType:   c.OrderType,
	}
}
