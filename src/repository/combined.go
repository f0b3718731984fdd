package repository

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tradesync/src/model"
)

// CombinedTrade is the dashboard projection of one group key: the group
// aggregates joined with the operator config, plus the derived extreme open
// price (lowest constituent open for buys, highest for sells, used by
// re-entry strategies) and the direction-dependent current price taken from
// the most recently updated constituent position. Orphaned configs are
// included without group aggregates.
type CombinedTrade struct {
	GroupID           *uint               `json:"group_id,omitempty"`
	ConfigID          *uint               `json:"config_id,omitempty"`
	AccountID         uint                `json:"account_id"`
	MagicNumber       int                 `json:"magic_number"`
	Pair              string              `json:"pair"`
	OrderType         string              `json:"order_type"`
	TotalVolume       decimal.Decimal     `json:"total_volume"`
	WeightedOpenPrice decimal.Decimal     `json:"weighted_open_price"`
	Profit            decimal.Decimal     `json:"profit"`
	ExtremeOpenPrice  decimal.NullDecimal `json:"extreme_open_price"`
	CurrentPrice      decimal.NullDecimal `json:"current_price"`
	StopLoss          decimal.NullDecimal `json:"stop_loss"`
	TakeProfit        decimal.NullDecimal `json:"take_profit"`
	TriggerPrice      decimal.NullDecimal `json:"trigger_price"`
	TrailDistance     decimal.NullDecimal `json:"trail_distance"`
	Remark            string              `json:"remark"`
	AuthFT            bool                `json:"auth_FT"`
	AuthAT            bool                `json:"auth_AT"`
	AuthCP            bool                `json:"auth_CP"`
	AuthSL            bool                `json:"auth_SL"`
	AuthCL            bool                `json:"auth_CL"`
	Orphaned          bool                `json:"orphaned"`
	LastUpdate        time.Time           `json:"last_update"`
}

// FindCombinedByAccount materializes the dashboard projection for one
// account, ordered by (magic_number, pair, order_type).
func (r *GroupRepository) FindCombinedByAccount(
	ctx context.Context,
	accountID uint,
) ([]CombinedTrade, error) {

	var groups []model.TradeGroup
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Find(&groups).Error; err != nil {
		return nil, err
	}

	var configs []model.TradeConfig
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Find(&configs).Error; err != nil {
		return nil, err
	}

	var positions []model.Position
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Find(&positions).Error; err != nil {
		return nil, err
	}

	cfgByKey := make(map[model.GroupKey]*model.TradeConfig, len(configs))
	for i := range configs {
		cfgByKey[configs[i].Key()] = &configs[i]
	}

	extremes := make(map[model.GroupKey]decimal.Decimal)
	latest := make(map[model.GroupKey]model.Position)
	for _, p := range positions {
		key := p.GroupKey()
		if cur, ok := extremes[key]; !ok {
			extremes[key] = p.OpenPrice
		} else if p.OrderType == model.OrderTypeSell {
			if p.OpenPrice.GreaterThan(cur) {
				extremes[key] = p.OpenPrice
			}
		} else if p.OpenPrice.LessThan(cur) {
			extremes[key] = p.OpenPrice
		}
		if last, ok := latest[key]; !ok || p.LastUpdate.After(last.LastUpdate) {
			latest[key] = p
		}
	}

	combined := make([]CombinedTrade, 0, len(groups)+len(configs))
	for _, g := range groups {
		gid := g.ID
		row := CombinedTrade{
			GroupID:           &gid,
			AccountID:         g.AccountID,
			MagicNumber:       g.MagicNumber,
			Pair:              g.Pair,
			OrderType:         g.OrderType,
			TotalVolume:       g.TotalVolume,
			WeightedOpenPrice: g.WeightedOpenPrice,
			Profit:            g.Profit,
			LastUpdate:        g.LastUpdate,
		}
		if extreme, ok := extremes[g.Key()]; ok {
			row.ExtremeOpenPrice = decimal.NewNullDecimal(extreme)
		}
		if p, ok := latest[g.Key()]; ok {
			// Closing a buy hits the bid, closing a sell hits the ask.
			if g.OrderType == model.OrderTypeSell {
				row.CurrentPrice = decimal.NewNullDecimal(p.AskPrice)
			} else {
				row.CurrentPrice = decimal.NewNullDecimal(p.BidPrice)
			}
		}
		if cfg, ok := cfgByKey[g.Key()]; ok {
			cid := cfg.ID
			row.ConfigID = &cid
			row.StopLoss = cfg.StopLoss
			row.TakeProfit = cfg.TakeProfit
			row.TriggerPrice = cfg.TriggerPrice
			row.TrailDistance = cfg.TrailDistance
			row.Remark = cfg.Remark
			row.AuthFT = cfg.AuthFT
			row.AuthAT = cfg.AuthAT
			row.AuthCP = cfg.AuthCP
			row.AuthSL = cfg.AuthSL
			row.AuthCL = cfg.AuthCL
		}
		combined = append(combined, row)
	}

	// Orphaned configs keep showing up so operators can review or prune
	// parameters of keys with no open positions.
	for i := range configs {
		cfg := &configs[i]
		if !cfg.Orphaned {
			continue
		}
		cid := cfg.ID
		combined = append(combined, CombinedTrade{
			ConfigID:      &cid,
			AccountID:     cfg.AccountID,
			MagicNumber:   cfg.MagicNumber,
			Pair:          cfg.Pair,
			OrderType:     cfg.OrderType,
			StopLoss:      cfg.StopLoss,
			TakeProfit:    cfg.TakeProfit,
			TriggerPrice:  cfg.TriggerPrice,
			TrailDistance: cfg.TrailDistance,
			Remark:        cfg.Remark,
			AuthFT:        cfg.AuthFT,
			AuthAT:        cfg.AuthAT,
			AuthCP:        cfg.AuthCP,
			AuthSL:        cfg.AuthSL,
			AuthCL:        cfg.AuthCL,
			Orphaned:      true,
			LastUpdate:    cfg.LastUpdate,
		})
	}

	sort.Slice(combined, func(i, j int) bool {
		a, b := combined[i], combined[j]
		if a.MagicNumber != b.MagicNumber {
			return a.MagicNumber < b.MagicNumber
		}
		if a.Pair != b.Pair {
			return a.Pair < b.Pair
		}
		return a.OrderType < b.OrderType
	})

	return combined, nil
}
