package repository

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradesync/src/database"
	"tradesync/src/model"
)

// weightedPriceScale is the number of fractional digits kept on the
// volume-weighted open price. Broker prices carry at most 5.
const weightedPriceScale = 8

// GroupRepository maintains the materialized per-key aggregates in
// trades_group.
type GroupRepository struct {
	db *gorm.DB
}

// NewGroupRepository creates a new repository instance using the main
// read/write database.
func NewGroupRepository() *GroupRepository {
	return &GroupRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *GroupRepository) WithDB(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// AggregatePositions reduces open positions to their per-key aggregates:
// total volume, volume-weighted open price and summed profit. The result
// is sorted by (magic_number, pair, order_type) for stable output.
func AggregatePositions(positions []model.Position, now time.Time) []model.TradeGroup {
	byKey := make(map[model.GroupKey]*model.TradeGroup)
	weighted := make(map[model.GroupKey]decimal.Decimal)

	for _, p := range positions {
		key := p.GroupKey()
		g, ok := byKey[key]
		if !ok {
			g = &model.TradeGroup{
				AccountID:   key.AccountID,
				MagicNumber: key.MagicNumber,
				Pair:        key.Pair,
				OrderType:   key.OrderType,
				LastUpdate:  now,
			}
			byKey[key] = g
		}
		g.TotalVolume = g.TotalVolume.Add(p.Volume)
		g.Profit = g.Profit.Add(p.Profit)
		weighted[key] = weighted[key].Add(p.Volume.Mul(p.OpenPrice))
	}

	groups := make([]model.TradeGroup, 0, len(byKey))
	for key, g := range byKey {
		// Total volume cannot be zero because every position carries a
		// positive volume, but never divide by zero regardless.
		if g.TotalVolume.IsPositive() {
			g.WeightedOpenPrice = weighted[key].DivRound(g.TotalVolume, weightedPriceScale)
		}
		groups = append(groups, *g)
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.MagicNumber != b.MagicNumber {
			return a.MagicNumber < b.MagicNumber
		}
		if a.Pair != b.Pair {
			return a.Pair < b.Pair
		}
		return a.OrderType < b.OrderType
	})

	return groups
}

// Recompute rebuilds the trades_group rows for an account from the current
// trades_open rows: new keys are inserted, existing keys get fresh
// aggregates, keys without any remaining position are deleted. The full
// recompute makes the aggregates self-healing after any prior partial
// failure. Returns the persisted groups for the account.
func (r *GroupRepository) Recompute(
	ctx context.Context,
	tx *gorm.DB,
	accountID uint,
) ([]model.TradeGroup, error) {

	db := r.conn(tx)

	var positions []model.Position
	if err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Find(&positions).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "GroupRepository",
			"op":         "Recompute",
			"account_id": accountID,
		}).WithError(err).Error("Failed to load open trades for grouping")
		return nil, err
	}

	groups := AggregatePositions(positions, time.Now())

	if len(groups) > 0 {
		err := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "account_id"}, {Name: "magic_number"},
				{Name: "pair"}, {Name: "order_type"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_volume", "weighted_open_price", "profit", "last_update",
			}),
		}).Create(&groups).Error
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"repo":       "GroupRepository",
				"op":         "Recompute",
				"account_id": accountID,
			}).WithError(err).Error("Failed to upsert trade groups")
			return nil, err
		}
	}

	// Drop groups whose key no longer has any open position.
	var existing []model.TradeGroup
	if err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Find(&existing).Error; err != nil {
		return nil, err
	}

	live := make(map[model.GroupKey]bool, len(groups))
	for _, g := range groups {
		live[g.Key()] = true
	}

	var staleIDs []uint
	persisted := make([]model.TradeGroup, 0, len(existing))
	for _, g := range existing {
		if live[g.Key()] {
			persisted = append(persisted, g)
		} else {
			staleIDs = append(staleIDs, g.ID)
		}
	}

	if len(staleIDs) > 0 {
		if err := db.WithContext(ctx).
			Delete(&model.TradeGroup{}, staleIDs).Error; err != nil {
			logger.WithFields(map[string]interface{}{
				"repo":       "GroupRepository",
				"op":         "Recompute",
				"account_id": accountID,
				"stale":      len(staleIDs),
			}).WithError(err).Error("Failed to delete dissolved trade groups")
			return nil, err
		}
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "GroupRepository",
		"op":         "Recompute",
		"account_id": accountID,
		"groups":     len(persisted),
		"dissolved":  len(staleIDs),
	}).Debug("Trade groups recomputed")

	return persisted, nil
}

// FindByAccount returns the persisted groups for an account ordered by
// (magic_number, pair, order_type).
func (r *GroupRepository) FindByAccount(
	ctx context.Context,
	accountID uint,
) ([]model.TradeGroup, error) {

	var groups []model.TradeGroup

	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("magic_number ASC, pair ASC, order_type ASC").
		Find(&groups).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "GroupRepository",
			"op":         "FindByAccount",
			"account_id": accountID,
		}).WithError(err).Error("Failed to fetch trade groups")
		return nil, err
	}

	return groups, nil
}
