package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradesync/src/database"
	"tradesync/src/model"
)

// paramColumns maps operator-facing parameter names to trades_config
// columns. Anything outside this map is rejected before touching the
// database.
var paramColumns = map[string]string{
	"remark":                    "remark",
	"stop_loss":                 "stop_loss",
	"take_profit":               "take_profit",
	"trigger_price":             "trigger_price",
	"trail_distance":            "trail_distance",
	model.AuthParamFirstTrade:   "auth_ft",
	model.AuthParamAddTrade:     "auth_at",
	model.AuthParamClosePartial: "auth_cp",
	model.AuthParamStopLoss:     "auth_sl",
	model.AuthParamCloseLoss:    "auth_cl",
}

// ErrUnknownParam is returned when an operator endpoint names a parameter
// that is not part of the config schema.
var ErrUnknownParam = errors.New("unknown config parameter")

// ErrConfigNotFound is returned when a mutation targets a config row that
// does not exist and cannot be created from a group.
var ErrConfigNotFound = errors.New("trade config not found")

// ConfigRepository maintains the operator-controlled trades_config rows.
type ConfigRepository struct {
	db *gorm.DB
}

// NewConfigRepository creates a new repository instance using the main
// read/write database.
func NewConfigRepository() *ConfigRepository {
	return &ConfigRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *ConfigRepository) WithDB(db *gorm.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

func (r *ConfigRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// SyncWithGroups brings trades_config in line with the current trades_group
// rows for an account. Keys gaining a group get a default config (null risk
// parameters, empty remark, all authorization flags denied); keys that
// already have one only get their group back-reference and timestamp
// refreshed. Configs whose group disappeared are retained but flagged
// orphaned so operator-entered parameters survive until the key re-opens.
// Operator-set fields are never overwritten here.
func (r *ConfigRepository) SyncWithGroups(
	ctx context.Context,
	tx *gorm.DB,
	accountID uint,
) error {

	db := r.conn(tx)
	now := time.Now()

	var groups []model.TradeGroup
	if err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Find(&groups).Error; err != nil {
		return err
	}

	var configs []model.TradeConfig
	if err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Find(&configs).Error; err != nil {
		return err
	}

	byKey := make(map[model.GroupKey]*model.TradeConfig, len(configs))
	for i := range configs {
		byKey[configs[i].Key()] = &configs[i]
	}

	created, relinked := 0, 0
	live := make(map[model.GroupKey]bool, len(groups))
	for _, g := range groups {
		live[g.Key()] = true
		groupID := g.ID

		if cfg, ok := byKey[g.Key()]; ok {
			needsRelink := cfg.GroupID == nil || *cfg.GroupID != groupID || cfg.Orphaned
			if !needsRelink {
				continue
			}
			err := db.WithContext(ctx).
				Model(&model.TradeConfig{}).
				Where("id = ?", cfg.ID).
				Updates(map[string]interface{}{
					"group_id":    groupID,
					"orphaned":    false,
					"last_update": now,
				}).Error
			if err != nil {
				return err
			}
			relinked++
			continue
		}

		cfg := model.TradeConfig{
			AccountID:   g.AccountID,
			MagicNumber: g.MagicNumber,
			Pair:        g.Pair,
			OrderType:   g.OrderType,
			GroupID:     &groupID,
			Remark:      "",
			LastUpdate:  now,
		}
		if err := db.WithContext(ctx).Create(&cfg).Error; err != nil {
			return err
		}
		created++
	}

	orphaned := 0
	for i := range configs {
		cfg := &configs[i]
		if live[cfg.Key()] || cfg.Orphaned {
			continue
		}
		err := db.WithContext(ctx).
			Model(&model.TradeConfig{}).
			Where("id = ?", cfg.ID).
			Updates(map[string]interface{}{
				"group_id":    nil,
				"orphaned":    true,
				"last_update": now,
			}).Error
		if err != nil {
			return err
		}
		orphaned++
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "ConfigRepository",
		"op":         "SyncWithGroups",
		"account_id": accountID,
		"created":    created,
		"relinked":   relinked,
		"orphaned":   orphaned,
	}).Debug("Trade configs synced with groups")

	return nil
}

// UpdateParam sets a single operator-controlled parameter on the config row
// identified by its id.
func (r *ConfigRepository) UpdateParam(
	ctx context.Context,
	id uint,
	param string,
	value interface{},
) error {

	column, ok := paramColumns[param]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParam, param)
	}

	result := r.db.WithContext(ctx).
		Model(&model.TradeConfig{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			column:        value,
			"last_update": time.Now(),
		})
	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "ConfigRepository",
			"op":        "UpdateParam",
			"config_id": id,
			"param":     param,
		}).WithError(result.Error).Error("Failed to update config parameter")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConfigNotFound
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "ConfigRepository",
		"op":        "UpdateParam",
		"config_id": id,
		"param":     param,
	}).Info("Config parameter updated")

	return nil
}

// UpsertParamByGroup sets a single parameter on the config row backing the
// given group id, creating the row from the group's key if the propagator
// has not run for it yet.
func (r *ConfigRepository) UpsertParamByGroup(
	ctx context.Context,
	groupID uint,
	param string,
	value interface{},
) error {

	column, ok := paramColumns[param]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParam, param)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cfg model.TradeConfig
		err := tx.Where("group_id = ?", groupID).First(&cfg).Error
		if err == nil {
			return tx.Model(&model.TradeConfig{}).
				Where("id = ?", cfg.ID).
				Updates(map[string]interface{}{
					column:        value,
					"last_update": time.Now(),
				}).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var group model.TradeGroup
		if err := tx.First(&group, groupID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConfigNotFound
			}
			return err
		}

		gid := group.ID
		cfg = model.TradeConfig{
			AccountID:   group.AccountID,
			MagicNumber: group.MagicNumber,
			Pair:        group.Pair,
			OrderType:   group.OrderType,
			GroupID:     &gid,
			LastUpdate:  time.Now(),
		}
		if err := tx.Create(&cfg).Error; err != nil {
			return err
		}
		return tx.Model(&model.TradeConfig{}).
			Where("id = ?", cfg.ID).
			Update(column, value).Error
	})
}

// UpdateRiskParam sets stop_loss or take_profit on a config row, rounded to
// 5 fractional digits the way broker prices are quoted.
func (r *ConfigRepository) UpdateRiskParam(
	ctx context.Context,
	id uint,
	param string,
	value decimal.Decimal,
) error {

	if param != "stop_loss" && param != "take_profit" {
		return fmt.Errorf("%w: %s", ErrUnknownParam, param)
	}
	return r.UpdateParam(ctx, id, param, value.Round(5))
}

// UpdateRemarkByStrategy refreshes the remark on every config row of one
// (account, magic number) strategy, preserving the original agent-side
// TradesAuth behavior.
func (r *ConfigRepository) UpdateRemarkByStrategy(
	ctx context.Context,
	accountID uint,
	magicNumber int,
	remark string,
) error {

	return r.db.WithContext(ctx).
		Model(&model.TradeConfig{}).
		Where("account_id = ? AND magic_number = ?", accountID, magicNumber).
		Updates(map[string]interface{}{
			"remark":      remark,
			"last_update": time.Now(),
		}).Error
}

// FindByKey fetches the config row for one group key.
// Returns (nil, nil) if no row exists.
func (r *ConfigRepository) FindByKey(
	ctx context.Context,
	key model.GroupKey,
) (*model.TradeConfig, error) {

	var cfg model.TradeConfig

	err := r.db.WithContext(ctx).
		Where("account_id = ? AND magic_number = ? AND pair = ? AND order_type = ?",
			key.AccountID, key.MagicNumber, key.Pair, key.OrderType).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &cfg, nil
}

// FindByID fetches a config row by its primary id.
// Returns (nil, nil) if the row is not found.
func (r *ConfigRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.TradeConfig, error) {

	var cfg model.TradeConfig

	err := r.db.WithContext(ctx).First(&cfg, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &cfg, nil
}

// FindByAccount returns all config rows for an account ordered by
// (magic_number, pair, order_type).
func (r *ConfigRepository) FindByAccount(
	ctx context.Context,
	accountID uint,
) ([]model.TradeConfig, error) {

	var configs []model.TradeConfig

	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("magic_number ASC, pair ASC, order_type ASC").
		Find(&configs).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "ConfigRepository",
			"op":         "FindByAccount",
			"account_id": accountID,
		}).WithError(err).Error("Failed to fetch trade configs")
		return nil, err
	}

	return configs, nil
}
