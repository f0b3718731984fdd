package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradesync/src/database"
	"tradesync/src/model"
)

// VolatilityRepository handles the market statistics tables: price ticks,
// per-pair volatility samples and the derived per-currency indices.
type VolatilityRepository struct {
	db *gorm.DB
}

// NewVolatilityRepository creates a new repository instance using the
// volatility database.
func NewVolatilityRepository() *VolatilityRepository {
	return &VolatilityRepository{db: database.VolatilityDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *VolatilityRepository) WithDB(db *gorm.DB) *VolatilityRepository {
	return &VolatilityRepository{db: db}
}

// UpsertPrice stores one price sample, replacing the price on a repeated
// (symbol, data_time) report.
func (r *VolatilityRepository) UpsertPrice(ctx context.Context, tick *model.PriceTick) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "data_time"}},
		DoUpdates: clause.AssignmentColumns([]string{"price"}),
	}).Create(tick).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "VolatilityRepository",
			"op":     "UpsertPrice",
			"symbol": tick.Symbol,
		}).WithError(err).Error("Failed to upsert price tick")
	}
	return err
}

// UpsertVolatility stores one volatility sample, replacing all value fields
// on a repeated (symbol, data_time) report.
func (r *VolatilityRepository) UpsertVolatility(ctx context.Context, v *model.Volatility) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}, {Name: "data_time"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value1", "value4", "value24",
			"avg_value1", "avg_value4", "avg_value24",
		}),
	}).Create(v).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "VolatilityRepository",
			"op":     "UpsertVolatility",
			"symbol": v.Symbol,
		}).WithError(err).Error("Failed to upsert volatility sample")
	}
	return err
}

// CountPricesAt returns how many pairs have a price sample for a time point.
func (r *VolatilityRepository) CountPricesAt(ctx context.Context, at time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.PriceTick{}).
		Where("data_time = ?", at).
		Count(&count).Error
	return count, err
}

// CountVolatilityAt returns how many pairs have a volatility sample for a
// time point.
func (r *VolatilityRepository) CountVolatilityAt(ctx context.Context, at time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Volatility{}).
		Where("data_time = ?", at).
		Count(&count).Error
	return count, err
}

// FindVolatilityAt returns all volatility samples for one time point.
func (r *VolatilityRepository) FindVolatilityAt(ctx context.Context, at time.Time) ([]model.Volatility, error) {
	var rows []model.Volatility
	err := r.db.WithContext(ctx).
		Where("data_time = ?", at).
		Order("symbol ASC").
		Find(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "VolatilityRepository",
			"op":   "FindVolatilityAt",
		}).WithError(err).Error("Failed to fetch volatility samples")
		return nil, err
	}
	return rows, nil
}

// UpsertCurrencyVolatility stores the derived per-currency indices for one
// time point.
func (r *VolatilityRepository) UpsertCurrencyVolatility(
	ctx context.Context,
	rows []model.CurrencyVolatility,
) error {

	if len(rows) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "currency"}, {Name: "data_time"}},
		DoUpdates: clause.AssignmentColumns([]string{"value1", "value4", "value24"}),
	}).Create(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "VolatilityRepository",
			"op":   "UpsertCurrencyVolatility",
			"rows": len(rows),
		}).WithError(err).Error("Failed to upsert currency volatility indices")
	}
	return err
}

// BackfillVolatility copies volatility samples missing at dataTime from an
// earlier complete time point. Returns how many pairs were filled in.
func (r *VolatilityRepository) BackfillVolatility(
	ctx context.Context,
	dataTime time.Time,
	prevTime time.Time,
) (int, error) {

	var prev []model.Volatility
	if err := r.db.WithContext(ctx).
		Where("data_time = ?", prevTime).
		Find(&prev).Error; err != nil {
		return 0, err
	}

	var current []model.Volatility
	if err := r.db.WithContext(ctx).
		Where("data_time = ?", dataTime).
		Find(&current).Error; err != nil {
		return 0, err
	}

	have := make(map[string]bool, len(current))
	for _, row := range current {
		have[row.Symbol] = true
	}

	filled := 0
	for _, row := range prev {
		if have[row.Symbol] {
			continue
		}
		fill := model.Volatility{
			Symbol:     row.Symbol,
			Value1:     row.Value1,
			Value4:     row.Value4,
			Value24:    row.Value24,
			AvgValue1:  row.AvgValue1,
			AvgValue4:  row.AvgValue4,
			AvgValue24: row.AvgValue24,
			DataTime:   dataTime,
		}
		if err := r.db.WithContext(ctx).Create(&fill).Error; err != nil {
			return filled, err
		}
		filled++
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "VolatilityRepository",
		"op":        "BackfillVolatility",
		"data_time": dataTime,
		"prev_time": prevTime,
		"filled":    filled,
	}).Info("Volatility gaps backfilled")

	return filled, nil
}
