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

// PositionRepository handles read/write operations for open trade rows.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main
// read/write database.
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

func (r *PositionRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Reconcile applies an agent-reported snapshot of open tickets to the
// trades_open table: reported tickets are inserted or fully replaced,
// persisted tickets missing from the snapshot are deleted. After a
// successful call the table holds exactly the reported tickets for the
// account, irrespective of prior state.
func (r *PositionRepository) Reconcile(
	ctx context.Context,
	tx *gorm.DB,
	accountID uint,
	reported []model.Position,
) error {

	db := r.conn(tx)
	now := time.Now()

	logger.WithFields(map[string]interface{}{
		"repo":       "PositionRepository",
		"op":         "Reconcile",
		"account_id": accountID,
		"reported":   len(reported),
	}).Debug("Reconciling open trades snapshot")

	if len(reported) == 0 {
		// Flat account: the agent closed everything out.
		err := db.WithContext(ctx).
			Where("account_id = ?", accountID).
			Delete(&model.Position{}).Error
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"repo":       "PositionRepository",
				"op":         "Reconcile",
				"account_id": accountID,
			}).WithError(err).Error("Failed to delete open trades for flat account")
		}
		return err
	}

	tickets := make([]string, 0, len(reported))
	for i := range reported {
		reported[i].ID = 0
		reported[i].AccountID = accountID
		reported[i].LastUpdate = now
		tickets = append(tickets, reported[i].Ticket)
	}

	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "ticket"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"magic_number", "pair", "order_type", "volume", "open_price",
			"profit", "bid_price", "ask_price", "commission", "comment",
			"open_time", "last_update",
		}),
	}).Create(&reported).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "Reconcile",
			"account_id": accountID,
		}).WithError(err).Error("Failed to upsert reported trades")
		return err
	}

	// Tickets the agent stopped reporting are closed on the broker side.
	err = db.WithContext(ctx).
		Where("account_id = ? AND ticket NOT IN ?", accountID, tickets).
		Delete(&model.Position{}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "Reconcile",
			"account_id": accountID,
		}).WithError(err).Error("Failed to delete closed-out trades")
		return err
	}

	return nil
}

// FindByAccount returns all open trade rows for an account ordered by
// open time, oldest first.
func (r *PositionRepository) FindByAccount(
	ctx context.Context,
	accountID uint,
) ([]model.Position, error) {

	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("open_time ASC, ticket ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "FindByAccount",
			"account_id": accountID,
		}).WithError(err).Error("Failed to fetch open trades")
		return nil, err
	}

	return positions, nil
}
