package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradesync/src/database"
	"tradesync/src/model"
)

// AccountRepository handles the account telemetry rows. This path owns the
// accounts table; the sync pipeline only reads logins from it.
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new repository instance using the main
// read/write database.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *AccountRepository) WithDB(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Upsert inserts or fully refreshes an account telemetry row. The first
// report fixes init_date; later reports only move last_update and the
// telemetry fields.
func (r *AccountRepository) Upsert(ctx context.Context, account *model.Account) error {
	now := time.Now()
	account.LastUpdate = now
	if account.InitDate.IsZero() {
		account.InitDate = now
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "login"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"account_name", "broker_name", "leverage", "balance", "equity",
			"free_margin", "open_count", "total_volume", "ea_version",
			"last_update",
		}),
	}).Create(account).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "AccountRepository",
			"op":    "Upsert",
			"login": account.Login,
		}).WithError(err).Error("Failed to upsert account telemetry")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":  "AccountRepository",
		"op":    "Upsert",
		"login": account.Login,
	}).Debug("Account telemetry stored")

	return nil
}

// FindAll returns every known account.
func (r *AccountRepository) FindAll(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account

	err := r.db.WithContext(ctx).Find(&accounts).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "AccountRepository",
			"op":   "FindAll",
		}).WithError(err).Error("Failed to fetch accounts")
		return nil, err
	}

	return accounts, nil
}

// FindByLogin fetches one account by its login.
// Returns (nil, nil) if the account is not found.
func (r *AccountRepository) FindByLogin(ctx context.Context, login uint) (*model.Account, error) {
	var account model.Account

	err := r.db.WithContext(ctx).
		Where("login = ?", login).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":  "AccountRepository",
			"op":    "FindByLogin",
			"login": login,
		}).WithError(err).Error("Failed to fetch account")
		return nil, err
	}

	return &account, nil
}
