package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tradesync/src/model"
)

// VolatilityDB is the connection to the market statistics database used by
// the price and volatility collectors.
var VolatilityDB *gorm.DB

// InitVolatilityDB initializes the volatility database connection and runs
// migrations for the market statistics tables.
func InitVolatilityDB() error {
	config := GetConfig()
	db, err := gorm.Open(postgres.Open(config.DatabaseURLVolatility),
		&gorm.Config{
			PrepareStmt:    true,
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from VolatilityDB: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping VolatilityDB: %w", err)
	}

	VolatilityDB = db

	logrus.Info("[database] VolatilityDB connection established")

	if err := VolatilityDB.AutoMigrate(
		&model.PriceTick{},
		&model.Volatility{},
		&model.CurrencyVolatility{},
	); err != nil {
		return fmt.Errorf("failed to run migrations on VolatilityDB: %w", err)
	}

	logrus.Info("[database] VolatilityDB migrations completed")

	return nil
}
