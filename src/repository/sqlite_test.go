package repository

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradesync/src/model"
)

// newSQLiteDB gives each test an isolated in-memory database with the full
// schema. Capped at one connection so every session sees the same memory.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&model.Account{},
		&model.Position{},
		&model.TradeGroup{},
		&model.TradeConfig{},
		&model.PriceTick{},
		&model.Volatility{},
		&model.CurrencyVolatility{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return db
}
