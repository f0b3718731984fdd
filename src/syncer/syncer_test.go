package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradesync/src/model"
	"tradesync/src/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
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
	// One in-memory sqlite connection; a second one would see an empty
	// schema.
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&model.Account{},
		&model.Position{},
		&model.TradeGroup{},
		&model.TradeConfig{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return db
}

func newTestSyncer(db *gorm.DB) *Syncer {
	return New(
		db,
		repository.NewPositionRepository().WithDB(db),
		repository.NewGroupRepository().WithDB(db),
		repository.NewConfigRepository().WithDB(db),
		Config{
			LockTimeout:      200 * time.Millisecond,
			TxTimeout:        5 * time.Second,
			VerifyInvariants: true,
		},
	)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func position(ticket, pair, orderType string, magic int, volume, openPrice, profit string) model.Position {
	return model.Position{
		Ticket:      ticket,
		MagicNumber: magic,
		Pair:        pair,
		OrderType:   orderType,
		Volume:      dec(volume),
		OpenPrice:   dec(openPrice),
		Profit:      dec(profit),
	}
}

func TestSyncFirstSnapshot(t *testing.T) {
	db := newTestDB(t)
	s := newTestSyncer(db)

	err := s.Sync(context.Background(), 7, []model.Position{
		position("100", "EURUSD", "buy", 42, "0.5", "1.1000", "5.0"),
	})
	require.NoError(t, err)

	var positions []model.Position
	require.NoError(t, db.Find(&positions).Error)
	require.Len(t, positions, 1)
	assert.Equal(t, uint(7), positions[0].AccountID)
	assert.Equal(t, "100", positions[0].Ticket)

	var groups []model.TradeGroup
	require.NoError(t, db.Find(&groups).Error)
	require.Len(t, groups, 1)
	assert.Equal(t, 42, groups[0].MagicNumber)
	assert.Equal(t, "EURUSD", groups[0].Pair)
	assert.Equal(t, "buy", groups[0].OrderType)
	assert.True(t, groups[0].TotalVolume.Equal(dec("0.5")), "volume %s", groups[0].TotalVolume)
	assert.True(t, groups[0].WeightedOpenPrice.Equal(dec("1.1")), "wop %s", groups[0].WeightedOpenPrice)
	assert.True(t, groups[0].Profit.Equal(dec("5")), "profit %s", groups[0].Profit)

	var configs []model.TradeConfig
	require.NoError(t, db.Find(&configs).Error)
	require.Len(t, configs, 1)
	cfg := configs[0]
	require.NotNil(t, cfg.GroupID)
	assert.Equal(t, groups[0].ID, *cfg.GroupID)
	assert.False(t, cfg.Orphaned)
	assert.False(t, cfg.AuthFT)
	assert.False(t, cfg.AuthAT)
	assert.False(t, cfg.AuthCP)
	assert.False(t, cfg.AuthSL)
	assert.False(t, cfg.AuthCL)
	assert.Empty(t, cfg.Remark)
	assert.False(t, cfg.StopLoss.Valid)
	assert.False(t, cfg.TakeProfit.Valid)
}

func TestSyncWeightedOpenPrice(t *testing.T) {
	db := newTestDB(t)
	s := newTestSyncer(db)

	err := s.Sync(context.Background(), 7, []model.Position{
		position("1", "GBPUSD", "buy", 9, "1.0", "1.2", "0"),
		position("2", "GBPUSD", "buy", 9, "3.0", "1.3", "0"),
	})
	require.NoError(t, err)

	var group model.TradeGroup
	require.NoError(t, db.First(&group).Error)
	assert.True(t, group.TotalVolume.Equal(dec("4")), "volume %s", group.TotalVolume)
	// (1.0*1.2 + 3.0*1.3) / 4.0
	assert.True(t, group.WeightedOpenPrice.Equal(dec("1.275")), "wop %s", group.WeightedOpenPrice)
}

func TestSyncIdempotent(t *testing.T) {
	db := newTestDB(t)
	s := newTestSyncer(db)

	snapshot := []model.Position{
		position("1", "EURUSD", "buy", 1, "0.1", "1.1", "1"),
		position("2", "USDJPY", "sell", 2, "0.2", "150.1", "-2"),
	}

	require.NoError(t, s.Sync(context.Background(), 7, snapshot))

	var firstConfigs []model.TradeConfig
	require.NoError(t, db.Order("id").Find(&firstConfigs).Error)

	require.NoError(t, s.Sync(context.Background(), 7, snapshot))

	var positions []model.Position
	var groups []model.TradeGroup
	var configs []model.TradeConfig
	require.NoError(t, db.Find(&positions).Error)
	require.NoError(t, db.Find(&groups).Error)
	require.NoError(t, db.Order("id").Find(&configs).Error)

	assert.Len(t, positions, 2)
	assert.Len(t, groups, 2)
	require.Len(t, configs, 2)
	for i := range configs {
		// Replaying a snapshot must not recreate config rows.
		assert.Equal(t, firstConfigs[i].ID, configs[i].ID)
	}
}

func TestSyncRemovesClosedPositions(t *testing.T) {
	db := newTestDB(t)
	s := newTestSyncer(db)

	require.NoError(t, s.Sync(context.Background(), 7, []model.Position{
		position("A", "EURUSD", "buy", 1, "0.1", "1.1", "0"),
		position("B", "EURUSD", "buy", 1, "0.2", "1.2", "0"),
		position("C", "USDJPY", "sell", 2, "0.3", "150.0", "0"),
	}))

	require.NoError(t, s.Sync(context.Background(), 7, []model.Position{
		position("A", "EURUSD", "buy", 1, "0.1", "1.1", "0"),
		position("C", "USDJPY", "sell", 2, "0.3", "150.0", "0"),
	}))

	var tickets []string
	require.NoError(t, db.Model(&model.Position{}).Order("ticket").Pluck("ticket", &tickets).Error)
	assert.Equal(t, []string{"A", "C"}, tickets)

	var group model.TradeGroup
	require.NoError(t, db.Where("pair = ?", "EURUSD").First(&group).Error)
	assert.True(t, group.TotalVolume.Equal(dec("0.1")), "volume %s", group.TotalVolume)
}

func TestSyncPreservesOperatorConfig(t *testing.T) {
	db := newTestDB(t)
	s := newTestSyncer(db)
	configs := repository.NewConfigRepository().WithDB(db)

	require.NoError(t, s.Sync(context.Background(), 7, []model.Position{
		position("1", "EURUSD", "buy", 1, "0.1", "1.1", "0"),
	}))

	var cfg model.TradeConfig
	require.NoError(t, db.First(&cfg).Error)
	require.NoError(t, configs.UpdateParam(context.Background(), cfg.ID, "remark", "R1"))
	require.NoError(t, configs.UpdateParam(context.Background(), cfg.ID, model.AuthParamFirstTrade, true))

	// Next snapshot changes the aggregates but must not touch the
	// operator fields.
	require.NoError(t, s.Sync(context.Background(), 7, []model.Position{
		position("1", "EURUSD", "buy", 1, "0.1", "1.1", "0"),
		position("2", "EURUSD", "buy", 1, "0.4", "1.2", "0"),
	}))

	var after model.TradeConfig
	require.NoError(t, db.First(&after, cfg.ID).Error)
	assert.Equal(t, "R1", after.Remark)
	assert.True(t, after.AuthFT)
	assert.False(t, after.Orphaned)
}

func TestSyncOrphansAndReclaimsConfig(t *testing.T) {
	db := newTestDB(t)
	s := newTestSyncer(db)
	configs := repository.NewConfigRepository().WithDB(db)

	require.NoError(t, s.Sync(context.Background(), 7, []model.Position{
		position("1", "EURUSD", "buy", 1, "0.1", "1.1", "0"),
	}))

	var cfg model.TradeConfig
	require.NoError(t, db.First(&cfg).Error)
	require.NoError(t, configs.UpdateParam(context.Background(), cfg.ID, "remark", "keep me"))

	// The key closes out: the group dissolves, the config survives
	// orphaned.
	require.NoError(t, s.Sync(context.Background(), 7, nil))

	var groupCount int64
	require.NoError(t, db.Model(&model.TradeGroup{}).Count(&groupCount).Error)
	assert.Zero(t, groupCount)

	var orphan model.TradeConfig
	require.NoError(t, db.First(&orphan, cfg.ID).Error)
	assert.True(t, orphan.Orphaned)
	assert.Nil(t, orphan.GroupID)
	assert.Equal(t, "keep me", orphan.Remark)

	// The key re-opens: the same config row is reclaimed.
	require.NoError(t, s.Sync(context.Background(), 7, []model.Position{
		position("5", "EURUSD", "buy", 1, "0.3", "1.15", "0"),
	}))

	var reclaimed model.TradeConfig
	require.NoError(t, db.First(&reclaimed, cfg.ID).Error)
	assert.False(t, reclaimed.Orphaned)
	require.NotNil(t, reclaimed.GroupID)
	assert.Equal(t, "keep me", reclaimed.Remark)

	var configCount int64
	require.NoError(t, db.Model(&model.TradeConfig{}).Count(&configCount).Error)
	assert.Equal(t, int64(1), configCount)
}

func TestSyncValidationRejectsBatch(t *testing.T) {
	db := newTestDB(t)
	s := newTestSyncer(db)

	cases := []struct {
		name  string
		batch []model.Position
	}{
		{"missing ticket", []model.Position{position("", "EURUSD", "buy", 1, "0.1", "1.1", "0")}},
		{"duplicate ticket", []model.Position{
			position("1", "EURUSD", "buy", 1, "0.1", "1.1", "0"),
			position("1", "EURUSD", "buy", 1, "0.2", "1.2", "0"),
		}},
		{"bad order type", []model.Position{position("1", "EURUSD", "hold", 1, "0.1", "1.1", "0")}},
		{"zero volume", []model.Position{position("1", "EURUSD", "buy", 1, "0", "1.1", "0")}},
		{"negative open price", []model.Position{position("1", "EURUSD", "buy", 1, "0.1", "-1.1", "0")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Sync(context.Background(), 7, tc.batch)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}

	// A rejected batch writes nothing.
	var count int64
	require.NoError(t, db.Model(&model.Position{}).Count(&count).Error)
	assert.Zero(t, count)

	assert.Equal(t, KindValidation, KindOf(s.Sync(context.Background(), 0, nil)))
}

func TestSyncOrderTypeNormalized(t *testing.T) {
	db := newTestDB(t)
	s := newTestSyncer(db)

	require.NoError(t, s.Sync(context.Background(), 7, []model.Position{
		position("1", "EURUSD", "BUY", 1, "0.1", "1.1", "0"),
	}))

	var group model.TradeGroup
	require.NoError(t, db.First(&group).Error)
	assert.Equal(t, model.OrderTypeBuy, group.OrderType)
}

func TestSyncLockConflict(t *testing.T) {
	db := newTestDB(t)
	s := newTestSyncer(db)

	release, err := s.locks.acquire(context.Background(), 7, time.Second)
	require.NoError(t, err)
	defer release()

	err = s.Sync(context.Background(), 7, []model.Position{
		position("1", "EURUSD", "buy", 1, "0.1", "1.1", "0"),
	})
	assert.Equal(t, KindConflict, KindOf(err))
	assert.True(t, IsRetryable(err))

	// Other accounts are not serialized behind it.
	require.NoError(t, s.Sync(context.Background(), 8, []model.Position{
		position("1", "EURUSD", "buy", 1, "0.1", "1.1", "0"),
	}))
}

type brokenPropagator struct{}

func (brokenPropagator) SyncWithGroups(ctx context.Context, tx *gorm.DB, accountID uint) error {
	// Writes nothing, leaving the groups without configs.
	return nil
}

func TestSyncConsistencyAborts(t *testing.T) {
	db := newTestDB(t)
	s := New(
		db,
		repository.NewPositionRepository().WithDB(db),
		repository.NewGroupRepository().WithDB(db),
		brokenPropagator{},
		Config{LockTimeout: time.Second, TxTimeout: 5 * time.Second, VerifyInvariants: true},
	)

	err := s.Sync(context.Background(), 7, []model.Position{
		position("1", "EURUSD", "buy", 1, "0.1", "1.1", "0"),
	})
	assert.Equal(t, KindConsistency, KindOf(err))
	assert.False(t, IsRetryable(err))

	// The whole transaction rolled back, positions included.
	var count int64
	require.NoError(t, db.Model(&model.Position{}).Count(&count).Error)
	assert.Zero(t, count)
}

type failingStore struct{}

func (failingStore) Reconcile(ctx context.Context, tx *gorm.DB, accountID uint, reported []model.Position) error {
	return errors.New("disk on fire")
}

func TestSyncStorageErrorWrapped(t *testing.T) {
	db := newTestDB(t)
	s := New(
		db,
		failingStore{},
		repository.NewGroupRepository().WithDB(db),
		repository.NewConfigRepository().WithDB(db),
		Config{LockTimeout: time.Second, TxTimeout: 5 * time.Second, VerifyInvariants: false},
	)

	err := s.Sync(context.Background(), 7, []model.Position{
		position("1", "EURUSD", "buy", 1, "0.1", "1.1", "0"),
	})
	assert.Equal(t, KindStorage, KindOf(err))
	assert.True(t, IsRetryable(err))

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.EqualError(t, se.Err, "disk on fire")
}
