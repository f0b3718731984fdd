package syncer

import (
	"context"
	"errors"
	"strings"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradesync/src/database"
	"tradesync/src/model"
	"tradesync/src/repository"
)

// PositionStore reconciles an agent-reported snapshot against persisted
// open trades.
type PositionStore interface {
	Reconcile(ctx context.Context, tx *gorm.DB, accountID uint, reported []model.Position) error
}

// GroupAggregator rebuilds the per-key aggregates from persisted open
// trades.
type GroupAggregator interface {
	Recompute(ctx context.Context, tx *gorm.DB, accountID uint) ([]model.TradeGroup, error)
}

// ConfigPropagator brings the operator config rows in line with the live
// groups.
type ConfigPropagator interface {
	SyncWithGroups(ctx context.Context, tx *gorm.DB, accountID uint) error
}

// Syncer drives one trade sync: validate the batch, serialize per account,
// then reconcile, regroup and propagate configs inside a single
// transaction. It is the only place that decides commit or abort.
type Syncer struct {
	db      *gorm.DB
	store   PositionStore
	groups  GroupAggregator
	configs ConfigPropagator
	locks   *accountLocks
	cfg     Config
}

// New assembles a Syncer from its dependencies.
func New(
	db *gorm.DB,
	store PositionStore,
	groups GroupAggregator,
	configs ConfigPropagator,
	cfg Config,
) *Syncer {
	return &Syncer{
		db:      db,
		store:   store,
		groups:  groups,
		configs: configs,
		locks:   newAccountLocks(),
		cfg:     cfg,
	}
}

// NewDefault wires the Syncer to the production repositories on MainDB.
func NewDefault() *Syncer {
	return New(
		database.MainDB,
		repository.NewPositionRepository(),
		repository.NewGroupRepository(),
		repository.NewConfigRepository(),
		GetConfig(),
	)
}

// Sync applies one agent-reported snapshot of open positions for one
// account. Replaying the same snapshot is safe: reconciliation is a full
// replace, so the second run converges to the same persisted state.
func (s *Syncer) Sync(ctx context.Context, accountID uint, reported []model.Position) error {
	if accountID == 0 {
		return validationError("account id is required")
	}
	if err := validateBatch(reported); err != nil {
		return err
	}

	release, err := s.locks.acquire(ctx, accountID, s.cfg.LockTimeout)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"component":  "Syncer",
			"account_id": accountID,
		}).WithError(err).Warn("Trade sync lock not acquired")
		return err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.store.Reconcile(ctx, tx, accountID, reported); err != nil {
			return err
		}
		if _, err := s.groups.Recompute(ctx, tx, accountID); err != nil {
			return err
		}
		if err := s.configs.SyncWithGroups(ctx, tx, accountID); err != nil {
			return err
		}
		if s.cfg.VerifyInvariants {
			return s.verify(ctx, tx, accountID)
		}
		return nil
	})
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			return se
		}
		logger.WithFields(map[string]interface{}{
			"component":  "Syncer",
			"account_id": accountID,
			"positions":  len(reported),
		}).WithError(err).Error("Trade sync transaction failed")
		return &Error{Kind: KindStorage, Message: "trade sync transaction failed", Err: err}
	}

	logger.WithFields(map[string]interface{}{
		"component":  "Syncer",
		"account_id": accountID,
		"positions":  len(reported),
	}).Info("Trade sync completed")

	return nil
}

// validateBatch re-checks what the boundary layer should already have
// rejected. Any bad entry fails the whole batch before a single write.
func validateBatch(reported []model.Position) error {
	seen := make(map[string]bool, len(reported))
	for i := range reported {
		p := &reported[i]
		p.OrderType = strings.ToLower(p.OrderType)

		if p.Ticket == "" {
			return validationError("position %d: ticket is required", i)
		}
		if seen[p.Ticket] {
			return validationError("position %d: duplicate ticket %s in batch", i, p.Ticket)
		}
		seen[p.Ticket] = true
		if p.Pair == "" {
			return validationError("ticket %s: pair is required", p.Ticket)
		}
		if p.OrderType != model.OrderTypeBuy && p.OrderType != model.OrderTypeSell {
			return validationError("ticket %s: order type must be buy or sell, got %q", p.Ticket, p.OrderType)
		}
		if !p.Volume.IsPositive() {
			return validationError("ticket %s: volume must be positive, got %s", p.Ticket, p.Volume)
		}
		if p.OpenPrice.IsNegative() {
			return validationError("ticket %s: open price cannot be negative", p.Ticket)
		}
	}
	return nil
}

type keyRow struct {
	MagicNumber int
	Pair        string
	OrderType   string
}

// verify checks, still inside the transaction, that the persisted group
// keys equal the distinct position keys and that every live group has
// exactly one config row. A mismatch aborts the sync.
func (s *Syncer) verify(ctx context.Context, tx *gorm.DB, accountID uint) error {
	var posKeys []keyRow
	if err := tx.WithContext(ctx).
		Model(&model.Position{}).
		Distinct("magic_number", "pair", "order_type").
		Where("account_id = ?", accountID).
		Find(&posKeys).Error; err != nil {
		return err
	}

	var groupKeys []keyRow
	if err := tx.WithContext(ctx).
		Model(&model.TradeGroup{}).
		Select("magic_number", "pair", "order_type").
		Where("account_id = ?", accountID).
		Find(&groupKeys).Error; err != nil {
		return err
	}

	if len(posKeys) != len(groupKeys) {
		return consistencyError(
			"account %d: %d distinct position keys but %d groups",
			accountID, len(posKeys), len(groupKeys),
		)
	}

	want := make(map[keyRow]bool, len(posKeys))
	for _, k := range posKeys {
		want[k] = true
	}
	for _, k := range groupKeys {
		if !want[k] {
			return consistencyError(
				"account %d: group %d/%s/%s has no backing position",
				accountID, k.MagicNumber, k.Pair, k.OrderType,
			)
		}
	}

	var covered int64
	if err := tx.WithContext(ctx).
		Model(&model.TradeConfig{}).
		Where("account_id = ? AND orphaned = ?", accountID, false).
		Count(&covered).Error; err != nil {
		return err
	}
	if covered != int64(len(groupKeys)) {
		return consistencyError(
			"account %d: %d groups but %d live configs",
			accountID, len(groupKeys), covered,
		)
	}

	return nil
}
