package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/affiliate-engine/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletRepositoryImpl implements WalletRepository interface
type WalletRepositoryImpl struct {
	*BaseRepository[models.Wallet, models.WalletFilter]
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &WalletRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Wallet](db, func(query *gorm.DB, filter models.WalletFilter) *gorm.DB {
			if filter.UserID != nil {
				query = query.Where("user_id = ?", *filter.UserID)
			}
			if filter.AdminID != nil {
				query = query.Where("admin_id = ?", *filter.AdminID)
			}
			return query
		}),
	}
}

// ByUserAndAdmin finds the wallet of an affiliate towards an admin
func (r *WalletRepositoryImpl) ByUserAndAdmin(ctx context.Context, userID, adminID uint) (*models.Wallet, error) {
	return findOne[models.Wallet](r.getDB(ctx).Where("user_id = ? AND admin_id = ?", userID, adminID))
}

// Ensure creates the wallet if missing and returns the persisted row
func (r *WalletRepositoryImpl) Ensure(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error) {
	db := r.getDB(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "admin_id"}},
		DoNothing: true,
	}).Create(wallet).Error
	if err != nil {
		return nil, fmt.Errorf("failed to ensure wallet: %w", err)
	}

	stored, err := r.ByUserAndAdmin(ctx, wallet.UserID, wallet.AdminID)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	if stored == nil {
		return nil, fmt.Errorf("wallet for user %d admin %d vanished after insert", wallet.UserID, wallet.AdminID)
	}
	return stored, nil
}

// ApplyDelta adds delta to the wallet aggregates atomically
func (r *WalletRepositoryImpl) ApplyDelta(ctx context.Context, walletID uint, delta models.WalletAggregates) error {
	err := r.getDB(ctx).Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Updates(deltaUpdates(delta)).Error
	if err != nil {
		return fmt.Errorf("failed to apply wallet delta: %w", err)
	}
	return nil
}

// ApplyDeltaIfBalance adds delta only if the current balance is at least minBalance
func (r *WalletRepositoryImpl) ApplyDeltaIfBalance(ctx context.Context, walletID uint, delta models.WalletAggregates, minBalance decimal.Decimal) (bool, error) {
	ok, err := rowsAffected(r.getDB(ctx).Model(&models.Wallet{}).
		Where("id = ? AND balance_amount >= ?", walletID, minBalance).
		Updates(deltaUpdates(delta)))
	if err != nil {
		return false, fmt.Errorf("failed to apply conditional wallet delta: %w", err)
	}
	return ok, nil
}

// OverwriteAggregates replaces the stored aggregates
func (r *WalletRepositoryImpl) OverwriteAggregates(ctx context.Context, walletID uint, agg models.WalletAggregates) error {
	err := r.getDB(ctx).Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]any{
			"commission_amount": agg.CommissionAmount,
			"balance_amount":    agg.BalanceAmount,
			"pending_amount":    agg.PendingAmount,
			"paid_amount":       agg.PaidAmount,
			"cancelled_amount":  agg.CancelledAmount,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to overwrite wallet aggregates: %w", err)
	}
	return nil
}

// AppendTransaction inserts a ledger entry
func (r *WalletRepositoryImpl) AppendTransaction(ctx context.Context, tx *models.WalletTransaction) error {
	if err := r.getDB(ctx).Create(tx).Error; err != nil {
		return translateError("failed to append wallet transaction", err)
	}
	return nil
}

// TransactionByReference finds the ledger entry of a commission or withdrawal
func (r *WalletRepositoryImpl) TransactionByReference(ctx context.Context, walletID uint, txType models.WalletTransactionType, referenceID uint) (*models.WalletTransaction, error) {
	return findOne[models.WalletTransaction](r.getDB(ctx).
		Where("wallet_id = ? AND type = ? AND reference_id = ?", walletID, txType, referenceID))
}

// TransitionTransaction moves a ledger entry status conditionally
func (r *WalletRepositoryImpl) TransitionTransaction(ctx context.Context, txID uint, from, to models.WalletTransactionStatus) (bool, error) {
	ok, err := rowsAffected(r.getDB(ctx).Model(&models.WalletTransaction{}).
		Where("id = ? AND status = ?", txID, from).
		Update("status", to))
	if err != nil {
		return false, fmt.Errorf("failed to transition wallet transaction %d: %w", txID, err)
	}
	return ok, nil
}

// Transactions lists ledger entries oldest first. A non-positive limit returns all.
func (r *WalletRepositoryImpl) Transactions(ctx context.Context, walletID uint, limit, offset int) ([]*models.WalletTransaction, error) {
	query := r.getDB(ctx).Where("wallet_id = ?", walletID).Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var txs []*models.WalletTransaction
	if err := query.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	return txs, nil
}

func deltaUpdates(delta models.WalletAggregates) map[string]any {
	return map[string]any{
		"commission_amount": gorm.Expr("commission_amount + ?", delta.CommissionAmount),
		"balance_amount":    gorm.Expr("balance_amount + ?", delta.BalanceAmount),
		"pending_amount":    gorm.Expr("pending_amount + ?", delta.PendingAmount),
		"paid_amount":       gorm.Expr("paid_amount + ?", delta.PaidAmount),
		"cancelled_amount":  gorm.Expr("cancelled_amount + ?", delta.CancelledAmount),
	}
}
