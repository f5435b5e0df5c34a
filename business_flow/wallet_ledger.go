package businessflow

import (
	"context"
	"fmt"
	"log"

	"github.com/amirphl/affiliate-engine/app/services"
	"github.com/amirphl/affiliate-engine/models"
	"github.com/amirphl/affiliate-engine/repository"
	"github.com/amirphl/affiliate-engine/utils"
	"gorm.io/gorm"
)

// WalletLedger maintains per (user, admin) wallets and their append-only transaction log.
// Every aggregate change is the fold delta of exactly one log entry and is written in the
// same store transaction as that entry.
type WalletLedger interface {
	Credit(ctx context.Context, userID, adminID uint, record *models.CommissionRecord) (*models.WalletTransaction, error)
	MarkPaid(ctx context.Context, userID, adminID, commissionID uint) error
	HoldWithdrawal(ctx context.Context, userID, adminID uint, withdrawal *models.Withdrawal) (*models.WalletTransaction, error)
	SettleWithdrawalPayout(ctx context.Context, withdrawal *models.Withdrawal) error
	ReleaseWithdrawal(ctx context.Context, withdrawal *models.Withdrawal) error
	ReverseWithdrawalPayout(ctx context.Context, withdrawal *models.Withdrawal) error

	Wallet(ctx context.Context, userID, adminID uint) (*models.Wallet, error)
	Transactions(ctx context.Context, walletID uint, limit, offset int) ([]*models.WalletTransaction, error)
	Reconcile(ctx context.Context, adminID, walletID uint) (*ReconcileResult, error)
}

// ReconcileResult reports the outcome of re-deriving a wallet from its log
type ReconcileResult struct {
	WalletID uint                    `json:"wallet_id"`
	Drifted  bool                    `json:"drifted"`
	Before   models.WalletAggregates `json:"before"`
	After    models.WalletAggregates `json:"after"`
}

// WalletLedgerImpl implements WalletLedger
type WalletLedgerImpl struct {
	walletRepo repository.WalletRepository
	idGen      services.IDGenerator
	db         *gorm.DB
}

// NewWalletLedger creates a new wallet ledger
func NewWalletLedger(walletRepo repository.WalletRepository, idGen services.IDGenerator, db *gorm.DB) WalletLedger {
	return &WalletLedgerImpl{
		walletRepo: walletRepo,
		idGen:      idGen,
		db:         db,
	}
}

// Credit records a settled commission as unpaid wallet balance.
// A second credit of the same record fails with ErrAlreadyCredited.
func (l *WalletLedgerImpl) Credit(ctx context.Context, userID, adminID uint, record *models.CommissionRecord) (*models.WalletTransaction, error) {
	if record == nil || record.ID == 0 {
		return nil, NewBusinessError(KindBadRequest, "Commission record is required", ErrBadRequest)
	}

	var entry *models.WalletTransaction
	err := repository.WithTransaction(ctx, l.db, func(txCtx context.Context) error {
		now := utils.UTCNow()
		wallet, err := l.walletRepo.Ensure(txCtx, &models.Wallet{
			UUID:      l.idGen.NewUUID(),
			UserID:    userID,
			AdminID:   adminID,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}

		existing, err := l.walletRepo.TransactionByReference(txCtx, wallet.ID, models.WalletTransactionTypeCommission, record.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyCredited
		}

		entry = &models.WalletTransaction{
			UUID:        l.idGen.NewUUID(),
			WalletID:    wallet.ID,
			Type:        models.WalletTransactionTypeCommission,
			Status:      models.WalletTransactionStatusPending,
			Amount:      record.FinalCommission,
			ReferenceID: record.ID,
			Description: fmt.Sprintf("commission for order %s", record.OrderID),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := l.walletRepo.AppendTransaction(txCtx, entry); err != nil {
			if repository.IsDuplicateKeyError(err) {
				return ErrAlreadyCredited
			}
			return err
		}

		delta := models.WalletTransitionDelta(entry.Type, "", entry.Status, entry.Amount)
		return l.walletRepo.ApplyDelta(txCtx, wallet.ID, delta)
	})
	if err != nil {
		if IsAlreadyCredited(err) {
			return nil, NewBusinessErrorf(KindAlreadyExists, "Commission %d already credited", err, record.ID)
		}
		return nil, NewBusinessError("WALLET_CREDIT_FAILED", "Failed to credit wallet", err)
	}

	return entry, nil
}

// MarkPaid moves a credited commission out of the unpaid balance into paid
func (l *WalletLedgerImpl) MarkPaid(ctx context.Context, userID, adminID, commissionID uint) error {
	err := repository.WithTransaction(ctx, l.db, func(txCtx context.Context) error {
		wallet, err := l.walletRepo.ByUserAndAdmin(txCtx, userID, adminID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return ErrWalletNotFound
		}
		return l.transition(txCtx, wallet.ID, models.WalletTransactionTypeCommission, commissionID,
			models.WalletTransactionStatusPending, models.WalletTransactionStatusPaid)
	})
	if err != nil {
		return NewBusinessErrorf("WALLET_MARK_PAID_FAILED", "Failed to mark commission %d paid", err, commissionID)
	}
	return nil
}

// HoldWithdrawal reserves the withdrawal amount out of the balance. The balance check and the
// reservation are one conditional update. The withdrawal must already be persisted.
func (l *WalletLedgerImpl) HoldWithdrawal(ctx context.Context, userID, adminID uint, withdrawal *models.Withdrawal) (*models.WalletTransaction, error) {
	if withdrawal == nil || withdrawal.ID == 0 {
		return nil, NewBusinessError(KindBadRequest, "Withdrawal is required", ErrBadRequest)
	}
	if !withdrawal.Amount.IsPositive() {
		return nil, NewBusinessError(KindBadRequest, "Withdrawal amount must be positive", ErrInvalidAmount)
	}

	var entry *models.WalletTransaction
	err := repository.WithTransaction(ctx, l.db, func(txCtx context.Context) error {
		wallet, err := l.walletRepo.ByUserAndAdmin(txCtx, userID, adminID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return ErrWalletNotFound
		}
		if withdrawal.WalletID != 0 && withdrawal.WalletID != wallet.ID {
			return fmt.Errorf("withdrawal %d belongs to wallet %d: %w", withdrawal.ID, withdrawal.WalletID, ErrForbidden)
		}

		delta := models.WalletTransitionDelta(models.WalletTransactionTypeWithdrawal, "", models.WalletTransactionStatusPending, withdrawal.Amount)
		ok, err := l.walletRepo.ApplyDeltaIfBalance(txCtx, wallet.ID, delta, withdrawal.Amount)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientBalance
		}

		now := utils.UTCNow()
		entry = &models.WalletTransaction{
			UUID:        l.idGen.NewUUID(),
			WalletID:    wallet.ID,
			Type:        models.WalletTransactionTypeWithdrawal,
			Status:      models.WalletTransactionStatusPending,
			Amount:      withdrawal.Amount,
			ReferenceID: withdrawal.ID,
			Description: fmt.Sprintf("withdrawal %d", withdrawal.ID),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return l.walletRepo.AppendTransaction(txCtx, entry)
	})
	if err != nil {
		return nil, NewBusinessError("WALLET_HOLD_FAILED", "Failed to hold withdrawal amount", err)
	}
	return entry, nil
}

// SettleWithdrawalPayout converts a withdrawal hold into paid
func (l *WalletLedgerImpl) SettleWithdrawalPayout(ctx context.Context, withdrawal *models.Withdrawal) error {
	return l.transitionWithdrawal(ctx, withdrawal, models.WalletTransactionStatusPending, models.WalletTransactionStatusPaid)
}

// ReleaseWithdrawal returns a withdrawal hold to the balance
func (l *WalletLedgerImpl) ReleaseWithdrawal(ctx context.Context, withdrawal *models.Withdrawal) error {
	return l.transitionWithdrawal(ctx, withdrawal, models.WalletTransactionStatusPending, models.WalletTransactionStatusCancelled)
}

// ReverseWithdrawalPayout returns a paid-out withdrawal to the balance
func (l *WalletLedgerImpl) ReverseWithdrawalPayout(ctx context.Context, withdrawal *models.Withdrawal) error {
	return l.transitionWithdrawal(ctx, withdrawal, models.WalletTransactionStatusPaid, models.WalletTransactionStatusCancelled)
}

func (l *WalletLedgerImpl) transitionWithdrawal(ctx context.Context, withdrawal *models.Withdrawal, from, to models.WalletTransactionStatus) error {
	if withdrawal == nil {
		return NewBusinessError(KindBadRequest, "Withdrawal is required", ErrBadRequest)
	}
	err := repository.WithTransaction(ctx, l.db, func(txCtx context.Context) error {
		return l.transition(txCtx, withdrawal.WalletID, models.WalletTransactionTypeWithdrawal, withdrawal.ID, from, to)
	})
	if err != nil {
		return NewBusinessErrorf("WALLET_WITHDRAWAL_TRANSITION_FAILED", "Failed to move withdrawal %d from %s to %s", err, withdrawal.ID, from, to)
	}
	return nil
}

// transition flips one entry conditionally and applies its fold delta. Must run inside a transaction.
func (l *WalletLedgerImpl) transition(ctx context.Context, walletID uint, txType models.WalletTransactionType, referenceID uint, from, to models.WalletTransactionStatus) error {
	entry, err := l.walletRepo.TransactionByReference(ctx, walletID, txType, referenceID)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrWalletTransactionNotFound
	}

	ok, err := l.walletRepo.TransitionTransaction(ctx, entry.ID, from, to)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("entry %d is %s: %w", entry.ID, entry.Status, ErrLedgerEntryStateMismatch)
	}

	return l.walletRepo.ApplyDelta(ctx, walletID, models.WalletTransitionDelta(txType, from, to, entry.Amount))
}

// Wallet returns the wallet of an affiliate towards an admin
func (l *WalletLedgerImpl) Wallet(ctx context.Context, userID, adminID uint) (*models.Wallet, error) {
	wallet, err := l.walletRepo.ByUserAndAdmin(ctx, userID, adminID)
	if err != nil {
		return nil, NewBusinessError("WALLET_LOOKUP_FAILED", "Failed to load wallet", err)
	}
	if wallet == nil {
		return nil, NewBusinessError(KindNotFound, "Wallet not found", ErrWalletNotFound)
	}
	return wallet, nil
}

// Transactions lists ledger entries of a wallet oldest first
func (l *WalletLedgerImpl) Transactions(ctx context.Context, walletID uint, limit, offset int) ([]*models.WalletTransaction, error) {
	txs, err := l.walletRepo.Transactions(ctx, walletID, limit, offset)
	if err != nil {
		return nil, NewBusinessError("WALLET_TRANSACTIONS_FAILED", "Failed to list wallet transactions", err)
	}
	return txs, nil
}

// Reconcile folds the log and overwrites aggregates that drifted from it. Wallets held with
// another admin are reported as not found.
func (l *WalletLedgerImpl) Reconcile(ctx context.Context, adminID, walletID uint) (*ReconcileResult, error) {
	var result *ReconcileResult
	err := repository.WithTransaction(ctx, l.db, func(txCtx context.Context) error {
		wallet, err := l.walletRepo.ByID(txCtx, walletID)
		if err != nil {
			return err
		}
		if wallet == nil || wallet.AdminID != adminID {
			return ErrWalletNotFound
		}

		txs, err := l.walletRepo.Transactions(txCtx, walletID, 0, 0)
		if err != nil {
			return err
		}
		entries := make([]models.WalletTransaction, 0, len(txs))
		for _, tx := range txs {
			entries = append(entries, *tx)
		}

		folded := models.FoldWalletTransactions(entries)
		result = &ReconcileResult{
			WalletID: walletID,
			Before:   wallet.WalletAggregates,
			After:    folded,
			Drifted:  !folded.Equal(wallet.WalletAggregates),
		}
		if !result.Drifted {
			return nil
		}

		log.Printf("wallet %d drifted from its ledger: stored=%+v folded=%+v", walletID, wallet.WalletAggregates, folded)
		return l.walletRepo.OverwriteAggregates(txCtx, walletID, folded)
	})
	if err != nil {
		return nil, NewBusinessErrorf("WALLET_RECONCILE_FAILED", "Failed to reconcile wallet %d", err, walletID)
	}
	return result, nil
}
