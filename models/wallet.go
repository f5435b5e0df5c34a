package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet is the ledger of one affiliate towards one paying admin.
// Aggregates are always the fold of Transactions (see FoldWalletTransactions).
type Wallet struct {
	ID      uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	UserID  uint      `gorm:"not null;uniqueIndex:idx_wallet_user_admin" json:"user_id"`
	AdminID uint      `gorm:"not null;uniqueIndex:idx_wallet_user_admin" json:"admin_id"`

	WalletAggregates `gorm:"embedded"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Transactions []WalletTransaction `gorm:"foreignKey:WalletID" json:"transactions,omitempty"`
}

func (Wallet) TableName() string {
	return "wallets"
}

// WalletAggregates are the running totals of a wallet
type WalletAggregates struct {
	CommissionAmount decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"commission_amount"`
	BalanceAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance_amount"`
	PendingAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"pending_amount"`
	PaidAmount       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"paid_amount"`
	CancelledAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"cancelled_amount"`
}

// Add returns the field-wise sum of a and b
func (a WalletAggregates) Add(b WalletAggregates) WalletAggregates {
	return WalletAggregates{
		CommissionAmount: a.CommissionAmount.Add(b.CommissionAmount),
		BalanceAmount:    a.BalanceAmount.Add(b.BalanceAmount),
		PendingAmount:    a.PendingAmount.Add(b.PendingAmount),
		PaidAmount:       a.PaidAmount.Add(b.PaidAmount),
		CancelledAmount:  a.CancelledAmount.Add(b.CancelledAmount),
	}
}

// Sub returns the field-wise difference a - b
func (a WalletAggregates) Sub(b WalletAggregates) WalletAggregates {
	return WalletAggregates{
		CommissionAmount: a.CommissionAmount.Sub(b.CommissionAmount),
		BalanceAmount:    a.BalanceAmount.Sub(b.BalanceAmount),
		PendingAmount:    a.PendingAmount.Sub(b.PendingAmount),
		PaidAmount:       a.PaidAmount.Sub(b.PaidAmount),
		CancelledAmount:  a.CancelledAmount.Sub(b.CancelledAmount),
	}
}

// Equal compares aggregates numerically
func (a WalletAggregates) Equal(b WalletAggregates) bool {
	return a.CommissionAmount.Equal(b.CommissionAmount) &&
		a.BalanceAmount.Equal(b.BalanceAmount) &&
		a.PendingAmount.Equal(b.PendingAmount) &&
		a.PaidAmount.Equal(b.PaidAmount) &&
		a.CancelledAmount.Equal(b.CancelledAmount)
}

// WalletTransactionType is the kind of ledger entry
type WalletTransactionType string

const (
	WalletTransactionTypeCommission WalletTransactionType = "COMMISSION"
	WalletTransactionTypeWithdrawal WalletTransactionType = "WITHDRAWAL"
)

// WalletTransactionStatus is the per-entry state of a ledger entry
type WalletTransactionStatus string

const (
	WalletTransactionStatusPending   WalletTransactionStatus = "PENDING"
	WalletTransactionStatusPaid      WalletTransactionStatus = "PAID"
	WalletTransactionStatusCancelled WalletTransactionStatus = "CANCELLED"
)

// WalletTransaction is one append-only ledger entry. Only Status changes after insert.
type WalletTransaction struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID     uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	WalletID uint      `gorm:"not null;index;uniqueIndex:idx_wallet_tx_reference" json:"wallet_id"`

	Type        WalletTransactionType   `gorm:"type:varchar(20);not null;uniqueIndex:idx_wallet_tx_reference" json:"type"`
	Status      WalletTransactionStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Amount      decimal.Decimal         `gorm:"type:decimal(20,2);not null" json:"amount"`
	ReferenceID uint                    `gorm:"not null;uniqueIndex:idx_wallet_tx_reference" json:"reference_id"`
	Description string                  `gorm:"type:text" json:"description"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}

// WalletContribution is what a single entry in the given status adds to the aggregates
func WalletContribution(txType WalletTransactionType, status WalletTransactionStatus, amount decimal.Decimal) WalletAggregates {
	var agg WalletAggregates
	switch txType {
	case WalletTransactionTypeCommission:
		switch status {
		case WalletTransactionStatusPending:
			agg.CommissionAmount = amount
		case WalletTransactionStatusPaid:
			agg.CommissionAmount = amount
			agg.PaidAmount = amount
		case WalletTransactionStatusCancelled:
			agg.CancelledAmount = amount
		}
	case WalletTransactionTypeWithdrawal:
		switch status {
		case WalletTransactionStatusPending:
			agg.PendingAmount = amount
		case WalletTransactionStatusPaid:
			agg.PaidAmount = amount
		}
	}
	agg.BalanceAmount = agg.CommissionAmount.Sub(agg.PaidAmount).Sub(agg.PendingAmount)
	return agg
}

// WalletTransitionDelta is the aggregate change caused by moving one entry from one status to another.
// Use an empty from for a freshly appended entry.
func WalletTransitionDelta(txType WalletTransactionType, from, to WalletTransactionStatus, amount decimal.Decimal) WalletAggregates {
	return WalletContribution(txType, to, amount).Sub(WalletContribution(txType, from, amount))
}

// FoldWalletTransactions derives wallet aggregates from the ledger
func FoldWalletTransactions(txs []WalletTransaction) WalletAggregates {
	var agg WalletAggregates
	for _, tx := range txs {
		agg = agg.Add(WalletContribution(tx.Type, tx.Status, tx.Amount))
	}
	return agg
}

// WalletFilter represents filter criteria for wallet queries
type WalletFilter struct {
	UserID  *uint
	AdminID *uint
}
