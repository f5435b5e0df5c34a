package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus represents the payout state of a withdrawal
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "PENDING"
	WithdrawalStatusProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalStatusCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalStatusCancelled  WithdrawalStatus = "CANCELLED"
	WithdrawalStatusFailed     WithdrawalStatus = "FAILED"
	WithdrawalStatusRejected   WithdrawalStatus = "REJECTED"
)

// IsTerminal reports whether no further transition is expected
func (s WithdrawalStatus) IsTerminal() bool {
	switch s {
	case WithdrawalStatusCancelled, WithdrawalStatusFailed, WithdrawalStatusRejected:
		return true
	default:
		return false
	}
}

// Withdrawal is a payout request against a wallet balance
type Withdrawal struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID     uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	UserID   uint      `gorm:"not null;index" json:"user_id"`
	AdminID  uint      `gorm:"not null;index" json:"admin_id"`
	WalletID uint      `gorm:"not null;index" json:"wallet_id"`

	Amount        decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"amount"`
	Status        WithdrawalStatus `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	PayoutID      *string          `gorm:"type:varchar(128);uniqueIndex" json:"payout_id,omitempty"`
	FailureReason *string          `gorm:"type:text" json:"failure_reason,omitempty"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Withdrawal) TableName() string {
	return "withdrawals"
}

// WithdrawalFilter represents filter criteria for withdrawal queries
type WithdrawalFilter struct {
	UserID  *uint
	AdminID *uint
	Status  *WithdrawalStatus
}
