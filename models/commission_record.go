package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionStatus represents the settlement state of a commission
type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "PENDING"
	CommissionStatusPaid      CommissionStatus = "PAID"
	CommissionStatusCancelled CommissionStatus = "CANCELLED"
)

// CanTransitionTo reports whether next is reachable from s. Only PENDING moves.
func (s CommissionStatus) CanTransitionTo(next CommissionStatus) bool {
	return s == CommissionStatusPending &&
		(next == CommissionStatusPaid || next == CommissionStatusCancelled)
}

// CommissionRecord is one commission attributed to a purchase
type CommissionRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	AdminID    uint      `gorm:"not null;index" json:"admin_id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	CampaignID uint      `gorm:"not null;uniqueIndex:idx_commission_campaign_order" json:"campaign_id"`
	OrderID    string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_commission_campaign_order" json:"order_id"`

	PurchaseAmount   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"purchase_amount"`
	CommissionAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"commission_amount"`
	TDSAmount        decimal.Decimal `gorm:"column:tds_amount;type:decimal(20,2);not null" json:"tds_amount"`
	FinalCommission  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"final_commission"`

	Status          CommissionStatus `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	SettlementRunID *uint            `gorm:"index" json:"settlement_run_id,omitempty"`
	PaidAt          *time.Time       `json:"paid_at,omitempty"`
	CancelledAt     *time.Time       `json:"cancelled_at,omitempty"`
	CancelReason    *string          `gorm:"type:text" json:"cancel_reason,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (CommissionRecord) TableName() string {
	return "commission_records"
}

// CommissionRecordFilter represents filter criteria for commission queries
type CommissionRecordFilter struct {
	AdminID         *uint
	UserID          *uint
	CampaignID      *uint
	Status          *CommissionStatus
	SettlementRunID *uint
	CreatedAfter    *time.Time
	CreatedBefore   *time.Time
}
