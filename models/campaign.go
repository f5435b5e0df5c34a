package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Campaign is a tracked link owned by one affiliate and paid for by one admin
type Campaign struct {
	ID      uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	UserID  uint      `gorm:"not null;index" json:"user_id"`
	AdminID uint      `gorm:"not null;index" json:"admin_id"`

	Name         string `gorm:"type:varchar(255);not null" json:"name"`
	AccessKey    string `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	ReturnPeriod int    `gorm:"not null;default:0" json:"return_period"` // days
	IsActive     bool   `gorm:"not null" json:"is_active"`

	Clicks int64           `gorm:"not null;default:0" json:"clicks"`
	Orders int64           `gorm:"not null;default:0" json:"orders"`
	Sales  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"sales"`

	// Commission summary
	CommissionPending    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"commission_pending"`
	CommissionPaid       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"commission_paid"`
	CommissionPercentage decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"commission_percentage"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// GraceDays is the return window used for settlement eligibility
func (c *Campaign) GraceDays() int {
	if c.ReturnPeriod > 0 {
		return c.ReturnPeriod
	}
	return 1
}

// CampaignFilter represents filter criteria for campaign queries
type CampaignFilter struct {
	ID       *uint
	UserID   *uint
	AdminID  *uint
	IsActive *bool
}
