package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyActionCounter accumulates one affiliate's activity towards one admin on one UTC day
type DailyActionCounter struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID  uint   `gorm:"not null;uniqueIndex:idx_daily_action_owner_day" json:"user_id"`
	AdminID uint   `gorm:"not null;uniqueIndex:idx_daily_action_owner_day" json:"admin_id"`
	Day     string `gorm:"type:varchar(10);not null;uniqueIndex:idx_daily_action_owner_day" json:"day"`

	Clicks         int64           `gorm:"not null;default:0" json:"clicks"`
	Orders         int64           `gorm:"not null;default:0" json:"orders"`
	Sales          decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"sales"`
	Earnings       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"earnings"`
	PaidCommission decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"paid_commission"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (DailyActionCounter) TableName() string {
	return "daily_action_counters"
}

// DailyActionDelta is an increment applied to a daily counter
type DailyActionDelta struct {
	Clicks         int64
	Orders         int64
	Sales          decimal.Decimal
	Earnings       decimal.Decimal
	PaidCommission decimal.Decimal
}

// DailyActionCounterFilter represents filter criteria for daily counter queries
type DailyActionCounterFilter struct {
	UserID  *uint
	AdminID *uint
	DayFrom *string
	DayTo   *string
}
