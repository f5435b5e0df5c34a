package models

import (
	"time"

	"gorm.io/datatypes"
)

// RecipientType distinguishes affiliates from admins
type RecipientType string

const (
	RecipientTypeUser  RecipientType = "USER"
	RecipientTypeAdmin RecipientType = "ADMIN"
)

// NotificationKind is the closed set of notification categories
type NotificationKind string

const (
	NotificationKindCommissionSettledUser   NotificationKind = "COMMISSION_SETTLED_USER"
	NotificationKindCommissionSettledAdmin  NotificationKind = "COMMISSION_SETTLED_ADMIN"
	NotificationKindRewardEarned            NotificationKind = "REWARD_EARNED"
	NotificationKindRewardClaimed           NotificationKind = "REWARD_CLAIMED"
	NotificationKindTierCompleted           NotificationKind = "TIER_COMPLETED"
	NotificationKindWithdrawalStatusChanged NotificationKind = "WITHDRAWAL_STATUS_CHANGED"
)

// Notification is a persisted in-app notification
type Notification struct {
	ID            uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	RecipientType RecipientType    `gorm:"type:varchar(10);not null;index:idx_notification_recipient" json:"recipient_type"`
	RecipientID   uint             `gorm:"not null;index:idx_notification_recipient" json:"recipient_id"`
	Kind          NotificationKind `gorm:"type:varchar(40);not null;index" json:"kind"`
	Title         string           `gorm:"type:varchar(255);not null" json:"title"`
	Message       string           `gorm:"type:text;not null" json:"message"`
	Payload       datatypes.JSON   `gorm:"column:payload" json:"payload"`
	IsRead        bool             `gorm:"not null;default:false" json:"is_read"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

// NotificationFilter represents filter criteria for notification queries
type NotificationFilter struct {
	RecipientType *RecipientType
	RecipientID   *uint
	Kind          *NotificationKind
	IsRead        *bool
}
