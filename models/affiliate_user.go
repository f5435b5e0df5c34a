// Package models contains the persistent entities of the affiliate engine
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AffiliateUserStatus represents the lifecycle state of an affiliate
type AffiliateUserStatus string

const (
	AffiliateUserStatusPending  AffiliateUserStatus = "PENDING"
	AffiliateUserStatusApproved AffiliateUserStatus = "APPROVED"
	AffiliateUserStatusRejected AffiliateUserStatus = "REJECTED"
	AffiliateUserStatusBlocked  AffiliateUserStatus = "BLOCKED"
	AffiliateUserStatusPaused   AffiliateUserStatus = "PAUSED"
)

// Valid checks if the status is valid
func (s AffiliateUserStatus) Valid() bool {
	switch s {
	case AffiliateUserStatusPending, AffiliateUserStatusApproved, AffiliateUserStatusRejected,
		AffiliateUserStatusBlocked, AffiliateUserStatusPaused:
		return true
	default:
		return false
	}
}

// AffiliateType classifies an affiliate account
type AffiliateType string

const (
	AffiliateTypeIndividual AffiliateType = "INDIVIDUAL"
	AffiliateTypeSpecial    AffiliateType = "SPECIAL"
	AffiliateTypeCompany    AffiliateType = "COMPANY"
)

// CommissionBasis says how CommissionRate is applied to a purchase
type CommissionBasis string

const (
	CommissionBasisPercent CommissionBasis = "PERCENT"
	CommissionBasisFixed   CommissionBasis = "FIXED"
)

// TDSLinkType selects which TDS method of the platform applies to an affiliate
type TDSLinkType string

const (
	TDSLinkTypeLinked   TDSLinkType = "LINKED"
	TDSLinkTypeUnlinked TDSLinkType = "UNLINKED"
)

// AffiliateUser is an affiliate recruited by an admin (platform)
type AffiliateUser struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	AdminID    uint      `gorm:"not null;index" json:"admin_id"`
	PlatformID uint      `gorm:"not null;index" json:"platform_id"`

	Name          string  `gorm:"type:varchar(255);not null" json:"name"`
	Email         *string `gorm:"type:varchar(255);index" json:"email,omitempty"`
	ReferralID    string  `gorm:"type:varchar(32);uniqueIndex;not null" json:"referral_id"`
	FundAccountID *string `gorm:"type:varchar(128)" json:"fund_account_id,omitempty"`

	Status          AffiliateUserStatus `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	AffType         AffiliateType       `gorm:"type:varchar(20);not null;default:'INDIVIDUAL'" json:"aff_type"`
	CommissionRate  decimal.Decimal     `gorm:"type:decimal(20,2);not null;default:0" json:"commission_rate"`
	CommissionBasis CommissionBasis     `gorm:"type:varchar(20);not null;default:'PERCENT'" json:"commission_basis"`
	TDSLinkType     TDSLinkType         `gorm:"column:tds_link_type;type:varchar(20);not null;default:'UNLINKED'" json:"tds_link_type"`

	// Denormalized totals
	TotalClicks       int64           `gorm:"not null;default:0" json:"total_clicks"`
	TotalOrders       int64           `gorm:"not null;default:0" json:"total_orders"`
	TotalSales        decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_sales"`
	CommissionPending decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"commission_pending"`
	CommissionPaid    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"commission_paid"`
	TotalWithdrawn    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_withdrawn"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (AffiliateUser) TableName() string {
	return "affiliate_users"
}

// CanAccrue reports whether clicks and commissions may be attributed to the user
func (u *AffiliateUser) CanAccrue() bool {
	return u.Status == AffiliateUserStatusApproved
}

// AffiliateUserFilter represents filter criteria for affiliate queries
type AffiliateUserFilter struct {
	ID         *uint
	AdminID    *uint
	PlatformID *uint
	ReferralID *string
	Status     *AffiliateUserStatus
}
