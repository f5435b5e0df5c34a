package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TDSMethodType is the way a TDS rate is applied
type TDSMethodType string

const (
	TDSMethodPercent TDSMethodType = "PERCENT"
	TDSMethodFixed   TDSMethodType = "FIXED"
)

// TDSMethod is a withholding rule
type TDSMethod struct {
	Type TDSMethodType   `json:"type"`
	Rate decimal.Decimal `json:"rate"`
}

// PlatformConfig holds the per-admin withholding settings
type PlatformConfig struct {
	ID      uint `gorm:"primaryKey;autoIncrement" json:"id"`
	AdminID uint `gorm:"not null;uniqueIndex" json:"admin_id"`

	IsTDSEnabled    bool            `gorm:"column:is_tds_enabled;not null;default:false" json:"is_tds_enabled"`
	TDSLinkedType   TDSMethodType   `gorm:"column:tds_linked_type;type:varchar(20);not null;default:'PERCENT'" json:"tds_linked_type"`
	TDSLinkedRate   decimal.Decimal `gorm:"column:tds_linked_rate;type:decimal(20,2);not null;default:0" json:"tds_linked_rate"`
	TDSUnlinkedType TDSMethodType   `gorm:"column:tds_unlinked_type;type:varchar(20);not null;default:'PERCENT'" json:"tds_unlinked_type"`
	TDSUnlinkedRate decimal.Decimal `gorm:"column:tds_unlinked_rate;type:decimal(20,2);not null;default:0" json:"tds_unlinked_rate"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PlatformConfig) TableName() string {
	return "platform_configs"
}

// MethodFor returns the TDS method matching the affiliate's link type
func (p *PlatformConfig) MethodFor(linkType TDSLinkType) TDSMethod {
	if linkType == TDSLinkTypeLinked {
		return TDSMethod{Type: p.TDSLinkedType, Rate: p.TDSLinkedRate}
	}
	return TDSMethod{Type: p.TDSUnlinkedType, Rate: p.TDSUnlinkedRate}
}

// PlatformConfigFilter represents filter criteria for platform config queries
type PlatformConfigFilter struct {
	AdminID *uint
}
