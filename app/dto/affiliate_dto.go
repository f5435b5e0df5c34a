package dto

import (
	"github.com/amirphl/affiliate-engine/models"
	"github.com/shopspring/decimal"
)

// CreateAffiliateRequest onboards an affiliate under the calling admin. The affiliate starts PENDING.
type CreateAffiliateRequest struct {
	PlatformID      uint            `json:"platform_id" validate:"required,min=1"`
	Name            string          `json:"name" validate:"required,max=255"`
	Email           *string         `json:"email,omitempty" validate:"omitempty,email,max=255"`
	FundAccountID   *string         `json:"fund_account_id,omitempty" validate:"omitempty,max=128"`
	AffType         string          `json:"aff_type" validate:"omitempty,oneof=INDIVIDUAL SPECIAL COMPANY"`
	CommissionRate  decimal.Decimal `json:"commission_rate"`
	CommissionBasis string          `json:"commission_basis" validate:"omitempty,oneof=PERCENT FIXED"`
	TDSLinkType     string          `json:"tds_link_type" validate:"omitempty,oneof=LINKED UNLINKED"`
}

// CreateCampaignRequest creates a tracked campaign for one of the admin's affiliates
type CreateCampaignRequest struct {
	UserID       uint   `json:"user_id" validate:"required,min=1"`
	Name         string `json:"name" validate:"required,max=255"`
	ReturnPeriod int    `json:"return_period" validate:"min=0,max=365"`
}

// CampaignResponse returns a created campaign with its access key.
// The key is not serialized on the campaign itself.
type CampaignResponse struct {
	Campaign  *models.Campaign `json:"campaign"`
	AccessKey string           `json:"access_key"`
}

// PlatformConfigRequest sets the TDS withholding of the calling admin
type PlatformConfigRequest struct {
	IsTDSEnabled    bool            `json:"is_tds_enabled"`
	TDSLinkedType   string          `json:"tds_linked_type" validate:"required,oneof=PERCENT FIXED"`
	TDSLinkedRate   decimal.Decimal `json:"tds_linked_rate"`
	TDSUnlinkedType string          `json:"tds_unlinked_type" validate:"required,oneof=PERCENT FIXED"`
	TDSUnlinkedRate decimal.Decimal `json:"tds_unlinked_rate"`
}
