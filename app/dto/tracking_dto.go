package dto

import (
	"github.com/shopspring/decimal"
)

// TrackClickRequest is a click reported by the campaign tracking collaborator
type TrackClickRequest struct {
	ReferralID string `json:"referral_id" validate:"required,max=32"`
	AccessKey  string `json:"access_key" validate:"required,max=64"`
	EventID    string `json:"event_id" validate:"required,max=128"` // Collaborator's id of the click, used for replay protection
}

// TrackClickResponse acknowledges a recorded click
type TrackClickResponse struct {
	CampaignID uint `json:"campaign_id"`
	UserID     uint `json:"user_id"`
}

// PurchaseProduct is one line of a reported order
type PurchaseProduct struct {
	ProductID string          `json:"product_id" validate:"required,max=128"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity" validate:"min=1"`
}

// TrackPurchaseRequest is a purchase reported by the campaign tracking collaborator
type TrackPurchaseRequest struct {
	ReferralID string            `json:"referral_id" validate:"required,max=32"`
	AccessKey  string            `json:"access_key" validate:"required,max=64"`
	OrderID    string            `json:"order_id" validate:"required,max=128"`
	Products   []PurchaseProduct `json:"products" validate:"required,min=1,dive"`
}

// TrackPurchaseResponse describes the commission created for a purchase
type TrackPurchaseResponse struct {
	CommissionID     uint            `json:"commission_id"`
	CampaignID       uint            `json:"campaign_id"`
	OrderID          string          `json:"order_id"`
	PurchaseAmount   decimal.Decimal `json:"purchase_amount"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	TDSAmount        decimal.Decimal `json:"tds_amount"`
	FinalCommission  decimal.Decimal `json:"final_commission"`
	Status           string          `json:"status"`
}

// CancelCommissionRequest cancels a pending commission, typically after a return
type CancelCommissionRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// CommissionItem is one commission in a listing
type CommissionItem struct {
	ID               uint            `json:"id"`
	CampaignID       uint            `json:"campaign_id"`
	OrderID          string          `json:"order_id"`
	PurchaseAmount   decimal.Decimal `json:"purchase_amount"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	TDSAmount        decimal.Decimal `json:"tds_amount"`
	FinalCommission  decimal.Decimal `json:"final_commission"`
	Status           string          `json:"status"`
	CreatedAt        string          `json:"created_at"`
	PaidAt           *string         `json:"paid_at,omitempty"`
}

// CommissionListResponse is a page of commissions
type CommissionListResponse struct {
	Items      []CommissionItem `json:"items"`
	Pagination PaginationInfo   `json:"pagination"`
}
