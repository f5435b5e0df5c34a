package dto

import (
	"github.com/shopspring/decimal"
)

// CreateWithdrawalRequest asks to withdraw from the wallet held with the token's admin
type CreateWithdrawalRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// RejectWithdrawalRequest rejects a pending withdrawal
type RejectWithdrawalRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// PayoutWebhookEvent is the body posted by the payment gateway
type PayoutWebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payout struct {
			Entity struct {
				ID            string `json:"id"`
				Status        string `json:"status"`
				ReferenceID   string `json:"reference_id"`
				FailureReason string `json:"failure_reason"`
			} `json:"entity"`
		} `json:"payout"`
	} `json:"payload"`
}
