package handlers

import (
	"github.com/amirphl/affiliate-engine/app/dto"
	"github.com/amirphl/affiliate-engine/app/services"
	businessflow "github.com/amirphl/affiliate-engine/business_flow"
	"github.com/gofiber/fiber/v3"
)

// PayoutSignatureHeader carries the HMAC of the webhook body
const PayoutSignatureHeader = "X-Payout-Signature"

// TrackingHandlerInterface defines the contract for collaborator facing handlers
type TrackingHandlerInterface interface {
	RecordClick(c fiber.Ctx) error
	RecordPurchase(c fiber.Ctx) error
	PayoutWebhook(c fiber.Ctx) error
}

// TrackingHandler receives click and purchase events and gateway webhooks
type TrackingHandler struct {
	baseHandler
	tracking    businessflow.TrackingFlow
	withdrawals businessflow.WithdrawalFlow
}

// NewTrackingHandler creates a new tracking handler
func NewTrackingHandler(tracking businessflow.TrackingFlow, withdrawals businessflow.WithdrawalFlow, cipher services.PayloadCipher) *TrackingHandler {
	return &TrackingHandler{
		baseHandler: newBaseHandler(cipher),
		tracking:    tracking,
		withdrawals: withdrawals,
	}
}

// RecordClick
// @Router /api/v1/tracking/click [post]
func (h *TrackingHandler) RecordClick(c fiber.Ctx) error {
	var req dto.TrackClickRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	resp, err := h.tracking.RecordClick(ctx, req)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Click recorded", resp)
}

// RecordPurchase
// @Router /api/v1/tracking/purchase [post]
func (h *TrackingHandler) RecordPurchase(c fiber.Ctx) error {
	var req dto.TrackPurchaseRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}
	for _, p := range req.Products {
		if p.Price.IsNegative() {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", businessflow.KindBadRequest, []string{"Price must not be negative"})
		}
	}

	ctx, cancel := requestContext()
	defer cancel()

	resp, err := h.tracking.RecordPurchase(ctx, req)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Purchase recorded", resp)
}

// PayoutWebhook applies a signed payout status event
// @Router /api/v1/webhooks/payout [post]
func (h *TrackingHandler) PayoutWebhook(c fiber.Ctx) error {
	ctx, cancel := requestContext()
	defer cancel()

	body := append([]byte(nil), c.Body()...)
	if err := h.withdrawals.HandlePayoutWebhook(ctx, body, c.Get(PayoutSignatureHeader)); err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Event accepted", nil)
}
