package handlers

import (
	"github.com/amirphl/affiliate-engine/app/dto"
	"github.com/amirphl/affiliate-engine/app/services"
	businessflow "github.com/amirphl/affiliate-engine/business_flow"
	"github.com/amirphl/affiliate-engine/models"
	"github.com/gofiber/fiber/v3"
)

// AffiliateHandlerInterface defines the contract for affiliate handlers
type AffiliateHandlerInterface interface {
	TierProgress(c fiber.Ctx) error
	RewardLogs(c fiber.Ctx) error
	ClaimReward(c fiber.Ctx) error
	SpinReward(c fiber.Ctx) error
	Wallet(c fiber.Ctx) error
	Commissions(c fiber.Ctx) error
	RequestWithdrawal(c fiber.Ctx) error
	CancelWithdrawal(c fiber.Ctx) error
	Withdrawals(c fiber.Ctx) error
}

// AffiliateHandler serves the authenticated affiliate
type AffiliateHandler struct {
	baseHandler
	tiers       businessflow.TierProgressionFlow
	rewards     businessflow.RewardClaimFlow
	tracking    businessflow.TrackingFlow
	withdrawals businessflow.WithdrawalFlow
	ledger      businessflow.WalletLedger
}

// NewAffiliateHandler creates a new affiliate handler
func NewAffiliateHandler(
	tiers businessflow.TierProgressionFlow,
	rewards businessflow.RewardClaimFlow,
	tracking businessflow.TrackingFlow,
	withdrawals businessflow.WithdrawalFlow,
	ledger businessflow.WalletLedger,
	cipher services.PayloadCipher,
) *AffiliateHandler {
	return &AffiliateHandler{
		baseHandler: newBaseHandler(cipher),
		tiers:       tiers,
		rewards:     rewards,
		tracking:    tracking,
		withdrawals: withdrawals,
		ledger:      ledger,
	}
}

func (h *AffiliateHandler) missingIdentity(c fiber.Ctx) error {
	return h.ErrorResponse(c, fiber.StatusUnauthorized, "Affiliate identity not found in context", businessflow.KindUnauthorized, nil)
}

// TierProgress returns the affiliate's position in the tier ladder of a platform
// @Router /api/v1/affiliate/tier-progress [get]
func (h *AffiliateHandler) TierProgress(c fiber.Ctx) error {
	userID, adminID, ok := affiliateIdentity(c)
	if !ok {
		return h.missingIdentity(c)
	}
	platformID, ok := queryUint(c, "platform_id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "platform_id is required", businessflow.KindMissingField, nil)
	}

	ctx, cancel := requestContext()
	defer cancel()

	resp, err := h.tiers.Progress(ctx, models.ProgressKey{UserID: userID, AdminID: adminID, PlatformID: platformID})
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.EncryptedResponse(c, "Tier progress retrieved", resp)
}

// RewardLogs lists earned rewards
// @Router /api/v1/affiliate/reward-logs [get]
func (h *AffiliateHandler) RewardLogs(c fiber.Ctx) error {
	userID, adminID, ok := affiliateIdentity(c)
	if !ok {
		return h.missingIdentity(c)
	}
	page, ok, err := h.page(c)
	if !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	logs, total, err := h.rewards.ListRewardLogs(ctx, userID, adminID, page)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.EncryptedResponse(c, "Reward logs retrieved", fiber.Map{
		"items":      logs,
		"pagination": dto.PaginationInfo{Limit: page.Limit, Offset: page.Offset, Total: total},
	})
}

// ClaimReward redeems one spin for a chosen reward
// @Router /api/v1/affiliate/reward-logs/{id}/claim [post]
func (h *AffiliateHandler) ClaimReward(c fiber.Ctx) error {
	userID, _, ok := affiliateIdentity(c)
	if !ok {
		return h.missingIdentity(c)
	}
	logID, ok := paramUint(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid reward log id", businessflow.KindBadRequest, nil)
	}
	var req dto.ClaimRewardRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	result, err := h.rewards.Claim(ctx, userID, logID, req.RewardID)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.EncryptedResponse(c, "Reward claimed", result)
}

// SpinReward redeems one spin for a randomly drawn reward
// @Router /api/v1/affiliate/reward-logs/{id}/spin [post]
func (h *AffiliateHandler) SpinReward(c fiber.Ctx) error {
	userID, _, ok := affiliateIdentity(c)
	if !ok {
		return h.missingIdentity(c)
	}
	logID, ok := paramUint(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid reward log id", businessflow.KindBadRequest, nil)
	}

	ctx, cancel := requestContext()
	defer cancel()

	result, err := h.rewards.Spin(ctx, userID, logID)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.EncryptedResponse(c, "Reward claimed", result)
}

// Wallet returns the wallet held with the token's admin and its latest ledger entries
// @Router /api/v1/affiliate/wallet [get]
func (h *AffiliateHandler) Wallet(c fiber.Ctx) error {
	userID, adminID, ok := affiliateIdentity(c)
	if !ok {
		return h.missingIdentity(c)
	}
	page, ok, err := h.page(c)
	if !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	wallet, err := h.ledger.Wallet(ctx, userID, adminID)
	if err != nil {
		return h.FlowError(c, err)
	}
	transactions, err := h.ledger.Transactions(ctx, wallet.ID, page.Limit, page.Offset)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.EncryptedResponse(c, "Wallet retrieved", fiber.Map{
		"wallet":       wallet,
		"transactions": transactions,
	})
}

// Commissions lists commissions earned with the token's admin
// @Router /api/v1/affiliate/commissions [get]
func (h *AffiliateHandler) Commissions(c fiber.Ctx) error {
	userID, adminID, ok := affiliateIdentity(c)
	if !ok {
		return h.missingIdentity(c)
	}
	page, ok, err := h.page(c)
	if !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	resp, err := h.tracking.ListCommissions(ctx, userID, adminID, page)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.EncryptedResponse(c, "Commissions retrieved", resp)
}

// RequestWithdrawal holds an amount for payout
// @Router /api/v1/affiliate/withdrawals [post]
func (h *AffiliateHandler) RequestWithdrawal(c fiber.Ctx) error {
	userID, adminID, ok := affiliateIdentity(c)
	if !ok {
		return h.missingIdentity(c)
	}
	var req dto.CreateWithdrawalRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	withdrawal, err := h.withdrawals.Request(ctx, userID, adminID, req.Amount)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Withdrawal requested", withdrawal)
}

// CancelWithdrawal cancels a pending withdrawal and releases the hold
// @Router /api/v1/affiliate/withdrawals/{id}/cancel [post]
func (h *AffiliateHandler) CancelWithdrawal(c fiber.Ctx) error {
	userID, _, ok := affiliateIdentity(c)
	if !ok {
		return h.missingIdentity(c)
	}
	id, ok := paramUint(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid withdrawal id", businessflow.KindBadRequest, nil)
	}

	ctx, cancel := requestContext()
	defer cancel()

	withdrawal, err := h.withdrawals.Cancel(ctx, userID, id)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Withdrawal cancelled", withdrawal)
}

// Withdrawals lists the affiliate's withdrawals
// @Router /api/v1/affiliate/withdrawals [get]
func (h *AffiliateHandler) Withdrawals(c fiber.Ctx) error {
	userID, adminID, ok := affiliateIdentity(c)
	if !ok {
		return h.missingIdentity(c)
	}
	page, ok, err := h.page(c)
	if !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	items, total, err := h.withdrawals.List(ctx, userID, adminID, page)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Withdrawals retrieved", fiber.Map{
		"items":      items,
		"pagination": dto.PaginationInfo{Limit: page.Limit, Offset: page.Offset, Total: total},
	})
}
