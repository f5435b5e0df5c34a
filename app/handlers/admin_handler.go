package handlers

import (
	"context"

	"github.com/amirphl/affiliate-engine/app/dto"
	"github.com/amirphl/affiliate-engine/app/middleware"
	"github.com/amirphl/affiliate-engine/app/services"
	businessflow "github.com/amirphl/affiliate-engine/business_flow"
	"github.com/amirphl/affiliate-engine/models"
	"github.com/gofiber/fiber/v3"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SettlementRunner executes one settlement pass on demand
type SettlementRunner interface {
	RunNow(ctx context.Context) (*businessflow.SettlementReport, error)
}

// AdminHandlerInterface defines the contract for admin handlers
type AdminHandlerInterface interface {
	RunSettlement(c fiber.Ctx) error
	ListSettlementRuns(c fiber.Ctx) error
	ExportSettlementRun(c fiber.Ctx) error
	CancelCommission(c fiber.Ctx) error
	UpdateRewardStatus(c fiber.Ctx) error
	ApproveWithdrawal(c fiber.Ctx) error
	RejectWithdrawal(c fiber.Ctx) error
	CreateTier(c fiber.Ctx) error
	UpdateTier(c fiber.Ctx) error
	ListTiers(c fiber.Ctx) error
	ReconcileWallet(c fiber.Ctx) error
	CreateAffiliate(c fiber.Ctx) error
	ApproveAffiliate(c fiber.Ctx) error
	RejectAffiliate(c fiber.Ctx) error
	CreateCampaign(c fiber.Ctx) error
	UpsertPlatformConfig(c fiber.Ctx) error
	MarkCommissionPaid(c fiber.Ctx) error
}

// AdminHandler serves the platform admin
type AdminHandler struct {
	baseHandler
	settlement  SettlementRunner
	affiliates  businessflow.AffiliateAdminFlow
	reports     businessflow.ReportFlow
	tracking    businessflow.TrackingFlow
	rewards     businessflow.RewardClaimFlow
	withdrawals businessflow.WithdrawalFlow
	tiers       businessflow.TierProgressionFlow
	ledger      businessflow.WalletLedger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	settlement SettlementRunner,
	affiliates businessflow.AffiliateAdminFlow,
	reports businessflow.ReportFlow,
	tracking businessflow.TrackingFlow,
	rewards businessflow.RewardClaimFlow,
	withdrawals businessflow.WithdrawalFlow,
	tiers businessflow.TierProgressionFlow,
	ledger businessflow.WalletLedger,
	cipher services.PayloadCipher,
) *AdminHandler {
	return &AdminHandler{
		baseHandler: newBaseHandler(cipher),
		settlement:  settlement,
		affiliates:  affiliates,
		reports:     reports,
		tracking:    tracking,
		rewards:     rewards,
		withdrawals: withdrawals,
		tiers:       tiers,
		ledger:      ledger,
	}
}

func (h *AdminHandler) adminID(c fiber.Ctx) (uint, bool) {
	return localUint(c, middleware.LocalAdminID)
}

func (h *AdminHandler) missingAdmin(c fiber.Ctx) error {
	return h.ErrorResponse(c, fiber.StatusUnauthorized, "Admin ID not found in context", businessflow.KindUnauthorized, nil)
}

// RunSettlement runs one settlement pass immediately. The pass is not bound to the request deadline.
// @Router /api/v1/admin/settlement/run [post]
func (h *AdminHandler) RunSettlement(c fiber.Ctx) error {
	if _, ok := h.adminID(c); !ok {
		return h.missingAdmin(c)
	}

	ctx, cancel := requestContext()
	defer cancel()

	report, err := h.settlement.RunNow(ctx)
	if err != nil && report == nil {
		return h.FlowError(c, err)
	}
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Settlement run failed", businessflow.KindInternal, report)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Settlement run completed", report)
}

// ListSettlementRuns lists past settlement runs
// @Router /api/v1/admin/settlement/runs [get]
func (h *AdminHandler) ListSettlementRuns(c fiber.Ctx) error {
	if _, ok := h.adminID(c); !ok {
		return h.missingAdmin(c)
	}
	page, ok, err := h.page(c)
	if !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	runs, total, err := h.reports.ListSettlementRuns(ctx, page)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Settlement runs retrieved", fiber.Map{
		"items":      runs,
		"pagination": dto.PaginationInfo{Limit: page.Limit, Offset: page.Offset, Total: total},
	})
}

// ExportSettlementRun downloads the admin's settled commissions of a run as XLSX
// @Router /api/v1/admin/settlement/runs/{id}/export [get]
func (h *AdminHandler) ExportSettlementRun(c fiber.Ctx) error {
	adminID, ok := h.adminID(c)
	if !ok {
		return h.missingAdmin(c)
	}
	runID, ok := paramUint(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid settlement run id", businessflow.KindBadRequest, nil)
	}

	ctx, cancel := requestContext()
	defer cancel()

	filename, data, err := h.reports.ExportSettlementRun(ctx, adminID, runID)
	if err != nil {
		return h.FlowError(c, err)
	}
	c.Set("Content-Type", xlsxContentType)
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

// CancelCommission cancels a pending commission inside its return window
// @Router /api/v1/admin/commissions/{id}/cancel [post]
func (h *AdminHandler) CancelCommission(c fiber.Ctx) error {
	adminID, ok := h.adminID(c)
	if !ok {
		return h.missingAdmin(c)
	}
	id, ok := paramUint(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid commission id", businessflow.KindBadRequest, nil)
	}
	var req dto.CancelCommissionRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	record, err := h.tracking.CancelCommission(ctx, adminID, id, req.Reason)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Commission cancelled", record)
}

// UpdateRewardStatus moves a collected reward through fulfilment
// @Router /api/v1/admin/reward-logs/{id}/collected/{collectedId}/status [put]
func (h *AdminHandler) UpdateRewardStatus(c fiber.Ctx) error {
	adminID, ok := h.adminID(c)
	if !ok {
		return h.missingAdmin(c)
	}
	logID, ok := paramUint(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid reward log id", businessflow.KindBadRequest, nil)
	}
	var req dto.UpdateRewardStatusRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	rewardLog, err := h.rewards.UpdateStatus(ctx, adminID, logID, c.Params("collectedId"), models.RewardStatus(req.Status))
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Reward status updated", rewardLog)
}

// ApproveWithdrawal submits the payout to the gateway
// @Router /api/v1/admin/withdrawals/{id}/approve [post]
func (h *AdminHandler) ApproveWithdrawal(c fiber.Ctx) error {
	adminID, ok := h.adminID(c)
	if !ok {
		return h.missingAdmin(c)
	}
	id, ok := paramUint(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid withdrawal id", businessflow.KindBadRequest, nil)
	}

	ctx, cancel := requestContext()
	defer cancel()

	withdrawal, err := h.withdrawals.Approve(ctx, adminID, id)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Withdrawal approved", withdrawal)
}

// RejectWithdrawal rejects a pending withdrawal and releases the hold
// @Router /api/v1/admin/withdrawals/{id}/reject [post]
func (h *AdminHandler) RejectWithdrawal(c fiber.Ctx) error {
	adminID, ok := h.adminID(c)
	if !ok {
		return h.missingAdmin(c)
	}
	id, ok := paramUint(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid withdrawal id", businessflow.KindBadRequest, nil)
	}
	var req dto.RejectWithdrawalRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	withdrawal, err := h.withdrawals.Reject(ctx, adminID, id, req.Reason)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Withdrawal rejected", withdrawal)
}

// CreateTier defines a tier for a platform
// @Router /api/v1/admin/tiers [post]
func (h *AdminHandler) CreateTier(c fiber.Ctx) error {
	adminID, ok := h.adminID(c)
	if !ok {
		return h.missingAdmin(c)
	}
	platformID, ok := queryUint(c, "platform_id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "platform_id is required", businessflow.KindMissingField, nil)
	}
	var req dto.TierRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	tier, err := h.tiers.CreateTier(ctx, adminID, platformID, &req)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Tier created", tier)
}

// UpdateTier edits a tier and upserts the listed levels
// @Router /api/v1/admin/tiers/{id} [put]
func (h *AdminHandler) UpdateTier(c fiber.Ctx) error {
	adminID, ok := h.adminID(c)
	if !ok {
		return h.missingAdmin(c)
	}
	tierID, ok := paramUint(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid tier id", businessflow.KindBadRequest, nil)
	}
	var req dto.TierRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	tier, err := h.tiers.UpdateTier(ctx, adminID, tierID, &req)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Tier updated", tier)
}

// ListTiers lists the tiers of a platform in ladder order
// @Router /api/v1/admin/tiers [get]
func (h *AdminHandler) ListTiers(c fiber.Ctx) error {
	adminID, ok := h.adminID(c)
	if !ok {
		return h.missingAdmin(c)
	}
	platformID, ok := queryUint(c, "platform_id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "platform_id is required", businessflow.KindMissingField, nil)
	}

	ctx, cancel := requestContext()
	defer cancel()

	tiers, err := h.tiers.ListTiers(ctx, adminID, platformID)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Tiers retrieved", tiers)
}

// ReconcileWallet re-derives a wallet's aggregates from its ledger
// @Router /api/v1/admin/wallets/{id}/reconcile [post]
func (h *AdminHandler) ReconcileWallet(c fiber.Ctx) error {
	adminID, ok := h.adminID(c)
	if !ok {
		return h.missingAdmin(c)
	}
	walletID, ok := paramUint(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid wallet id", businessflow.KindBadRequest, nil)
	}

	ctx, cancel := requestContext()
	defer cancel()

	result, err := h.ledger.Reconcile(ctx, adminID, walletID)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Wallet reconciled", result)
}

// CreateAffiliate onboards a pending affiliate
// @Router /api/v1/admin/affiliates [post]
func (h *AdminHandler) CreateAffiliate(c fiber.Ctx) error {
	adminID, ok := h.adminID(c)
	if !ok {
		return h.missingAdmin(c)
	}
	var req dto.CreateAffiliateRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	user, err := h.affiliates.CreateAffiliate(ctx, adminID, &req)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Affiliate created", user)
}

// ApproveAffiliate approves a pending or paused affiliate
// @Router /api/v1/admin/affiliates/{id}/approve [post]
func (h *AdminHandler) ApproveAffiliate(c fiber.Ctx) error {
	return h.moveAffiliate(c, h.affiliates.ApproveAffiliate, "Affiliate approved")
}

// RejectAffiliate rejects a pending affiliate
// @Router /api/v1/admin/affiliates/{id}/reject [post]
func (h *AdminHandler) RejectAffiliate(c fiber.Ctx) error {
	return h.moveAffiliate(c, h.affiliates.RejectAffiliate, "Affiliate rejected")
}

func (h *AdminHandler) moveAffiliate(c fiber.Ctx, move func(ctx context.Context, adminID, userID uint) (*models.AffiliateUser, error), message string) error {
	adminID, ok := h.adminID(c)
	if !ok {
		return h.missingAdmin(c)
	}
	userID, ok := paramUint(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid affiliate id", businessflow.KindBadRequest, nil)
	}

	ctx, cancel := requestContext()
	defer cancel()

	user, err := move(ctx, adminID, userID)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, message, user)
}

// CreateCampaign opens a campaign and returns its access key once
// @Router /api/v1/admin/campaigns [post]
func (h *AdminHandler) CreateCampaign(c fiber.Ctx) error {
	adminID, ok := h.adminID(c)
	if !ok {
		return h.missingAdmin(c)
	}
	var req dto.CreateCampaignRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	resp, err := h.affiliates.CreateCampaign(ctx, adminID, &req)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created", resp)
}

// UpsertPlatformConfig sets the TDS configuration of the admin
// @Router /api/v1/admin/platform-config [put]
func (h *AdminHandler) UpsertPlatformConfig(c fiber.Ctx) error {
	adminID, ok := h.adminID(c)
	if !ok {
		return h.missingAdmin(c)
	}
	var req dto.PlatformConfigRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	cfg, err := h.affiliates.UpsertPlatformConfig(ctx, adminID, &req)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Platform config saved", cfg)
}

// MarkCommissionPaid records an offline payout of a settled commission
// @Router /api/v1/admin/commissions/{id}/mark-paid [post]
func (h *AdminHandler) MarkCommissionPaid(c fiber.Ctx) error {
	adminID, ok := h.adminID(c)
	if !ok {
		return h.missingAdmin(c)
	}
	id, ok := paramUint(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid commission id", businessflow.KindBadRequest, nil)
	}

	ctx, cancel := requestContext()
	defer cancel()

	wallet, err := h.affiliates.MarkCommissionPaid(ctx, adminID, id)
	if err != nil {
		return h.FlowError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Commission marked paid", wallet)
}
