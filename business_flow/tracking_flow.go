package businessflow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/amirphl/affiliate-engine/app/dto"
	"github.com/amirphl/affiliate-engine/app/services"
	"github.com/amirphl/affiliate-engine/models"
	"github.com/amirphl/affiliate-engine/repository"
	"github.com/amirphl/affiliate-engine/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TrackingFlow records clicks and purchases reported by the tracking collaborator
type TrackingFlow interface {
	RecordClick(ctx context.Context, req dto.TrackClickRequest) (*dto.TrackClickResponse, error)
	RecordPurchase(ctx context.Context, req dto.TrackPurchaseRequest) (*dto.TrackPurchaseResponse, error)
	CancelCommission(ctx context.Context, adminID, commissionID uint, reason string) (*models.CommissionRecord, error)
	ListCommissions(ctx context.Context, userID, adminID uint, page Page) (*dto.CommissionListResponse, error)
}

// TrackingFlowImpl implements TrackingFlow
type TrackingFlowImpl struct {
	userRepo       repository.AffiliateUserRepository
	campaignRepo   repository.CampaignRepository
	configRepo     repository.PlatformConfigRepository
	commissionRepo repository.CommissionRecordRepository
	dailyRepo      repository.DailyActionCounterRepository
	tierFlow       TierProgressionFlow
	idGen          services.IDGenerator
	db             *gorm.DB
}

// NewTrackingFlow creates a new tracking flow
func NewTrackingFlow(
	userRepo repository.AffiliateUserRepository,
	campaignRepo repository.CampaignRepository,
	configRepo repository.PlatformConfigRepository,
	commissionRepo repository.CommissionRecordRepository,
	dailyRepo repository.DailyActionCounterRepository,
	tierFlow TierProgressionFlow,
	idGen services.IDGenerator,
	db *gorm.DB,
) TrackingFlow {
	return &TrackingFlowImpl{
		userRepo:       userRepo,
		campaignRepo:   campaignRepo,
		configRepo:     configRepo,
		commissionRepo: commissionRepo,
		dailyRepo:      dailyRepo,
		tierFlow:       tierFlow,
		idGen:          idGen,
		db:             db,
	}
}

// RecordClick counts a click on the campaign and advances CLICKS goals
func (f *TrackingFlowImpl) RecordClick(ctx context.Context, req dto.TrackClickRequest) (*dto.TrackClickResponse, error) {
	user, campaign, err := f.resolve(ctx, req.ReferralID, req.AccessKey)
	if err != nil {
		return nil, err
	}

	now := utils.UTCNow()
	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.campaignRepo.IncrementCounters(txCtx, campaign.ID, 1, 0, decimal.Zero); err != nil {
			return err
		}
		if err := f.userRepo.IncrementCounters(txCtx, user.ID, 1, 0, decimal.Zero); err != nil {
			return err
		}
		return f.dailyRepo.Increment(txCtx, user.ID, user.AdminID, utils.DayKey(now), models.DailyActionDelta{Clicks: 1})
	})
	if err != nil {
		return nil, NewBusinessError("CLICK_RECORD_FAILED", "Failed to record click", err)
	}

	eventKey := ""
	if req.EventID != "" {
		eventKey = "click:" + req.EventID
	}
	f.advanceGoal(ctx, user, models.GoalTypeClicks, 1, eventKey)

	return &dto.TrackClickResponse{CampaignID: campaign.ID, UserID: user.ID}, nil
}

// RecordPurchase creates a PENDING commission for an order and advances ORDERS and SALES goals
func (f *TrackingFlowImpl) RecordPurchase(ctx context.Context, req dto.TrackPurchaseRequest) (*dto.TrackPurchaseResponse, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return nil, NewBusinessError(KindMissingField, "Order id is required", ErrMissingField)
	}
	if len(req.Products) == 0 {
		return nil, NewBusinessError(KindMissingField, "Order has no products", ErrEmptyOrder)
	}

	purchase := decimal.Zero
	var quantity int64
	for _, p := range req.Products {
		if p.Quantity <= 0 || p.Price.IsNegative() {
			return nil, NewBusinessErrorf(KindBadRequest, "Invalid product line %s", ErrBadRequest, p.ProductID)
		}
		purchase = purchase.Add(p.Price.Mul(decimal.NewFromInt(p.Quantity)))
		quantity += p.Quantity
	}
	purchase = roundMoney(purchase)

	user, campaign, err := f.resolve(ctx, req.ReferralID, req.AccessKey)
	if err != nil {
		return nil, err
	}

	platformConfig, err := f.configRepo.ByAdminID(ctx, user.AdminID)
	if err != nil {
		return nil, NewBusinessError("PLATFORM_CONFIG_LOOKUP_FAILED", "Failed to load platform config", err)
	}

	commission, err := CalculateCommission(purchase, user)
	if err != nil {
		return nil, err
	}
	tds, err := CalculateTDS(commission, user.TDSLinkType, platformConfig, platformConfig != nil && platformConfig.IsTDSEnabled)
	if err != nil {
		return nil, err
	}

	now := utils.UTCNow()
	record := &models.CommissionRecord{
		UUID:             f.idGen.NewUUID(),
		AdminID:          user.AdminID,
		UserID:           user.ID,
		CampaignID:       campaign.ID,
		OrderID:          orderID,
		PurchaseAmount:   purchase,
		CommissionAmount: commission,
		TDSAmount:        tds.TDSAmount,
		FinalCommission:  tds.FinalCommission,
		Status:           models.CommissionStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		existing, err := f.commissionRepo.ByCampaignAndOrder(txCtx, campaign.ID, orderID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrCommissionAlreadyExists
		}
		if err := f.commissionRepo.Save(txCtx, record); err != nil {
			return err
		}

		if err := f.campaignRepo.IncrementCounters(txCtx, campaign.ID, 0, 1, purchase); err != nil {
			return err
		}
		if err := f.campaignRepo.AdjustCommission(txCtx, campaign.ID, record.FinalCommission, decimal.Zero, nil); err != nil {
			return err
		}
		if err := f.userRepo.IncrementCounters(txCtx, user.ID, 0, 1, purchase); err != nil {
			return err
		}
		if err := f.userRepo.AdjustCommission(txCtx, user.ID, record.FinalCommission, decimal.Zero); err != nil {
			return err
		}
		return f.dailyRepo.Increment(txCtx, user.ID, user.AdminID, utils.DayKey(now), models.DailyActionDelta{
			Orders:   1,
			Sales:    purchase,
			Earnings: record.FinalCommission,
		})
	})
	if err != nil {
		if IsAlreadyExists(err) {
			return nil, NewBusinessErrorf(KindAlreadyExists, "Order %s already recorded", ErrCommissionAlreadyExists, orderID)
		}
		return nil, NewBusinessError("PURCHASE_RECORD_FAILED", "Failed to record purchase", err)
	}

	f.advanceGoal(ctx, user, models.GoalTypeOrders, 1, fmt.Sprintf("order:%d:%s", campaign.ID, orderID))
	f.advanceGoal(ctx, user, models.GoalTypeSales, quantity, fmt.Sprintf("sales:%d:%s", campaign.ID, orderID))

	return &dto.TrackPurchaseResponse{
		CommissionID:     record.ID,
		CampaignID:       campaign.ID,
		OrderID:          record.OrderID,
		PurchaseAmount:   record.PurchaseAmount,
		CommissionAmount: record.CommissionAmount,
		TDSAmount:        record.TDSAmount,
		FinalCommission:  record.FinalCommission,
		Status:           string(record.Status),
	}, nil
}

// CancelCommission cancels a pending commission and rolls back its pending aggregates
func (f *TrackingFlowImpl) CancelCommission(ctx context.Context, adminID, commissionID uint, reason string) (*models.CommissionRecord, error) {
	var record *models.CommissionRecord
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		var err error
		record, err = f.commissionRepo.ByID(txCtx, commissionID)
		if err != nil {
			return err
		}
		if record == nil || record.AdminID != adminID {
			return ErrCommissionNotFound
		}
		if !record.Status.CanTransitionTo(models.CommissionStatusCancelled) {
			return fmt.Errorf("commission %d is %s: %w", record.ID, record.Status, ErrCommissionNotPending)
		}

		now := utils.UTCNow()
		ok, err := f.commissionRepo.TransitionStatus(txCtx, record.ID, models.CommissionStatusPending, models.CommissionStatusCancelled, map[string]any{
			"cancelled_at":  now,
			"cancel_reason": reason,
			"updated_at":    now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrCommissionNotPending
		}

		final := record.FinalCommission
		if err := f.userRepo.AdjustCommission(txCtx, record.UserID, final.Neg(), decimal.Zero); err != nil {
			return err
		}
		if err := f.campaignRepo.AdjustCommission(txCtx, record.CampaignID, final.Neg(), decimal.Zero, nil); err != nil {
			return err
		}
		if err := f.dailyRepo.Increment(txCtx, record.UserID, record.AdminID, utils.DayKey(record.CreatedAt), models.DailyActionDelta{Earnings: final.Neg()}); err != nil {
			return err
		}

		record.Status = models.CommissionStatusCancelled
		record.CancelledAt = &now
		record.CancelReason = &reason
		return nil
	})
	if err != nil {
		switch {
		case IsNotFound(err):
			return nil, NewBusinessError(KindNotFound, "Commission not found", err)
		case IsConflict(err):
			return nil, NewBusinessError(KindConflict, "Commission is no longer pending", err)
		default:
			return nil, NewBusinessError("COMMISSION_CANCEL_FAILED", "Failed to cancel commission", err)
		}
	}

	log.Printf("commission %d cancelled by admin %d: %s", commissionID, adminID, reason)
	return record, nil
}

// ListCommissions returns a page of the affiliate's commissions, newest first
func (f *TrackingFlowImpl) ListCommissions(ctx context.Context, userID, adminID uint, page Page) (*dto.CommissionListResponse, error) {
	page = page.normalize()
	filter := models.CommissionRecordFilter{UserID: &userID, AdminID: &adminID}

	records, err := f.commissionRepo.ByFilter(ctx, filter, "id DESC", page.Limit, page.Offset)
	if err != nil {
		return nil, NewBusinessError("COMMISSION_LIST_FAILED", "Failed to list commissions", err)
	}
	total, err := f.commissionRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("COMMISSION_LIST_FAILED", "Failed to count commissions", err)
	}

	items := make([]dto.CommissionItem, 0, len(records))
	for _, r := range records {
		item := dto.CommissionItem{
			ID:               r.ID,
			CampaignID:       r.CampaignID,
			OrderID:          r.OrderID,
			PurchaseAmount:   r.PurchaseAmount,
			CommissionAmount: r.CommissionAmount,
			TDSAmount:        r.TDSAmount,
			FinalCommission:  r.FinalCommission,
			Status:           string(r.Status),
			CreatedAt:        r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if r.PaidAt != nil {
			paid := r.PaidAt.UTC().Format(time.RFC3339)
			item.PaidAt = &paid
		}
		items = append(items, item)
	}

	return &dto.CommissionListResponse{
		Items:      items,
		Pagination: dto.PaginationInfo{Limit: page.Limit, Offset: page.Offset, Total: total},
	}, nil
}

// resolve validates the referral and access key pair
func (f *TrackingFlowImpl) resolve(ctx context.Context, referralID, accessKey string) (*models.AffiliateUser, *models.Campaign, error) {
	if referralID == "" || accessKey == "" {
		return nil, nil, NewBusinessError(KindMissingField, "Referral id and access key are required", ErrMissingField)
	}

	user, err := f.userRepo.ByReferralID(ctx, referralID)
	if err != nil {
		return nil, nil, NewBusinessError("AFFILIATE_LOOKUP_FAILED", "Failed to load affiliate", err)
	}
	if user == nil {
		return nil, nil, NewBusinessError(KindNotFound, "Affiliate not found", ErrAffiliateNotFound)
	}
	if !user.CanAccrue() {
		return nil, nil, NewBusinessError(KindForbidden, "Affiliate is not approved", ErrAffiliateNotApproved)
	}

	campaign, err := f.campaignRepo.ByAccessKey(ctx, accessKey)
	if err != nil {
		return nil, nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to load campaign", err)
	}
	if campaign == nil {
		return nil, nil, NewBusinessError(KindNotFound, "Campaign not found", ErrCampaignNotFound)
	}
	if campaign.UserID != user.ID {
		return nil, nil, NewBusinessError(KindForbidden, "Campaign does not belong to affiliate", ErrCampaignAccessDenied)
	}
	if !campaign.IsActive {
		return nil, nil, NewBusinessError(KindForbidden, "Campaign is inactive", ErrCampaignInactive)
	}
	return user, campaign, nil
}

// advanceGoal forwards an activity to the tier engine. The activity is already recorded, so failures are only logged.
func (f *TrackingFlowImpl) advanceGoal(ctx context.Context, user *models.AffiliateUser, goalType models.GoalType, amount int64, eventKey string) {
	if f.tierFlow == nil {
		return
	}
	key := models.ProgressKey{UserID: user.ID, AdminID: user.AdminID, PlatformID: user.PlatformID}
	if _, err := f.tierFlow.IncrementGoal(ctx, key, goalType, amount, eventKey); err != nil && !IsNoActiveTier(err) {
		log.Printf("tier progress of user %d: %s +%d failed: %v", user.ID, goalType, amount, err)
	}
}
