package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/amirphl/affiliate-engine/app/dto"
	"github.com/amirphl/affiliate-engine/app/services"
	"github.com/amirphl/affiliate-engine/models"
	"github.com/amirphl/affiliate-engine/repository"
	"github.com/amirphl/affiliate-engine/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const maxIdentifierAttempts = 5

// AffiliateAdminFlow handles the admin side of affiliate onboarding and offline payouts
type AffiliateAdminFlow interface {
	CreateAffiliate(ctx context.Context, adminID uint, req *dto.CreateAffiliateRequest) (*models.AffiliateUser, error)
	ApproveAffiliate(ctx context.Context, adminID, userID uint) (*models.AffiliateUser, error)
	RejectAffiliate(ctx context.Context, adminID, userID uint) (*models.AffiliateUser, error)
	CreateCampaign(ctx context.Context, adminID uint, req *dto.CreateCampaignRequest) (*dto.CampaignResponse, error)
	UpsertPlatformConfig(ctx context.Context, adminID uint, req *dto.PlatformConfigRequest) (*models.PlatformConfig, error)
	// MarkCommissionPaid records that a settled commission was paid out outside the payout gateway
	MarkCommissionPaid(ctx context.Context, adminID, commissionID uint) (*models.Wallet, error)
}

// AffiliateAdminFlowImpl implements AffiliateAdminFlow
type AffiliateAdminFlowImpl struct {
	userRepo       repository.AffiliateUserRepository
	campaignRepo   repository.CampaignRepository
	configRepo     repository.PlatformConfigRepository
	commissionRepo repository.CommissionRecordRepository
	ledger         WalletLedger
	idGen          services.IDGenerator
	db             *gorm.DB
}

// NewAffiliateAdminFlow creates a new affiliate admin flow
func NewAffiliateAdminFlow(
	userRepo repository.AffiliateUserRepository,
	campaignRepo repository.CampaignRepository,
	configRepo repository.PlatformConfigRepository,
	commissionRepo repository.CommissionRecordRepository,
	ledger WalletLedger,
	idGen services.IDGenerator,
	db *gorm.DB,
) AffiliateAdminFlow {
	return &AffiliateAdminFlowImpl{
		userRepo:       userRepo,
		campaignRepo:   campaignRepo,
		configRepo:     configRepo,
		commissionRepo: commissionRepo,
		ledger:         ledger,
		idGen:          idGen,
		db:             db,
	}
}

// CreateAffiliate registers a PENDING affiliate with a fresh referral id
func (f *AffiliateAdminFlowImpl) CreateAffiliate(ctx context.Context, adminID uint, req *dto.CreateAffiliateRequest) (*models.AffiliateUser, error) {
	if req == nil {
		return nil, NewBusinessError(KindMissingField, "Affiliate is required", ErrMissingField)
	}
	basis := models.CommissionBasis(withDefault(req.CommissionBasis, string(models.CommissionBasisPercent)))
	if err := validateRate(basis == models.CommissionBasisPercent, req.CommissionRate); err != nil {
		return nil, NewBusinessError(KindBadRequest, "Invalid commission rate", err)
	}

	user := &models.AffiliateUser{
		UUID:            f.idGen.NewUUID(),
		AdminID:         adminID,
		PlatformID:      req.PlatformID,
		Name:            req.Name,
		Email:           req.Email,
		FundAccountID:   req.FundAccountID,
		Status:          models.AffiliateUserStatusPending,
		AffType:         models.AffiliateType(withDefault(req.AffType, string(models.AffiliateTypeIndividual))),
		CommissionRate:  req.CommissionRate,
		CommissionBasis: basis,
		TDSLinkType:     models.TDSLinkType(withDefault(req.TDSLinkType, string(models.TDSLinkTypeUnlinked))),
	}

	var err error
	for attempt := 0; attempt < maxIdentifierAttempts; attempt++ {
		user.ID = 0
		user.ReferralID = f.idGen.ReferralID()
		err = f.userRepo.Save(ctx, user)
		if !errors.Is(err, repository.ErrDuplicate) {
			break
		}
		existing, lookupErr := f.userRepo.ByReferralID(ctx, user.ReferralID)
		if lookupErr != nil {
			err = lookupErr
			break
		}
		if existing == nil {
			// the uuid collided, not the referral id
			break
		}
		err = ErrReferralIDExhausted
	}
	if err != nil {
		if IsConflict(err) {
			return nil, NewBusinessError(KindConflict, "Could not allocate a referral id", err)
		}
		return nil, NewBusinessError("AFFILIATE_CREATE_FAILED", "Failed to create affiliate", err)
	}

	log.Printf("affiliate %d (%s) created by admin %d", user.ID, user.ReferralID, adminID)
	return user, nil
}

// ApproveAffiliate lets a pending or paused affiliate accrue commissions
func (f *AffiliateAdminFlowImpl) ApproveAffiliate(ctx context.Context, adminID, userID uint) (*models.AffiliateUser, error) {
	return f.transitionAffiliate(ctx, adminID, userID, []models.AffiliateUserStatus{
		models.AffiliateUserStatusPending,
		models.AffiliateUserStatusPaused,
	}, models.AffiliateUserStatusApproved)
}

// RejectAffiliate closes a pending application
func (f *AffiliateAdminFlowImpl) RejectAffiliate(ctx context.Context, adminID, userID uint) (*models.AffiliateUser, error) {
	return f.transitionAffiliate(ctx, adminID, userID, []models.AffiliateUserStatus{
		models.AffiliateUserStatusPending,
	}, models.AffiliateUserStatusRejected)
}

func (f *AffiliateAdminFlowImpl) transitionAffiliate(ctx context.Context, adminID, userID uint, from []models.AffiliateUserStatus, to models.AffiliateUserStatus) (*models.AffiliateUser, error) {
	var user *models.AffiliateUser
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		var err error
		user, err = getAffiliate(txCtx, f.userRepo, userID)
		if err != nil {
			return err
		}
		if user.AdminID != adminID {
			return ErrAffiliateNotFound
		}

		ok, err := f.userRepo.TransitionStatus(txCtx, user.ID, from, to)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("affiliate %d is %s: %w", user.ID, user.Status, ErrAffiliateStatus)
		}
		user.Status = to
		return nil
	})
	if err != nil {
		switch {
		case IsNotFound(err):
			return nil, NewBusinessError(KindNotFound, "Affiliate not found", err)
		case IsConflict(err):
			return nil, NewBusinessErrorf(KindConflict, "Affiliate cannot move to %s", err, to)
		default:
			return nil, NewBusinessError("AFFILIATE_STATUS_FAILED", "Failed to update affiliate status", err)
		}
	}

	log.Printf("affiliate %d moved to %s by admin %d", userID, to, adminID)
	return user, nil
}

// CreateCampaign opens an active campaign for one of the admin's affiliates. The access key is
// only returned here.
func (f *AffiliateAdminFlowImpl) CreateCampaign(ctx context.Context, adminID uint, req *dto.CreateCampaignRequest) (*dto.CampaignResponse, error) {
	if req == nil {
		return nil, NewBusinessError(KindMissingField, "Campaign is required", ErrMissingField)
	}

	user, err := getAffiliate(ctx, f.userRepo, req.UserID)
	if err == nil && user.AdminID != adminID {
		err = ErrAffiliateNotFound
	}
	if err != nil {
		if IsNotFound(err) {
			return nil, NewBusinessError(KindNotFound, "Affiliate not found", err)
		}
		return nil, NewBusinessError("CAMPAIGN_CREATE_FAILED", "Failed to load affiliate", err)
	}

	campaign := &models.Campaign{
		UUID:         f.idGen.NewUUID(),
		UserID:       user.ID,
		AdminID:      adminID,
		Name:         req.Name,
		ReturnPeriod: req.ReturnPeriod,
		IsActive:     true,
	}
	for attempt := 0; attempt < maxIdentifierAttempts; attempt++ {
		campaign.ID = 0
		campaign.AccessKey = f.idGen.AccessKey()
		err = f.campaignRepo.Save(ctx, campaign)
		if !errors.Is(err, repository.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_CREATE_FAILED", "Failed to create campaign", err)
	}

	return &dto.CampaignResponse{Campaign: campaign, AccessKey: campaign.AccessKey}, nil
}

// UpsertPlatformConfig replaces the admin's TDS settings, creating them on first use
func (f *AffiliateAdminFlowImpl) UpsertPlatformConfig(ctx context.Context, adminID uint, req *dto.PlatformConfigRequest) (*models.PlatformConfig, error) {
	if req == nil {
		return nil, NewBusinessError(KindMissingField, "Platform config is required", ErrMissingField)
	}
	linked := models.TDSMethodType(req.TDSLinkedType)
	unlinked := models.TDSMethodType(req.TDSUnlinkedType)
	if err := validateRate(linked == models.TDSMethodPercent, req.TDSLinkedRate); err != nil {
		return nil, NewBusinessError(KindBadRequest, "Invalid linked TDS rate", err)
	}
	if err := validateRate(unlinked == models.TDSMethodPercent, req.TDSUnlinkedRate); err != nil {
		return nil, NewBusinessError(KindBadRequest, "Invalid unlinked TDS rate", err)
	}

	var cfg *models.PlatformConfig
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		var err error
		cfg, err = f.configRepo.ByAdminID(txCtx, adminID)
		if err != nil {
			return err
		}

		now := utils.UTCNow()
		if cfg == nil {
			cfg = &models.PlatformConfig{AdminID: adminID, CreatedAt: now}
		}
		cfg.IsTDSEnabled = req.IsTDSEnabled
		cfg.TDSLinkedType = linked
		cfg.TDSLinkedRate = req.TDSLinkedRate
		cfg.TDSUnlinkedType = unlinked
		cfg.TDSUnlinkedRate = req.TDSUnlinkedRate
		cfg.UpdatedAt = now

		if cfg.ID == 0 {
			return f.configRepo.Save(txCtx, cfg)
		}
		return f.configRepo.Update(txCtx, cfg)
	})
	if err != nil {
		return nil, NewBusinessError("PLATFORM_CONFIG_SAVE_FAILED", "Failed to save platform config", err)
	}
	return cfg, nil
}

// MarkCommissionPaid moves a settled commission's wallet entry to PAID and returns the wallet
func (f *AffiliateAdminFlowImpl) MarkCommissionPaid(ctx context.Context, adminID, commissionID uint) (*models.Wallet, error) {
	var wallet *models.Wallet
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		record, err := f.commissionRepo.ByID(txCtx, commissionID)
		if err != nil {
			return err
		}
		if record == nil || record.AdminID != adminID {
			return ErrCommissionNotFound
		}
		if record.Status != models.CommissionStatusPaid {
			return fmt.Errorf("commission %d is %s: %w", record.ID, record.Status, ErrCommissionNotSettled)
		}

		if err := f.ledger.MarkPaid(txCtx, record.UserID, adminID, record.ID); err != nil {
			return err
		}
		wallet, err = f.ledger.Wallet(txCtx, record.UserID, adminID)
		return err
	})
	if err != nil {
		switch {
		case IsNotFound(err):
			return nil, NewBusinessError(KindNotFound, "Commission not found", err)
		case IsConflict(err):
			return nil, NewBusinessError(KindConflict, "Commission cannot be marked paid", err)
		default:
			return nil, NewBusinessError("COMMISSION_MARK_PAID_FAILED", "Failed to mark commission paid", err)
		}
	}

	log.Printf("commission %d marked paid by admin %d", commissionID, adminID)
	return wallet, nil
}

func withDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// validateRate rejects negative rates and percentages above 100
func validateRate(percent bool, rate decimal.Decimal) error {
	if rate.IsNegative() {
		return fmt.Errorf("rate %s is negative: %w", rate, ErrBadRequest)
	}
	if percent && rate.GreaterThan(hundred) {
		return fmt.Errorf("rate %s exceeds 100 percent: %w", rate, ErrBadRequest)
	}
	return nil
}
