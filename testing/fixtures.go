package testing

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/amirphl/affiliate-engine/models"
	"github.com/amirphl/affiliate-engine/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestAffiliate creates an approved affiliate earning rate percent of each purchase
func (tf *TestFixtures) CreateTestAffiliate(adminID, platformID uint, rate string) (*models.AffiliateUser, error) {
	email := fmt.Sprintf("affiliate.%d@example.com", rand.IntN(1_000_000_000))
	user := &models.AffiliateUser{
		UUID:            uuid.New(),
		AdminID:         adminID,
		PlatformID:      platformID,
		Name:            "Jane Affiliate",
		Email:           &email,
		ReferralID:      fmt.Sprintf("ref%09d", rand.IntN(1_000_000_000)),
		Status:          models.AffiliateUserStatusApproved,
		AffType:         models.AffiliateTypeIndividual,
		CommissionRate:  decimal.RequireFromString(rate),
		CommissionBasis: models.CommissionBasisPercent,
		TDSLinkType:     models.TDSLinkTypeUnlinked,
		CreatedAt:       utils.UTCNow(),
		UpdatedAt:       utils.UTCNow(),
	}

	if err := tf.DB.DB.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create test affiliate: %w", err)
	}
	return user, nil
}

// CreateTestCampaign creates an active campaign for the affiliate
func (tf *TestFixtures) CreateTestCampaign(user *models.AffiliateUser, returnPeriod int) (*models.Campaign, error) {
	campaign := &models.Campaign{
		UUID:         uuid.New(),
		UserID:       user.ID,
		AdminID:      user.AdminID,
		Name:         "Summer Campaign",
		AccessKey:    uuid.NewString(),
		ReturnPeriod: returnPeriod,
		IsActive:     true,
		CreatedAt:    utils.UTCNow(),
		UpdatedAt:    utils.UTCNow(),
	}

	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}
	return campaign, nil
}

// CreateTestPlatformConfig stores TDS settings for an admin. An empty rate disables TDS.
func (tf *TestFixtures) CreateTestPlatformConfig(adminID uint, method models.TDSMethodType, rate string) (*models.PlatformConfig, error) {
	cfg := &models.PlatformConfig{
		AdminID:         adminID,
		IsTDSEnabled:    rate != "",
		TDSLinkedType:   method,
		TDSUnlinkedType: method,
		CreatedAt:       utils.UTCNow(),
		UpdatedAt:       utils.UTCNow(),
	}
	if rate != "" {
		cfg.TDSLinkedRate = decimal.RequireFromString(rate)
		cfg.TDSUnlinkedRate = decimal.RequireFromString(rate)
	}

	if err := tf.DB.DB.Create(cfg).Error; err != nil {
		return nil, fmt.Errorf("failed to create test platform config: %w", err)
	}
	return cfg, nil
}

// CreateTestCommission creates a commission record on the campaign created at createdAt
func (tf *TestFixtures) CreateTestCommission(campaign *models.Campaign, amount string, status models.CommissionStatus, createdAt time.Time) (*models.CommissionRecord, error) {
	value := decimal.RequireFromString(amount)
	record := &models.CommissionRecord{
		UUID:             uuid.New(),
		AdminID:          campaign.AdminID,
		UserID:           campaign.UserID,
		CampaignID:       campaign.ID,
		OrderID:          fmt.Sprintf("order-%s", uuid.NewString()),
		PurchaseAmount:   value.Mul(decimal.NewFromInt(10)),
		CommissionAmount: value,
		TDSAmount:        decimal.Zero,
		FinalCommission:  value,
		Status:           status,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}

	if err := tf.DB.DB.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to create test commission: %w", err)
	}
	return record, nil
}

// TestLevel describes a level for CreateTestTier
type TestLevel struct {
	Goals   []models.Goal
	Rewards []models.RewardDefinition
	Spins   int
}

// CreateTestTier creates an active tier whose levels are numbered from 1
func (tf *TestFixtures) CreateTestTier(adminID, platformID uint, order int, levels ...TestLevel) (*models.Tier, error) {
	tier := &models.Tier{
		UUID:       uuid.New(),
		AdminID:    adminID,
		PlatformID: platformID,
		Name:       fmt.Sprintf("Tier %d", order),
		Order:      order,
		IsActive:   true,
		CreatedAt:  utils.UTCNow(),
		UpdatedAt:  utils.UTCNow(),
	}
	for i, l := range levels {
		spins := l.Spins
		if spins == 0 {
			spins = utils.DefaultSpinsPerReward
		}
		tier.Levels = append(tier.Levels, models.Level{
			LevelNumber:    i + 1,
			Name:           fmt.Sprintf("Level %d", i+1),
			IsActive:       true,
			Mechanic:       models.RedemptionMechanicSpin,
			SpinsPerReward: spins,
			Goals:          l.Goals,
			Rewards:        l.Rewards,
			CreatedAt:      utils.UTCNow(),
			UpdatedAt:      utils.UTCNow(),
		})
	}

	if err := tf.DB.DB.Create(tier).Error; err != nil {
		return nil, fmt.Errorf("failed to create test tier: %w", err)
	}
	return tier, nil
}

// Reward builds an active reward definition
func Reward(id, label string) models.RewardDefinition {
	return models.RewardDefinition{
		ID:       id,
		Type:     models.RewardTypeCash,
		Label:    label,
		Value:    "10",
		IsActive: true,
	}
}
