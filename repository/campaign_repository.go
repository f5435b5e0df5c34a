package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/affiliate-engine/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign](db, applyCampaignFilter),
	}
}

// ByAccessKey finds a campaign by its tracking access key
func (r *CampaignRepositoryImpl) ByAccessKey(ctx context.Context, accessKey string) (*models.Campaign, error) {
	return findOne[models.Campaign](r.getDB(ctx).Where("access_key = ?", accessKey))
}

// IncrementCounters adds activity to the campaign totals
func (r *CampaignRepositoryImpl) IncrementCounters(ctx context.Context, campaignID uint, clicks, orders int64, sales decimal.Decimal) error {
	err := r.getDB(ctx).Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Updates(map[string]any{
			"clicks": gorm.Expr("clicks + ?", clicks),
			"orders": gorm.Expr("orders + ?", orders),
			"sales":  gorm.Expr("sales + ?", sales),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to increment campaign counters: %w", err)
	}
	return nil
}

// AdjustCommission moves the campaign commission summary. A non-nil percentage overwrites
// the stored commission percentage.
func (r *CampaignRepositoryImpl) AdjustCommission(ctx context.Context, campaignID uint, pendingDelta, paidDelta decimal.Decimal, percentage *decimal.Decimal) error {
	updates := map[string]any{
		"commission_pending": gorm.Expr("commission_pending + ?", pendingDelta),
		"commission_paid":    gorm.Expr("commission_paid + ?", paidDelta),
	}
	if percentage != nil {
		updates["commission_percentage"] = *percentage
	}

	err := r.getDB(ctx).Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to adjust campaign commission: %w", err)
	}
	return nil
}

func applyCampaignFilter(query *gorm.DB, filter models.CampaignFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.AdminID != nil {
		query = query.Where("admin_id = ?", *filter.AdminID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	return query
}
