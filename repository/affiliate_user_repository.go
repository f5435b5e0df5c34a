package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/affiliate-engine/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AffiliateUserRepositoryImpl implements AffiliateUserRepository interface
type AffiliateUserRepositoryImpl struct {
	*BaseRepository[models.AffiliateUser, models.AffiliateUserFilter]
}

// NewAffiliateUserRepository creates a new affiliate user repository
func NewAffiliateUserRepository(db *gorm.DB) AffiliateUserRepository {
	return &AffiliateUserRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AffiliateUser](db, applyAffiliateUserFilter),
	}
}

// ByReferralID finds an affiliate by referral id
func (r *AffiliateUserRepositoryImpl) ByReferralID(ctx context.Context, referralID string) (*models.AffiliateUser, error) {
	return findOne[models.AffiliateUser](r.getDB(ctx).Where("referral_id = ?", referralID))
}

// IncrementCounters adds activity to the denormalized totals
func (r *AffiliateUserRepositoryImpl) IncrementCounters(ctx context.Context, userID uint, clicks, orders int64, sales decimal.Decimal) error {
	err := r.getDB(ctx).Model(&models.AffiliateUser{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"total_clicks": gorm.Expr("total_clicks + ?", clicks),
			"total_orders": gorm.Expr("total_orders + ?", orders),
			"total_sales":  gorm.Expr("total_sales + ?", sales),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to increment affiliate counters: %w", err)
	}
	return nil
}

// AdjustCommission moves the pending and paid commission totals by the given deltas
func (r *AffiliateUserRepositoryImpl) AdjustCommission(ctx context.Context, userID uint, pendingDelta, paidDelta decimal.Decimal) error {
	err := r.getDB(ctx).Model(&models.AffiliateUser{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"commission_pending": gorm.Expr("commission_pending + ?", pendingDelta),
			"commission_paid":    gorm.Expr("commission_paid + ?", paidDelta),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to adjust affiliate commission: %w", err)
	}
	return nil
}

// AddWithdrawn adds delta to the withdrawn total
func (r *AffiliateUserRepositoryImpl) AddWithdrawn(ctx context.Context, userID uint, delta decimal.Decimal) error {
	err := r.getDB(ctx).Model(&models.AffiliateUser{}).
		Where("id = ?", userID).
		Update("total_withdrawn", gorm.Expr("total_withdrawn + ?", delta)).Error
	if err != nil {
		return fmt.Errorf("failed to add withdrawn amount: %w", err)
	}
	return nil
}

// TransitionStatus moves an affiliate to `to` only while it is in one of from
func (r *AffiliateUserRepositoryImpl) TransitionStatus(ctx context.Context, id uint, from []models.AffiliateUserStatus, to models.AffiliateUserStatus) (bool, error) {
	ok, err := rowsAffected(r.getDB(ctx).Model(&models.AffiliateUser{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()}))
	if err != nil {
		return false, fmt.Errorf("failed to transition affiliate %d: %w", id, err)
	}
	return ok, nil
}

func applyAffiliateUserFilter(query *gorm.DB, filter models.AffiliateUserFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.AdminID != nil {
		query = query.Where("admin_id = ?", *filter.AdminID)
	}
	if filter.PlatformID != nil {
		query = query.Where("platform_id = ?", *filter.PlatformID)
	}
	if filter.ReferralID != nil {
		query = query.Where("referral_id = ?", *filter.ReferralID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}
