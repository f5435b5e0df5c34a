package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/affiliate-engine/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TierRepositoryImpl implements TierRepository interface
type TierRepositoryImpl struct {
	*BaseRepository[models.Tier, models.TierFilter]
}

// NewTierRepository creates a new tier repository
func NewTierRepository(db *gorm.DB) TierRepository {
	return &TierRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Tier](db, applyTierFilter),
	}
}

func orderedLevels(db *gorm.DB) *gorm.DB {
	return db.Order("level_number ASC")
}

// ByIDWithLevels finds a tier and its levels
func (r *TierRepositoryImpl) ByIDWithLevels(ctx context.Context, id uint) (*models.Tier, error) {
	return findOne[models.Tier](r.getDB(ctx).Preload("Levels", orderedLevels).Where("id = ?", id))
}

// ActiveTiers lists the active tiers of an owner by rank
func (r *TierRepositoryImpl) ActiveTiers(ctx context.Context, adminID, platformID uint) ([]*models.Tier, error) {
	var tiers []*models.Tier
	err := r.getDB(ctx).
		Preload("Levels", orderedLevels).
		Where("admin_id = ? AND platform_id = ? AND is_active = ?", adminID, platformID, true).
		Order("tier_order ASC, id ASC").
		Find(&tiers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active tiers: %w", err)
	}
	return tiers, nil
}

// UpdateTier saves the tier columns without touching its levels
func (r *TierRepositoryImpl) UpdateTier(ctx context.Context, tier *models.Tier) error {
	if err := r.getDB(ctx).Omit(clause.Associations).Save(tier).Error; err != nil {
		return translateError("failed to update tier", err)
	}
	return nil
}

// SaveLevel upserts a level by primary key
func (r *TierRepositoryImpl) SaveLevel(ctx context.Context, level *models.Level) error {
	if err := r.getDB(ctx).Save(level).Error; err != nil {
		return translateError("failed to save level", err)
	}
	return nil
}

func applyTierFilter(query *gorm.DB, filter models.TierFilter) *gorm.DB {
	if filter.AdminID != nil {
		query = query.Where("admin_id = ?", *filter.AdminID)
	}
	if filter.PlatformID != nil {
		query = query.Where("platform_id = ?", *filter.PlatformID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	return query
}
