package repository

import (
	"context"

	"github.com/amirphl/affiliate-engine/models"
	"gorm.io/gorm"
)

// PlatformConfigRepositoryImpl implements PlatformConfigRepository interface
type PlatformConfigRepositoryImpl struct {
	*BaseRepository[models.PlatformConfig, models.PlatformConfigFilter]
}

// NewPlatformConfigRepository creates a new platform config repository
func NewPlatformConfigRepository(db *gorm.DB) PlatformConfigRepository {
	return &PlatformConfigRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PlatformConfig](db, func(query *gorm.DB, filter models.PlatformConfigFilter) *gorm.DB {
			if filter.AdminID != nil {
				query = query.Where("admin_id = ?", *filter.AdminID)
			}
			return query
		}),
	}
}

// ByAdminID finds the platform config of an admin
func (r *PlatformConfigRepositoryImpl) ByAdminID(ctx context.Context, adminID uint) (*models.PlatformConfig, error) {
	return findOne[models.PlatformConfig](r.getDB(ctx).Where("admin_id = ?", adminID))
}

// Update saves every column of an existing config
func (r *PlatformConfigRepositoryImpl) Update(ctx context.Context, cfg *models.PlatformConfig) error {
	if err := r.getDB(ctx).Save(cfg).Error; err != nil {
		return translateError("failed to update platform config", err)
	}
	return nil
}
