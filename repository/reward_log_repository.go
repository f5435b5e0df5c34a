package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/affiliate-engine/models"
	"github.com/amirphl/affiliate-engine/utils"
	"gorm.io/gorm"
)

// RewardLogRepositoryImpl implements RewardLogRepository interface
type RewardLogRepositoryImpl struct {
	*BaseRepository[models.RewardLog, models.RewardLogFilter]
}

// NewRewardLogRepository creates a new reward log repository
func NewRewardLogRepository(db *gorm.DB) RewardLogRepository {
	return &RewardLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.RewardLog](db, applyRewardLogFilter),
	}
}

// ByIDAndUser finds a reward log owned by a user
func (r *RewardLogRepositoryImpl) ByIDAndUser(ctx context.Context, id, userID uint) (*models.RewardLog, error) {
	return findOne[models.RewardLog](r.getDB(ctx).Where("id = ? AND user_id = ?", id, userID))
}

// ByIDAndAdmin finds a reward log issued on an admin's platform
func (r *RewardLogRepositoryImpl) ByIDAndAdmin(ctx context.Context, id, adminID uint) (*models.RewardLog, error) {
	return findOne[models.RewardLog](r.getDB(ctx).Where("id = ? AND admin_id = ?", id, adminID))
}

// UpdateVersioned writes the mutable columns if the version is unchanged
func (r *RewardLogRepositoryImpl) UpdateVersioned(ctx context.Context, log *models.RewardLog) (bool, error) {
	now := utils.UTCNow()
	ok, err := rowsAffected(r.getDB(ctx).Model(&models.RewardLog{}).
		Where("id = ? AND version = ?", log.ID, log.Version).
		Updates(map[string]any{
			"action":            log.Action,
			"collected_rewards": log.CollectedRewards,
			"spin_count":        log.SpinCount,
			"is_collected":      log.IsCollected,
			"status":            log.Status,
			"status_updated_at": log.StatusUpdatedAt,
			"collected_at":      log.CollectedAt,
			"version":           log.Version + 1,
			"updated_at":        now,
		}))
	if err != nil {
		return false, fmt.Errorf("failed to update reward log %d: %w", log.ID, err)
	}
	if ok {
		log.Version++
		log.UpdatedAt = now
	}
	return ok, nil
}

func applyRewardLogFilter(query *gorm.DB, filter models.RewardLogFilter) *gorm.DB {
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.AdminID != nil {
		query = query.Where("admin_id = ?", *filter.AdminID)
	}
	if filter.TierID != nil {
		query = query.Where("tier_id = ?", *filter.TierID)
	}
	if filter.Action != nil {
		query = query.Where("action = ?", *filter.Action)
	}
	return query
}
