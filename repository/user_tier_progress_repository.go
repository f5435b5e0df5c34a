package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/affiliate-engine/models"
	"github.com/amirphl/affiliate-engine/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserTierProgressRepositoryImpl implements UserTierProgressRepository interface
type UserTierProgressRepositoryImpl struct {
	*BaseRepository[models.UserTierProgress, models.UserTierProgressFilter]
}

// NewUserTierProgressRepository creates a new progress repository
func NewUserTierProgressRepository(db *gorm.DB) UserTierProgressRepository {
	return &UserTierProgressRepositoryImpl{
		BaseRepository: NewBaseRepository[models.UserTierProgress](db, applyProgressFilter),
	}
}

// ByKey finds the progress of a user on an admin platform
func (r *UserTierProgressRepositoryImpl) ByKey(ctx context.Context, key models.ProgressKey) (*models.UserTierProgress, error) {
	return findOne[models.UserTierProgress](r.getDB(ctx).
		Where("user_id = ? AND admin_id = ? AND platform_id = ?", key.UserID, key.AdminID, key.PlatformID))
}

// UpdateVersioned performs an optimistic write. On success progress.Version is advanced.
func (r *UserTierProgressRepositoryImpl) UpdateVersioned(ctx context.Context, progress *models.UserTierProgress) (bool, error) {
	now := utils.UTCNow()
	ok, err := rowsAffected(r.getDB(ctx).Model(&models.UserTierProgress{}).
		Where("id = ? AND version = ?", progress.ID, progress.Version).
		Updates(map[string]any{
			"current_tier_id":   progress.CurrentTierID,
			"current_level":     progress.CurrentLevel,
			"goal_progress":     progress.GoalProgress,
			"is_tier_completed": progress.IsTierCompleted,
			"history":           progress.History,
			"version":           progress.Version + 1,
			"updated_at":        now,
		}))
	if err != nil {
		return false, fmt.Errorf("failed to update tier progress %d: %w", progress.ID, err)
	}
	if ok {
		progress.Version++
		progress.UpdatedAt = now
	}
	return ok, nil
}

// MarkEventProcessed inserts the event marker unless present
func (r *UserTierProgressRepositoryImpl) MarkEventProcessed(ctx context.Context, progressID uint, eventKey string) (bool, error) {
	event := &models.ProcessedGoalEvent{
		ProgressID: progressID,
		EventKey:   eventKey,
		CreatedAt:  utils.UTCNow(),
	}
	ok, err := rowsAffected(r.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "progress_id"}, {Name: "event_key"}},
		DoNothing: true,
	}).Create(event))
	if err != nil {
		return false, fmt.Errorf("failed to mark goal event: %w", err)
	}
	return ok, nil
}

func applyProgressFilter(query *gorm.DB, filter models.UserTierProgressFilter) *gorm.DB {
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.AdminID != nil {
		query = query.Where("admin_id = ?", *filter.AdminID)
	}
	if filter.PlatformID != nil {
		query = query.Where("platform_id = ?", *filter.PlatformID)
	}
	if filter.IsTierCompleted != nil {
		query = query.Where("is_tier_completed = ?", *filter.IsTierCompleted)
	}
	return query
}
