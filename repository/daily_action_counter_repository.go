package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/affiliate-engine/models"
	"github.com/amirphl/affiliate-engine/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DailyActionCounterRepositoryImpl implements DailyActionCounterRepository interface
type DailyActionCounterRepositoryImpl struct {
	*BaseRepository[models.DailyActionCounter, models.DailyActionCounterFilter]
}

// NewDailyActionCounterRepository creates a new daily counter repository
func NewDailyActionCounterRepository(db *gorm.DB) DailyActionCounterRepository {
	return &DailyActionCounterRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DailyActionCounter](db, func(query *gorm.DB, filter models.DailyActionCounterFilter) *gorm.DB {
			if filter.UserID != nil {
				query = query.Where("user_id = ?", *filter.UserID)
			}
			if filter.AdminID != nil {
				query = query.Where("admin_id = ?", *filter.AdminID)
			}
			if filter.DayFrom != nil {
				query = query.Where("day >= ?", *filter.DayFrom)
			}
			if filter.DayTo != nil {
				query = query.Where("day <= ?", *filter.DayTo)
			}
			return query
		}),
	}
}

// ByDay finds the counter row of a day
func (r *DailyActionCounterRepositoryImpl) ByDay(ctx context.Context, userID, adminID uint, day string) (*models.DailyActionCounter, error) {
	return findOne[models.DailyActionCounter](r.getDB(ctx).
		Where("user_id = ? AND admin_id = ? AND day = ?", userID, adminID, day))
}

// Increment upserts the day row and adds delta to it
func (r *DailyActionCounterRepositoryImpl) Increment(ctx context.Context, userID, adminID uint, day string, delta models.DailyActionDelta) error {
	db := r.getDB(ctx)
	now := utils.UTCNow()

	row := &models.DailyActionCounter{
		UserID:    userID,
		AdminID:   adminID,
		Day:       day,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "admin_id"}, {Name: "day"}},
		DoNothing: true,
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to create daily counter: %w", err)
	}

	err = db.Model(&models.DailyActionCounter{}).
		Where("user_id = ? AND admin_id = ? AND day = ?", userID, adminID, day).
		Updates(map[string]any{
			"clicks":          gorm.Expr("clicks + ?", delta.Clicks),
			"orders":          gorm.Expr("orders + ?", delta.Orders),
			"sales":           gorm.Expr("sales + ?", delta.Sales),
			"earnings":        gorm.Expr("earnings + ?", delta.Earnings),
			"paid_commission": gorm.Expr("paid_commission + ?", delta.PaidCommission),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to increment daily counter: %w", err)
	}
	return nil
}
