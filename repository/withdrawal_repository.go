package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/affiliate-engine/models"
	"gorm.io/gorm"
)

// WithdrawalRepositoryImpl implements WithdrawalRepository interface
type WithdrawalRepositoryImpl struct {
	*BaseRepository[models.Withdrawal, models.WithdrawalFilter]
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *gorm.DB) WithdrawalRepository {
	return &WithdrawalRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Withdrawal](db, func(query *gorm.DB, filter models.WithdrawalFilter) *gorm.DB {
			if filter.UserID != nil {
				query = query.Where("user_id = ?", *filter.UserID)
			}
			if filter.AdminID != nil {
				query = query.Where("admin_id = ?", *filter.AdminID)
			}
			if filter.Status != nil {
				query = query.Where("status = ?", *filter.Status)
			}
			return query
		}),
	}
}

// ByPayoutID finds a withdrawal by its gateway payout id
func (r *WithdrawalRepositoryImpl) ByPayoutID(ctx context.Context, payoutID string) (*models.Withdrawal, error) {
	return findOne[models.Withdrawal](r.getDB(ctx).Where("payout_id = ?", payoutID))
}

// TransitionStatus moves a withdrawal to `to` only while it is in one of from
func (r *WithdrawalRepositoryImpl) TransitionStatus(ctx context.Context, id uint, from []models.WithdrawalStatus, to models.WithdrawalStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	ok, err := rowsAffected(r.getDB(ctx).Model(&models.Withdrawal{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates))
	if err != nil {
		return false, fmt.Errorf("failed to transition withdrawal %d: %w", id, err)
	}
	return ok, nil
}
