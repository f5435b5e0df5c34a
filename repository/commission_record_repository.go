package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/affiliate-engine/models"
	"gorm.io/gorm"
)

// CommissionRecordRepositoryImpl implements CommissionRecordRepository interface
type CommissionRecordRepositoryImpl struct {
	*BaseRepository[models.CommissionRecord, models.CommissionRecordFilter]
}

// NewCommissionRecordRepository creates a new commission record repository
func NewCommissionRecordRepository(db *gorm.DB) CommissionRecordRepository {
	return &CommissionRecordRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CommissionRecord](db, applyCommissionRecordFilter),
	}
}

// ByCampaignAndOrder finds the commission of an order on a campaign
func (r *CommissionRecordRepositoryImpl) ByCampaignAndOrder(ctx context.Context, campaignID uint, orderID string) (*models.CommissionRecord, error) {
	return findOne[models.CommissionRecord](r.getDB(ctx).Where("campaign_id = ? AND order_id = ?", campaignID, orderID))
}

// ListPendingAfter pages through pending records in id order
func (r *CommissionRecordRepositoryImpl) ListPendingAfter(ctx context.Context, afterID uint, limit int) ([]*models.CommissionRecord, error) {
	var records []*models.CommissionRecord
	err := r.getDB(ctx).
		Where("status = ? AND id > ?", models.CommissionStatusPending, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending commissions: %w", err)
	}
	return records, nil
}

// TransitionStatus performs a conditional status flip
func (r *CommissionRecordRepositoryImpl) TransitionStatus(ctx context.Context, id uint, from, to models.CommissionStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	ok, err := rowsAffected(r.getDB(ctx).Model(&models.CommissionRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates))
	if err != nil {
		return false, fmt.Errorf("failed to transition commission %d: %w", id, err)
	}
	return ok, nil
}

func applyCommissionRecordFilter(query *gorm.DB, filter models.CommissionRecordFilter) *gorm.DB {
	if filter.AdminID != nil {
		query = query.Where("admin_id = ?", *filter.AdminID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.CampaignID != nil {
		query = query.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.SettlementRunID != nil {
		query = query.Where("settlement_run_id = ?", *filter.SettlementRunID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}
