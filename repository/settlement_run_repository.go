package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/affiliate-engine/models"
	"gorm.io/gorm"
)

// SettlementRunRepositoryImpl implements SettlementRunRepository interface
type SettlementRunRepositoryImpl struct {
	*BaseRepository[models.SettlementRun, models.SettlementRunFilter]
}

// NewSettlementRunRepository creates a new settlement run repository
func NewSettlementRunRepository(db *gorm.DB) SettlementRunRepository {
	return &SettlementRunRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SettlementRun](db, func(query *gorm.DB, filter models.SettlementRunFilter) *gorm.DB {
			if filter.Status != nil {
				query = query.Where("status = ?", *filter.Status)
			}
			return query
		}),
	}
}

// Finish stores the outcome of a run
func (r *SettlementRunRepositoryImpl) Finish(ctx context.Context, run *models.SettlementRun) error {
	err := r.getDB(ctx).Model(&models.SettlementRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":      run.Status,
			"scanned":     run.Scanned,
			"settled":     run.Settled,
			"skipped":     run.Skipped,
			"failed":      run.Failed,
			"error":       run.Error,
			"finished_at": run.FinishedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to finish settlement run %d: %w", run.ID, err)
	}
	return nil
}
