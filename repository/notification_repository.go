package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/affiliate-engine/models"
	"gorm.io/gorm"
)

// NotificationRepositoryImpl implements NotificationRepository interface
type NotificationRepositoryImpl struct {
	*BaseRepository[models.Notification, models.NotificationFilter]
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &NotificationRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Notification](db, func(query *gorm.DB, filter models.NotificationFilter) *gorm.DB {
			if filter.RecipientType != nil {
				query = query.Where("recipient_type = ?", *filter.RecipientType)
			}
			if filter.RecipientID != nil {
				query = query.Where("recipient_id = ?", *filter.RecipientID)
			}
			if filter.Kind != nil {
				query = query.Where("kind = ?", *filter.Kind)
			}
			if filter.IsRead != nil {
				query = query.Where("is_read = ?", *filter.IsRead)
			}
			return query
		}),
	}
}

// MarkRead flags a recipient's notification as read
func (r *NotificationRepositoryImpl) MarkRead(ctx context.Context, recipientType models.RecipientType, recipientID, notificationID uint) error {
	err := r.getDB(ctx).Model(&models.Notification{}).
		Where("id = ? AND recipient_type = ? AND recipient_id = ?", notificationID, recipientType, recipientID).
		Update("is_read", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}
