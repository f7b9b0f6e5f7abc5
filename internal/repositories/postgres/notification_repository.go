package postgres

import (
	"context"
	"fmt"

	"task-tracker/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListUnread returns the user's unread notifications, newest first.
func (r *NotificationRepository) ListUnread(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	var list []models.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_read = ?", userID, false).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unread notifications: %w", err)
	}
	return list, nil
}

// ListAll returns the user's notifications, newest first.
func (r *NotificationRepository) ListAll(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	var list []models.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return list, nil
}

// MarkAsRead flags one of the user's notifications as read and returns it.
func (r *NotificationRepository) MarkAsRead(ctx context.Context, id, userID string) (*models.Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var found []models.Notification
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Find(&found).Error; err != nil {
		return nil, fmt.Errorf("failed to load notification %s: %w", id, err)
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}

	n := &found[0]
	if err := r.db.WithContext(ctx).Model(n).Update("is_read", true).Error; err != nil {
		return nil, fmt.Errorf("failed to mark notification %s as read: %w", id, err)
	}
	return n, nil
}

// MarkAllAsRead flags every unread notification of the user and reports how
// many changed.
func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications as read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id, userID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Notification{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete notification %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
