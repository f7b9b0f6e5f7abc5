package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationType enumerates the kinds of persisted notifications.
type NotificationType string

const (
	NotificationTaskShared     NotificationType = "TASK_SHARED"
	NotificationTaskUnshared   NotificationType = "TASK_UNSHARED"
	NotificationTaskDeleted    NotificationType = "TASK_DELETED"
	NotificationTaskUpdated    NotificationType = "TASK_UPDATED"
	NotificationFriendRequest  NotificationType = "FRIEND_REQUEST"
	NotificationFriendAccepted NotificationType = "FRIEND_ACCEPTED"
)

func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationTaskShared, NotificationTaskUnshared, NotificationTaskDeleted,
		NotificationTaskUpdated, NotificationFriendRequest, NotificationFriendAccepted:
		return true
	default:
		return false
	}
}

/** --------------------ENTITIES-------------------- */
type Notification struct {
	ID        string           `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string           `gorm:"not null;type:uuid;index:idx_notifications_user_read" json:"userId"`
	Type      NotificationType `gorm:"not null;type:varchar(32)" json:"type"`
	Message   string           `gorm:"not null" json:"message"`
	IsRead    bool             `gorm:"not null;default:false;index:idx_notifications_user_read" json:"isRead"`
	Data      JSONMap          `gorm:"type:jsonb;not null" json:"data"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Data == nil {
		n.Data = JSONMap{}
	}
	return nil
}

/** -------------------- DTOs -------------------- */
type CreateNotificationRequest struct {
	UserID  string                 `json:"userId" binding:"required,uuid"`
	Type    NotificationType       `json:"type" binding:"required"`
	Message string                 `json:"message" binding:"required"`
	Data    map[string]interface{} `json:"data"`
}
