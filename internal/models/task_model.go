package models

import (
	"time"
)

/** --------------------ENTITIES-------------------- */
// Task is the persisted task row. Only the realtime layer's access fields
// are read here; CRUD lives in the task API.
type Task struct {
	ID          string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	OwnerID     string    `gorm:"not null;type:uuid;index" json:"ownerId"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `json:"description"`
	Status      string    `gorm:"not null;default:'todo'" json:"status"`
	Priority    string    `gorm:"not null;default:'medium'" json:"priority"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Shares []TaskShare `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"-"`
}

// TaskShare links a task to a user it was shared with.
type TaskShare struct {
	TaskID    string    `gorm:"primaryKey;type:uuid" json:"taskId"`
	UserID    string    `gorm:"primaryKey;type:uuid;index" json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

/** -------------------- DTOs -------------------- */
// TaskAccess is the ownership projection used for room authorization.
type TaskAccess struct {
	OwnerID    string
	SharedWith []string
}

// IsOwner reports whether userID owns the task.
func (a *TaskAccess) IsOwner(userID string) bool {
	return a != nil && a.OwnerID == userID
}

// CanView reports whether userID owns the task or it is shared with them.
func (a *TaskAccess) CanView(userID string) bool {
	if a == nil {
		return false
	}
	if a.OwnerID == userID {
		return true
	}
	for _, id := range a.SharedWith {
		if id == userID {
			return true
		}
	}
	return false
}
