package postgres

import (
	"context"
	"fmt"

	"task-tracker/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskRepository reads the ownership fields the realtime layer authorizes
// against. Task CRUD belongs to the task API.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// FindTaskAccessFields loads a task's owner and the users it is shared with.
// A task that does not exist yields (nil, nil).
func (r *TaskRepository) FindTaskAccessFields(ctx context.Context, taskID string) (*models.TaskAccess, error) {
	if _, err := uuid.Parse(taskID); err != nil {
		return nil, fmt.Errorf("%w: task %q", ErrInvalidID, taskID)
	}

	var tasks []models.Task
	if err := r.db.WithContext(ctx).
		Select("id", "owner_id").
		Where("id = ?", taskID).
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", taskID, err)
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	var shared []string
	if err := r.db.WithContext(ctx).
		Model(&models.TaskShare{}).
		Where("task_id = ?", taskID).
		Order("user_id").
		Pluck("user_id", &shared).Error; err != nil {
		return nil, fmt.Errorf("failed to load shares for task %s: %w", taskID, err)
	}

	return &models.TaskAccess{OwnerID: tasks[0].OwnerID, SharedWith: shared}, nil
}
