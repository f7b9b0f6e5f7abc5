package main

import (
	"fmt"
	"log"
	"log/slog"
	"time"

	"task-tracker/internal/config"
	"task-tracker/internal/database"
	"task-tracker/internal/models"
	"task-tracker/internal/services"
	"task-tracker/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Fixed ids so repeated runs hit the same rows.
const (
	ownerID  = "00000000-0000-4000-8000-000000000001"
	friendID = "00000000-0000-4000-8000-000000000002"
	otherID  = "00000000-0000-4000-8000-000000000003"
	taskID   = "00000000-0000-4000-8000-0000000000a1"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	slog.Info("Starting database seeding...")

	db, err := database.NewPostgresConnection(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return seed(tx)
	}); err != nil {
		log.Fatal("Seeding failed:", err)
	}

	auth := services.NewAuthService(cfg.JWT.Secret)
	for name, id := range map[string]string{"owner": ownerID, "friend": friendID, "other": otherID} {
		token, err := auth.GenerateToken(id, 24*time.Hour)
		if err != nil {
			log.Fatal("Failed to sign token:", err)
		}
		fmt.Printf("%-7s %s %s=%s\n", name, id, cfg.WebSocket.TokenCookie, token)
	}

	slog.Info("Database seeding completed successfully!", "taskID", taskID)
}

func seed(tx *gorm.DB) error {
	task := &models.Task{
		ID:          taskID,
		OwnerID:     ownerID,
		Title:       "Write release notes",
		Description: "Shared with the friend account for realtime testing",
		Status:      "todo",
		Priority:    "medium",
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(task).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	share := &models.TaskShare{TaskID: taskID, UserID: friendID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(share).Error; err != nil {
		return fmt.Errorf("failed to share task: %w", err)
	}

	n := &models.Notification{
		ID:      uuid.NewString(),
		UserID:  friendID,
		Type:    models.NotificationTaskShared,
		Message: "A task was shared with you",
		Data:    models.JSONMap{"taskId": taskID, "ownerId": ownerID},
	}
	if err := tx.Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}
