package main

import (
	"log"
	"log/slog"

	"task-tracker/internal/config"
	"task-tracker/internal/database"
	"task-tracker/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	slog.Info("Starting database migration...")

	dbCfg := cfg.Database
	dbCfg.AutoMigrate = false
	db, err := database.NewPostgresConnection(&dbCfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get database instance:", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatal("Migration failed:", err)
	}

	slog.Info("Database migration completed successfully!")
}
