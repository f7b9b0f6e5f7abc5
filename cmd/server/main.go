package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task-tracker/internal/adapters/kafka"
	"task-tracker/internal/api/handlers"
	"task-tracker/internal/api/middleware"
	"task-tracker/internal/api/routes"
	"task-tracker/internal/config"
	"task-tracker/internal/database"
	"task-tracker/internal/repositories/postgres"
	"task-tracker/internal/services"
	"task-tracker/internal/websocket"

	"task-tracker/pkg/logger"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

func main() {
	pflag.String("config", "", "path to an env-format config file")
	pflag.String("addr", "", "listen address, host:port (overrides SERVER_HOST/SERVER_PORT)")
	pflag.Parse()

	if err := viper.BindPFlag("CONFIG_FILE", pflag.Lookup("config")); err != nil {
		log.Fatal("Failed to bind flags:", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if addr, _ := pflag.CommandLine.GetString("addr"); addr != "" {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			log.Fatal("Invalid --addr:", err)
		}
		cfg.Server.Host, cfg.Server.Port = host, port
	}

	appLogger := logger.Setup(cfg.Log.Level, cfg.Log.Format)
	appLogger.Info("Starting task tracker realtime server")

	db, err := database.NewPostgresConnection(&cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}

	// Redis backs presence and rate limiting; the service runs without it.
	var (
		redisService *services.RedisService
		presence     websocket.Presence
		msgLimiter   websocket.MessageLimiter
		httpLimiter  middleware.RateLimiter
		redisPinger  handlers.Pinger
	)
	redisClient, err := database.NewRedisConnection(&cfg.Redis, appLogger)
	if err != nil {
		slog.Warn("Redis unavailable, presence and rate limiting disabled", "error", err)
	} else {
		defer redisClient.Close()
		redisService = services.NewRedisService(redisClient)
		presence = redisService
		httpLimiter = redisService
		redisPinger = redisClient
		if cfg.WebSocket.MessageRateLimit > 0 {
			msgLimiter = services.NewMessageRateLimiter(redisService, cfg.WebSocket.MessageRateLimit, cfg.WebSocket.MessageRateWindow)
		}
	}

	var audit websocket.AuditSink
	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, "task-tracker-realtime")
		if err != nil {
			slog.Warn("Kafka producer unavailable, audit events only logged", "error", err)
		} else {
			auditProducer := kafka.NewAuditProducer(producer, cfg.Kafka.AuditTopic)
			defer auditProducer.Close()
			audit = auditProducer
		}
	}

	taskRepo := postgres.NewTaskRepository(db)
	gate := websocket.NewAccessGate(taskRepo, audit)

	hub := websocket.NewHub(websocket.HubOptions{
		Gate:        gate,
		Presence:    presence,
		Limiter:     msgLimiter,
		DeleteGrace: cfg.WebSocket.DeleteGrace,
		AuthTimeout: cfg.WebSocket.AuthTimeout,
	})
	go hub.Run()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	consumerDone := make(chan struct{})
	if cfg.Kafka.Enabled() {
		reader := kafka.NewTaskEventReader(cfg.Kafka.Brokers, cfg.Kafka.TaskEventsTopic, cfg.Kafka.ConsumerGroup)
		consumer := kafka.NewTaskEventConsumer(reader, hub)
		go func() {
			defer close(consumerDone)
			defer consumer.Close()
			if err := consumer.Run(ctx); err != nil {
				slog.Error("Task event consumer stopped", "error", err)
			}
		}()
	} else {
		close(consumerDone)
	}

	if cfg.Internal.APIToken == "" {
		slog.Warn("INTERNAL_API_TOKEN not set, /internal endpoints will reject every call")
	}

	authService := services.NewAuthService(cfg.JWT.Secret)
	notificationService := services.NewNotificationService(postgres.NewNotificationRepository(db), hub)

	router := routes.NewRouter(cfg, routes.Dependencies{
		Hub:           hub,
		Handshaker:    websocket.NewHandshaker(cfg.WebSocket.AllowedOrigins, cfg.WebSocket.TokenCookie, authService),
		Verifier:      authService,
		Notifications: notificationService,
		RateLimiter:   httpLimiter,
		HealthChecks: map[string]handlers.Pinger{
			"postgres": handlers.PingFunc(postgresPing(db)),
			"redis":    redisPinger,
		},
	})
	router.SetupRoutes()

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stop()
	<-consumerDone

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	hub.Stop()

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	slog.Info("Server stopped")
}

func postgresPing(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
