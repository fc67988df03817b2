package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/mailflow-engine/internal/api/handler"
	"github.com/cuongbtq/mailflow-engine/internal/api/router"
	"github.com/cuongbtq/mailflow-engine/internal/bootstrap"
	"github.com/cuongbtq/mailflow-engine/internal/config"
	"github.com/cuongbtq/mailflow-engine/internal/storage"
	"github.com/cuongbtq/mailflow-engine/internal/trigger"
	"github.com/cuongbtq/mailflow-engine/shared/redis"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const serviceName = "api-service"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := bootstrap.InitPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	if err := bootstrap.Migrate(context.Background(), &cfg.Database, dbClient, appLogger.Logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	appLogger.Info("Database connection established")

	rabbitClient, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	redisClient, err := bootstrap.InitRedis(&cfg.Redis, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	publisher := trigger.NewPublisher(rabbitClient)

	loop, err := bootstrap.NewLoop(cfg, bootstrap.LoopDeps{
		Logger:   appLogger.Logger,
		DB:       dbClient,
		Events:   publisher,
		Redis:    redisClient,
		WorkerID: bootstrap.WorkerID(serviceName),
	})
	if err != nil {
		return err
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	deps := &handler.Dependencies{
		Logger:      appLogger.Logger,
		Jobs:        storage.NewQueueStore(dbClient, appLogger.Logger),
		Automations: storage.NewAutomationStore(dbClient),
		Publisher:   publisher,
		Runner:      loop,
		Budget:      cfg.Scheduler.Budget,
		BatchSize:   cfg.Scheduler.BatchSize,
		Health:      dbClient.HealthCheck,
	}

	opts := router.Options{
		JWTSecret:         []byte(cfg.Auth.JWTSecret),
		JWTIssuer:         cfg.Auth.Issuer,
		CronUsername:      cfg.CronAuth.Username,
		CronPassword:      cfg.CronAuth.Password,
		RateLimitEnabled:  cfg.RateLimit.Enabled,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}
	if redisClient != nil {
		opts.RateLimiter = redis.NewTokenBucket(redisClient, "mailflow:ratelimit:")
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.SetupRouter(deps, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
		slog.Duration("scheduler_budget", cfg.Scheduler.Budget),
		slog.Int("scheduler_batch_size", cfg.Scheduler.BatchSize),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		appLogger.Error("Server failed", slog.Any("error", err))
		return err
	}

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}
