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
	"github.com/cuongbtq/mailflow-engine/internal/metrics"
	"github.com/cuongbtq/mailflow-engine/internal/storage"
	"github.com/cuongbtq/mailflow-engine/internal/trigger"
	"github.com/cuongbtq/mailflow-engine/internal/worker"
	"github.com/joho/godotenv"
)

const serviceName = "worker-service"

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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
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

	workerID := bootstrap.WorkerID(serviceName)
	observer := metrics.NewPrometheusObserver()
	queue := storage.NewQueueStore(dbClient, appLogger.Logger)

	enroller := trigger.NewEnroller(&trigger.Config{
		Logger:      appLogger.Logger,
		Automations: storage.NewAutomationStore(dbClient),
		Contacts:    storage.NewContactStore(dbClient, appLogger.Logger),
		Jobs:        queue,
		Events:      storage.NewEventLog(dbClient),
		Observer:    observer,
	})

	reclaimer := worker.NewReclaimer(&worker.ReclaimerConfig{
		Logger:   appLogger.Logger,
		Store:    queue,
		Observer: observer,
		Interval: cfg.Worker.ReclaimInterval,
	})

	var scheduler *worker.Scheduler
	if cfg.Scheduler.Enabled {
		redisClient, err := bootstrap.InitRedis(&cfg.Redis, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		if redisClient != nil {
			defer redisClient.Close()
		}

		loop, err := bootstrap.NewLoop(cfg, bootstrap.LoopDeps{
			Logger:   appLogger.Logger,
			DB:       dbClient,
			Events:   trigger.NewPublisher(rabbitClient),
			Redis:    redisClient,
			WorkerID: workerID,
		})
		if err != nil {
			return err
		}

		scheduler, err = worker.NewScheduler(&worker.SchedulerConfig{
			Logger:    appLogger.Logger,
			Runner:    loop,
			Cadence:   cfg.Scheduler.Cadence,
			Budget:    cfg.Scheduler.Budget,
			BatchSize: cfg.Scheduler.BatchSize,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize scheduler: %w", err)
		}
	}

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		Source:        rabbitClient,
		Enroller:      enroller,
		Reclaimer:     reclaimer,
		Scheduler:     scheduler,
		WorkerID:      workerID,
		Concurrency:   cfg.Worker.Concurrency,
		EnrollTimeout: cfg.Worker.EnrollTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 2)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	var metricsSrv *http.Server
	if cfg.Worker.MetricsPort != 0 {
		metricsSrv = &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
			Handler: router.SetupMetricsRouter(&handler.Dependencies{
				Logger: appLogger.Logger,
				Health: dbClient.HealthCheck,
			}),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errChan <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	appLogger.Info("Worker service started successfully",
		slog.String("worker_id", workerID),
		slog.Bool("scheduler_enabled", scheduler != nil),
		slog.Int("metrics_port", cfg.Worker.MetricsPort),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Metrics server shutdown failed", slog.Any("error", err))
		}
	}

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}
