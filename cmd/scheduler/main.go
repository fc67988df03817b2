package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/mailflow-engine/internal/bootstrap"
	"github.com/cuongbtq/mailflow-engine/internal/config"
	"github.com/cuongbtq/mailflow-engine/internal/trigger"
	"github.com/cuongbtq/mailflow-engine/shared/logger"
	"github.com/cuongbtq/mailflow-engine/shared/postgresql"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "scheduler"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	cmd := &cli.Command{
		Name:  "mailflow-scheduler",
		Usage: "Run scheduler invocations from an external cron",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "configs/config.yaml",
				Sources: cli.EnvVars("SCHEDULER_CONFIG_PATH"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Explode due campaigns and drain due jobs within one budget",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:    "budget",
						Usage:   "Override the configured wall-clock budget",
						Sources: cli.EnvVars("SCHEDULER_BUDGET"),
					},
					&cli.IntFlag{
						Name:    "batch-size",
						Usage:   "Override the configured batch size",
						Sources: cli.EnvVars("SCHEDULER_BATCH_SIZE"),
					},
				},
				Action: runOnce,
			},
			{
				Name:   "migrate",
				Usage:  "Apply pending schema migrations",
				Action: migrate,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup(command *cli.Command) (*config.Config, *logger.Logger, *postgresql.Client, error) {
	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateSchedulerConfig(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging, serviceName)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	dbClient, err := bootstrap.InitPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		appLogger.Close()
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return cfg, appLogger, dbClient, nil
}

func runOnce(ctx context.Context, command *cli.Command) error {
	cfg, appLogger, dbClient, err := setup(command)
	if err != nil {
		return err
	}
	defer appLogger.Close()
	defer dbClient.Close()

	budget := cfg.Scheduler.Budget
	if d := command.Duration("budget"); d > 0 {
		budget = d
	}
	batchSize := cfg.Scheduler.BatchSize
	if n := command.Int("batch-size"); n > 0 {
		batchSize = n
	}
	if budget >= cfg.Scheduler.LeaseDuration {
		return fmt.Errorf("budget %s must be shorter than the lease %s", budget, cfg.Scheduler.LeaseDuration)
	}

	deps := bootstrap.LoopDeps{
		Logger:   appLogger.Logger,
		DB:       dbClient,
		WorkerID: bootstrap.WorkerID(serviceName),
	}

	// Tag-added events raised by steps need the broker; without it they are dropped.
	if cfg.RabbitMQ.Host != "" {
		rabbitClient, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		deps.Events = trigger.NewPublisher(rabbitClient)
	}

	redisClient, err := bootstrap.InitRedis(&cfg.Redis, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		deps.Redis = redisClient
	}

	loop, err := bootstrap.NewLoop(cfg, deps)
	if err != nil {
		return err
	}

	result, err := loop.Run(ctx, budget, batchSize)
	if err != nil {
		appLogger.Error("Scheduler invocation failed", slog.Any("error", err))
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func migrate(ctx context.Context, command *cli.Command) error {
	cfg, appLogger, dbClient, err := setup(command)
	if err != nil {
		return err
	}
	defer appLogger.Close()
	defer dbClient.Close()

	cfg.Database.AutoMigrate = true
	if err := bootstrap.Migrate(ctx, &cfg.Database, dbClient, appLogger.Logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	appLogger.Info("Migrations applied")
	return nil
}
