// Package bootstrap builds the clients and engine components shared by the
// service binaries from a loaded configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/config"
	"github.com/cuongbtq/mailflow-engine/internal/engine"
	"github.com/cuongbtq/mailflow-engine/internal/engine/campaign"
	"github.com/cuongbtq/mailflow-engine/internal/mailer"
	"github.com/cuongbtq/mailflow-engine/internal/metrics"
	"github.com/cuongbtq/mailflow-engine/internal/storage"
	"github.com/cuongbtq/mailflow-engine/internal/vault"
	"github.com/cuongbtq/mailflow-engine/shared/logger"
	"github.com/cuongbtq/mailflow-engine/shared/postgresql"
	"github.com/cuongbtq/mailflow-engine/shared/rabbitmq"
	"github.com/cuongbtq/mailflow-engine/shared/redis"
	goredis "github.com/redis/go-redis/v9"
)

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig, service string) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		Service:      service,
	})
}

// InitPostgreSQL initializes the PostgreSQL database client
func InitPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// Migrate applies pending schema migrations when auto_migrate is set.
func Migrate(ctx context.Context, cfg *config.DatabaseConfig, client *postgresql.Client, logger *slog.Logger) error {
	if !cfg.AutoMigrate {
		return nil
	}
	return postgresql.NewMigrationManager(client, logger, storage.Migrations()).Run(ctx)
}

// InitRabbitMQ initializes the RabbitMQ client
func InitRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		DeadLetterExchange: cfg.Queue.DeadLetterExchange,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// InitRedis connects to Redis when enabled. A nil client with a nil error
// means Redis is switched off.
func InitRedis(cfg *config.RedisConfig, logger *slog.Logger) (*goredis.Client, error) {
	if !cfg.Enabled {
		logger.Info("Redis disabled, invocation lock and shared rate limits are off")
		return nil, nil
	}
	return redis.NewClient(&redis.Config{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)
}

// WorkerID names this process in queue claims.
func WorkerID(service string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s-%d", service, host, os.Getpid())
}

// LoopDeps are the live clients a scheduler loop is built on. Events and
// Redis may be nil.
type LoopDeps struct {
	Logger   *slog.Logger
	DB       *postgresql.Client
	Events   engine.EventPublisher
	Redis    *goredis.Client
	WorkerID string
}

// NewLoop wires the scheduler loop with its stores, campaign exploder,
// credential vault and mailer.
func NewLoop(cfg *config.Config, deps LoopDeps) (*engine.Loop, error) {
	v, err := vault.New(storage.NewCredentialStore(deps.DB), cfg.Vault.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vault: %w", err)
	}

	observer := metrics.NewPrometheusObserver()

	loopCfg := &engine.Config{
		Logger: deps.Logger,
		Store:  storage.NewQueueStore(deps.DB, deps.Logger),
		Exploder: campaign.NewExploder(&campaign.Config{
			Logger:    deps.Logger,
			Store:     storage.NewCampaignStore(deps.DB, deps.Logger),
			MaxPerRun: cfg.Scheduler.MaxCampaignsPerRun,
		}),
		Mailer: mailer.NewHTTPMailer(&mailer.Config{
			Logger:  deps.Logger,
			BaseURL: cfg.Mailer.BaseURL,
			Timeout: cfg.Mailer.Timeout,
		}),
		Tags:     storage.NewTagStore(deps.DB, deps.Logger),
		Content:  storage.NewContentStore(deps.DB),
		Vault:    v,
		Observer: observer,
		WorkerID: deps.WorkerID,
		Lease:    cfg.Scheduler.LeaseDuration,
	}
	if deps.Events != nil {
		loopCfg.Events = deps.Events
	}
	if deps.Redis != nil {
		loopCfg.Locker = redis.NewLocker(deps.Redis, deps.Logger)
	}

	return engine.NewLoop(loopCfg), nil
}
