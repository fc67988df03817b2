package postgresql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const (
	connectTimeout     = 5 * time.Second
	healthCheckTimeout = 2 * time.Second
)

// Config holds PostgreSQL connection and pool settings
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN renders the keyword/value connection string lib/pq expects. Values are
// quoted so passwords may contain spaces or quotes.
func (c *Config) DSN() string {
	port := ""
	if c.Port > 0 {
		port = fmt.Sprint(c.Port)
	}

	pairs := []struct{ key, value string }{
		{"host", c.Host},
		{"port", port},
		{"user", c.User},
		{"password", c.Password},
		{"dbname", c.Database},
		{"sslmode", c.SSLMode},
	}

	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		parts = append(parts, p.key+"="+quoteValue(p.value))
	}
	return strings.Join(parts, " ")
}

func quoteValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Client owns the connection pool shared by every store
type Client struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewClient connects with the host settings of config
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	logger.Info("Connecting to PostgreSQL",
		slog.String("host", config.Host),
		slog.Int("port", config.Port),
		slog.String("database", config.Database),
	)
	return NewClientWithDSN(config.DSN(), config, logger)
}

// NewClientWithDSN connects using a ready-made connection string; only the
// pool settings of config are used.
func NewClientWithDSN(dsn string, config *Config, logger *slog.Logger) (*Client, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("Failed to reach PostgreSQL", slog.Any("error", err))
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		slog.Int("max_open_conns", config.MaxOpenConns),
		slog.Int("max_idle_conns", config.MaxIdleConns),
	)
	return &Client{db: db, logger: logger}, nil
}

// GetDB returns the pool for single-statement store queries
func (c *Client) GetDB() *sqlx.DB {
	return c.db
}

// Close closes the pool
func (c *Client) Close() error {
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close PostgreSQL pool", slog.Any("error", err))
		return err
	}
	c.logger.Info("PostgreSQL pool closed")
	return nil
}

// WithinTx runs fn in a transaction, committing when fn returns nil and
// rolling back when it returns an error or panics.
func (c *Client) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			c.rollback(tx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		c.rollback(tx)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (c *Client) rollback(tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil {
		c.logger.Error("Failed to roll back transaction", slog.Any("error", err))
	}
}

// HealthCheck runs a trivial query within a short timeout
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var one int
	if err := c.db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
