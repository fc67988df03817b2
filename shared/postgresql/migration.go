package postgresql

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jmoiron/sqlx"
)

// MigrationManager applies numbered schema migrations, each in its own
// transaction, and records them in schema_migrations.
type MigrationManager struct {
	client     *Client
	logger     *slog.Logger
	migrations map[int]string
}

// NewMigrationManager creates a new migration manager.
func NewMigrationManager(client *Client, logger *slog.Logger, migrations map[int]string) *MigrationManager {
	return &MigrationManager{
		client:     client,
		logger:     logger,
		migrations: migrations,
	}
}

// Run brings the schema up to the highest known version.
func (m *MigrationManager) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Starting database migrations")

	if err := m.createMigrationsTable(ctx); err != nil {
		return err
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "Current schema version", slog.Int("version", current))

	versions := make([]int, 0, len(m.migrations))
	for v := range m.migrations {
		if v > current {
			versions = append(versions, v)
		}
	}
	sort.Ints(versions)

	for _, v := range versions {
		if err := m.apply(ctx, v); err != nil {
			return err
		}
		current = v
	}

	m.logger.InfoContext(ctx, "Database migrations completed", slog.Int("version", current))
	return nil
}

func (m *MigrationManager) createMigrationsTable(ctx context.Context) error {
	_, err := m.client.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// CurrentVersion returns the highest applied migration, or 0.
func (m *MigrationManager) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.client.db.GetContext(ctx, &version, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to query current schema version: %w", err)
	}
	return version, nil
}

func (m *MigrationManager) apply(ctx context.Context, version int) error {
	m.logger.InfoContext(ctx, "Applying migration", slog.Int("version", version))

	err := m.client.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, m.migrations[version]); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "Migration applied successfully", slog.Int("version", version))
	return nil
}
