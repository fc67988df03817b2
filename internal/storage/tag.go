package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/mailflow-engine/shared/postgresql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TagStore resolves tenant tags and attaches them to contacts.
type TagStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewTagStore(client *postgresql.Client, logger *slog.Logger) *TagStore {
	return &TagStore{db: client.GetDB(), logger: logger}
}

// ResolveOrCreateTag returns the tag's ID, creating it on first use.
func (s *TagStore) ResolveOrCreateTag(ctx context.Context, userID, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("tag name is empty")
	}

	// the no-op update makes RETURNING yield the existing row on conflict
	var id string
	err := s.db.GetContext(ctx, &id, `
		INSERT INTO tags (id, user_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, uuid.NewString(), userID, name)
	if err != nil {
		return "", fmt.Errorf("failed to resolve tag: %w", err)
	}
	return id, nil
}

// Associate attaches the tag; it reports false when the contact already had it.
func (s *TagStore) Associate(ctx context.Context, contactID, tagID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO contact_tags (contact_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, contactID, tagID)
	if err != nil {
		return false, fmt.Errorf("failed to associate tag: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Debug("Tag associated",
			slog.String("contact_id", contactID),
			slog.String("tag_id", tagID),
		)
	}
	return n > 0, nil
}
