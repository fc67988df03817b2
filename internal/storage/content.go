package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/cuongbtq/mailflow-engine/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

// ContentStore reads templates and sender identities.
type ContentStore struct {
	db *sqlx.DB
}

func NewContentStore(client *postgresql.Client) *ContentStore {
	return &ContentStore{db: client.GetDB()}
}

func (s *ContentStore) Template(ctx context.Context, userID, templateID string) (domain.Template, error) {
	var t domain.Template
	err := s.db.GetContext(ctx, &t,
		`SELECT id, user_id, subject, html FROM templates WHERE id = $1 AND user_id = $2`,
		templateID, userID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Template{}, domain.ErrTemplateNotFound
		}
		return domain.Template{}, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

func (s *ContentStore) Sender(ctx context.Context, userID, senderID string) (domain.Sender, error) {
	var snd domain.Sender
	err := s.db.GetContext(ctx, &snd,
		`SELECT id, user_id, name, email FROM senders WHERE id = $1 AND user_id = $2`,
		senderID, userID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Sender{}, domain.ErrSenderNotFound
		}
		return domain.Sender{}, fmt.Errorf("failed to get sender: %w", err)
	}
	return snd, nil
}
