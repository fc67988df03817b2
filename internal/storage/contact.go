package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/cuongbtq/mailflow-engine/shared/postgresql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const contactColumns = `id, user_id, email, first_name, last_name, status, attributes`

// ContactStore handles contacts and their tags.
type ContactStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewContactStore(client *postgresql.Client, logger *slog.Logger) *ContactStore {
	return &ContactStore{db: client.GetDB(), logger: logger}
}

// GetContact retrieves a tenant's contact by ID
func (s *ContactStore) GetContact(ctx context.Context, userID, contactID string) (*domain.Contact, error) {
	var c domain.Contact
	err := s.db.GetContext(ctx, &c,
		`SELECT `+contactColumns+` FROM contacts WHERE id = $1 AND user_id = $2`,
		contactID, userID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrContactNotFound
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return &c, nil
}

// FindByEmail looks a contact up by its tenant-unique address.
func (s *ContactStore) FindByEmail(ctx context.Context, userID, email string) (*domain.Contact, error) {
	var c domain.Contact
	err := s.db.GetContext(ctx, &c,
		`SELECT `+contactColumns+` FROM contacts WHERE user_id = $1 AND email = $2`,
		userID, normalizeEmail(email),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrContactNotFound
		}
		return nil, fmt.Errorf("failed to find contact: %w", err)
	}
	return &c, nil
}

// UpsertContact creates the contact or merges the given fields into the
// existing one. created reports whether the row is new.
func (s *ContactStore) UpsertContact(ctx context.Context, userID string, in domain.ContactInput) (*domain.Contact, bool, error) {
	attrs := domain.Attributes(in.Attributes)

	query := `
		INSERT INTO contacts (id, user_id, email, first_name, last_name, attributes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, email) DO UPDATE
		SET first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), contacts.first_name),
		    last_name = COALESCE(NULLIF(EXCLUDED.last_name, ''), contacts.last_name),
		    attributes = contacts.attributes || EXCLUDED.attributes,
		    updated_at = NOW()
		RETURNING ` + contactColumns + `, (xmax = 0) AS created
	`

	var row struct {
		domain.Contact
		Created bool `db:"created"`
	}
	err := s.db.GetContext(ctx, &row, query,
		uuid.NewString(), userID, normalizeEmail(in.Email),
		strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName), attrs,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert contact: %w", err)
	}

	if row.Created {
		s.logger.Info("Contact created",
			slog.String("contact_id", row.ID),
			slog.String("user_id", userID),
		)
	}
	contact := row.Contact
	return &contact, row.Created, nil
}

// HasTag reports whether the contact carries the named tag.
func (s *ContactStore) HasTag(ctx context.Context, contactID, tagName string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1
			FROM contact_tags ct
			JOIN tags t ON t.id = ct.tag_id
			WHERE ct.contact_id = $1 AND t.name = $2
		)
	`, contactID, tagName)
	if err != nil {
		return false, fmt.Errorf("failed to check contact tag: %w", err)
	}
	return exists, nil
}

// ActiveAudience lists a tenant's active contacts, narrowed to tag when set.
func (s *ContactStore) ActiveAudience(ctx context.Context, userID, tag string) ([]domain.Contact, error) {
	return activeAudience(ctx, s.db, userID, tag)
}

func activeAudience(ctx context.Context, db sqlx.QueryerContext, userID, tag string) ([]domain.Contact, error) {
	query := `
		SELECT c.id, c.user_id, c.email, c.first_name, c.last_name, c.status, c.attributes
		FROM contacts c
		WHERE c.user_id = $1 AND c.status = $2
		  AND ($3 = '' OR EXISTS (
			SELECT 1
			FROM contact_tags ct
			JOIN tags t ON t.id = ct.tag_id
			WHERE ct.contact_id = c.id AND t.user_id = c.user_id AND t.name = $3
		  ))
		ORDER BY c.created_at, c.id
	`

	var contacts []domain.Contact
	if err := sqlx.SelectContext(ctx, db, &contacts, query, userID, domain.ContactStatusActive, tag); err != nil {
		return nil, fmt.Errorf("failed to resolve audience: %w", err)
	}
	return contacts, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
