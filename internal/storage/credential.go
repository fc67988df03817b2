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

// CredentialStore keeps sealed provider credentials; it never sees plaintext.
type CredentialStore struct {
	db *sqlx.DB
}

func NewCredentialStore(client *postgresql.Client) *CredentialStore {
	return &CredentialStore{db: client.GetDB()}
}

func (s *CredentialStore) Sealed(ctx context.Context, userID, provider string) ([]byte, error) {
	var sealed []byte
	err := s.db.GetContext(ctx, &sealed,
		`SELECT sealed FROM credentials WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCredentialMissing
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return sealed, nil
}

func (s *CredentialStore) PutSealed(ctx context.Context, userID, provider string, sealed []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (user_id, provider, sealed)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, provider) DO UPDATE
		SET sealed = EXCLUDED.sealed, updated_at = NOW()
	`, userID, provider, sealed)
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}
