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

const automationColumns = `id, user_id, name, kind, status, definition, webhook_secret,
	scheduled_at, created_at, updated_at`

// AutomationStore reads automation definitions.
type AutomationStore struct {
	db *sqlx.DB
}

func NewAutomationStore(client *postgresql.Client) *AutomationStore {
	return &AutomationStore{db: client.GetDB()}
}

// GetAutomation retrieves an automation by ID, scoped to userID when it is non-empty.
func (s *AutomationStore) GetAutomation(ctx context.Context, userID, automationID string) (*domain.Automation, error) {
	var a domain.Automation
	err := s.db.GetContext(ctx, &a,
		`SELECT `+automationColumns+` FROM automations WHERE id = $1 AND ($2 = '' OR user_id = $2)`,
		automationID, userID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAutomationNotFound
		}
		return nil, fmt.Errorf("failed to get automation: %w", err)
	}
	return &a, nil
}

// ActiveByTrigger lists a tenant's active automations whose trigger type is kind.
func (s *AutomationStore) ActiveByTrigger(ctx context.Context, userID string, kind domain.TriggerKind) ([]domain.Automation, error) {
	var out []domain.Automation
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+automationColumns+`
		FROM automations
		WHERE user_id = $1 AND kind = $2 AND status = $3
		  AND definition -> 'trigger' ->> 'type' = $4
		ORDER BY created_at
	`, userID, domain.AutomationKindWorkflow, domain.AutomationStatusActive, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list automations by trigger: %w", err)
	}
	return out, nil
}
