package storage

import (
	"context"
	"fmt"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/cuongbtq/mailflow-engine/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

// EventLog remembers which trigger events each tenant already enrolled.
type EventLog struct {
	client *postgresql.Client
	db     *sqlx.DB
}

func NewEventLog(client *postgresql.Client) *EventLog {
	return &EventLog{client: client, db: client.GetDB()}
}

// Seen reports whether the tenant's event was already enrolled.
func (l *EventLog) Seen(ctx context.Context, userID, eventID string) (bool, error) {
	var exists bool
	err := l.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE user_id = $1 AND event_id = $2)`,
		userID, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return exists, nil
}

// RecordEnrollment records the event and inserts its jobs in one transaction.
// It reports false and inserts nothing when the event was already recorded.
func (l *EventLog) RecordEnrollment(ctx context.Context, userID, eventID string, jobs []domain.NewJob) (bool, error) {
	var first bool
	err := l.client.WithinTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO processed_events (user_id, event_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			userID, eventID,
		)
		if err != nil {
			return fmt.Errorf("failed to record event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}

		first = true
		return insertJobs(ctx, tx, jobs)
	})
	if err != nil {
		return false, err
	}
	return first, nil
}
