package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/cuongbtq/mailflow-engine/internal/engine/campaign"
	"github.com/cuongbtq/mailflow-engine/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// CampaignStore gives the exploder a transactional view of campaigns,
// audiences and the queue.
type CampaignStore struct {
	client *postgresql.Client
	logger *slog.Logger
}

func NewCampaignStore(client *postgresql.Client, logger *slog.Logger) *CampaignStore {
	return &CampaignStore{client: client, logger: logger}
}

func (s *CampaignStore) WithinTx(ctx context.Context, fn func(tx campaign.Tx) error) error {
	return s.client.WithinTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&campaignTx{tx: tx})
	})
}

type campaignTx struct {
	tx *sqlx.Tx
}

// LockDueCampaign row-locks the oldest due campaign. Rows locked by a
// concurrent explosion are skipped, and a committed explosion is no longer
// scheduled, so each campaign is exploded once.
func (t *campaignTx) LockDueCampaign(ctx context.Context, now time.Time) (domain.Campaign, bool, error) {
	query := `
		SELECT id, user_id, status, definition, scheduled_at
		FROM automations
		WHERE kind = $1 AND status = $2 AND scheduled_at <= $3
		ORDER BY scheduled_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	var c domain.Campaign
	err := t.tx.GetContext(ctx, &c, query, domain.AutomationKindCampaign, domain.CampaignStatusScheduled, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Campaign{}, false, nil
		}
		return domain.Campaign{}, false, fmt.Errorf("failed to lock due campaign: %w", err)
	}
	return c, true, nil
}

func (t *campaignTx) ActiveAudience(ctx context.Context, userID, tag string) ([]domain.Contact, error) {
	return activeAudience(ctx, t.tx, userID, tag)
}

func (t *campaignTx) InsertJobs(ctx context.Context, jobs []domain.NewJob) error {
	return insertJobs(ctx, t.tx, jobs)
}

func (t *campaignTx) RecordRecipients(ctx context.Context, campaignID string, contactIDs []string) error {
	if len(contactIDs) == 0 {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO campaign_recipients (campaign_id, contact_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING
	`, campaignID, pq.Array(contactIDs))
	if err != nil {
		return fmt.Errorf("failed to record campaign recipients: %w", err)
	}
	return nil
}

func (t *campaignTx) CompleteCampaign(ctx context.Context, campaignID string, now time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE automations
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, domain.CampaignStatusCompleted, now, campaignID, domain.CampaignStatusScheduled)
	if err != nil {
		return fmt.Errorf("failed to complete campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("campaign %s is no longer scheduled", campaignID)
	}
	return nil
}

// Recipients returns the frozen audience of an exploded campaign.
func (s *CampaignStore) Recipients(ctx context.Context, campaignID string) ([]string, error) {
	var ids []string
	err := s.client.GetDB().SelectContext(ctx, &ids,
		`SELECT contact_id::text FROM campaign_recipients WHERE campaign_id = $1 ORDER BY contact_id`,
		campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign recipients: %w", err)
	}
	return ids, nil
}
