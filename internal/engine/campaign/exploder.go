// Package campaign fans scheduled campaigns out into per-contact queue jobs.
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/cuongbtq/mailflow-engine/internal/workflow"
	"github.com/google/uuid"
)

// Store runs fn in one transaction, committing only if fn returns nil.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view the exploder works through.
type Tx interface {
	// LockDueCampaign locks one scheduled campaign due at now, skipping rows
	// another transaction already holds.
	LockDueCampaign(ctx context.Context, now time.Time) (domain.Campaign, bool, error)
	ActiveAudience(ctx context.Context, userID, tag string) ([]domain.Contact, error)
	InsertJobs(ctx context.Context, jobs []domain.NewJob) error
	RecordRecipients(ctx context.Context, campaignID string, contactIDs []string) error
	CompleteCampaign(ctx context.Context, campaignID string, now time.Time) error
}

// Config holds exploder configuration
type Config struct {
	Logger *slog.Logger
	Store  Store
	// MaxPerRun caps campaigns exploded per call; zero means one.
	MaxPerRun int
	Now       func() time.Time
}

type Exploder struct {
	logger    *slog.Logger
	store     Store
	maxPerRun int
	now       func() time.Time
}

func NewExploder(cfg *Config) *Exploder {
	e := &Exploder{
		logger:    cfg.Logger,
		store:     cfg.Store,
		maxPerRun: cfg.MaxPerRun,
		now:       cfg.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.maxPerRun <= 0 {
		e.maxPerRun = 1
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// ExplodeDueCampaigns explodes up to MaxPerRun due campaigns and returns how
// many were completed. Each campaign is exploded in its own transaction, so a
// failure leaves that campaign scheduled with no jobs inserted.
func (e *Exploder) ExplodeDueCampaigns(ctx context.Context) (int, error) {
	exploded := 0
	for exploded < e.maxPerRun {
		found, err := e.explodeOne(ctx)
		if err != nil {
			return exploded, err
		}
		if !found {
			break
		}
		exploded++
	}
	return exploded, nil
}

func (e *Exploder) explodeOne(ctx context.Context) (bool, error) {
	found := false
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		now := e.now()

		campaign, ok, err := tx.LockDueCampaign(ctx, now)
		if err != nil {
			return fmt.Errorf("failed to lock due campaign: %w", err)
		}
		if !ok {
			return nil
		}

		snapshot, err := workflow.Snapshot(campaign.Definition)
		if err != nil {
			return fmt.Errorf("campaign %s: %w", campaign.ID, err)
		}

		tag := workflow.AudienceTag(campaign.Definition)
		audience, err := tx.ActiveAudience(ctx, campaign.UserID, tag)
		if err != nil {
			return fmt.Errorf("failed to resolve audience for campaign %s: %w", campaign.ID, err)
		}

		jobs := make([]domain.NewJob, 0, len(audience))
		contactIDs := make([]string, 0, len(audience))
		for _, c := range audience {
			jobs = append(jobs, domain.NewJob{
				ID:           uuid.NewString(),
				AutomationID: campaign.ID,
				ContactID:    c.ID,
				UserID:       campaign.UserID,
				ExecuteAt:    now,
				Payload:      domain.NewPayload(snapshot),
			})
			contactIDs = append(contactIDs, c.ID)
		}

		if err := tx.InsertJobs(ctx, jobs); err != nil {
			return fmt.Errorf("failed to insert jobs for campaign %s: %w", campaign.ID, err)
		}
		if err := tx.RecordRecipients(ctx, campaign.ID, contactIDs); err != nil {
			return fmt.Errorf("failed to record recipients for campaign %s: %w", campaign.ID, err)
		}
		if err := tx.CompleteCampaign(ctx, campaign.ID, now); err != nil {
			return fmt.Errorf("failed to complete campaign %s: %w", campaign.ID, err)
		}

		found = true
		e.logger.Info("Campaign exploded",
			slog.String("campaign_id", campaign.ID),
			slog.String("user_id", campaign.UserID),
			slog.String("audience_tag", tag),
			slog.Int("jobs", len(jobs)),
		)
		return nil
	})
	if err != nil {
		e.logger.Error("Campaign explosion failed, campaign stays scheduled",
			slog.String("error", err.Error()),
		)
		return false, err
	}
	return found, nil
}
