package engine

import (
	"context"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
)

// QueueStore persists job progress. Every method that changes a claimed job
// is conditional on workerID still holding the claim.
type QueueStore interface {
	FetchDueBatch(ctx context.Context, now time.Time, limit int, workerID string, lease time.Duration) ([]domain.DueJob, error)
	ApplyTransition(ctx context.Context, jobID, workerID string, decision domain.Decision, now time.Time) error
	MarkFailed(ctx context.Context, jobID, workerID, reason string, now time.Time) error
	Release(ctx context.Context, workerID string, jobIDs []string) error
}

// Exploder fans due campaigns out into queue jobs.
type Exploder interface {
	ExplodeDueCampaigns(ctx context.Context) (int, error)
}

// Mailer delivers one rendered email.
type Mailer interface {
	Send(ctx context.Context, email domain.Email) error
}

// TagStore resolves tags and attaches them to contacts. Associate reports
// false when the contact already carried the tag.
type TagStore interface {
	ResolveOrCreateTag(ctx context.Context, userID, name string) (string, error)
	Associate(ctx context.Context, contactID, tagID string) (bool, error)
}

// ContentStore resolves tenant-owned templates and sender identities.
type ContentStore interface {
	Template(ctx context.Context, userID, templateID string) (domain.Template, error)
	Sender(ctx context.Context, userID, senderID string) (domain.Sender, error)
}

// Vault returns decrypted provider credentials, or domain.ErrCredentialMissing.
type Vault interface {
	Credential(ctx context.Context, userID, provider string) (string, error)
}

// EventPublisher forwards trigger events raised by steps, such as a tag
// being newly attached.
type EventPublisher interface {
	PublishTrigger(ctx context.Context, event domain.TriggerEvent) error
}

// Locker guards a whole invocation against overlapping runs.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}
