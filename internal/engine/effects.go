package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/cuongbtq/mailflow-engine/internal/engine/interpreter"
	"github.com/google/uuid"
)

// perform executes the side effect of an advancing step. Every error it
// returns is job-fatal.
func (l *Loop) perform(ctx context.Context, job *domain.DueJob, step domain.Step) error {
	switch s := step.(type) {
	case domain.DelayStep:
		return nil
	case domain.SendEmailStep:
		return domain.NewFatalError(l.sendEmail(ctx, job, s))
	case domain.AddTagStep:
		return domain.NewFatalError(l.addTag(ctx, job, s))
	default:
		return domain.NewFatalError(fmt.Errorf("%w: unsupported step %T", domain.ErrInvalidDefinition, step))
	}
}

func (l *Loop) sendEmail(ctx context.Context, job *domain.DueJob, step domain.SendEmailStep) error {
	if job.Contact.Email == "" {
		return fmt.Errorf("%w: contact %s has no email address", domain.ErrContactNotFound, job.ContactID)
	}

	credential, err := l.vault.Credential(ctx, job.UserID, domain.ProviderEmail)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialMissing) {
			return fmt.Errorf("no %s credential for user %s: %w", domain.ProviderEmail, job.UserID, err)
		}
		return fmt.Errorf("failed to load credential: %w", err)
	}

	sender, err := l.content.Sender(ctx, job.UserID, step.SenderID)
	if err != nil {
		return fmt.Errorf("failed to resolve sender %s: %w", step.SenderID, err)
	}

	tmpl, err := l.content.Template(ctx, job.UserID, step.TemplateID)
	if err != nil {
		return fmt.Errorf("failed to resolve template %s: %w", step.TemplateID, err)
	}

	subject, html := interpreter.RenderTemplate(tmpl, job.Contact)
	email := domain.Email{
		UserID:     job.UserID,
		From:       sender.Address(),
		To:         job.Contact.Email,
		Subject:    subject,
		HTML:       html,
		Credential: credential,
		JobID:      job.ID,
	}

	if err := l.mailer.Send(ctx, email); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	l.logger.Info("Email sent",
		slog.String("job_id", job.ID),
		slog.String("template_id", step.TemplateID),
		slog.String("contact_id", job.ContactID),
	)
	return nil
}

func (l *Loop) addTag(ctx context.Context, job *domain.DueJob, step domain.AddTagStep) error {
	tagID, err := l.tags.ResolveOrCreateTag(ctx, job.UserID, step.TagName)
	if err != nil {
		return fmt.Errorf("failed to resolve tag %q: %w", step.TagName, err)
	}

	added, err := l.tags.Associate(ctx, job.ContactID, tagID)
	if err != nil {
		return fmt.Errorf("failed to tag contact: %w", err)
	}
	if !added || l.events == nil {
		return nil
	}

	event := domain.TriggerEvent{
		EventID:    uuid.NewString(),
		UserID:     job.UserID,
		Kind:       domain.TriggerTagAdded,
		ContactID:  job.ContactID,
		Tag:        step.TagName,
		OccurredAt: l.now(),
	}
	if err := l.events.PublishTrigger(ctx, event); err != nil {
		// the tag is attached either way
		l.logger.Warn("Failed to publish tag_added event",
			slog.String("job_id", job.ID),
			slog.String("tag", step.TagName),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
