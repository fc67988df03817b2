// Package trigger turns trigger events into queue jobs for every automation
// the event enrolls the contact into.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/cuongbtq/mailflow-engine/internal/metrics"
	"github.com/cuongbtq/mailflow-engine/internal/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var ErrInvalidEvent = errors.New("invalid trigger event")

type AutomationSource interface {
	GetAutomation(ctx context.Context, userID, automationID string) (*domain.Automation, error)
	ActiveByTrigger(ctx context.Context, userID string, kind domain.TriggerKind) ([]domain.Automation, error)
}

type ContactSource interface {
	GetContact(ctx context.Context, userID, contactID string) (*domain.Contact, error)
	FindByEmail(ctx context.Context, userID, email string) (*domain.Contact, error)
	UpsertContact(ctx context.Context, userID string, in domain.ContactInput) (*domain.Contact, bool, error)
	HasTag(ctx context.Context, contactID, tagName string) (bool, error)
}

type JobSink interface {
	InsertJobs(ctx context.Context, jobs []domain.NewJob) error
	HasJob(ctx context.Context, automationID, contactID string) (bool, error)
}

// EventLog deduplicates redelivered events per tenant. RecordEnrollment
// stores the jobs and the event id atomically and reports false, storing
// nothing, when the event was recorded first by someone else.
type EventLog interface {
	Seen(ctx context.Context, userID, eventID string) (bool, error)
	RecordEnrollment(ctx context.Context, userID, eventID string, jobs []domain.NewJob) (bool, error)
}

// Config holds enroller dependencies. Events and Observer are optional.
type Config struct {
	Logger      *slog.Logger
	Automations AutomationSource
	Contacts    ContactSource
	Jobs        JobSink
	Events      EventLog
	Observer    metrics.EngineObserver
	Now         func() time.Time
}

type Enroller struct {
	logger      *slog.Logger
	automations AutomationSource
	contacts    ContactSource
	jobs        JobSink
	events      EventLog
	observer    metrics.EngineObserver
	validate    *validator.Validate
	now         func() time.Time
}

func NewEnroller(cfg *Config) *Enroller {
	e := &Enroller{
		logger:      cfg.Logger,
		automations: cfg.Automations,
		contacts:    cfg.Contacts,
		jobs:        cfg.Jobs,
		events:      cfg.Events,
		observer:    cfg.Observer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         cfg.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.observer == nil {
		e.observer = metrics.Noop{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// eventRules validates the fields each event kind needs.
type eventRules struct {
	EventID      string             `validate:"required"`
	UserID       string             `validate:"required"`
	Kind         domain.TriggerKind `validate:"required,oneof=contact_added tag_added event webhook manual"`
	AutomationID string             `validate:"required_if=Kind manual,required_if=Kind webhook"`
	Name         string             `validate:"required_if=Kind event"`
	Tag          string             `validate:"required_if=Kind tag_added"`
	HasContact   bool               `validate:"eq=true"`
}

func (e *Enroller) check(ev domain.TriggerEvent) error {
	rules := eventRules{
		EventID:      ev.EventID,
		UserID:       ev.UserID,
		Kind:         ev.Kind,
		AutomationID: ev.AutomationID,
		Name:         ev.Name,
		Tag:          ev.Tag,
		HasContact:   ev.ContactID != "" || ev.ContactEmail != "" || (ev.Contact != nil && ev.Contact.Email != ""),
	}
	if err := e.validate.Struct(rules); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

// Enroll creates one pending job per automation the event enrolls its
// contact into and returns how many were created. A redelivered event is
// enrolled at most once per tenant when an EventLog is configured.
func (e *Enroller) Enroll(ctx context.Context, ev domain.TriggerEvent) (int, error) {
	if err := e.check(ev); err != nil {
		return 0, err
	}

	if e.events != nil {
		seen, err := e.events.Seen(ctx, ev.UserID, ev.EventID)
		if err != nil {
			return 0, domain.NewRetryableError(err)
		}
		if seen {
			e.logDuplicate(ev)
			return 0, nil
		}
	}

	jobs, err := e.plan(ctx, ev)
	if err != nil || len(jobs) == 0 {
		return 0, err
	}

	first := true
	if e.events != nil {
		first, err = e.events.RecordEnrollment(ctx, ev.UserID, ev.EventID, jobs)
	} else {
		err = e.jobs.InsertJobs(ctx, jobs)
	}
	if err != nil {
		return 0, domain.NewRetryableError(fmt.Errorf("failed to enqueue jobs: %w", err))
	}
	if !first {
		e.logDuplicate(ev)
		return 0, nil
	}

	e.observer.RecordEnrollment(string(ev.Kind), len(jobs))
	e.logger.Info("Contact enrolled",
		slog.String("event_id", ev.EventID),
		slog.String("trigger", string(ev.Kind)),
		slog.String("contact_id", jobs[0].ContactID),
		slog.Int("automations", len(jobs)),
	)
	return len(jobs), nil
}

func (e *Enroller) logDuplicate(ev domain.TriggerEvent) {
	e.logger.Info("Duplicate trigger event, skipping",
		slog.String("event_id", ev.EventID),
		slog.String("user_id", ev.UserID),
	)
}

// plan resolves the event's contact and builds one job per automation it
// is eligible for.
func (e *Enroller) plan(ctx context.Context, ev domain.TriggerEvent) ([]domain.NewJob, error) {
	contact, created, err := e.resolveContact(ctx, ev)
	if err != nil {
		return nil, err
	}

	// contact_added only fires for contacts this event actually created,
	// unless the producer named an existing contact explicitly
	if ev.Kind == domain.TriggerContactAdded && !created && ev.ContactID == "" {
		return nil, nil
	}

	if contact.Status != domain.ContactStatusActive {
		e.logger.Info("Contact is not active, not enrolling",
			slog.String("contact_id", contact.ID),
			slog.String("status", contact.Status),
		)
		return nil, nil
	}

	candidates, err := e.candidates(ctx, ev)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var jobs []domain.NewJob
	for _, a := range candidates {
		ok, err := e.eligible(ctx, ev, a, contact)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		snapshot, err := workflow.Snapshot(a.Definition)
		if err != nil {
			e.logger.Warn("Skipping automation with unreadable definition",
				slog.String("automation_id", a.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		jobs = append(jobs, domain.NewJob{
			ID:           uuid.NewString(),
			AutomationID: a.ID,
			ContactID:    contact.ID,
			UserID:       ev.UserID,
			ExecuteAt:    now,
			Payload:      domain.NewPayload(snapshot),
		})
	}

	return jobs, nil
}

func (e *Enroller) resolveContact(ctx context.Context, ev domain.TriggerEvent) (*domain.Contact, bool, error) {
	switch {
	case ev.ContactID != "":
		c, err := e.contacts.GetContact(ctx, ev.UserID, ev.ContactID)
		return c, false, e.lookupErr(err)
	case ev.Contact != nil && ev.Contact.Email != "":
		c, created, err := e.contacts.UpsertContact(ctx, ev.UserID, *ev.Contact)
		if err != nil {
			return nil, false, domain.NewRetryableError(err)
		}
		return c, created, nil
	default:
		c, err := e.contacts.FindByEmail(ctx, ev.UserID, ev.ContactEmail)
		return c, false, e.lookupErr(err)
	}
}

func (e *Enroller) lookupErr(err error) error {
	if err == nil || errors.Is(err, domain.ErrContactNotFound) {
		return err
	}
	return domain.NewRetryableError(err)
}

func (e *Enroller) candidates(ctx context.Context, ev domain.TriggerEvent) ([]domain.Automation, error) {
	if ev.AutomationID == "" {
		list, err := e.automations.ActiveByTrigger(ctx, ev.UserID, ev.Kind)
		if err != nil {
			return nil, domain.NewRetryableError(err)
		}
		return list, nil
	}

	a, err := e.automations.GetAutomation(ctx, ev.UserID, ev.AutomationID)
	if err != nil {
		if errors.Is(err, domain.ErrAutomationNotFound) {
			return nil, err
		}
		return nil, domain.NewRetryableError(err)
	}
	if a.Kind != domain.AutomationKindWorkflow || a.Status != domain.AutomationStatusActive {
		e.logger.Info("Automation is not an active workflow, not enrolling",
			slog.String("automation_id", a.ID),
			slog.String("kind", a.Kind),
			slog.String("status", a.Status),
		)
		return nil, nil
	}
	return []domain.Automation{*a}, nil
}

// eligible applies the automation's trigger filters to the event and contact.
func (e *Enroller) eligible(ctx context.Context, ev domain.TriggerEvent, a domain.Automation, contact *domain.Contact) (bool, error) {
	def, err := workflow.Decode(a.Definition)
	if err != nil {
		e.logger.Warn("Skipping automation with invalid definition",
			slog.String("automation_id", a.ID),
			slog.String("error", err.Error()),
		)
		return false, nil
	}
	trigger := def.Trigger

	switch ev.Kind {
	case domain.TriggerManual:
	case domain.TriggerTagAdded:
		if trigger.Kind != ev.Kind || !strings.EqualFold(trigger.Tag, ev.Tag) {
			return false, nil
		}
	case domain.TriggerCustomEvent:
		if trigger.Kind != ev.Kind || trigger.EventName != ev.Name {
			return false, nil
		}
	default:
		if trigger.Kind != ev.Kind {
			return false, nil
		}
	}

	if trigger.RequiredTag != "" {
		has, err := e.contacts.HasTag(ctx, contact.ID, trigger.RequiredTag)
		if err != nil {
			return false, domain.NewRetryableError(err)
		}
		if !has {
			return false, nil
		}
	}

	if trigger.Scope == domain.ScopeOncePerContact {
		enrolled, err := e.jobs.HasJob(ctx, a.ID, contact.ID)
		if err != nil {
			return false, domain.NewRetryableError(err)
		}
		if enrolled {
			return false, nil
		}
	}
	return true, nil
}
