package domain

import "time"

// TriggerKind names the event that enrolls a contact into an automation.
type TriggerKind string

const (
	TriggerContactAdded TriggerKind = "contact_added"
	TriggerTagAdded     TriggerKind = "tag_added"
	TriggerCustomEvent  TriggerKind = "event"
	TriggerWebhook      TriggerKind = "webhook"
	// TriggerManual is used for explicit enrollment and never appears in a definition.
	TriggerManual TriggerKind = "manual"
)

// Scope limits how often one contact may enter the same automation.
type Scope string

const (
	ScopeUnlimited      Scope = "unlimited"
	ScopeOncePerContact Scope = "once_per_contact"
)

// Trigger describes what enrolls contacts and which contacts are eligible.
type Trigger struct {
	Kind        TriggerKind `json:"type" validate:"required,oneof=contact_added tag_added event webhook"`
	Tag         string      `json:"tag,omitempty" validate:"required_if=Kind tag_added"`
	EventName   string      `json:"name,omitempty" validate:"required_if=Kind event"`
	RequiredTag string      `json:"required_tag,omitempty"`
	Scope       Scope       `json:"scope,omitempty" validate:"omitempty,oneof=unlimited once_per_contact"`
}

// StepKind is the type tag of a workflow step.
type StepKind string

const (
	StepDelay     StepKind = "delay"
	StepSendEmail StepKind = "send_email"
	StepAddTag    StepKind = "add_tag"
)

// Step is one of DelayStep, SendEmailStep or AddTagStep.
type Step interface {
	Kind() StepKind
	step()
}

// DelayUnit is the time unit of a DelayStep.
type DelayUnit string

const (
	UnitMinutes DelayUnit = "minutes"
	UnitHours   DelayUnit = "hours"
	UnitDays    DelayUnit = "days"
)

// DelayStep gates the next step by a fixed amount of time.
type DelayStep struct {
	Amount int       `validate:"gt=0"`
	Unit   DelayUnit `validate:"oneof=minutes hours days"`
}

// MaxDelay caps a single delay step so the resulting time stays representable.
const MaxDelay = 100 * 365 * 24 * time.Hour

// Span is the length of one unit. Unknown units count as days.
func (u DelayUnit) Span() time.Duration {
	switch u {
	case UnitMinutes:
		return time.Minute
	case UnitHours:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// MaxDelayAmount is the largest amount of u that fits within MaxDelay.
func MaxDelayAmount(u DelayUnit) int {
	return int(MaxDelay / u.Span())
}

// Duration converts the delay into a time.Duration, capped at MaxDelay.
func (s DelayStep) Duration() time.Duration {
	if s.Amount > MaxDelayAmount(s.Unit) {
		return MaxDelay
	}
	return time.Duration(s.Amount) * s.Unit.Span()
}

func (DelayStep) Kind() StepKind { return StepDelay }
func (DelayStep) step()          {}

// SendEmailStep sends a rendered template from a sender identity.
type SendEmailStep struct {
	TemplateID string `validate:"required"`
	SenderID   string `validate:"required"`
}

func (SendEmailStep) Kind() StepKind { return StepSendEmail }
func (SendEmailStep) step()          {}

// AddTagStep attaches a tag to the contact.
type AddTagStep struct {
	TagName string `validate:"required"`
}

func (AddTagStep) Kind() StepKind { return StepAddTag }
func (AddTagStep) step()          {}

// Definition is a decoded, validated workflow.
type Definition struct {
	Trigger Trigger
	Steps   []Step
}

// Len returns the completion index of the workflow.
func (d Definition) Len() int {
	return len(d.Steps)
}
