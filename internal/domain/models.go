package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Automation owns a workflow definition. Campaigns are automations of kind
// "campaign" with a single scheduled firing.
type Automation struct {
	ID            string          `db:"id"`
	UserID        string          `db:"user_id"`
	Name          string          `db:"name"`
	Kind          string          `db:"kind"`
	Status        string          `db:"status"`
	Definition    json.RawMessage `db:"definition"`
	WebhookSecret *string         `db:"webhook_secret"`
	ScheduledAt   *time.Time      `db:"scheduled_at"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// Campaign is the subset of an automation the exploder works with.
type Campaign struct {
	ID          string          `db:"id"`
	UserID      string          `db:"user_id"`
	Status      string          `db:"status"`
	Definition  json.RawMessage `db:"definition"`
	ScheduledAt time.Time       `db:"scheduled_at"`
}

// Contact is a tenant's audience member.
type Contact struct {
	ID         string     `db:"id"`
	UserID     string     `db:"user_id"`
	Email      string     `db:"email"`
	FirstName  string     `db:"first_name"`
	LastName   string     `db:"last_name"`
	Status     string     `db:"status"`
	Attributes Attributes `db:"attributes"`
}

// Attributes are free-form contact fields available to personalisation.
type Attributes map[string]string

func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

func (a *Attributes) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*a = Attributes{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported attributes type %T", src)
	}

	// values may be non-string JSON; flatten them to their literal form
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode attributes: %w", err)
	}
	out := make(Attributes, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	*a = out
	return nil
}

// Template is a stored email template.
type Template struct {
	ID      string `db:"id"`
	UserID  string `db:"user_id"`
	Subject string `db:"subject"`
	HTML    string `db:"html"`
}

// Sender is a verified sender identity.
type Sender struct {
	ID     string `db:"id"`
	UserID string `db:"user_id"`
	Name   string `db:"name"`
	Email  string `db:"email"`
}

// Address renders the RFC 5322 from-identity.
func (s Sender) Address() string {
	if s.Name == "" {
		return s.Email
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// TriggerEvent is what producers publish and the enroller consumes.
type TriggerEvent struct {
	EventID      string            `json:"event_id"`
	UserID       string            `json:"user_id"`
	Kind         TriggerKind       `json:"kind"`
	ContactID    string            `json:"contact_id,omitempty"`
	ContactEmail string            `json:"contact_email,omitempty"`
	AutomationID string            `json:"automation_id,omitempty"`
	Name         string            `json:"name,omitempty"`
	Tag          string            `json:"tag,omitempty"`
	Contact      *ContactInput     `json:"contact,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// ContactInput carries contact fields submitted through a webhook.
type ContactInput struct {
	Email      string            `json:"email"`
	FirstName  string            `json:"first_name,omitempty"`
	LastName   string            `json:"last_name,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Email is one outbound message handed to the mailer.
type Email struct {
	UserID     string
	From       string
	To         string
	Subject    string
	HTML       string
	Credential string
	JobID      string
}
