package dto

// ContactRequest carries contact fields that create or update a contact.
type ContactRequest struct {
	Email      string            `json:"email" binding:"required,email"`
	FirstName  string            `json:"first_name"`
	LastName   string            `json:"last_name"`
	Attributes map[string]string `json:"attributes"`
}

// EventRequest is a producer-submitted trigger event.
type EventRequest struct {
	EventID      string            `json:"event_id" binding:"omitempty,max=128"`
	Kind         string            `json:"kind" binding:"required,oneof=contact_added tag_added event"`
	ContactID    string            `json:"contact_id" binding:"omitempty,uuid"`
	ContactEmail string            `json:"contact_email" binding:"omitempty,email"`
	Contact      *ContactRequest   `json:"contact"`
	Name         string            `json:"name" binding:"required_if=Kind event"`
	Tag          string            `json:"tag" binding:"required_if=Kind tag_added"`
	Data         map[string]string `json:"data"`
}

// WebhookRequest is the body of a per-automation webhook call.
type WebhookRequest struct {
	EventID string `json:"event_id" binding:"omitempty,max=128"`
	ContactRequest
	Data map[string]string `json:"data"`
}

// EnrollRequest names the contact to enroll manually, by id or email.
type EnrollRequest struct {
	EventID      string `json:"event_id" binding:"omitempty,max=128"`
	ContactID    string `json:"contact_id" binding:"omitempty,uuid"`
	ContactEmail string `json:"contact_email" binding:"omitempty,email"`
}

type AcceptedResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}
