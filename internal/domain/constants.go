package domain

// JobStatus is the persisted status column of a queue job.
type JobStatus string

// Job status constants
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition may leave this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Campaign status constants
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusSending   = "sending"
	CampaignStatusCompleted = "completed"
)

// Automation kinds and statuses
const (
	AutomationKindWorkflow = "automation"
	AutomationKindCampaign = "campaign"

	AutomationStatusActive = "active"
	AutomationStatusPaused = "paused"
)

// Contact status constants
const (
	ContactStatusActive       = "active"
	ContactStatusUnsubscribed = "unsubscribed"
	ContactStatusBounced      = "bounced"
)

// ProviderEmail is the vault provider key for the tenant's email API credential.
const ProviderEmail = "email"
