package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
)

type ListJobsRequest struct {
	AutomationID string `form:"automation_id"`
	ContactID    string `form:"contact_id"`
	Status       string `form:"status" binding:"omitempty,oneof=pending processing completed failed"`
	PageSize     int    `form:"page_size"`
	Cursor       string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID        string          `json:"job_id"`
	AutomationID string          `json:"automation_id"`
	ContactID    string          `json:"contact_id"`
	Status       string          `json:"status"`
	StepIndex    int             `json:"step_index"`
	ExecuteAt    string          `json:"execute_at"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	CompletedAt  string          `json:"completed_at,omitempty"`
}

// NewJobDTO renders a stored job for the API.
func NewJobDTO(job domain.Job) JobDTO {
	out := JobDTO{
		JobID:        job.ID,
		AutomationID: job.AutomationID,
		ContactID:    job.ContactID,
		Status:       string(job.Status),
		StepIndex:    job.Payload.StepIndex,
		ExecuteAt:    job.ExecuteAt.UTC().Format(time.RFC3339),
		CreatedAt:    job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if job.ErrorMessage != nil {
		out.ErrorMessage = *job.ErrorMessage
	}
	if job.CompletedAt != nil {
		out.CompletedAt = job.CompletedAt.UTC().Format(time.RFC3339)
	}
	if payload, err := json.Marshal(job.Payload); err == nil {
		out.Payload = payload
	}
	return out
}
