package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job is a queue row as stored, used by the API and by storage scans.
type Job struct {
	ID           string     `db:"id"`
	AutomationID string     `db:"automation_id"`
	ContactID    string     `db:"contact_id"`
	UserID       string     `db:"user_id"`
	Status       JobStatus  `db:"status"`
	ExecuteAt    time.Time  `db:"execute_at"`
	Payload      Payload    `db:"payload"`
	ErrorMessage *string    `db:"error_message"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	CompletedAt  *time.Time `db:"completed_at"`
}

// State folds the status column and the cursor into a JobState.
func (j *Job) State() (JobState, error) {
	errMsg := ""
	if j.ErrorMessage != nil {
		errMsg = *j.ErrorMessage
	}
	return StateFromRow(j.Status, j.Payload.StepIndex, errMsg)
}

// NewJob is the insertion contract for trigger producers and the campaign exploder.
type NewJob struct {
	ID           string
	AutomationID string
	ContactID    string
	UserID       string
	ExecuteAt    time.Time
	Payload      Payload
}

// DueJob is a claimed job enriched with everything needed to run its next step.
type DueJob struct {
	Job
	Definition json.RawMessage
	Contact    Contact
}

// JobState is the logical state of a job: Pending, Completed or Failed.
type JobState interface {
	Status() JobStatus
	jobState()
}

// Pending jobs are waiting for the step at StepIndex.
type Pending struct {
	StepIndex int
}

func (Pending) Status() JobStatus { return JobStatusPending }
func (Pending) jobState()         {}

// Completed jobs ran past their last step.
type Completed struct{}

func (Completed) Status() JobStatus { return JobStatusCompleted }
func (Completed) jobState()         {}

// Failed jobs stopped on a fatal error.
type Failed struct {
	Reason string
}

func (Failed) Status() JobStatus { return JobStatusFailed }
func (Failed) jobState()         {}

// NewFailed builds a Failed state, never with an empty reason.
func NewFailed(reason string) Failed {
	if reason == "" {
		reason = "unknown error"
	}
	return Failed{Reason: reason}
}

// StateFromRow rebuilds a JobState from persisted columns. A processing row
// is still logically pending at its cursor.
func StateFromRow(status JobStatus, stepIndex int, errMsg string) (JobState, error) {
	switch status {
	case JobStatusPending, JobStatusProcessing:
		if stepIndex < 0 {
			return nil, fmt.Errorf("%w: negative step index %d", ErrInvalidState, stepIndex)
		}
		return Pending{StepIndex: stepIndex}, nil
	case JobStatusCompleted:
		return Completed{}, nil
	case JobStatusFailed:
		return NewFailed(errMsg), nil
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidState, status)
	}
}

// Decision is the interpreter's verdict for one job: Complete or Advance.
type Decision interface {
	NextState() JobState
	decision()
}

// Complete finishes the job without side effects.
type Complete struct{}

func (Complete) NextState() JobState { return Completed{} }
func (Complete) decision()           {}

// Advance performs Step and moves the cursor to NextIndex, due at NextExecuteAt.
type Advance struct {
	Step          Step
	NextIndex     int
	NextExecuteAt time.Time
}

func (a Advance) NextState() JobState { return Pending{StepIndex: a.NextIndex} }
func (Advance) decision()             {}
