package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when a transition targets a job this worker no longer holds
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in processing status")

	// ErrInvalidPayload is returned when a job payload or event message is malformed
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrInvalidDefinition is returned when a workflow definition cannot be decoded
	ErrInvalidDefinition = errors.New("invalid workflow definition")

	// ErrStepIndexOutOfRange is returned when a cursor points past the completion index
	ErrStepIndexOutOfRange = errors.New("step index out of range")

	ErrAutomationNotFound = errors.New("automation not found")
	ErrContactNotFound    = errors.New("contact not found")
	ErrTemplateNotFound   = errors.New("template not found")
	ErrSenderNotFound     = errors.New("sender not found")

	// ErrCredentialMissing is returned by the vault when the tenant has no credential for a provider
	ErrCredentialMissing = errors.New("provider credential not configured")

	// ErrInvalidState is returned when a status/cursor combination cannot form a JobState
	ErrInvalidState = errors.New("invalid job state")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// FatalError marks a job-level failure that must not be retried.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatalError wraps err as job-fatal.
func NewFatalError(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err was classified as job-fatal.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
