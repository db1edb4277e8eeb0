package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFiles is returned when a submission is attempted with nothing staged.
	ErrNoFiles = errors.New("no files staged")
	// ErrSubmitInFlight is returned when a second submission starts before the first returns.
	ErrSubmitInFlight = errors.New("a submission is already in progress")
	// ErrTaskNotFound is returned by the service for an unknown task id.
	ErrTaskNotFound = errors.New("task not found")
)

// ValidationKind names which staging rule rejected a file.
type ValidationKind string

const (
	ValidationMimeType ValidationKind = "mime_type"
	ValidationSize     ValidationKind = "size"
	ValidationCapacity ValidationKind = "capacity"
)

// ValidationError is a locally recovered staging rejection.
type ValidationError struct {
	Kind     ValidationKind
	FileName string
	Message  string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// SubmissionError is returned when an upload could not produce a job id.
type SubmissionError struct {
	StatusCode int
	Detail     string
	Cause      error
}

func (e *SubmissionError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("upload failed (status %d): %s", e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("upload failed (status %d)", e.StatusCode)
	case e.Cause != nil:
		return fmt.Sprintf("upload failed: %v", e.Cause)
	default:
		return "upload failed"
	}
}

func (e *SubmissionError) Unwrap() error {
	return e.Cause
}

// PollingTransientError wraps a failed status query. The poller logs and drops these.
type PollingTransientError struct {
	TaskID string
	Cause  error
}

func (e *PollingTransientError) Error() string {
	return fmt.Sprintf("status check for task %s failed: %v", e.TaskID, e.Cause)
}

func (e *PollingTransientError) Unwrap() error {
	return e.Cause
}

// ProcessingFailure is the terminal error for a job the service reported as failed.
type ProcessingFailure struct {
	TaskID string
	Reason string
}

func (e *ProcessingFailure) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("processing failed for task %s", e.TaskID)
	}
	return fmt.Sprintf("processing failed for task %s: %s", e.TaskID, e.Reason)
}

// APIError is a non-2xx answer from the processing service.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Detail)
}

// Is lets callers match a 404 with errors.Is(err, ErrTaskNotFound).
func (e *APIError) Is(target error) bool {
	return target == ErrTaskNotFound && e.StatusCode == 404
}
