package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Static errors for job lifecycle operations.
var (
	// ErrTokenSourceRequired is returned when a Client is built without credentials.
	ErrTokenSourceRequired = errors.New("jobs: token source is required")
	// ErrURLRequired is returned when a request has no target URL.
	ErrURLRequired = errors.New("jobs: request URL is required")
	// ErrInvalidPollInterval is returned when the poll interval is not positive.
	ErrInvalidPollInterval = errors.New("jobs: poll interval must be positive")
	// ErrInvalidTimeout is returned when the wait timeout is not positive.
	ErrInvalidTimeout = errors.New("jobs: timeout must be positive")
	// ErrJobFailed matches every *JobFailedError via errors.Is.
	ErrJobFailed = errors.New("jobs: job failed")
	// ErrJobTimedOut matches every *JobTimedOutError via errors.Is.
	ErrJobTimedOut = errors.New("jobs: job timed out")
)

// SubmissionError is returned when a submission endpoint answers with a
// non-2xx status. Status and Body are kept verbatim for operators.
type SubmissionError struct {
	URL        string
	StatusCode int
	Status     string
	Body       string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("jobs: submit failed: %s - %s", e.Status, e.Body)
}

// RequestError is returned when a status or cancel call answers with a
// non-2xx status.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("jobs: %s %s failed: %s - %s", e.Method, e.URL, e.Status, e.Body)
}

// MalformedResponseError is returned when a 2xx response lacks the fields the
// lifecycle depends on, such as the job identifier or the status field.
type MalformedResponseError struct {
	Reason string
	Body   string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("jobs: malformed response: %s", e.Reason)
}

// ClassificationError is returned for a raw status outside the known vocabulary.
type ClassificationError struct {
	Raw string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("jobs: unrecognized job status %q", e.Raw)
}

// JobFailedError is returned when the provider reports a terminal failure.
type JobFailedError struct {
	JobID   string
	Code    string
	Message string
	Payload json.RawMessage
}

func (e *JobFailedError) Error() string {
	id := e.JobID
	if id == "" {
		id = "(unknown)"
	}
	if e.Code != "" {
		return fmt.Sprintf("jobs: job %s failed: %s: %s", id, e.Code, e.Message)
	}
	return fmt.Sprintf("jobs: job %s failed: %s", id, e.Message)
}

// Is reports whether target is ErrJobFailed.
func (e *JobFailedError) Is(target error) bool {
	return target == ErrJobFailed
}

// JobTimedOutError is returned when no terminal state was observed before
// the wait timeout. It is distinct from a provider-reported failure.
type JobTimedOutError struct {
	JobID      string
	Timeout    time.Duration
	Elapsed    time.Duration
	Attempts   int
	LastStatus Status
}

func (e *JobTimedOutError) Error() string {
	id := e.JobID
	if id == "" {
		id = "(unknown)"
	}
	return fmt.Sprintf("jobs: job %s did not complete within %s (last status %s after %d attempts)",
		id, e.Timeout, e.LastStatus, e.Attempts)
}

// Is reports whether target is ErrJobTimedOut.
func (e *JobTimedOutError) Is(target error) bool {
	return target == ErrJobTimedOut
}
