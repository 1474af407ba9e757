// Package job provides the Job aggregate for tracking provider jobs submitted
// through the gateway. It includes the Job entity with a state machine aligned
// with the provider lifecycle plus a local timed_out state, as well as
// repository interfaces for persistence.
package job

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/maauso/firefly-jobs/internal/job/id"
	"github.com/maauso/firefly-jobs/internal/jobs"
	"github.com/maauso/firefly-jobs/internal/provider"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusPending indicates the provider accepted the job but has not started it.
	StatusPending Status = "pending"
	// StatusRunning indicates the provider is processing the job.
	StatusRunning Status = "running"
	// StatusSucceeded indicates the job finished and Result holds the report.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the provider reported a failure.
	StatusFailed Status = "failed"
	// StatusCanceled indicates the job was cancelled.
	StatusCanceled Status = "canceled"
	// StatusTimedOut indicates the gateway stopped waiting before a terminal state.
	StatusTimedOut Status = "timed_out"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusRunning, StatusSucceeded, StatusFailed, StatusCanceled, StatusTimedOut},
	StatusRunning:   {StatusSucceeded, StatusFailed, StatusCanceled, StatusTimedOut},
	StatusSucceeded: {},
	StatusFailed:    {},
	StatusCanceled:  {},
	StatusTimedOut:  {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Job represents one provider job tracked by the gateway.
type Job struct {
	mu sync.RWMutex

	// ID is the gateway identifier for this job.
	ID string
	// Family is the media API family the job was submitted to.
	Family provider.Family
	// Operation is the family operation, e.g. generate-images.
	Operation string
	// Handle identifies the job at the provider.
	Handle jobs.Handle
	// Status is the current job state.
	Status Status
	// Result is the last status report of a succeeded job.
	Result json.RawMessage
	// Failure is the provider-reported reason of a failed job.
	Failure *jobs.Failure
	// Error contains a human-readable reason for failed or timed out jobs.
	Error string
	// Attempts counts the status fetches performed so far.
	Attempts int
	// CreatedAt is when the job was submitted.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when the provider was first seen running the job.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial pending status.
func New(family provider.Family, operation string, h jobs.Handle) *Job {
	return NewWithID(id.Generate(), family, operation, h)
}

// NewWithID creates a new Job with the specified ID and initial pending status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string, family provider.Family, operation string, h jobs.Handle) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Family:    family,
		Operation: operation,
		Handle:    h,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusSucceeded, StatusFailed, StatusCanceled, StatusTimedOut:
		if j.StartedAt.IsZero() {
			j.StartedAt = j.UpdatedAt
		}
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Apply records one classified status report. Non-terminal reports never move
// the job backwards, so a late pending after running is ignored. Terminal
// reports on a terminal job return ErrInvalidTransition.
func (j *Job) Apply(status jobs.Status, report json.RawMessage, failure *jobs.Failure) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch status {
	case jobs.StatusPending:
		if j.isTerminalLocked() {
			return ErrInvalidTransition
		}
		j.UpdatedAt = time.Now()
		return nil
	case jobs.StatusRunning:
		if j.Status == StatusRunning {
			j.UpdatedAt = time.Now()
			return nil
		}
		return j.transitionLocked(StatusRunning)
	case jobs.StatusSucceeded:
		if err := j.transitionLocked(StatusSucceeded); err != nil {
			return err
		}
		j.Result = report
		return nil
	case jobs.StatusFailed:
		if err := j.transitionLocked(StatusFailed); err != nil {
			return err
		}
		j.Failure = failure
		if failure != nil {
			j.Error = failure.Message
		}
		return nil
	case jobs.StatusCanceled:
		return j.transitionLocked(StatusCanceled)
	default:
		return ErrInvalidTransition
	}
}

// Cancel transitions the job to canceled state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCanceled)
}

// Timeout transitions the job to timed_out state with the reason.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Timeout(reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusTimedOut); err != nil {
		return err
	}
	j.Error = reason
	return nil
}

// AddAttempts increases the status fetch counter.
func (j *Job) AddAttempts(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if n > 0 {
		j.Attempts += n
		j.UpdatedAt = time.Now()
	}
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.isTerminalLocked()
}

func (j *Job) isTerminalLocked() bool {
	return j.Status == StatusSucceeded ||
		j.Status == StatusFailed ||
		j.Status == StatusCanceled ||
		j.Status == StatusTimedOut
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result json.RawMessage
	if j.Result != nil {
		result = append(json.RawMessage(nil), j.Result...)
	}
	var failure *jobs.Failure
	if j.Failure != nil {
		f := *j.Failure
		failure = &f
	}

	return &Job{
		ID:          j.ID,
		Family:      j.Family,
		Operation:   j.Operation,
		Handle:      j.Handle,
		Status:      j.Status,
		Result:      result,
		Failure:     failure,
		Error:       j.Error,
		Attempts:    j.Attempts,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
