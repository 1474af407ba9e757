// Package jobs implements the asynchronous job lifecycle shared by every
// media API family: submitting a job, classifying provider status strings and
// polling a job to a terminal state under a wall-clock timeout.
package jobs

import "strings"

// Status is the normalized lifecycle state of a provider job. Raw provider
// vocabularies never leave this package; use Classify to obtain a Status.
type Status string

// Lifecycle states shared by all provider families.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// IsTerminal returns true if no further transition can follow the status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Classify maps a raw provider status onto a Status. Matching ignores case
// and surrounding whitespace. Unknown literals return a *ClassificationError
// so that a new provider state stops polling instead of looping forever.
func Classify(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return StatusPending, nil
	case "running", "not_started":
		return StatusRunning, nil
	case "succeeded":
		return StatusSucceeded, nil
	case "failed":
		return StatusFailed, nil
	case "canceled", "cancelled":
		return StatusCanceled, nil
	default:
		return "", &ClassificationError{Raw: raw}
	}
}
