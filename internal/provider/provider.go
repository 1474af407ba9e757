// Package provider provides the common interface for media API families.
// Firefly, Photoshop, Audio/Video and Substance all implement it on top of
// the shared job lifecycle in package jobs.
package provider

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/maauso/firefly-jobs/internal/jobs"
)

// Family identifies a media API family.
type Family string

// Known families.
const (
	FamilyFirefly    Family = "firefly"
	FamilyPhotoshop  Family = "photoshop"
	FamilyAudioVideo Family = "audiovideo"
	FamilySubstance  Family = "substance"
)

// Static errors for provider operations.
var (
	// ErrClientRequired is returned when a provider is built without a jobs client.
	ErrClientRequired = errors.New("provider: jobs client is required")
	// ErrUnknownFamily is returned when no provider is registered for a family.
	ErrUnknownFamily = errors.New("provider: unknown family")
	// ErrUnknownOperation is returned when a family has no such operation.
	ErrUnknownOperation = errors.New("provider: unknown operation")
	// ErrCancelUnsupported is returned by families without a cancellation endpoint.
	ErrCancelUnsupported = errors.New("provider: family does not support cancellation")
	// ErrModelVersionUnsupported is returned when a model version is requested
	// from a family that has no model-version header.
	ErrModelVersionUnsupported = errors.New("provider: family does not support model versions")
	// ErrStatusURLUnknown is returned when a handle has no status URL and the
	// family cannot derive one from the job ID.
	ErrStatusURLUnknown = errors.New("provider: cannot determine status URL")
)

// SubmitOptions contains per-submission parameters that travel as headers.
type SubmitOptions struct {
	ModelVersion string // Firefly x-model-version, e.g. image4_standard
}

// Provider defines the interface for media API families.
type Provider interface {
	// Family returns the family identifier.
	Family() Family

	// Operations lists the operation names accepted by Submit.
	Operations() []string

	// Submit sends a job and returns its handle.
	Submit(ctx context.Context, operation string, payload json.RawMessage, opts SubmitOptions) (jobs.Handle, error)

	// Status performs one status fetch and returns a report carrying a
	// top-level status field.
	Status(ctx context.Context, h jobs.Handle) (json.RawMessage, error)

	// Cancel requests cancellation of a job.
	Cancel(ctx context.Context, h jobs.Handle) error
}

// Fetcher adapts a provider and handle into a jobs.StatusFetcher.
func Fetcher(p Provider, h jobs.Handle) jobs.StatusFetcher {
	return func(ctx context.Context) (json.RawMessage, error) {
		return p.Status(ctx, h)
	}
}
