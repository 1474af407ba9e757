// Package server provides the HTTP server for the job gateway.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"encoding/json"
	"time"

	"github.com/maauso/firefly-jobs/internal/job"
)

// CreateJobRequest is the HTTP request body for submitting a provider job.
type CreateJobRequest struct {
	// Family is the media API family, e.g. firefly.
	Family string `json:"family" validate:"required"`
	// Operation is the family operation, e.g. generate-images.
	Operation string `json:"operation" validate:"required"`
	// Payload is forwarded to the provider unchanged.
	Payload json.RawMessage `json:"payload"`
	// ModelVersion selects a Firefly model, e.g. image4_standard.
	ModelVersion string `json:"model_version" validate:"omitempty,max=64"`
	// Watch starts a background wait right after submission.
	Watch bool `json:"watch"`
	// PollIntervalMs overrides the default poll interval of the watch.
	PollIntervalMs int `json:"poll_interval_ms" validate:"omitempty,min=10,max=600000"`
	// TimeoutMs overrides the default wait timeout of the watch.
	TimeoutMs int `json:"timeout_ms" validate:"omitempty,min=10,max=86400000"`
}

// WaitRequest is the optional HTTP request body for waiting on a job.
type WaitRequest struct {
	PollIntervalMs int `json:"poll_interval_ms" validate:"omitempty,min=10,max=600000"`
	TimeoutMs      int `json:"timeout_ms" validate:"omitempty,min=10,max=86400000"`
}

// PresignRequest is the HTTP request body for a presigned storage URL.
type PresignRequest struct {
	Key          string `json:"key" validate:"required,max=1024"`
	Method       string `json:"method" validate:"required,oneof=GET PUT"`
	ContentType  string `json:"content_type" validate:"omitempty,max=255"`
	ExpiresInSec int    `json:"expires_in_sec" validate:"omitempty,min=1,max=604800"`
}

// FailureResponse is the provider-reported failure of a job.
type FailureResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// JobResponse is the HTTP response for a tracked job.
type JobResponse struct {
	// ID is the gateway identifier of the job.
	ID        string `json:"id"`
	Family    string `json:"family"`
	Operation string `json:"operation"`
	// Status is one of pending, running, succeeded, failed, canceled, timed_out.
	Status string `json:"status"`
	// ProviderJobID is the identifier assigned by the provider.
	ProviderJobID string `json:"provider_job_id"`
	StatusURL     string `json:"status_url,omitempty"`
	// Result is the last status report of a succeeded job.
	Result  json.RawMessage  `json:"result,omitempty"`
	Failure *FailureResponse `json:"failure,omitempty"`
	// Error contains any error message if the job failed or timed out.
	Error       string     `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobListResponse is the HTTP response for listing jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ProviderResponse describes one registered family.
type ProviderResponse struct {
	Family     string   `json:"family"`
	Operations []string `json:"operations"`
}

// ProvidersResponse is the HTTP response for listing families.
type ProvidersResponse struct {
	Providers []ProviderResponse `json:"providers"`
}

// ObjectResponse is the HTTP response after storing an object.
type ObjectResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

func newJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:            j.ID,
		Family:        string(j.Family),
		Operation:     j.Operation,
		Status:        string(j.Status),
		ProviderJobID: j.Handle.JobID,
		StatusURL:     j.Handle.StatusURL,
		Result:        j.Result,
		Error:         j.Error,
		Attempts:      j.Attempts,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
	if j.Failure != nil {
		resp.Failure = &FailureResponse{Code: j.Failure.Code, Message: j.Failure.Message}
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}
