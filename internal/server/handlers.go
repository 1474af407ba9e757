package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/firefly-jobs/internal/ims"
	"github.com/maauso/firefly-jobs/internal/job"
	"github.com/maauso/firefly-jobs/internal/jobs"
	"github.com/maauso/firefly-jobs/internal/provider"
	"github.com/maauso/firefly-jobs/internal/storage"
)

// JobService is the job use case the handlers drive.
type JobService interface {
	Submit(ctx context.Context, in job.SubmitInput) (*job.Job, error)
	Get(ctx context.Context, id string) (*job.Job, error)
	List(ctx context.Context) ([]*job.Job, error)
	Refresh(ctx context.Context, id string) (*job.Job, error)
	Wait(ctx context.Context, id string, params job.WaitParams) (*job.Job, error)
	Watch(ctx context.Context, id string, params job.WaitParams) error
	Cancel(ctx context.Context, id string) (*job.Job, error)
	Delete(ctx context.Context, id string) error
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   JobService
	providers *provider.Registry
	validator *validator.Validate
	logger    *slog.Logger

	uploader ImageUploader
	catalog  Catalog
	spaces   SpaceCreator
	storage  storage.Storage
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// NewHandlers creates a new Handlers instance.
func NewHandlers(service JobService, providers *provider.Registry, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if providers == nil {
		providers = provider.NewRegistry()
	}
	h := &Handlers{
		service:   service,
		providers: providers,
		validator: validator.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ListProviders handles GET /v1/providers requests.
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	resp := ProvidersResponse{Providers: []ProviderResponse{}}
	for _, family := range h.providers.Families() {
		p, err := h.providers.Get(family)
		if err != nil {
			continue
		}
		resp.Providers = append(resp.Providers, ProviderResponse{
			Family:     string(family),
			Operations: p.Operations(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateJob handles POST /v1/jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		writeError(w, http.StatusBadRequest, "payload must be valid JSON", "INVALID_PAYLOAD")
		return
	}

	created, err := h.service.Submit(r.Context(), job.SubmitInput{
		Family:       provider.Family(req.Family),
		Operation:    req.Operation,
		Payload:      req.Payload,
		ModelVersion: req.ModelVersion,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if req.Watch {
		params := waitParams(req.PollIntervalMs, req.TimeoutMs)
		if err := h.service.Watch(r.Context(), created.ID, params); err != nil {
			h.logger.Error("failed to start background wait",
				slog.String("job_id", created.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusAccepted, newJobResponse(created))
}

// ListJobs handles GET /v1/jobs requests. The optional family and status
// query parameters filter the result.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	family := r.URL.Query().Get("family")
	status := r.URL.Query().Get("status")

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(list))}
	for _, j := range list {
		if family != "" && string(j.Family) != family {
			continue
		}
		if status != "" && string(j.Status) != status {
			continue
		}
		resp.Jobs = append(resp.Jobs, newJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /v1/jobs/{id} requests. With refresh=true one status
// fetch is performed first.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	var (
		found *job.Job
		err   error
	)
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		found, err = h.service.Refresh(r.Context(), jobID)
	} else {
		found, err = h.service.Get(r.Context(), jobID)
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newJobResponse(found))
}

// WaitJob handles POST /v1/jobs/{id}/wait requests. It answers 200 for
// succeeded and canceled jobs, 502 for failed jobs and 504 on timeout.
func (h *Handlers) WaitJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	var req WaitRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	waited, err := h.service.Wait(r.Context(), jobID, waitParams(req.PollIntervalMs, req.TimeoutMs))
	if err != nil && !errors.Is(err, jobs.ErrJobFailed) && !errors.Is(err, jobs.ErrJobTimedOut) {
		h.writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	switch waited.Status {
	case job.StatusFailed:
		status = http.StatusBadGateway
	case job.StatusTimedOut:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, newJobResponse(waited))
}

// CancelJob handles POST /v1/jobs/{id}/cancel requests.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	canceled, err := h.service.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(canceled))
}

// DeleteJob handles DELETE /v1/jobs/{id} requests for finished jobs.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads and validates a JSON body. An empty body is accepted when
// optional is set. It writes the error response and returns false on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			h.logger.Warn("failed to decode request body",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
			return false
		}
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

func waitParams(intervalMs, timeoutMs int) job.WaitParams {
	return job.WaitParams{
		Interval: time.Duration(intervalMs) * time.Millisecond,
		Timeout:  time.Duration(timeoutMs) * time.Millisecond,
	}
}

// writeServiceError maps domain and provider errors to HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	var (
		authErr      *ims.AuthenticationError
		submitErr    *jobs.SubmissionError
		requestErr   *jobs.RequestError
		malformedErr *jobs.MalformedResponseError
		classErr     *jobs.ClassificationError
	)

	switch {
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
	case errors.Is(err, provider.ErrUnknownFamily):
		writeError(w, http.StatusBadRequest, err.Error(), "UNKNOWN_FAMILY")
	case errors.Is(err, provider.ErrUnknownOperation):
		writeError(w, http.StatusBadRequest, err.Error(), "UNKNOWN_OPERATION")
	case errors.Is(err, provider.ErrModelVersionUnsupported):
		writeError(w, http.StatusBadRequest, err.Error(), "MODEL_VERSION_UNSUPPORTED")
	case errors.Is(err, provider.ErrCancelUnsupported):
		writeError(w, http.StatusConflict, err.Error(), "CANCEL_UNSUPPORTED")
	case errors.Is(err, job.ErrJobTerminal):
		writeError(w, http.StatusConflict, "job already finished", "JOB_FINISHED")
	case errors.Is(err, job.ErrJobActive):
		writeError(w, http.StatusConflict, "job still active", "JOB_ACTIVE")
	case errors.As(err, &authErr):
		h.logger.Error("IMS authentication failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "authentication with IMS failed", "AUTHENTICATION_FAILED")
	case errors.As(err, &submitErr):
		writeError(w, http.StatusBadGateway, submitErr.Error(), "SUBMISSION_FAILED")
	case errors.As(err, &requestErr):
		writeError(w, http.StatusBadGateway, requestErr.Error(), "UPSTREAM_ERROR")
	case errors.As(err, &malformedErr):
		writeError(w, http.StatusBadGateway, malformedErr.Error(), "MALFORMED_RESPONSE")
	case errors.As(err, &classErr):
		writeError(w, http.StatusBadGateway, classErr.Error(), "UNKNOWN_STATUS")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "request ended before the job finished", "REQUEST_TIMEOUT")
	default:
		h.logger.Error("request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
