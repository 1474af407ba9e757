package job

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/maauso/firefly-jobs/internal/jobs"
	"github.com/maauso/firefly-jobs/internal/provider"
)

// Default polling parameters used when a caller does not set them.
const (
	DefaultPollInterval = 3 * time.Second
	DefaultTimeout      = 5 * time.Minute

	maxPruneInterval = 5 * time.Minute
)

// Static errors for the job service.
var (
	// ErrProvidersRequired is returned when the service has no provider registry.
	ErrProvidersRequired = errors.New("job: provider registry is required")
	// ErrJobTerminal is returned when an operation needs an active job.
	ErrJobTerminal = errors.New("job: job already finished")
	// ErrJobActive is returned when an operation needs a finished job.
	ErrJobActive = errors.New("job: job still active")
	// ErrServiceClosed is returned once Shutdown has been called.
	ErrServiceClosed = errors.New("job: service is shut down")
)

// Recorder receives job lifecycle events, typically for metrics.
type Recorder interface {
	JobSubmitted(ctx context.Context, family provider.Family, err error)
	PollAttempt(ctx context.Context, family provider.Family, status jobs.Status)
	JobCompleted(ctx context.Context, family provider.Family, status Status, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) JobSubmitted(context.Context, provider.Family, error)                {}
func (noopRecorder) PollAttempt(context.Context, provider.Family, jobs.Status)           {}
func (noopRecorder) JobCompleted(context.Context, provider.Family, Status, time.Duration) {}

// SubmitInput contains the parameters of a job submission.
type SubmitInput struct {
	Family       provider.Family
	Operation    string
	Payload      json.RawMessage
	ModelVersion string
}

// WaitParams overrides the default poll interval and timeout. Zero values
// fall back to the service defaults.
type WaitParams struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Service orchestrates provider jobs: it submits them, tracks their state in
// a Repository and polls them to completion.
//
// Concurrent waits on the same job share one poll loop. The loop runs on the
// service's own context, so a caller that gives up only stops waiting for it;
// Shutdown stops every loop.
type Service struct {
	repo      Repository
	providers *provider.Registry
	logger    *slog.Logger
	recorder  Recorder
	interval  time.Duration
	timeout   time.Duration
	retention time.Duration

	group singleflight.Group

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPollDefaults sets the default poll interval and timeout.
func WithPollDefaults(interval, timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithRetention removes finished jobs once they have been complete for longer
// than d. Zero keeps them until deleted.
func WithRetention(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithRecorder sets the lifecycle event recorder.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewService creates a new job Service.
func NewService(repo Repository, providers *provider.Registry, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if providers == nil {
		return nil, ErrProvidersRequired
	}
	if repo == nil {
		repo = NewMemoryRepository()
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		repo:      repo,
		providers: providers,
		logger:    logger,
		recorder:  noopRecorder{},
		interval:  DefaultPollInterval,
		timeout:   DefaultTimeout,
		baseCtx:   ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retention > 0 {
		s.wg.Add(1)
		go s.pruneLoop()
	}
	return s, nil
}

// Submit sends a job to its family and records it in pending state. Nothing
// is recorded when the provider rejects the submission.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Job, error) {
	p, err := s.providers.Get(in.Family)
	if err != nil {
		return nil, err
	}

	h, err := p.Submit(ctx, in.Operation, in.Payload, provider.SubmitOptions{ModelVersion: in.ModelVersion})
	if err != nil {
		s.recorder.JobSubmitted(ctx, in.Family, err)
		s.logger.Error("job submission failed",
			slog.String("family", string(in.Family)),
			slog.String("operation", in.Operation),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	job := New(in.Family, in.Operation, h)
	// A job only counts as active once it is tracked.
	err = s.repo.Save(ctx, job)
	s.recorder.JobSubmitted(ctx, in.Family, err)
	if err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("job submitted",
		slog.String("job_id", job.ID),
		slog.String("family", string(in.Family)),
		slog.String("operation", in.Operation),
		slog.String("provider_job_id", h.JobID),
	)
	return job.Clone(), nil
}

// Get retrieves a job by ID.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns all tracked jobs, newest first.
func (s *Service) List(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// Refresh performs one status fetch for an active job and records the
// result. Finished jobs are returned unchanged.
func (s *Service) Refresh(ctx context.Context, id string) (*Job, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return job, nil
	}

	p, err := s.providers.Get(job.Family)
	if err != nil {
		return job, err
	}
	body, err := p.Status(ctx, job.Handle)
	if err != nil {
		return job, err
	}
	report, err := jobs.ParseReport(body)
	if err != nil {
		return job, err
	}
	s.recorder.PollAttempt(ctx, job.Family, report.Status)

	return s.record(ctx, id, func(j *Job) error {
		j.AddAttempts(1)
		return j.Apply(report.Status, body, report.Failure)
	})
}

// Wait polls the job until it finishes or params.Timeout elapses, and
// returns the updated job. The error is the poller's: a *jobs.JobFailedError
// or *jobs.JobTimedOutError for those outcomes, and transport or
// classification errors as-is. Waiting on a finished job returns it at once.
func (s *Service) Wait(ctx context.Context, id string, params WaitParams) (*Job, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return job, nil
	}

	interval, timeout := s.params(params)
	ch := s.group.DoChan(id, func() (any, error) {
		return s.wait(s.baseCtx, job, interval, timeout)
	})

	select {
	case <-ctx.Done():
		return job, ctx.Err()
	case r := <-ch:
		j, _ := r.Val.(*Job)
		if j == nil {
			j = job
		}
		return j, r.Err
	}
}

// Watch waits for the job in the background until it finishes, times out or
// the service shuts down.
func (s *Service) Watch(ctx context.Context, id string, params WaitParams) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServiceClosed
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		job, err := s.Wait(s.baseCtx, id, params)
		if err != nil && !errors.Is(err, jobs.ErrJobFailed) && !errors.Is(err, jobs.ErrJobTimedOut) {
			s.logger.Warn("background wait ended with error",
				slog.String("job_id", id),
				slog.String("error", err.Error()),
			)
			return
		}
		s.logger.Debug("background wait finished",
			slog.String("job_id", id),
			slog.String("status", string(job.GetStatus())),
		)
	}()
	return nil
}

// Cancel asks the provider to cancel an active job and marks it canceled.
// Families without cancellation return provider.ErrCancelUnsupported.
func (s *Service) Cancel(ctx context.Context, id string) (*Job, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return job, ErrJobTerminal
	}

	p, err := s.providers.Get(job.Family)
	if err != nil {
		return job, err
	}
	if err := p.Cancel(ctx, job.Handle); err != nil {
		return job, err
	}

	s.logger.Info("job cancellation requested",
		slog.String("job_id", id),
		slog.String("family", string(job.Family)),
	)
	return s.record(ctx, id, func(j *Job) error {
		return j.Cancel()
	})
}

// Delete removes a finished job.
func (s *Service) Delete(ctx context.Context, id string) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return ErrJobActive
	}
	return s.repo.Delete(ctx, id)
}

// Shutdown stops all poll loops and waits for background watches to return.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// pruneLoop removes expired finished jobs until Shutdown.
func (s *Service) pruneLoop() {
	defer s.wg.Done()

	every := max(min(s.retention/2, maxPruneInterval), time.Millisecond)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.baseCtx.Done():
			return
		case now := <-ticker.C:
			removed, err := s.repo.Prune(s.baseCtx, now.Add(-s.retention))
			if err != nil {
				s.logger.Warn("failed to prune finished jobs", slog.String("error", err.Error()))
				continue
			}
			if removed > 0 {
				s.logger.Debug("pruned finished jobs", slog.Int("removed", removed))
			}
		}
	}
}

func (s *Service) params(p WaitParams) (time.Duration, time.Duration) {
	interval, timeout := p.Interval, p.Timeout
	if interval <= 0 {
		interval = s.interval
	}
	if timeout <= 0 {
		timeout = s.timeout
	}
	return interval, timeout
}

// wait runs the poll loop for one job and records its outcome.
func (s *Service) wait(ctx context.Context, job *Job, interval, timeout time.Duration) (*Job, error) {
	// A previous loop may have finished the job after the caller's read.
	if current, err := s.repo.FindByID(ctx, job.ID); err == nil && current.IsTerminal() {
		return current, nil
	}

	p, err := s.providers.Get(job.Family)
	if err != nil {
		return job, err
	}

	logger := s.logger.With(
		slog.String("job_id", job.ID),
		slog.String("family", string(job.Family)),
	)
	logger.Debug("waiting for job",
		slog.Duration("interval", interval),
		slog.Duration("timeout", timeout),
	)

	observe := func(a jobs.Attempt) {
		logger.Debug("job status",
			slog.Int("attempt", a.Number),
			slog.String("status", string(a.Status)),
			slog.Duration("elapsed", a.Elapsed),
		)
		s.recorder.PollAttempt(ctx, job.Family, a.Status)
		if a.Status.IsTerminal() {
			return
		}
		if _, err := s.record(ctx, job.ID, func(j *Job) error {
			j.AddAttempts(1)
			return j.Apply(a.Status, nil, nil)
		}); err != nil {
			logger.Warn("failed to record job status", slog.String("error", err.Error()))
		}
	}

	res, err := jobs.WaitForCompletion(ctx, provider.Fetcher(p, job.Handle), interval, timeout,
		jobs.WithJobID(job.ID),
		jobs.WithObserver(observe),
	)

	var timedOut *jobs.JobTimedOutError
	switch {
	case err == nil || errors.Is(err, jobs.ErrJobFailed):
		updated, rerr := s.record(ctx, job.ID, func(j *Job) error {
			j.AddAttempts(1)
			return j.Apply(res.Status, res.Payload, res.Failure)
		})
		if rerr != nil {
			return updated, rerr
		}
		logger.Info("job finished",
			slog.String("status", string(res.Status)),
			slog.Int("attempts", res.Attempts),
			slog.Duration("elapsed", res.Elapsed),
		)
		return updated, err
	case errors.As(err, &timedOut):
		logger.Warn("job wait timed out",
			slog.Int("attempts", timedOut.Attempts),
			slog.String("last_status", string(timedOut.LastStatus)),
		)
		updated, rerr := s.record(ctx, job.ID, func(j *Job) error {
			return j.Timeout(timedOut.Error())
		})
		if rerr != nil {
			return updated, rerr
		}
		return updated, err
	default:
		logger.Warn("job wait failed", slog.String("error", err.Error()))
		current, ferr := s.repo.FindByID(context.WithoutCancel(ctx), job.ID)
		if ferr != nil {
			return job, err
		}
		return current, err
	}
}

// record applies fn to an active job and reports the transition to the
// recorder. Jobs that finished in the meantime are returned unchanged.
func (s *Service) record(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	var finished bool
	updated, err := s.repo.Update(context.WithoutCancel(ctx), id, func(j *Job) error {
		if j.IsTerminal() {
			return nil
		}
		if err := fn(j); err != nil {
			return err
		}
		finished = j.IsTerminal()
		return nil
	})
	if err != nil {
		return updated, err
	}
	if finished {
		s.recorder.JobCompleted(ctx, updated.Family, updated.Status, updated.CompletedAt.Sub(updated.CreatedAt))
	}
	return updated, nil
}
