package jobs

import (
	"context"
	"encoding/json"
	"time"
)

// StatusFetcher performs one status request for a job and returns the raw
// report. Families adapt their status endpoint into a StatusFetcher.
type StatusFetcher func(ctx context.Context) (json.RawMessage, error)

// Attempt describes one classified status fetch.
type Attempt struct {
	Number  int
	Status  Status
	Elapsed time.Duration
}

type waitConfig struct {
	jobID    string
	observer func(Attempt)
	now      func() time.Time
}

// WaitOption configures WaitForCompletion.
type WaitOption func(*waitConfig)

// WithJobID sets the job identifier reported in errors.
func WithJobID(id string) WaitOption {
	return func(c *waitConfig) {
		c.jobID = id
	}
}

// WithObserver registers a function called after every classified fetch.
func WithObserver(fn func(Attempt)) WaitOption {
	return func(c *waitConfig) {
		c.observer = fn
	}
}

// WaitForCompletion polls fetch until the job reaches a terminal state.
//
// The first fetch happens immediately and consecutive fetches are separated
// by at least interval. Once a non-terminal answer arrives and the next fetch
// would start after timeout, a *JobTimedOutError is returned, so the call
// returns within timeout plus the latency of one fetch.
//
// Succeeded and Canceled return a Result with a nil error. Failed returns the
// Result together with a *JobFailedError. Transport errors, non-2xx answers
// and unclassifiable reports are returned as-is and end the wait.
func WaitForCompletion(ctx context.Context, fetch StatusFetcher, interval, timeout time.Duration, opts ...WaitOption) (Result, error) {
	if interval <= 0 {
		return Result{}, ErrInvalidPollInterval
	}
	if timeout <= 0 {
		return Result{}, ErrInvalidTimeout
	}

	cfg := waitConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	start := cfg.now()
	var (
		attempts int
		last     Status
	)
	for {
		body, err := fetch(ctx)
		if err != nil {
			return Result{Attempts: attempts, Elapsed: cfg.now().Sub(start)}, err
		}
		attempts++

		report, err := ParseReport(body)
		elapsed := cfg.now().Sub(start)
		if err != nil {
			return Result{Payload: body, Attempts: attempts, Elapsed: elapsed}, err
		}
		last = report.Status

		if cfg.observer != nil {
			cfg.observer(Attempt{Number: attempts, Status: report.Status, Elapsed: elapsed})
		}

		res := Result{
			Status:   report.Status,
			Payload:  body,
			Failure:  report.Failure,
			Attempts: attempts,
			Elapsed:  elapsed,
		}

		switch report.Status {
		case StatusSucceeded, StatusCanceled:
			return res, nil
		case StatusFailed:
			return res, &JobFailedError{
				JobID:   cfg.jobID,
				Code:    report.Failure.Code,
				Message: report.Failure.Message,
				Payload: body,
			}
		}

		if elapsed+interval > timeout {
			return res, &JobTimedOutError{
				JobID:      cfg.jobID,
				Timeout:    timeout,
				Elapsed:    elapsed,
				Attempts:   attempts,
				LastStatus: last,
			}
		}

		if err := sleep(ctx, interval); err != nil {
			return res, err
		}
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
