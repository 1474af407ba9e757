package job

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// Repository defines the interface for job persistence.
type Repository interface {
	// Save persists a job to the storage.
	// If the job already exists, it should be updated.
	Save(ctx context.Context, job *Job) error

	// Update applies fn to the stored job and persists the result atomically.
	// Returns ErrJobNotFound if the job does not exist. Nothing is stored
	// when fn returns an error.
	Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error)

	// FindByID retrieves a job by its unique identifier.
	// Returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns all jobs, newest first.
	List(ctx context.Context) ([]*Job, error)

	// Delete removes a job from storage.
	// Returns ErrJobNotFound if the job does not exist.
	Delete(ctx context.Context, id string) error

	// Prune removes finished jobs completed before cutoff and returns how
	// many were removed. Active jobs are never removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}
