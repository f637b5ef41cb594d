package download

import (
	"context"
	"errors"
)

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrJobTerminal is returned by UpdateFunc implementations that refuse to touch a finished job.
	ErrJobTerminal = errors.New("job already finished")
)

// UpdateFunc mutates job in place. Returning an error aborts the update.
type UpdateFunc func(job *Job) error

// Store persists download jobs.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// Update applies fn atomically with respect to other Updates of the same job.
	Update(ctx context.Context, id string, fn UpdateFunc) (*Job, error)
	// ListByUser returns the user's jobs, newest first.
	ListByUser(ctx context.Context, userID int64) ([]*Job, error)
	// List returns every job, newest first.
	List(ctx context.Context) ([]*Job, error)
	Ping(ctx context.Context) error
	Close() error
}
