package download

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/tubedash/tubedash/internal/errors"
	"github.com/tubedash/tubedash/internal/logger"
)

// DefaultMaxBatch is the largest number of URLs one request may submit.
const DefaultMaxBatch = 5

var (
	ErrMissingFields = apperrors.BadRequest("Missing required fields")
	ErrInvalidBatch  = apperrors.BadRequest("Invalid number of URLs or target paths")
	ErrNotFound      = apperrors.JobNotFound()
	ErrFinished      = apperrors.JobFinished()
	ErrAdminRequired = apperrors.Forbidden("Admin privileges required!")
)

// Service provides download job management functionality
type Service struct {
	store      Store
	workerPool *WorkerPool
	maxBatch   int
	log        *logger.Logger
	now        func() time.Time
}

// ServiceConfig holds configuration for the download service
type ServiceConfig struct {
	WorkerCount int
	QueueSize   int
	MaxBatch    int
	StepDelay   time.Duration
	Simulator   *Simulator
	Logger      *logger.Logger
}

// NewService creates a download service backed by store
func NewService(store Store, config *ServiceConfig) *Service {
	if config == nil {
		config = &ServiceConfig{}
	}
	maxBatch := config.MaxBatch
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	log := config.Logger
	if log == nil {
		log = logger.Default()
	}

	return &Service{
		store: store,
		workerPool: NewWorkerPool(store, &WorkerPoolConfig{
			WorkerCount: config.WorkerCount,
			QueueSize:   config.QueueSize,
			StepDelay:   config.StepDelay,
			Simulator:   config.Simulator,
			Logger:      log,
		}),
		maxBatch: maxBatch,
		log:      log.WithComponent("downloads"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start starts the worker pool
func (s *Service) Start() {
	s.workerPool.Start()
}

// Stop stops the workers and closes the store
func (s *Service) Stop(ctx context.Context) error {
	if err := s.workerPool.Stop(ctx); err != nil {
		s.log.Error(ctx, "worker pool stop error", err)
	}
	return s.store.Close()
}

// Store returns the underlying job store
func (s *Service) Store() Store {
	return s.store
}

// IsRunning returns whether the worker pool is running
func (s *Service) IsRunning() bool {
	return s.workerPool.IsRunning()
}

// QueueLength returns the number of jobs waiting for a worker
func (s *Service) QueueLength() int {
	return s.workerPool.QueueLength()
}

// Submit creates one queued job per (url, targetPath) pair, in order.
func (s *Service) Submit(ctx context.Context, userID int64, username string, urls, targetPaths []string) ([]string, error) {
	if len(urls) == 0 || len(targetPaths) == 0 {
		return nil, ErrMissingFields
	}
	if len(urls) != len(targetPaths) || len(urls) > s.maxBatch {
		s.log.Warn(ctx, "invalid download request", map[string]interface{}{
			"urls": len(urls), "target_paths": len(targetPaths),
		})
		return nil, ErrInvalidBatch
	}

	jobs := make([]*Job, 0, len(urls))
	for i, url := range urls {
		now := s.now()
		job := &Job{
			ID:          uuid.New().String(),
			UserID:      userID,
			Username:    username,
			URL:         url,
			TargetPath:  targetPaths[i],
			Status:      StatusQueued,
			AspectRatio: UnknownAspectRatio,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.store.Create(ctx, job); err != nil {
			s.abandon(ctx, jobs)
			return nil, apperrors.StoreError("failed to create download").WithCause(err)
		}
		jobs = append(jobs, job)
	}

	ids := make([]string, 0, len(jobs))
	for i, job := range jobs {
		if err := s.workerPool.Enqueue(ctx, job.ID); err != nil {
			s.abandon(ctx, jobs[i:])
			return nil, apperrors.InternalError("failed to queue download").WithCause(err)
		}
		s.log.Info(ctx, "download job created", map[string]interface{}{
			"job_id": job.ID, "url": job.URL, "target_path": job.TargetPath,
		})
		ids = append(ids, job.ID)
	}
	return ids, nil
}

// abandon fails stored jobs that never reached a worker.
func (s *Service) abandon(ctx context.Context, jobs []*Job) {
	ctx = context.WithoutCancel(ctx)
	for _, job := range jobs {
		_, err := s.store.Update(ctx, job.ID, advance(Step{
			Status: StatusFailed,
			Error:  "not queued",
		}))
		if err != nil && !errors.Is(err, ErrJobTerminal) {
			s.log.Error(ctx, "failed to mark unqueued job", err, map[string]interface{}{
				"job_id": job.ID,
			})
		}
	}
}

// Get returns the user's job.
func (s *Service) Get(ctx context.Context, userID int64, id string) (*Job, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeErr(err)
	}
	if job.UserID != userID {
		return nil, ErrNotFound
	}
	return job, nil
}

// List returns the user's jobs, newest first.
func (s *Service) List(ctx context.Context, userID int64) ([]*Job, error) {
	jobs, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return jobs, nil
}

// ListAll returns every user's jobs; admins only.
func (s *Service) ListAll(ctx context.Context, isAdmin bool) ([]*Job, error) {
	if !isAdmin {
		return nil, ErrAdminRequired
	}
	jobs, err := s.store.List(ctx)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return jobs, nil
}

// Cancel marks the user's job cancelled. Workers notice before their next step.
func (s *Service) Cancel(ctx context.Context, userID int64, id string) (*Job, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}

	job, err := s.store.Update(ctx, id, func(job *Job) error {
		if job.IsTerminal() {
			return ErrJobTerminal
		}
		job.Status = StatusCancelled
		job.UpdatedAt = s.now()
		return nil
	})
	if errors.Is(err, ErrJobTerminal) {
		return nil, ErrFinished
	}
	if err != nil {
		return nil, s.storeErr(err)
	}

	s.log.Info(ctx, "download cancelled", map[string]interface{}{"job_id": id})
	return job, nil
}

func (s *Service) storeErr(err error) error {
	if errors.Is(err, ErrJobNotFound) {
		return ErrNotFound
	}
	return apperrors.StoreError("download store unavailable").WithCause(err)
}
