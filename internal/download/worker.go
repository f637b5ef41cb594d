package download

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tubedash/tubedash/internal/logger"
)

const (
	// Default configuration values
	DefaultWorkerCount = 3
	DefaultStepDelay   = 500 * time.Millisecond
	DefaultQueueSize   = 256
)

// WorkerPool manages a pool of workers that play simulated jobs
type WorkerPool struct {
	store       Store
	simulator   *Simulator
	workerCount int
	stepDelay   time.Duration
	log         *logger.Logger

	jobs     chan string
	wg       sync.WaitGroup
	stopChan chan struct{}
	mu       sync.RWMutex
	running  bool
}

// WorkerPoolConfig holds configuration for the worker pool
type WorkerPoolConfig struct {
	WorkerCount int
	StepDelay   time.Duration
	QueueSize   int
	Simulator   *Simulator
	Logger      *logger.Logger
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(store Store, config *WorkerPoolConfig) *WorkerPool {
	if config == nil {
		config = &WorkerPoolConfig{}
	}

	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}

	stepDelay := config.StepDelay
	if stepDelay <= 0 {
		stepDelay = DefaultStepDelay
	}

	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	sim := config.Simulator
	if sim == nil {
		sim = NewSimulator(0)
	}

	log := config.Logger
	if log == nil {
		log = logger.Default()
	}

	return &WorkerPool{
		store:       store,
		simulator:   sim,
		workerCount: workerCount,
		stepDelay:   stepDelay,
		log:         log.WithComponent("worker"),
		jobs:        make(chan string, queueSize),
		stopChan:    make(chan struct{}),
	}
}

// Start launches the worker pool
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return
	}

	wp.running = true
	wp.stopChan = make(chan struct{})

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i, wp.stopChan)
	}

	wp.log.Info(context.Background(), "worker pool started", map[string]interface{}{
		"workers": wp.workerCount,
	})
}

// Stop stops the worker pool, waiting for workers to leave their current step
func (wp *WorkerPool) Stop(ctx context.Context) error {
	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		return nil
	}
	wp.running = false
	close(wp.stopChan)
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.log.Info(ctx, "worker pool stopped")
		return nil
	case <-ctx.Done():
		wp.log.Warn(ctx, "worker pool shutdown timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the worker pool is currently running
func (wp *WorkerPool) IsRunning() bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.running
}

// Enqueue hands a stored job to the workers.
func (wp *WorkerPool) Enqueue(ctx context.Context, jobID string) error {
	select {
	case wp.jobs <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueLength returns the number of jobs waiting for a worker
func (wp *WorkerPool) QueueLength() int {
	return len(wp.jobs)
}

// worker is the main loop for a single worker
func (wp *WorkerPool) worker(id int, stop <-chan struct{}) {
	defer wp.wg.Done()

	for {
		select {
		case <-stop:
			return
		case jobID := <-wp.jobs:
			wp.processJob(id, jobID, stop)
		}
	}
}

// processJob walks a job through its simulated lifecycle. A job cancelled
// (or otherwise finished) elsewhere is left alone at the next step.
func (wp *WorkerPool) processJob(workerID int, jobID string, stop <-chan struct{}) {
	ctx := context.Background()
	fields := map[string]interface{}{"worker": workerID, "job_id": jobID}

	job, err := wp.store.Get(ctx, jobID)
	if err != nil {
		wp.log.Error(ctx, "failed to load job", err, fields)
		return
	}
	if job.IsTerminal() {
		return
	}

	timer := time.NewTimer(wp.stepDelay)
	defer timer.Stop()

	for _, step := range wp.simulator.Plan(job.URL) {
		select {
		case <-stop:
			wp.interrupt(ctx, jobID, fields)
			return
		case <-timer.C:
		}
		timer.Reset(wp.stepDelay)

		updated, err := wp.store.Update(ctx, jobID, advance(step))
		if errors.Is(err, ErrJobTerminal) {
			fields["status"] = updated.Status
			wp.log.Info(ctx, "job finished elsewhere, dropping", fields)
			return
		}
		if err != nil {
			wp.log.Error(ctx, "failed to update job", err, fields)
			return
		}
		if updated.Status == StatusFailed {
			wp.log.Warn(ctx, "job failed", map[string]interface{}{
				"worker": workerID, "job_id": jobID, "error": updated.Error,
			})
			return
		}
	}

	wp.log.Info(ctx, "job completed", fields)
}

func (wp *WorkerPool) interrupt(ctx context.Context, jobID string, fields map[string]interface{}) {
	_, err := wp.store.Update(ctx, jobID, advance(Step{
		Status: StatusFailed,
		Error:  "interrupted by shutdown",
	}))
	if err != nil && !errors.Is(err, ErrJobTerminal) {
		wp.log.Error(ctx, "failed to mark interrupted job", err, fields)
	}
}

// advance returns an UpdateFunc applying step unless the job already finished.
func advance(step Step) UpdateFunc {
	return func(job *Job) error {
		if job.IsTerminal() {
			return ErrJobTerminal
		}
		job.Status = step.Status
		job.Progress = step.Progress
		if step.AspectRatio != "" {
			job.AspectRatio = step.AspectRatio
		}
		if step.Error != "" {
			job.Error = step.Error
		}
		job.UpdatedAt = time.Now().UTC()
		return nil
	}
}
