package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/tubedash/tubedash/internal/logger"
)

// DefaultPollInterval is the delay between the end of one tick and the start of the next.
const DefaultPollInterval = 2 * time.Second

// State is the scheduler's arm state.
type State int

const (
	StateIdle State = iota
	StateArmed
)

func (s State) String() string {
	if s == StateArmed {
		return "armed"
	}
	return "idle"
}

// FetchFunc fetches the current status of one job.
type FetchFunc func(ctx context.Context, id ID) (Payload, error)

// MergeFunc observes a tick's merge round. It runs while the scheduler lock
// is held and must not call back into the scheduler. allTerminal reflects
// the registry right after the merge; records inserted since are not seen.
type MergeFunc func(changes []Change, allTerminal bool)

// Recorder receives poll metrics.
type Recorder interface {
	IncCounter(name string)
	ObserveDuration(name string, d time.Duration)
}

// Scheduler polls the service for every active record while any exists.
// It is idle until Arm is called and returns to idle on its own once no
// active record remains.
type Scheduler struct {
	registry *Registry
	fetch    FetchFunc
	interval time.Duration
	onMerge  MergeFunc
	log      *logger.Logger
	metrics  Recorder

	mu     sync.Mutex
	state  State
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SchedulerConfig holds optional scheduler collaborators.
type SchedulerConfig struct {
	Interval time.Duration
	OnMerge  MergeFunc
	Logger   *logger.Logger
	Metrics  Recorder
}

// NewScheduler creates an idle scheduler over registry.
func NewScheduler(registry *Registry, fetch FetchFunc, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default().WithComponent("scheduler")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopRecorder{}
	}
	return &Scheduler{
		registry: registry,
		fetch:    fetch,
		interval: cfg.Interval,
		onMerge:  cfg.OnMerge,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Arm starts polling if the scheduler is idle, open, and the registry has an
// active record. It reports whether a transition happened.
func (s *Scheduler) Arm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state == StateArmed {
		return false
	}
	if len(s.registry.ActiveIDs()) == 0 {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.state = StateArmed
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)

	s.log.Debug(ctx, "scheduler armed", map[string]interface{}{
		"interval_ms": s.interval.Milliseconds(),
	})
	return true
}

// State returns the current arm state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Interval returns the poll interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Close disarms the scheduler for good and waits for the poll loop to exit.
// Results of an in-flight tick are discarded.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.disarmLocked()
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) disarmLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.state == StateArmed {
		s.state = StateIdle
		s.log.Debug(context.Background(), "scheduler disarmed")
	}
}

// run is the poll loop of one armed period. The timer is reset only after
// a tick settles, so ticks never overlap.
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if !s.tick(ctx) {
			return
		}
		timer.Reset(s.interval)
	}
}

type fetchResult struct {
	id      ID
	payload Payload
	err     error
}

// tick runs one fan-out and merge round. It returns false once the
// scheduler has disarmed.
func (s *Scheduler) tick(ctx context.Context) bool {
	ids := s.registry.ActiveIDs()
	if len(ids) == 0 {
		return s.disarmIfIdle(ctx)
	}

	start := time.Now()
	results := s.fetchAll(ctx, ids)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || ctx.Err() != nil {
		return false
	}

	batch := make(map[ID]Payload, len(results))
	for _, res := range results {
		if res.err != nil {
			s.metrics.IncCounter("poll_errors")
			s.log.Warn(ctx, "status poll failed", map[string]interface{}{
				"job_id": res.id.String(),
				"error":  res.err.Error(),
			})
			continue
		}
		batch[res.id] = res.payload
	}

	changes := s.registry.ApplyAll(batch)
	for _, c := range changes {
		if IsRegression(c.Before, Payload{Status: &c.After.Status}) {
			s.log.Warn(ctx, "status moved backwards", map[string]interface{}{
				"job_id": c.After.ID.String(),
				"from":   string(c.Before.Status),
				"to":     string(c.After.Status),
			})
		} else if c.After.Status != c.Before.Status && !c.After.Status.IsKnown() {
			s.log.Warn(ctx, "unknown status applied", map[string]interface{}{
				"job_id": c.After.ID.String(),
				"status": string(c.After.Status),
			})
		}
	}

	allTerminal := s.registry.AllTerminal()
	if s.onMerge != nil {
		s.onMerge(changes, allTerminal)
	}

	s.metrics.IncCounter("poll_ticks")
	s.metrics.ObserveDuration("poll_tick", time.Since(start))

	if len(s.registry.ActiveIDs()) == 0 {
		s.disarmLocked()
		return false
	}
	return true
}

// disarmIfIdle disarms unless a record became active since the caller looked.
func (s *Scheduler) disarmIfIdle(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || ctx.Err() != nil {
		return false
	}
	if len(s.registry.ActiveIDs()) > 0 {
		return true
	}
	s.disarmLocked()
	return false
}

// fetchAll requests every id concurrently and waits for all of them.
func (s *Scheduler) fetchAll(ctx context.Context, ids []ID) []fetchResult {
	results := make([]fetchResult, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id ID) {
			defer wg.Done()
			s.metrics.IncCounter("poll_requests")
			p, err := s.fetch(ctx, id)
			results[i] = fetchResult{id: id, payload: p, err: err}
		}(i, id)
	}
	wg.Wait()

	return results
}

type nopRecorder struct{}

func (nopRecorder) IncCounter(string) {}
func (nopRecorder) ObserveDuration(string, time.Duration) {}
