package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/tubedash/tubedash/internal/errors"
	"github.com/tubedash/tubedash/internal/logger"
)

// DefaultNoticeTTL is how long a notice stays on the view.
const DefaultNoticeTTL = 5 * time.Second

var (
	// ErrNoValidRows is returned when no entry has both a URL and a target path.
	ErrNoValidRows = apperrors.ValidationError("Please enter at least one URL with a target path")

	// ErrJobNotFound is returned when cancelling an id the view does not track.
	ErrJobNotFound = apperrors.JobNotFound()

	// ErrClosed is returned by operations on a closed tracker.
	ErrClosed = errors.New("tracker closed")

	errNoIDs      = errors.New("download service returned no ids")
	errIDMismatch = errors.New("download service returned a mismatched id count")
)

// Service is the remote download service.
type Service interface {
	Submit(ctx context.Context, urls, targetPaths []string) ([]ID, error)
	Status(ctx context.Context, id ID) (Payload, error)
	Cancel(ctx context.Context, id ID) error
}

// View is what a dashboard renders.
type View struct {
	Jobs        []Record `json:"jobs"`
	Downloading bool     `json:"downloading"`
	Notice      *Notice  `json:"notice,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Tracker owns the registry and poll scheduler for one dashboard view.
type Tracker struct {
	svc       Service
	registry  *Registry
	scheduler *Scheduler
	log       *logger.Logger
	metrics   Recorder
	now       func() time.Time
	interval  time.Duration
	noticeTTL time.Duration
	onChange  func(View)

	mu          sync.Mutex
	downloading bool
	notice      *Notice
	noticeTimer *time.Timer
	errMsg      string
	closed      bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithPollInterval sets the scheduler interval.
func WithPollInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// WithNoticeTTL sets how long notices stay visible.
func WithNoticeTTL(d time.Duration) Option {
	return func(t *Tracker) { t.noticeTTL = d }
}

// WithLogger sets the tracker's logger.
func WithLogger(l *logger.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(r Recorder) Option {
	return func(t *Tracker) { t.metrics = r }
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// OnChange registers a listener called with a fresh View after every state
// change. It may run on the poll goroutine and must not block.
func OnChange(fn func(View)) Option {
	return func(t *Tracker) { t.onChange = fn }
}

// New creates a Tracker bound to svc.
func New(svc Service, opts ...Option) *Tracker {
	t := &Tracker{
		svc:       svc,
		registry:  NewRegistry(),
		now:       time.Now,
		interval:  DefaultPollInterval,
		noticeTTL: DefaultNoticeTTL,
		metrics:   nopRecorder{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.Default().WithComponent("tracker")
	}
	if t.noticeTTL <= 0 {
		t.noticeTTL = DefaultNoticeTTL
	}

	t.scheduler = NewScheduler(t.registry, svc.Status, SchedulerConfig{
		Interval: t.interval,
		OnMerge:  t.merged,
		Logger:   t.log,
		Metrics:  t.metrics,
	})
	return t
}

// Registry exposes the tracker's registry for read access.
func (t *Tracker) Registry() *Registry {
	return t.registry
}

// Scheduler exposes the tracker's poll scheduler.
func (t *Tracker) Scheduler() *Scheduler {
	return t.scheduler
}

// Submit sends the valid entries to the service and starts tracking the
// returned jobs. Rows without both a URL and a target path are dropped.
// On failure nothing is tracked and the error is kept on the view.
func (t *Tracker) Submit(ctx context.Context, entries []Entry) ([]Record, error) {
	var urls, paths, labels []string
	for _, e := range entries {
		url := strings.TrimSpace(e.URL)
		if url == "" || strings.TrimSpace(e.TargetPath) == "" {
			continue
		}
		urls = append(urls, url)
		paths = append(paths, ResolveTargetPath(e.TargetPath, e.FileName))
		labels = append(labels, FileStem(e.FileName))
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	if len(urls) == 0 {
		return nil, t.failSubmit(ctx, ErrNoValidRows)
	}

	t.metrics.IncCounter("submissions")
	ids, err := t.svc.Submit(ctx, urls, paths)
	switch {
	case err != nil:
	case len(ids) == 0:
		err = errNoIDs
	case len(ids) != len(urls):
		err = fmt.Errorf("%w: %d ids for %d urls", errIDMismatch, len(ids), len(urls))
	}
	if err != nil {
		return nil, t.failSubmit(ctx, err)
	}

	now := t.now()
	records := make([]Record, len(ids))
	for i, id := range ids {
		records[i] = NewRecord(id, urls[i], paths[i], labels[i], now)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.abandon(ctx, ids)
		return nil, ErrClosed
	}
	t.registry.Insert(records)
	t.downloading = true
	t.errMsg = ""
	t.clearNoticeLocked()
	t.mu.Unlock()

	t.scheduler.Arm()

	t.log.Info(ctx, "batch submitted", map[string]interface{}{
		"jobs": len(records),
	})
	t.emit()
	return records, nil
}

// abandon cancels jobs the service started for a tracker that closed while
// the submission was in flight.
func (t *Tracker) abandon(ctx context.Context, ids []ID) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range ids {
		if err := t.svc.Cancel(ctx, id); err != nil {
			t.log.Warn(ctx, "cancel of abandoned job failed", map[string]interface{}{
				"job_id": id.String(),
				"error":  err.Error(),
			})
		}
	}
}

func (t *Tracker) failSubmit(ctx context.Context, err error) error {
	t.metrics.IncCounter("submission_errors")
	t.log.Warn(ctx, "submission failed", map[string]interface{}{
		"error": err.Error(),
	})

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return err
	}
	t.errMsg = displayMessage(err, "Failed to start download")
	t.mu.Unlock()

	t.emit()
	return err
}

// displayMessage prefers the message of an AppError over fallback.
func displayMessage(err error, fallback string) string {
	if appErr, ok := apperrors.As(err); ok && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}

// Cancel asks the service to stop a job. The record itself is left alone;
// the next poll reports the outcome. Terminal jobs are ignored.
func (t *Tracker) Cancel(ctx context.Context, id ID) error {
	rec, ok := t.registry.Get(id)
	if !ok {
		return ErrJobNotFound
	}
	if rec.IsTerminal() {
		return nil
	}

	t.metrics.IncCounter("cancel_requests")
	if err := t.svc.Cancel(ctx, id); err != nil {
		t.metrics.IncCounter("cancel_errors")
		t.log.Warn(ctx, "cancel request failed", map[string]interface{}{
			"job_id": id.String(),
			"error":  err.Error(),
		})
		t.raise(NoticeError, "Failed to cancel download: "+displayMessage(err, err.Error()))
		return err
	}

	t.log.Info(ctx, "cancel requested", map[string]interface{}{
		"job_id": id.String(),
	})
	return nil
}

// merged runs after each tick's merge round. Completion is re-checked under
// t.mu so a batch inserted after the merge keeps the view downloading.
func (t *Tracker) merged(changes []Change, allTerminal bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if allTerminal && t.downloading && t.registry.AllTerminal() {
		t.downloading = false
		t.setNoticeLocked(NoticeSuccess, CompletedMessage)
		t.log.Info(context.Background(), "all downloads completed", map[string]interface{}{
			"jobs": t.registry.Len(),
		})
	}
	t.mu.Unlock()

	t.emit()
}

func (t *Tracker) raise(kind NoticeKind, msg string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.setNoticeLocked(kind, msg)
	t.mu.Unlock()

	t.emit()
}

func (t *Tracker) setNoticeLocked(kind NoticeKind, msg string) {
	t.clearNoticeLocked()

	n := &Notice{Kind: kind, Message: msg, ExpiresAt: time.Now().Add(t.noticeTTL)}
	t.notice = n
	t.noticeTimer = time.AfterFunc(t.noticeTTL, func() {
		t.mu.Lock()
		if t.notice != n {
			t.mu.Unlock()
			return
		}
		t.notice = nil
		t.noticeTimer = nil
		t.mu.Unlock()
		t.emit()
	})
}

func (t *Tracker) clearNoticeLocked() {
	if t.noticeTimer != nil {
		t.noticeTimer.Stop()
		t.noticeTimer = nil
	}
	t.notice = nil
}

// Snapshot returns the current view.
func (t *Tracker) Snapshot() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() View {
	v := View{
		Jobs:        t.registry.Snapshot(),
		Downloading: t.downloading,
		Error:       t.errMsg,
	}
	if t.notice != nil {
		n := *t.notice
		v.Notice = &n
	}
	return v
}

func (t *Tracker) emit() {
	if t.onChange == nil {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	v := t.snapshotLocked()
	t.mu.Unlock()

	t.onChange(v)
}

// Close tears the view down: polling stops, in-flight results are dropped,
// and the registry and notices are cleared.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.clearNoticeLocked()
	t.downloading = false
	t.mu.Unlock()

	t.scheduler.Close()
	t.registry.Clear()
}
