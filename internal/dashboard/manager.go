// Package dashboard hosts download views: one tracker per view, created for
// the session that opened it and torn down when it goes idle.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tubedash/tubedash/internal/auth"
	"github.com/tubedash/tubedash/internal/dlclient"
	apperrors "github.com/tubedash/tubedash/internal/errors"
	"github.com/tubedash/tubedash/internal/logger"
	"github.com/tubedash/tubedash/internal/metrics"
	"github.com/tubedash/tubedash/internal/tracker"
	"github.com/tubedash/tubedash/internal/validators"
)

const (
	DefaultViewTTL     = 30 * time.Minute
	DefaultMaxFormRows = 15

	minSweepInterval = time.Second
)

var (
	ErrMissingToken = apperrors.Unauthorized("Token is missing!")
	ErrInvalidToken = apperrors.InvalidToken("Token is invalid!")
)

// Publisher receives view snapshots for live clients.
type Publisher interface {
	Publish(viewID string, view tracker.View)
	CloseView(viewID string)
	Watching(viewID string) bool
}

// ServiceFactory builds the download service client for a session.
type ServiceFactory func(session *auth.Session) tracker.Service

// Config configures a Manager.
type Config struct {
	ServiceURL     string
	DefaultToken   string
	PollInterval   time.Duration
	NoticeTTL      time.Duration
	RequestTimeout time.Duration
	ViewTTL        time.Duration
	MaxFormRows    int

	// NewService overrides the HTTP client, mainly for tests.
	NewService ServiceFactory
	Validators *validators.Registry
	Metrics    *metrics.Metrics
	Logger     *logger.Logger
}

// ViewInfo describes a newly opened view.
type ViewInfo struct {
	ViewID    string     `json:"view_id"`
	Username  string     `json:"username"`
	IsAdmin   bool       `json:"is_admin"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type view struct {
	id      string
	session *auth.Session
	// shared views were opened with the default token and accept any caller.
	shared   bool
	tracker  *tracker.Tracker
	lastSeen time.Time
}

// Manager owns every open view.
type Manager struct {
	cfg        Config
	newService ServiceFactory
	validators *validators.Registry
	metrics    *metrics.Metrics
	log        *logger.Logger
	now        func() time.Time

	mu        sync.Mutex
	views     map[string]*view
	publisher Publisher
}

// NewManager creates a view manager.
func NewManager(cfg Config) *Manager {
	if cfg.ViewTTL <= 0 {
		cfg.ViewTTL = DefaultViewTTL
	}
	if cfg.MaxFormRows <= 0 {
		cfg.MaxFormRows = DefaultMaxFormRows
	}
	if cfg.Validators == nil {
		cfg.Validators = validators.DefaultRegistry()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	m := &Manager{
		cfg:        cfg,
		newService: cfg.NewService,
		validators: cfg.Validators,
		metrics:    cfg.Metrics,
		log:        cfg.Logger.WithComponent("dashboard"),
		now:        time.Now,
		views:      make(map[string]*view),
	}
	if m.newService == nil {
		m.newService = func(session *auth.Session) tracker.Service {
			return dlclient.New(cfg.ServiceURL, session, dlclient.WithTimeout(cfg.RequestTimeout))
		}
	}
	return m
}

// SetPublisher attaches the live feed. Call before serving requests.
func (m *Manager) SetPublisher(p Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publisher = p
}

func (m *Manager) getPublisher() Publisher {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publisher
}

// Open creates a view for the caller's token, falling back to the
// configured default token.
func (m *Manager) Open(ctx context.Context, token string) (*ViewInfo, error) {
	shared := false
	if token == "" {
		token = m.cfg.DefaultToken
		shared = true
	}
	if token == "" {
		return nil, ErrMissingToken
	}

	session, err := auth.NewSession(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if session.Expired(m.now()) {
		return nil, apperrors.TokenExpired()
	}

	id := uuid.New().String()
	v := &view{
		id:       id,
		session:  session,
		shared:   shared,
		lastSeen: m.now(),
	}
	v.tracker = tracker.New(m.newService(session),
		tracker.WithPollInterval(m.cfg.PollInterval),
		tracker.WithNoticeTTL(m.cfg.NoticeTTL),
		tracker.WithLogger(m.log.WithComponent("tracker")),
		tracker.WithMetrics(m.metrics),
		tracker.OnChange(func(snapshot tracker.View) {
			if p := m.getPublisher(); p != nil {
				p.Publish(id, snapshot)
			}
		}),
	)

	m.mu.Lock()
	m.views[id] = v
	count := len(m.views)
	m.mu.Unlock()
	m.metrics.SetActiveViews(int64(count))

	m.log.Info(apperrors.WithViewID(ctx, id), "view opened", map[string]interface{}{
		"username": session.Username,
		"shared":   shared,
	})

	info := &ViewInfo{
		ViewID:   id,
		Username: session.Username,
		IsAdmin:  session.IsAdmin,
	}
	if !session.ExpiresAt.IsZero() {
		exp := session.ExpiresAt
		info.ExpiresAt = &exp
	}
	return info, nil
}

// lookup returns the view if token may access it and marks it active.
// Unknown views and foreign tokens are indistinguishable to the caller.
func (m *Manager) lookup(id, token string) (*view, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.views[id]
	if !ok {
		return nil, apperrors.ViewNotFound()
	}
	if !v.shared && v.session.Token != token {
		return nil, apperrors.ViewNotFound()
	}
	v.lastSeen = m.now()
	return v, nil
}

// Authorize checks that token may access the view.
func (m *Manager) Authorize(id, token string) error {
	_, err := m.lookup(id, token)
	return err
}

// Snapshot returns the view's current state.
func (m *Manager) Snapshot(id, token string) (tracker.View, error) {
	v, err := m.lookup(id, token)
	if err != nil {
		return tracker.View{}, err
	}
	return v.tracker.Snapshot(), nil
}

// View returns the snapshot of id without an access check.
func (m *Manager) View(id string) (tracker.View, bool) {
	m.mu.Lock()
	v, ok := m.views[id]
	m.mu.Unlock()
	if !ok {
		return tracker.View{}, false
	}
	return v.tracker.Snapshot(), true
}

// Submit validates rows and hands them to the view's tracker.
func (m *Manager) Submit(ctx context.Context, id, token string, rows []tracker.Entry) ([]tracker.Record, error) {
	v, err := m.lookup(id, token)
	if err != nil {
		return nil, err
	}
	if len(rows) > m.cfg.MaxFormRows {
		return nil, apperrors.ValidationError(fmt.Sprintf("at most %d rows per submission", m.cfg.MaxFormRows)).
			WithDetails(map[string]any{"max_rows": m.cfg.MaxFormRows, "rows": len(rows)})
	}
	if v.session.Expired(m.now()) {
		return nil, apperrors.TokenExpired()
	}

	for i, row := range rows {
		url := strings.TrimSpace(row.URL)
		if url == "" || strings.TrimSpace(row.TargetPath) == "" {
			continue
		}
		if _, err := m.validators.Check(url); err != nil {
			if appErr, ok := apperrors.As(err); ok {
				details := map[string]any{"row": i, "url": url}
				for k, val := range appErr.Details {
					details[k] = val
				}
				return nil, appErr.WithDetails(details)
			}
			return nil, err
		}
	}

	records, err := v.tracker.Submit(apperrors.WithViewID(ctx, id), rows)
	if err != nil {
		return nil, err
	}
	m.metrics.AddTrackedJobs(int64(len(records)))
	return records, nil
}

// Cancel asks the download service to stop one of the view's jobs.
func (m *Manager) Cancel(ctx context.Context, id, token string, jobID tracker.ID) error {
	v, err := m.lookup(id, token)
	if err != nil {
		return err
	}
	return v.tracker.Cancel(apperrors.WithViewID(ctx, id), jobID)
}

// Close tears the view down.
func (m *Manager) Close(ctx context.Context, id, token string) error {
	if _, err := m.lookup(id, token); err != nil {
		return err
	}
	m.remove(ctx, id, "closed")
	return nil
}

func (m *Manager) remove(ctx context.Context, id, reason string) {
	m.mu.Lock()
	v, ok := m.views[id]
	if ok {
		delete(m.views, id)
	}
	count := len(m.views)
	publisher := m.publisher
	m.mu.Unlock()
	if !ok {
		return
	}

	jobs := len(v.tracker.Snapshot().Jobs)
	v.tracker.Close()
	if publisher != nil {
		publisher.CloseView(id)
	}
	m.metrics.SetActiveViews(int64(count))
	m.metrics.AddTrackedJobs(-int64(jobs))

	m.log.Info(apperrors.WithViewID(ctx, id), "view removed", map[string]interface{}{
		"reason": reason,
		"jobs":   jobs,
	})
}

// Sweep removes views idle for longer than the view TTL. Views with live
// clients count as active.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()
	publisher := m.getPublisher()

	m.mu.Lock()
	var idle []string
	for id, v := range m.views {
		if now.Sub(v.lastSeen) > m.cfg.ViewTTL {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	removed := 0
	for _, id := range idle {
		if publisher != nil && publisher.Watching(id) {
			m.touch(id)
			continue
		}
		m.remove(ctx, id, "idle")
		removed++
	}
	return removed
}

func (m *Manager) touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.views[id]; ok {
		v.lastSeen = m.now()
	}
}

// RunCleaner sweeps idle views until ctx is done.
func (m *Manager) RunCleaner(ctx context.Context) {
	interval := m.cfg.ViewTTL / 2
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(ctx); n > 0 {
				m.log.Debug(ctx, "idle views removed", map[string]interface{}{"count": n})
			}
		}
	}
}

// Count returns the number of open views.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.views)
}

// Shutdown closes every view.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.views))
	for id := range m.views {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.remove(ctx, id, "shutdown")
	}
}
