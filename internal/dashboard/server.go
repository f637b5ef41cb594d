package dashboard

import (
	"net/http"

	apperrors "github.com/tubedash/tubedash/internal/errors"
	"github.com/tubedash/tubedash/internal/health"
	"github.com/tubedash/tubedash/internal/logger"
	"github.com/tubedash/tubedash/internal/metrics"
	"github.com/tubedash/tubedash/internal/middleware"
	"github.com/tubedash/tubedash/internal/validators"
	"github.com/tubedash/tubedash/internal/websocket"
)

// ServerConfig wires the dashboard HTTP surface.
type ServerConfig struct {
	Manager        *Manager
	WS             *websocket.Handler
	Health         *health.Handler
	Metrics        *metrics.Metrics
	Validators     *validators.Registry
	AllowedOrigins []string
	Logger         *logger.Logger
}

// NewServer returns the dashboard's root handler.
func NewServer(cfg ServerConfig) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default()
	}
	if cfg.Validators == nil {
		cfg.Validators = validators.DefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	h := NewHandlers(cfg.Manager, cfg.WS)
	validate := validators.NewHandlers(cfg.Validators)
	mux := http.NewServeMux()

	// Probes
	if cfg.Health != nil {
		mux.HandleFunc("GET /health", cfg.Health.LivenessHandler)
		mux.HandleFunc("GET /ready", cfg.Health.ReadinessHandler)
		mux.HandleFunc("GET /api/health", cfg.Health.HealthHandler)
	}
	mux.Handle("GET /metrics", cfg.Metrics.Handler())

	// Views
	mux.HandleFunc("POST /api/views", apperrors.HandleFunc(h.OpenView))
	mux.Handle("GET /api/views/{id}", middleware.ETag(apperrors.HandleFunc(h.GetView)))
	mux.HandleFunc("DELETE /api/views/{id}", apperrors.HandleFunc(h.CloseView))
	mux.HandleFunc("POST /api/views/{id}/batches", apperrors.HandleFunc(h.SubmitBatch))
	mux.HandleFunc("POST /api/views/{id}/downloads/{job_id}/cancel", apperrors.HandleFunc(h.CancelJob))
	mux.HandleFunc("GET /api/views/{id}/ws", apperrors.HandleFunc(h.ServeWS))

	// URL validation for the form
	mux.HandleFunc("POST /api/validate", validate.ValidateURL)
	mux.HandleFunc("GET /api/validate", validate.ValidateURLQuery)
	mux.HandleFunc("GET /api/validate/sources", validate.GetSupportedSources)

	// Outermost first
	return middleware.Chain(mux,
		apperrors.RequestIDMiddleware,
		logger.RecoveryMiddleware,
		logger.LoggingMiddleware,
		metrics.MetricsMiddleware(cfg.Metrics),
		middleware.CORS(cfg.AllowedOrigins),
		middleware.Timing(cfg.Logger.WithComponent("http"), middleware.DefaultSlowRequest),
		middleware.Gzip,
	)
}
