package api

import (
	"encoding/json"
	"net/http"

	"github.com/tubedash/tubedash/internal/auth"
	"github.com/tubedash/tubedash/internal/download"
	"github.com/tubedash/tubedash/internal/health"
)

// Router serves the download service API under /api.
type Router struct {
	mux              *http.ServeMux
	issuer           *auth.Issuer
	downloadHandlers *DownloadHandlers
	healthHandler    *health.Handler
}

func NewRouter(downloadService *download.Service, issuer *auth.Issuer, healthHandler *health.Handler) *Router {
	r := &Router{
		mux:              http.NewServeMux(),
		issuer:           issuer,
		downloadHandlers: NewDownloadHandlers(downloadService),
		healthHandler:    healthHandler,
	}
	r.setupRoutes()
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) setupRoutes() {
	// Health checks
	if r.healthHandler != nil {
		r.mux.HandleFunc("GET /health", r.healthHandler.HealthHandler)
		r.mux.HandleFunc("GET /api/health", r.healthHandler.HealthHandler)
		r.mux.HandleFunc("GET /ready", r.healthHandler.ReadinessHandler)
	} else {
		r.mux.HandleFunc("GET /health", healthHandler)
		r.mux.HandleFunc("GET /api/health", healthHandler)
	}

	// Downloads (auth required)
	r.mux.Handle("POST /api/downloads", r.withAuth(r.downloadHandlers.CreateDownload))
	r.mux.Handle("GET /api/downloads", r.withAuth(r.downloadHandlers.ListDownloads))
	r.mux.Handle("GET /api/downloads/all", r.withAuth(r.downloadHandlers.ListAllDownloads))
	r.mux.Handle("GET /api/downloads/{download_id}", r.withAuth(r.downloadHandlers.GetDownload))
	r.mux.Handle("POST /api/downloads/{download_id}/cancel", r.withAuth(r.downloadHandlers.CancelDownload))
}

func (r *Router) withAuth(next http.HandlerFunc) http.Handler {
	return auth.Middleware(r.issuer)(next)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}
