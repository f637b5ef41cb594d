package api

import (
	"encoding/json"
	"net/http"

	"github.com/tubedash/tubedash/internal/auth"
	"github.com/tubedash/tubedash/internal/download"
	apperrors "github.com/tubedash/tubedash/internal/errors"
	"github.com/tubedash/tubedash/internal/logger"
)

type DownloadHandlers struct {
	downloadService *download.Service
}

func NewDownloadHandlers(downloadService *download.Service) *DownloadHandlers {
	return &DownloadHandlers{
		downloadService: downloadService,
	}
}

// CreateDownloadRequest is the body of POST /api/downloads
type CreateDownloadRequest struct {
	URLs        []string `json:"urls"`
	TargetPaths []string `json:"targetPaths"`
}

// CreateDownloadResponse lists the created ids in request order
type CreateDownloadResponse struct {
	DownloadIDs []string `json:"download_ids"`
}

// MessageResponse is the {"message": ...} body used for errors and acknowledgements
type MessageResponse struct {
	Message string `json:"message"`
}

// CreateDownload handles POST /api/downloads
func (h *DownloadHandlers) CreateDownload(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r.Context())

	var req CreateDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessageError(w, r, download.ErrMissingFields)
		return
	}

	ids, err := h.downloadService.Submit(r.Context(), user.UserID, user.Username, req.URLs, req.TargetPaths)
	if err != nil {
		writeMessageError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, CreateDownloadResponse{DownloadIDs: ids})
}

// ListDownloads handles GET /api/downloads
func (h *DownloadHandlers) ListDownloads(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r.Context())

	jobs, err := h.downloadService.List(r.Context(), user.UserID)
	if err != nil {
		writeMessageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, jobs)
}

// ListAllDownloads handles GET /api/downloads/all (admins only)
func (h *DownloadHandlers) ListAllDownloads(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r.Context())

	jobs, err := h.downloadService.ListAll(r.Context(), user.IsAdmin)
	if err != nil {
		writeMessageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, jobs)
}

// GetDownload handles GET /api/downloads/{download_id}
func (h *DownloadHandlers) GetDownload(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r.Context())

	job, err := h.downloadService.Get(r.Context(), user.UserID, r.PathValue("download_id"))
	if err != nil {
		writeMessageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, job)
}

// CancelDownload handles POST /api/downloads/{download_id}/cancel
func (h *DownloadHandlers) CancelDownload(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r.Context())

	if _, err := h.downloadService.Cancel(r.Context(), user.UserID, r.PathValue("download_id")); err != nil {
		writeMessageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, MessageResponse{Message: "Download cancelled"})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), status, data)
}

// writeMessageError renders err as {"message": ...} with the AppError's status.
func writeMessageError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.InternalError("an unexpected error occurred").WithCause(err)
	}
	if appErr.HTTPStatus >= 500 {
		logger.Error(r.Context(), "request failed", err, map[string]interface{}{
			"path": r.URL.Path,
		})
	}
	writeJSON(w, r, appErr.HTTPStatus, MessageResponse{Message: appErr.Message})
}
