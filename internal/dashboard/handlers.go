package dashboard

import (
	"encoding/json"
	"net/http"

	"github.com/tubedash/tubedash/internal/auth"
	apperrors "github.com/tubedash/tubedash/internal/errors"
	"github.com/tubedash/tubedash/internal/tracker"
	"github.com/tubedash/tubedash/internal/websocket"
)

const maxBodyBytes = 1 << 20

// Handlers serves the view API.
type Handlers struct {
	manager *Manager
	ws      *websocket.Handler
}

// NewHandlers creates the view handlers. ws may be nil, which disables the live feed.
func NewHandlers(manager *Manager, ws *websocket.Handler) *Handlers {
	return &Handlers{
		manager: manager,
		ws:      ws,
	}
}

// SubmitBatchRequest is the body of POST /api/views/{id}/batches
type SubmitBatchRequest struct {
	Rows []tracker.Entry `json:"rows"`
}

// SubmitBatchResponse lists the records created by a submission
type SubmitBatchResponse struct {
	Jobs []tracker.Record `json:"jobs"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// requestToken reads the bearer token, or the token query parameter that
// browsers use for websocket upgrades.
func requestToken(r *http.Request) string {
	if token, err := auth.BearerToken(r.Header.Get("Authorization")); err == nil {
		return token
	}
	return r.URL.Query().Get("token")
}

// OpenView handles POST /api/views
func (h *Handlers) OpenView(w http.ResponseWriter, r *http.Request) error {
	info, err := h.manager.Open(r.Context(), requestToken(r))
	if err != nil {
		return err
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusCreated, info)
	return nil
}

// GetView handles GET /api/views/{id}
func (h *Handlers) GetView(w http.ResponseWriter, r *http.Request) error {
	view, err := h.manager.Snapshot(r.PathValue("id"), requestToken(r))
	if err != nil {
		return err
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, view)
	return nil
}

// CloseView handles DELETE /api/views/{id}
func (h *Handlers) CloseView(w http.ResponseWriter, r *http.Request) error {
	if err := h.manager.Close(r.Context(), r.PathValue("id"), requestToken(r)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// SubmitBatch handles POST /api/views/{id}/batches
func (h *Handlers) SubmitBatch(w http.ResponseWriter, r *http.Request) error {
	var req SubmitBatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return apperrors.BadRequest("invalid JSON body")
	}

	records, err := h.manager.Submit(r.Context(), r.PathValue("id"), requestToken(r), req.Rows)
	if err != nil {
		return err
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusCreated, SubmitBatchResponse{Jobs: records})
	return nil
}

// CancelJob handles POST /api/views/{id}/downloads/{job_id}/cancel
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) error {
	jobID := tracker.ID(r.PathValue("job_id"))
	if err := h.manager.Cancel(r.Context(), r.PathValue("id"), requestToken(r), jobID); err != nil {
		return err
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusAccepted,
		messageResponse{Message: "Cancellation requested"})
	return nil
}

// ServeWS handles GET /api/views/{id}/ws
func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) error {
	if h.ws == nil {
		return apperrors.NotFound("live feed")
	}
	id := r.PathValue("id")
	if err := h.manager.Authorize(id, requestToken(r)); err != nil {
		return err
	}
	h.ws.ServeWS(w, r, id)
	return nil
}
