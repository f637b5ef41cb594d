package validators

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/tubedash/tubedash/internal/errors"
)

// Handlers exposes the validator registry so a form can check rows before submitting.
type Handlers struct {
	registry *Registry
}

// NewHandlers creates a new Handlers instance
func NewHandlers(registry *Registry) *Handlers {
	return &Handlers{
		registry: registry,
	}
}

// ValidateURLRequest is the request body for URL validation
type ValidateURLRequest struct {
	URL string `json:"url"`
}

// SupportedSourcesResponse is the response for listing supported sources
type SupportedSourcesResponse struct {
	Sources []SourceType `json:"sources"`
}

// ValidateURL handles POST /api/validate
func (h *Handlers) ValidateURL(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	var req ValidateURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid JSON body"))
		return
	}
	h.respond(w, requestID, req.URL, "url field is required")
}

// ValidateURLQuery handles GET /api/validate?url=...
func (h *Handlers) ValidateURLQuery(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())
	h.respond(w, requestID, r.URL.Query().Get("url"), "url query parameter is required")
}

// GetSupportedSources handles GET /api/validate/sources
func (h *Handlers) GetSupportedSources(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK,
		SupportedSourcesResponse{Sources: h.registry.GetSupportedSources()})
}

func (h *Handlers) respond(w http.ResponseWriter, requestID, url, missing string) {
	if url == "" {
		apperrors.WriteError(w, requestID, apperrors.ValidationError(missing))
		return
	}

	result := h.registry.Validate(url)
	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}
	apperrors.WriteJSON(w, requestID, status, result)
}
