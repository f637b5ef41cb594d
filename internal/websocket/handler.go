package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	apperrors "github.com/tubedash/tubedash/internal/errors"
)

// Handler handles WebSocket connections.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. Browsers from origins outside
// allowedOrigins are refused; "*" admits any origin.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

// ServeWS upgrades the request and streams the snapshots of viewID.
// Callers authorize the request beforehand.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request, viewID string) {
	if _, ok := h.hub.views.View(viewID); !ok {
		apperrors.WriteError(w, apperrors.GetRequestID(r.Context()), apperrors.ViewNotFound())
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		h.hub.log.Warn(r.Context(), "websocket upgrade failed", map[string]interface{}{
			"view_id": viewID,
			"error":   err.Error(),
		})
		return
	}

	client := NewClient(h.hub, conn, viewID)
	h.hub.Register(client)

	// Start the client's read and write pumps
	go client.WritePump()
	go client.ReadPump()
}

// GetHub returns the hub instance for external access.
func (h *Handler) GetHub() *Hub {
	return h.hub
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
