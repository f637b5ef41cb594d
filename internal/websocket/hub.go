package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tubedash/tubedash/internal/logger"
	"github.com/tubedash/tubedash/internal/metrics"
	"github.com/tubedash/tubedash/internal/tracker"
)

// Message types sent to clients.
const (
	MessageView       = "view"
	MessageViewClosed = "view_closed"
)

// Message is one frame of the live view feed.
type Message struct {
	Type   string        `json:"type"`
	ViewID string        `json:"view_id"`
	View   *tracker.View `json:"view,omitempty"`
}

// ViewSource looks up the current snapshot of a view.
type ViewSource interface {
	View(viewID string) (tracker.View, bool)
}

type outbound struct {
	viewID string
	data   []byte
	// closeAfter disconnects the view's clients once data is queued.
	closeAfter bool
}

const broadcastBuffer = 256

// Hub maintains the set of active clients per view and broadcasts view
// snapshots to them.
type Hub struct {
	// Registered clients by view ID
	clients map[string]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Broadcast channel for view updates
	broadcast chan outbound

	views   ViewSource
	metrics *metrics.Metrics
	log     *logger.Logger

	done     chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex
}

// NewHub creates a new Hub instance. m may be nil.
func NewHub(views ViewSource, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, broadcastBuffer),
		views:      views,
		metrics:    m,
		log:        logger.Default().WithComponent("websocket"),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when ctx is done or Stop is called.
func (h *Hub) Run(ctx context.Context) {
	defer h.disconnectAll()

	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return

		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.viewID] == nil {
				h.clients[client.viewID] = make(map[*Client]bool)
			}
			h.clients[client.viewID][client] = true
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.IncWSConnections()
			}
			h.sendInitial(client)

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// sendInitial queues the current snapshot so a new client starts in sync.
func (h *Hub) sendInitial(client *Client) {
	view, ok := h.views.View(client.viewID)
	if !ok {
		h.remove(client)
		return
	}
	data, err := encode(MessageView, client.viewID, &view)
	if err != nil {
		h.log.Error(context.Background(), "encode view failed", err, map[string]interface{}{"view_id": client.viewID})
		return
	}
	select {
	case client.send <- data:
	default:
		h.remove(client)
	}
}

func (h *Hub) deliver(msg outbound) {
	h.mu.Lock()
	var drop []*Client
	for client := range h.clients[msg.viewID] {
		select {
		case client.send <- msg.data:
			if msg.closeAfter {
				drop = append(drop, client)
			}
		default:
			// Client's buffer is full, close the connection
			drop = append(drop, client)
		}
	}
	h.mu.Unlock()

	for _, client := range drop {
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.viewID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.viewID)
	}
	if h.metrics != nil {
		h.metrics.DecWSConnections()
	}
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	var all []*Client
	for _, clients := range h.clients {
		for client := range clients {
			all = append(all, client)
		}
	}
	h.mu.Unlock()

	for _, client := range all {
		h.remove(client)
	}
}

// Stop ends Run and disconnects every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds client to its view's audience.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.conn.Close()
	}
}

// Unregister removes client. Safe to call after Stop.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish sends a snapshot of viewID to its clients.
func (h *Hub) Publish(viewID string, view tracker.View) {
	data, err := encode(MessageView, viewID, &view)
	if err != nil {
		h.log.Error(context.Background(), "encode view failed", err, map[string]interface{}{"view_id": viewID})
		return
	}
	h.enqueue(outbound{viewID: viewID, data: data})
}

// CloseView tells the view's clients it is gone and disconnects them.
func (h *Hub) CloseView(viewID string) {
	data, err := encode(MessageViewClosed, viewID, nil)
	if err != nil {
		return
	}
	h.enqueue(outbound{viewID: viewID, data: data, closeAfter: true})
}

func (h *Hub) enqueue(msg outbound) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Watching reports whether viewID has connected clients.
func (h *Hub) Watching(viewID string) bool {
	return h.ClientCount(viewID) > 0
}

// ClientCount returns the number of connected clients for a view.
func (h *Hub) ClientCount(viewID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[viewID])
}

// TotalClients returns the total number of connected clients.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}

func encode(kind, viewID string, view *tracker.View) ([]byte, error) {
	return json.Marshal(Message{Type: kind, ViewID: viewID, View: view})
}
