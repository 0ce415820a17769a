package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"aqua-backend/internal/models"
)

// Message types pushed to dashboard clients
const (
	TypeSnapshot   = "snapshot"
	TypeReadings   = "readings"
	TypeConnection = "connection"
	TypeFeed       = "feed"
)

// Envelope is the JSON frame sent to clients
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ReadingsPayload is the payload of a readings frame
type ReadingsPayload struct {
	Readings []models.Reading `json:"readings"`
	Snapshot models.Snapshot  `json:"snapshot"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the dashboard is served from another origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub maintains the set of active clients and broadcasts messages.
// Only Run touches the client set.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      atomic.Int64

	snapshot func() models.Snapshot
	logger   *zap.Logger
}

// NewHub creates a hub. snapshot supplies the frame every new client gets first.
func NewHub(snapshot func() models.Snapshot, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		snapshot:   snapshot,
		logger:     logger.Named("websocket"),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.count.Store(0)
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.logger.Info("client registered", zap.String("remote", client.remote))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.count.Store(int64(len(h.clients)))
				h.logger.Info("client unregistered", zap.String("remote", client.remote))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer
					h.logger.Warn("client send buffer full, removing", zap.String("remote", client.remote))
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.count.Store(int64(len(h.clients)))
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Broadcast sends one frame to every client. It never blocks once the hub stopped.
func (h *Hub) Broadcast(msgType string, payload any) {
	message, err := json.Marshal(Envelope{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal broadcast", zap.String("type", msgType), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// Name identifies the hub in sink logs
func (h *Hub) Name() string {
	return "websocket"
}

// HandleReadings pushes every accepted batch to the dashboards
func (h *Hub) HandleReadings(_ context.Context, readings []models.Reading, snapshot models.Snapshot) error {
	h.Broadcast(TypeReadings, ReadingsPayload{Readings: readings, Snapshot: snapshot})
	return nil
}

// BroadcastStatus pushes a connection state change
func (h *Hub) BroadcastStatus(status models.ConnectionStatus) {
	h.Broadcast(TypeConnection, status)
}

// BroadcastFeed pushes a feed attempt
func (h *Hub) BroadcastFeed(event models.FeedEvent) {
	h.Broadcast(TypeFeed, event)
}

// ServeWS upgrades the request and attaches the connection to the hub
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h, conn)

	welcome, err := json.Marshal(Envelope{Type: TypeSnapshot, Payload: h.snapshot()})
	if err == nil {
		client.send <- welcome
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
