package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Message types
const (
	MessageTypeSyncStarted   = "sync_started"
	MessageTypeSyncProgress  = "sync_progress"
	MessageTypeSyncCompleted = "sync_completed"
	MessageTypeSyncFailed    = "sync_failed"
	MessageTypeScanCompleted = "scan_completed"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeError         = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SyncProgress carries full-sync progress data for broadcast
type SyncProgress struct {
	RunID      string `json:"run_id"`
	Page       int    `json:"page"`
	TotalUsers int64  `json:"total_users"`
}

// SyncResult carries the outcome of a finished full sync
type SyncResult struct {
	RunID           string `json:"run_id"`
	TotalUsers      int64  `json:"total_users,omitempty"`
	DurationSeconds int64  `json:"duration_seconds,omitempty"`
	Error           string `json:"error,omitempty"`
}

// ScanResult carries the outcome of a new-user scan
type ScanResult struct {
	NewUsers int `json:"new_users"`
}

// Hub maintains the set of connected clients and broadcasts sync events
// to all of them.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to every connected client
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// send queues a message for broadcast without blocking the caller
func (h *Hub) send(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastSyncStarted announces the start of a full sync run
func (h *Hub) BroadcastSyncStarted(runID string) {
	h.send(&Message{
		Type:      MessageTypeSyncStarted,
		Data:      SyncResult{RunID: runID},
		Timestamp: time.Now(),
	})
}

// BroadcastSyncProgress announces per-page progress of a full sync run
func (h *Hub) BroadcastSyncProgress(runID string, page int, totalUsers int64) {
	h.send(&Message{
		Type:      MessageTypeSyncProgress,
		Data:      SyncProgress{RunID: runID, Page: page, TotalUsers: totalUsers},
		Timestamp: time.Now(),
	})
}

// BroadcastSyncCompleted announces a successful full sync run
func (h *Hub) BroadcastSyncCompleted(runID string, totalUsers, durationSeconds int64) {
	h.send(&Message{
		Type:      MessageTypeSyncCompleted,
		Data:      SyncResult{RunID: runID, TotalUsers: totalUsers, DurationSeconds: durationSeconds},
		Timestamp: time.Now(),
	})
}

// BroadcastSyncFailed announces an aborted full sync run
func (h *Hub) BroadcastSyncFailed(runID, reason string) {
	h.send(&Message{
		Type:      MessageTypeSyncFailed,
		Data:      SyncResult{RunID: runID, Error: reason},
		Timestamp: time.Now(),
	})
}

// BroadcastScanCompleted announces the result of a new-user scan
func (h *Hub) BroadcastScanCompleted(newUsers int) {
	h.send(&Message{
		Type:      MessageTypeScanCompleted,
		Data:      ScanResult{NewUsers: newUsers},
		Timestamp: time.Now(),
	})
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
