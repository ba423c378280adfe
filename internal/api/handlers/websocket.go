package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anstrom/reconnode/internal/api/middleware"
	"github.com/anstrom/reconnode/internal/metrics"
	"github.com/anstrom/reconnode/internal/scanning"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
	maxMessageSize  = 512
	clientQueueSize = 16

	// DefaultProgressInterval is how often the hub samples progress.
	DefaultProgressInterval = time.Second

	messageTypeProgress = "progress"
)

// ProgressSource is the orchestrator surface sampled by the hub.
type ProgressSource interface {
	State() scanning.State
	LastScanID() string
	Progress() scanning.Progress
}

// WebSocketMessage represents a WebSocket message structure.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// ProgressUpdate is the payload of a progress message.
type ProgressUpdate struct {
	State    string            `json:"state"`
	ScanID   string            `json:"scanId,omitempty"`
	Progress scanning.Progress `json:"progress"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// ProgressHub pushes progress snapshots to websocket clients. A snapshot is
// sent on connect and then whenever a sample differs from the previous one.
type ProgressHub struct {
	source   ProgressSource
	logger   *slog.Logger
	metrics  metrics.MetricsRegistry
	upgrader websocket.Upgrader
	interval time.Duration

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	last    ProgressUpdate
	closed  bool
}

// NewProgressHub creates a hub. Call Run to start sampling.
func NewProgressHub(source ProgressSource, interval time.Duration, logger *slog.Logger,
	registry metrics.MetricsRegistry) *ProgressHub {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &ProgressHub{
		source:   source,
		logger:   logger.With("handler", "websocket"),
		metrics:  registry,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// SetOriginCheck replaces the upgrade origin policy.
func (h *ProgressHub) SetOriginCheck(check func(r *http.Request) bool) {
	h.upgrader.CheckOrigin = check
}

// Run samples progress until ctx ends, then closes every client.
func (h *ProgressHub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	defer h.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sample()
		}
	}
}

func (h *ProgressHub) snapshot() ProgressUpdate {
	return ProgressUpdate{
		State:    h.source.State().String(),
		ScanID:   h.source.LastScanID(),
		Progress: h.source.Progress(),
	}
}

func (h *ProgressHub) sample() {
	update := h.snapshot()

	h.mu.Lock()
	changed := update != h.last
	h.last = update
	h.mu.Unlock()

	if changed {
		if err := h.Broadcast(update); err != nil {
			h.logger.Error("Failed to broadcast progress", "error", err)
		}
	}
}

func encodeProgress(update ProgressUpdate) ([]byte, error) {
	data, err := json.Marshal(WebSocketMessage{
		Type:      messageTypeProgress,
		Timestamp: time.Now().UTC(),
		Data:      update,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal progress update: %w", err)
	}
	return data, nil
}

// Broadcast queues update for every client. A client whose queue is full is
// dropped.
func (h *ProgressHub) Broadcast(update ProgressUpdate) error {
	data, err := encodeProgress(update)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("Client too slow, dropping connection")
			h.removeLocked(c)
		}
	}

	if h.metrics != nil && len(h.clients) > 0 {
		h.metrics.Counter("websocket_messages_sent_total", metrics.Labels{"type": messageTypeProgress})
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *ProgressHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS handles GET /ws/progress.
func (h *ProgressHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", "request_id", requestID, "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientQueueSize)}
	initial, err := encodeProgress(h.snapshot())
	if err == nil {
		c.send <- initial
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("WebSocket client connected",
		"request_id", requestID,
		"remote_addr", r.RemoteAddr,
		"total_clients", total)

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and detects disconnects.
func (h *ProgressHub) readPump(c *wsClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket unexpected close", "error", err)
			}
			return
		}
	}
}

// writePump drains the client queue and keeps the connection alive with pings.
func (h *ProgressHub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("Write failed, closing connection", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *ProgressHub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *ProgressHub) removeLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Close disconnects every client and refuses new ones.
func (h *ProgressHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}
