// Package push streams view changes to connected browsers over WebSocket.
package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	writeTimeout = 5 * time.Second
	queueSize    = 64
)

// Conn is the subset of *websocket.Conn the hub writes to.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Hub fans messages out to every registered connection. Publish never
// blocks; a single Run loop does the writes in publish order.
type Hub struct {
	logger *slog.Logger
	queue  chan []byte

	mu    sync.RWMutex
	conns map[string]Conn
}

// NewHub creates a hub. Call Run to start delivering.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		queue:  make(chan []byte, queueSize),
		conns:  make(map[string]Conn),
	}
}

// Register adds a connection under id, replacing any previous one.
func (h *Hub) Register(id string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.conns[id]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "connection replaced")
	}
	h.conns[id] = conn
	h.logger.Debug("View stream registered", "conn_id", id)
}

// Unregister removes conn if it is still the one registered under id.
func (h *Hub) Unregister(id string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.conns[id]; ok && current == conn {
		delete(h.conns, id)
		h.logger.Debug("View stream unregistered", "conn_id", id)
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Publish queues v for every connection. When the queue is full the
// message is dropped; clients resync from GET /api/view.
func (h *Hub) Publish(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to encode push message", "error", err)
		return
	}
	select {
	case h.queue <- data:
	default:
		h.logger.Warn("Push queue full, dropping message")
	}
}

// Run delivers queued messages until ctx is done, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case data := <-h.queue:
			h.broadcast(ctx, data)
		}
	}
}

func (h *Hub) broadcast(ctx context.Context, data []byte) {
	h.mu.RLock()
	targets := make(map[string]Conn, len(h.conns))
	for id, c := range h.conns {
		targets[id] = c
	}
	h.mu.RUnlock()

	for id, c := range targets {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.logger.Debug("Dropping view stream after write error", "conn_id", id, "error", err)
			h.Unregister(id, c)
			_ = c.Close(websocket.StatusGoingAway, "write failed")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.conns, id)
	}
}
