package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// SnapshotFunc returns the message a new connection starts from.
type SnapshotFunc func() any

// WebSocketHandler upgrades GET /ws/view and registers the connection.
type WebSocketHandler struct {
	hub            *Hub
	snapshot       SnapshotFunc
	originPatterns []string
}

// NewWebSocketHandler creates the upgrade handler. originPatterns follows
// websocket.AcceptOptions; empty means same-origin only.
func NewWebSocketHandler(hub *Hub, snapshot SnapshotFunc, originPatterns []string) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, snapshot: snapshot, originPatterns: originPatterns}
}

// ServeHTTP implements http.Handler.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	id := uuid.NewString()

	// The stream is one-way; CloseRead discards client frames and cancels
	// ctx when the peer goes away.
	ctx := ws.CloseRead(r.Context())

	// Register before taking the snapshot so no publish falls between the
	// two. Hub writes wait on the gate until the snapshot is on the wire.
	conn := &gatedConn{Conn: ws, ready: make(chan struct{})}
	h.hub.Register(id, conn)
	defer h.hub.Unregister(id, conn)

	if h.snapshot != nil {
		if err := writeJSON(ctx, ws, h.snapshot()); err != nil {
			slog.Debug("Failed to send initial view", "error", err)
			close(conn.ready)
			return
		}
	}
	close(conn.ready)

	<-ctx.Done()
}

// gatedConn holds hub writes back until ready is closed.
type gatedConn struct {
	*websocket.Conn
	ready chan struct{}
}

func (c *gatedConn) Write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	select {
	case <-c.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.Conn.Write(ctx, typ, p)
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(wctx, websocket.MessageText, data)
}
