package bridge

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Extension connects from its own origin
	},
}

const (
	socketWriteWait  = 10 * time.Second
	socketPongWait   = 60 * time.Second
	socketPingPeriod = 25 * time.Second
)

// socketMessage is the wire envelope on the push socket. The server
// sends type "request"; the extension answers with type "response".
type socketMessage struct {
	Type     string                 `json:"type"`
	Request  *models.PluginRequest  `json:"request,omitempty"`
	Response *models.PluginResponse `json:"response,omitempty"`
}

// SocketManager runs the push channel: one websocket per tenant over
// which queued bridge requests are pushed and responses read back. A
// tenant without a socket falls back to long-polling.
type SocketManager struct {
	bridge *Bridge
	logger arbor.ILogger

	mu      sync.Mutex
	sockets map[string]*websocket.Conn
}

// NewSocketManager creates a socket manager over the bridge
func NewSocketManager(b *Bridge, logger arbor.ILogger) *SocketManager {
	return &SocketManager{
		bridge:  b,
		logger:  logger,
		sockets: make(map[string]*websocket.Conn),
	}
}

// HandleConnection upgrades the request and serves the tenant's push
// socket until the peer goes away. Attaching marks the session live and
// re-pushes unanswered in-flight requests the extension may have lost.
func (m *SocketManager) HandleConnection(w http.ResponseWriter, r *http.Request, tenantID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("WebSocket upgrade failed")
		return
	}

	m.mu.Lock()
	if prev, ok := m.sockets[tenantID]; ok {
		prev.Close()
	}
	m.sockets[tenantID] = conn
	m.mu.Unlock()

	m.bridge.NotifyReconnect(r.Context(), tenantID)
	m.logger.Info().Str("tenant_id", tenantID).Msg("Plugin socket attached")

	done := make(chan struct{})
	var writeMu sync.Mutex

	go m.writePump(conn, &writeMu, tenantID, done)
	m.readPump(conn, tenantID)
	close(done)

	m.mu.Lock()
	if m.sockets[tenantID] == conn {
		delete(m.sockets, tenantID)
	}
	m.mu.Unlock()
	conn.Close()
	m.logger.Info().Str("tenant_id", tenantID).Msg("Plugin socket detached")
}

// writePump pushes deliverable requests and keepalive pings. The first
// drain includes in-flight requests for re-delivery after a reattach.
func (m *SocketManager) writePump(conn *websocket.Conn, writeMu *sync.Mutex, tenantID string, done chan struct{}) {
	ticker := time.NewTicker(socketPingPeriod)
	defer ticker.Stop()

	s := m.bridge.session(tenantID)

	push := func(includeInFlight bool) bool {
		for _, req := range m.bridge.take(tenantID, includeInFlight) {
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			err := conn.WriteJSON(socketMessage{Type: "request", Request: req})
			writeMu.Unlock()
			if err != nil {
				m.logger.Warn().Err(err).
					Str("tenant_id", tenantID).
					Str("request_id", req.RequestID).
					Msg("Failed to push plugin request")
				return false
			}
		}
		return true
	}

	if !push(true) {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-s.notify:
			if !push(false) {
				return
			}
		case <-ticker.C:
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// readPump consumes response envelopes until the connection drops
func (m *SocketManager) readPump(conn *websocket.Conn, tenantID string) {
	conn.SetReadDeadline(time.Now().Add(socketPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(socketPongWait))
		return nil
	})

	for {
		var msg socketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("Plugin socket read error")
			}
			return
		}
		if msg.Type != "response" || msg.Response == nil {
			continue
		}
		if err := m.bridge.Report(context.Background(), tenantID, msg.Response); err != nil {
			m.logger.Warn().Err(err).
				Str("tenant_id", tenantID).
				Str("request_id", msg.Response.RequestID).
				Msg("Failed to report plugin response")
		}
	}
}

// Attached reports whether a push socket is currently attached for the
// tenant
func (m *SocketManager) Attached(tenantID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sockets[tenantID]
	return ok
}

// CloseAll tears down all sockets on shutdown
func (m *SocketManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tenantID, conn := range m.sockets {
		conn.Close()
		delete(m.sockets, tenantID)
	}
}
