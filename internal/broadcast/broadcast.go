// Package broadcast pushes reload notifications to connected browsers.
//
// Each browser tab holds one persistent WebSocket connection. Delivery is
// fire-and-forget per client: a failed write unregisters that client and
// never affects delivery to the others, and never surfaces to the caller.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/devloop-dev/devloop/internal/errors"
	"github.com/devloop-dev/devloop/internal/policy"
)

// WebSocketPath is the endpoint browsers connect to for notifications.
const WebSocketPath = "/_devloop/ws"

// MessageType identifies a notification message.
type MessageType string

const (
	// TypeReload asks the browser for a full page reload.
	TypeReload MessageType = "reload"

	// TypeAssetReload carries changed asset paths the browser can re-fetch
	// without a full reload.
	TypeAssetReload MessageType = "asset-reload"

	// TypeError shows an error overlay in the browser.
	TypeError MessageType = "error"

	// TypeClear removes the error overlay.
	TypeClear MessageType = "clear"
)

// Message is the wire format sent to browsers.
type Message struct {
	Type  MessageType `json:"type"`
	Paths []string    `json:"paths,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Conn is the send-capable handle of one client connection.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Broadcaster maintains the set of connected browser clients.
type Broadcaster struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	nextID  uint64
	clients map[uint64]Conn

	// sendMu serializes fan-outs so per-connection writes never interleave.
	sendMu sync.Mutex
}

// New creates an empty Broadcaster.
func New(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		log:     logger,
		clients: make(map[uint64]Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local development only
			},
		},
	}
}

// Register adds a client connection and returns its identifier.
func (b *Broadcaster) Register(conn Conn) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.clients[id] = conn
	return id
}

// Unregister removes a client connection. Unknown ids are a no-op, so a late
// unregister after a failed delivery is always safe.
func (b *Broadcaster) Unregister(id uint64) {
	b.mu.Lock()
	conn, ok := b.clients[id]
	delete(b.clients, id)
	b.mu.Unlock()

	if ok {
		conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Notify fans a reload decision out to every registered client. Ignore
// decisions produce no traffic.
func (b *Broadcaster) Notify(decision policy.Decision) {
	switch decision.Kind {
	case policy.DecisionFullRestart:
		b.broadcast(Message{Type: TypeReload})
	case policy.DecisionAssetReload:
		b.broadcast(Message{Type: TypeAssetReload, Paths: decision.Assets})
	}
}

// NotifyError shows an error overlay on every client.
func (b *Broadcaster) NotifyError(errMsg string) {
	b.broadcast(Message{Type: TypeError, Error: errMsg})
}

// ClearError removes the error overlay on every client.
func (b *Broadcaster) ClearError() {
	b.broadcast(Message{Type: TypeClear})
}

// broadcast sends msg to all connected clients. A client whose write fails is
// unregistered; the failure never propagates.
func (b *Broadcaster) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	b.mu.RLock()
	targets := make(map[uint64]Conn, len(b.clients))
	for id, conn := range b.clients {
		targets[id] = conn
	}
	b.mu.RUnlock()

	for id, conn := range targets {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			b.log.Debug("dropping client after failed delivery",
				"client", id,
				"err", errors.New(errors.CodeDelivery).Wrap(err))
			b.Unregister(id)
		}
	}
}

// Close disconnects all clients.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, conn := range b.clients {
		conn.Close()
		delete(b.clients, id)
	}
}

// ServeHTTP upgrades the request to a WebSocket and keeps the client
// registered until it disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	id := b.Register(conn)
	b.log.Debug("browser connected", "client", id)

	// Consume control frames until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	b.Unregister(id)
	b.log.Debug("browser disconnected", "client", id)
}
