package websocket

import (
	"log"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatrelay/pkg/types"
)

// Submitter accepts decoded commands and disconnect signals for a connection
type Submitter interface {
	Submit(connectionID string, env types.Envelope) error
	Disconnect(connectionID string)
}

// Handler upgrades HTTP requests and pumps frames between sockets and the hub
// ARCHITECTURAL DISCOVERY: The handler only translates transport events into
// the three core signals (connected, command, disconnected)
type Handler struct {
	registry *Registry
	submit   Submitter
	opts     Options
	upgrader websocket.Upgrader
	newID    func() string
}

// NewHandler creates a WebSocket handler
func NewHandler(registry *Registry, submitter Submitter, opts Options) (*Handler, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if submitter == nil {
		return nil, ErrNilSubmitter
	}
	return &Handler{
		registry: registry,
		submit:   submitter,
		opts:     opts.withDefaults(),
		upgrader: websocket.Upgrader{
			CheckOrigin:      originChecker(opts.AllowedOrigins),
			HandshakeTimeout: 10 * time.Second,
		},
		newID: uuid.NewString,
	}, nil
}

// originChecker admits requests from the listed origins
// FUNCTIONAL DISCOVERY: Browser clients are served from other origins, so an
// empty list allows all; requests without an Origin header are not from browsers
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.ContainsFunc(allowed, func(o string) bool {
			return strings.EqualFold(strings.TrimSuffix(o, "/"), origin)
		})
	}
}

// HandleWebSocket upgrades the request and starts the connection lifecycle
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.newID(), h.opts)
	if err := h.registry.RegisterConnection(wsConn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}

	go h.handleConnection(wsConn)
}

// handleConnection runs the read pump and heartbeat until the socket fails
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Unregister before signalling disconnect so the
		// teardown fan-out never targets the departing socket
		h.registry.UnregisterConnection(conn)
		h.submit.Disconnect(conn.GetConnectionID())
		_ = conn.Close()
	}()

	conn.conn.SetReadLimit(h.opts.MaxMessageBytes)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	go h.heartbeat(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error on %s: %v", conn.GetConnectionID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		env, err := types.DecodeEnvelope(data)
		if err != nil {
			log.Printf("Dropping malformed frame from %s: %v", conn.GetConnectionID(), err)
			continue
		}
		if err := h.submit.Submit(conn.GetConnectionID(), env); err != nil {
			log.Printf("Dropping %s from %s: %v", env.Type, conn.GetConnectionID(), err)
		}
	}
}

// heartbeat pings the peer until the connection closes
// TECHNICAL DISCOVERY: WriteControl is safe to call alongside the writer goroutine
func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}
