package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/loopradio/go/internal/radio/events"
	"github.com/mcdev12/loopradio/go/internal/radio/protocol"
	"github.com/mcdev12/loopradio/go/internal/radio/timeline"
	"github.com/rs/zerolog/log"
)

// ConnectionManager relays the timeline and ping/pong exchanges for every
// connected listener. The only state shared across sessions is the
// immutable timeline and the registry used for stats and shutdown.
type ConnectionManager struct {
	authority *timeline.Authority
	publisher events.Publisher
	clock     clockwork.Clock

	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	totalSessions atomic.Uint64
}

// Connection is one listener session
type Connection struct {
	ID         string
	RemoteAddr string
	Conn       *websocket.Conn
	Send       chan []byte
	Manager    *ConnectionManager

	ConnectedAt time.Time

	done      chan struct{}
	pongs     atomic.Uint64
	closeOnce sync.Once
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second, // listeners ping every few seconds
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a relay for authority
func NewConnectionManager(authority *timeline.Authority, publisher events.Publisher, clock clockwork.Clock, config ConnectionConfig) *ConnectionManager {
	if publisher == nil {
		publisher = events.LogPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 64
	}
	return &ConnectionManager{
		authority:   authority,
		publisher:   publisher,
		clock:       clock,
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// UpgradeConnection upgrades an HTTP connection and opens a session.
// The hello is queued before the pumps start so it is always the first frame.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		RemoteAddr:  r.RemoteAddr,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		done:        make(chan struct{}),
		ConnectedAt: cm.clock.Now(),
	}

	hello, err := json.Marshal(protocol.NewHello(cm.authority.NowMs(), cm.authority.Spec()))
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to marshal hello: %w", err)
	}
	connection.Send <- hello

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("session_id", connection.ID).
		Str("remote_addr", connection.RemoteAddr).
		Msg("listener session opened")

	return nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	cm.connections[conn] = true
	total := len(cm.connections)
	cm.mu.Unlock()

	cm.totalSessions.Add(1)
	cm.publish(events.NewSessionEvent(events.EventTypeSessionOpened, conn.ID, conn.RemoteAddr, conn.ConnectedAt))

	log.Debug().
		Str("session_id", conn.ID).
		Int("total_connections", total).
		Msg("connection registered")
}

// unregisterConnection removes a connection; safe to call from both pumps
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	_, exists := cm.connections[conn]
	if exists {
		delete(cm.connections, conn)
	}
	cm.mu.Unlock()

	if !exists {
		return
	}
	conn.closeSend()

	now := cm.clock.Now()
	event := events.NewSessionEvent(events.EventTypeSessionClosed, conn.ID, conn.RemoteAddr, now)
	event.ConnectedMs = now.Sub(conn.ConnectedAt).Milliseconds()
	event.PongsSent = conn.pongs.Load()
	cm.publish(event)

	log.Info().
		Str("session_id", conn.ID).
		Str("remote_addr", conn.RemoteAddr).
		Uint64("pongs_sent", event.PongsSent).
		Msg("listener session closed")
}

func (cm *ConnectionManager) publish(event events.SessionEvent) {
	if err := cm.publisher.Publish(context.Background(), event); err != nil {
		log.Warn().
			Err(err).
			Str("event_type", string(event.Type)).
			Str("session_id", event.SessionID).
			Msg("failed to publish session event")
	}
}

// CloseAll disconnects every session
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		cm.unregisterConnection(conn)
	}
}

// ConnectionCount returns the number of open sessions
func (cm *ConnectionManager) ConnectionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	return map[string]interface{}{
		"total_connections": cm.ConnectionCount(),
		"sessions_served":   cm.totalSessions.Load(),
	}
}

func (c *Connection) closeSend() {
	c.closeOnce.Do(func() { close(c.done) })
}

// enqueue hands a frame to the write pump without blocking the read path
func (c *Connection) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	defer func() {
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("session_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().
					Err(err).
					Str("session_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage answers pings; everything else is dropped
func (c *Connection) handleClientMessage(message []byte) {
	msg, err := protocol.Decode(message)
	if err != nil {
		log.Debug().
			Err(err).
			Bool("unknown_type", errors.Is(err, protocol.ErrUnknownType)).
			Str("session_id", c.ID).
			Msg("dropping client message")
		return
	}

	ping, ok := msg.(*protocol.Ping)
	if !ok {
		log.Trace().Str("session_id", c.ID).Msg("ignoring non-ping client message")
		return
	}

	data, err := json.Marshal(protocol.NewPong(c.Manager.authority.NowMs(), *ping))
	if err != nil {
		log.Error().Err(err).Str("session_id", c.ID).Msg("failed to marshal pong")
		return
	}
	if !c.enqueue(data) {
		log.Debug().Str("session_id", c.ID).Msg("send buffer full, dropping pong")
		return
	}
	c.pongs.Add(1)
}
