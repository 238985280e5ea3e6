package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub manages WebSocket connections organized into named broadcast groups
// (clock.<id>, region.<country>.<region>). Group membership is decided by
// the engine, which calls AddToGroup/RemoveFromGroup; the hub only delivers.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Connection]bool
	conns  map[string]*Connection

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan broadcastMessage
}

// Connection represents one WebSocket client. Send is never closed; done is
// closed exactly once on unregister, so a broadcast racing a disconnect can
// never send on a closed channel.
type Connection struct {
	ID       string
	ViewerID string
	Conn     *websocket.Conn
	Send     chan []byte
	done     chan struct{}
	hub      *Hub

	ConnectedAt time.Time
	LastPing    time.Time

	onClose func(connectionID string)
	onInput func(connectionID string, message []byte)
}

// ConnectionConfig holds per-connection transport settings.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	Group string
	Data  []byte
}

// DefaultConnectionConfig returns sensible transport settings.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewHub creates an empty hub.
func NewHub(config ConnectionConfig) *Hub {
	return &Hub{
		groups: make(map[string]map[*Connection]bool),
		conns:  make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages until ctx is canceled.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("gateway hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("gateway hub shutting down")
			return
		case message := <-h.broadcastCh:
			h.handleBroadcast(message)
		}
	}
}

// AddToGroup subscribes a connection to a broadcast group.
func (h *Hub) AddToGroup(connectionID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connectionID]
	if !ok {
		return
	}
	if h.groups[group] == nil {
		h.groups[group] = make(map[*Connection]bool)
	}
	h.groups[group][conn] = true

	log.Debug().
		Str("connection_id", connectionID).
		Str("group", group).
		Int("members", len(h.groups[group])).
		Msg("connection joined group")
}

// RemoveFromGroup unsubscribes a connection from a broadcast group.
func (h *Hub) RemoveFromGroup(connectionID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connectionID]
	if !ok {
		return
	}
	if members, exists := h.groups[group]; exists {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// Broadcast queues raw bytes for every member of a group. Never blocks; a
// full queue drops the message with a warning.
func (h *Hub) Broadcast(group string, data []byte) {
	select {
	case h.broadcastCh <- broadcastMessage{Group: group, Data: data}:
	default:
		log.Warn().Str("group", group).Msg("broadcast channel full, dropping message")
	}
}

func (h *Hub) handleBroadcast(message broadcastMessage) {
	h.mu.RLock()
	members, exists := h.groups[message.Group]
	if !exists {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(members))
	for conn := range members {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		select {
		case conn.Send <- message.Data:
		case <-conn.done:
			// Unregistered between the snapshot and the send.
		default:
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("connection send buffer full, closing connection")
			h.unregister(conn)
			conn.Conn.Close()
		}
	}
}

// Upgrade turns an HTTP request into a registered WebSocket connection.
// onInput receives every client message; onClose fires once when the
// connection goes away.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, connectionID, viewerID string,
	onInput func(connectionID string, message []byte), onClose func(connectionID string)) (*Connection, error) {

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	conn := &Connection{
		ID:          connectionID,
		ViewerID:    viewerID,
		Conn:        wsConn,
		Send:        make(chan []byte, 256),
		done:        make(chan struct{}),
		hub:         h,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
		onClose:     onClose,
		onInput:     onInput,
	}

	h.mu.Lock()
	h.conns[connectionID] = conn
	h.mu.Unlock()

	go conn.writePump()
	go conn.readPump()

	log.Info().
		Str("connection_id", connectionID).
		Str("viewer_id", viewerID).
		Msg("WebSocket connection established")
	return conn, nil
}

// SendTo delivers raw bytes to one connection, dropping on a full buffer.
func (h *Hub) SendTo(connectionID string, data []byte) {
	h.mu.RLock()
	conn, ok := h.conns[connectionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case conn.Send <- data:
	case <-conn.done:
	default:
	}
}

// Stats reports live connection and group counts.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	groupCounts := make(map[string]int, len(h.groups))
	for group, members := range h.groups {
		groupCounts[group] = len(members)
	}
	return map[string]interface{}{
		"total_connections": len(h.conns),
		"active_groups":     len(h.groups),
		"group_members":     groupCounts,
	}
}

func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	current, ok := h.conns[conn.ID]
	if !ok || current != conn {
		h.mu.Unlock()
		return
	}
	delete(h.conns, conn.ID)
	for group, members := range h.groups {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	close(conn.done)
	h.mu.Unlock()

	if conn.onClose != nil {
		conn.onClose(conn.ID)
	}
	log.Info().
		Str("connection_id", conn.ID).
		Str("viewer_id", conn.ViewerID).
		Msg("connection unregistered")
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		if c.onInput != nil {
			c.onInput(c.ID, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}
