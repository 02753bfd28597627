package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Change event types pushed to subscribers
const (
	EventCustomerCreated = "customer_created"
	EventCustomerUpdated = "customer_updated"
	EventCustomerDeleted = "customer_deleted"
	EventVisitSaved      = "visit_saved"
	EventVisitDeleted    = "visit_deleted"
)

// Event describes a change; subscribers re-fetch what they display
type Event struct {
	Type       string `json:"type"`
	CustomerID string `json:"customer_id"`
	VisitID    string `json:"visit_id,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// Publisher receives change events from the services
type Publisher interface {
	Publish(event Event)
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(Event) {}

// writeWait bounds a single write to a connection
const writeWait = 10 * time.Second

// Conn is the part of *websocket.Conn the hub writes to
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// subscriber is one open connection. Admins see every event, customers only
// events of their own customer id.
type subscriber struct {
	conn       Conn
	role       string
	customerID string
	writeWait  time.Duration
	writeMu    sync.Mutex
}

func (s *subscriber) wants(event Event) bool {
	if s.role == RoleAdmin {
		return true
	}
	return s.customerID == event.CustomerID
}

func (s *subscriber) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]*subscriber
	writeWait   time.Duration
	now         func() time.Time
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		connections: make(map[string]*subscriber),
		writeWait:   writeWait,
		now:         time.Now,
	}
}

// Register registers a connection under id for the given session
func (h *WSHub) Register(id string, session *Session, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Close existing connection if any
	if existing, exists := h.connections[id]; exists {
		existing.conn.Close()
	}

	sub := &subscriber{conn: conn, role: session.Role, writeWait: h.writeWait}
	if session.Role == RoleCustomer {
		sub.customerID = session.Subject
	}
	h.connections[id] = sub

	log.Info().Str("conn_id", id).Str("role", session.Role).Msg("WebSocket connection registered")
}

// Unregister removes and closes a connection
func (h *WSHub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, exists := h.connections[id]; exists {
		sub.conn.Close()
		delete(h.connections, id)
		log.Info().Str("conn_id", id).Msg("WebSocket connection unregistered")
	}
}

// Count returns the number of open connections
func (h *WSHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Publish sends the event to every interested connection. Connections that
// fail to accept the write within writeWait are dropped.
func (h *WSHub) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = h.now().UnixMilli()
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("type", event.Type).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	targets := make(map[string]*subscriber)
	for id, sub := range h.connections {
		if sub.wants(event) {
			targets[id] = sub
		}
	}
	h.mu.RUnlock()

	for id, sub := range targets {
		if err := sub.write(data); err != nil {
			log.Error().
				Err(err).
				Str("conn_id", id).
				Str("type", event.Type).
				Msg("Failed to deliver event")
			h.Unregister(id)
		}
	}
}

// SendError writes an error message to one connection
func (h *WSHub) SendError(id, message string) error {
	h.mu.RLock()
	sub, exists := h.connections[id]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("connection %s is not registered", id)
	}

	data, err := json.Marshal(map[string]string{"type": "error", "message": message})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return sub.write(data)
}

// Close closes every connection
func (h *WSHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.connections {
		sub.conn.Close()
		delete(h.connections, id)
	}
}
