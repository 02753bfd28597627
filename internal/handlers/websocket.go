package handlers

import (
	"net/http"

	"karte-backend/internal/middleware"
	"karte-backend/internal/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler handles WebSocket connections. Clients only listen;
// the hub pushes change events.
type WebSocketHandler struct {
	hub  *services.WSHub
	auth middleware.SessionValidator
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.WSHub, auth middleware.SessionValidator) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, auth: auth}
}

// HandleWebSocket handles GET /ws?token=...
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.ValidateWebSocketToken(r.URL.Query().Get("token"), h.auth)
	if err != nil {
		respondMessage(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	connID := uuid.New().String()
	h.hub.Register(connID, session, conn)
	defer h.hub.Unregister(connID)

	log.Info().
		Str("conn_id", connID).
		Str("subject", session.Subject).
		Msg("WebSocket connection established")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("conn_id", connID).Msg("WebSocket error")
			}
			return
		}
		if err := h.hub.SendError(connID, "Unknown message type"); err != nil {
			log.Error().Err(err).Str("conn_id", connID).Msg("Failed to send WebSocket error")
		}
	}
}
