package api

import (
	"net/http"

	"github.com/BLNCname/GMailSecretary/internal/auth"
	ws "github.com/BLNCname/GMailSecretary/internal/websocket"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler handles the /api/v1/ws endpoint for new-mail notifications.
type WebSocketHandler struct {
	validator auth.TokenValidator
	hub       *ws.Hub
	logger    *zap.Logger
}

func NewWebSocketHandler(validator auth.TokenValidator, hub *ws.Hub, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		validator: validator,
		hub:       hub,
		logger:    logger.Named("api.ws"),
	}
}

var wsUpgrader = websocket.Upgrader{
	// Served behind a reverse proxy that enforces origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades and registers the connection.
// Browsers cannot set headers on WebSocket requests, so ?token= is accepted
// alongside the Authorization header.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = auth.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := h.validator.Validate(token)
	if err != nil {
		h.logger.Info("Token validation failed", zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", zap.String("user_id", userID), zap.Error(err))
		return
	}

	client := h.hub.Register(userID, conn)
	if client == nil {
		return
	}

	h.logger.Debug("Connection established", zap.String("user_id", userID))
	go h.readLoop(userID, client)
}

// readLoop discards client frames until the connection closes.
func (h *WebSocketHandler) readLoop(userID string, client *ws.Client) {
	conn := client.Conn()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.hub.Unregister(userID, client)
}
