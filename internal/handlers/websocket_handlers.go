package handlers

import (
	"net/http"
	"strings"

	"edulink/internal/auth"
	"edulink/internal/config"
	"edulink/internal/relay"
	"edulink/internal/signaling"
	"edulink/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService *auth.Service
	hub         *relay.Hub
	gateway     *relay.Gateway
	calls       *signaling.Coordinator
	cfg         *config.Config
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, hub *relay.Hub, gateway *relay.Gateway, calls *signaling.Coordinator, cfg *config.Config) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		hub:         hub,
		gateway:     gateway,
		calls:       calls,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket authenticates the handshake and hands the connection to
// the relay. A bad credential refuses the connection before any event is
// processed.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	user, err := h.authService.Authenticate(r.Context(), token)
	if err != nil {
		logger.Debug("Handshake rejected: %v", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := relay.NewClient(conn, user, h.hub, h.gateway, h.calls, h.cfg.Relay)
	h.hub.Register(client)
	h.calls.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
