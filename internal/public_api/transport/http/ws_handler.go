package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mailflowhq/mailflow/internal/notifier"
	"github.com/mailflowhq/mailflow/internal/public_api/middleware"
)

// WSHandler upgrades authenticated clients and parks them in the hub
// until the connection drops.
type WSHandler struct {
	hub       *notifier.Hub
	validator middleware.TokenValidator
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

func NewWSHandler(hub *notifier.Hub, validator middleware.TokenValidator, clientURL string, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:       hub,
		validator: validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if clientURL == "" {
					return true
				}
				return r.Header.Get("Origin") == clientURL
			},
		},
		logger: logger.With("handler", "ws"),
	}
}

func (h *WSHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleConnect)
}

func (h *WSHandler) handleConnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Browsers cannot set headers on WebSocket dials, so the token
	// also rides the query string.
	token, ok := middleware.BearerToken(r)
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "Token required")
		return
	}

	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		h.logger.WarnContext(ctx, "WebSocket token validation failed", "error", err)
		respondError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.WarnContext(ctx, "WebSocket upgrade failed", "error", err, "user_id", claims.UserID)
		return
	}

	sc := notifier.NewSocketConn(conn)
	h.hub.Register(claims.UserID, sc)
	h.logger.InfoContext(ctx, "WebSocket connected", "user_id", claims.UserID)

	// The push channel is one-way; the read loop only watches for the
	// peer closing.
	go func() {
		defer func() {
			h.hub.Unregister(claims.UserID, sc)
			sc.Close()
			h.logger.Info("WebSocket disconnected", "user_id", claims.UserID)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
