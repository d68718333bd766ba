package handler

import (
	"net/http"
	"strings"

	gorillaws "github.com/gorilla/websocket" // Rename the import to avoid conflict
	"github.com/labstack/echo/v4"

	"scrapmart/internal/domain/entity"
	"scrapmart/internal/infrastructure/firebase"
	ws "scrapmart/internal/infrastructure/websocket" // Use alias for our websocket package
	"scrapmart/pkg/errors"
	"scrapmart/pkg/logger"
	"scrapmart/pkg/response"
)

type WebSocketHandler struct {
	wsManager *ws.Manager
	verifier  firebase.TokenVerifier
	upgrader  gorillaws.Upgrader
}

// NewWebSocketHandler accepts browser connections from allowedOrigins only;
// an empty list accepts every origin.
func NewWebSocketHandler(wsManager *ws.Manager, verifier firebase.TokenVerifier, allowedOrigins []string) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	return &WebSocketHandler{
		wsManager: wsManager,
		verifier:  verifier,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// HandleWebSocket upgrades /ws?token=&role=. Without a token the connection
// is anonymous: it may query presence but cannot join rooms or send.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		token = strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	}

	var userID string
	if token != "" {
		uid, err := h.verifier.VerifyToken(c.Request().Context(), token)
		if err != nil {
			logger.Warn("WebSocket: Rejected handshake from %s: %v", c.RealIP(), err)
			return response.Error(c, errors.Unauthorized("Invalid or expired token", err))
		}
		userID = uid
	}

	role := strings.ToLower(strings.TrimSpace(c.QueryParam("role")))
	if role != "" {
		if _, ok := entity.ParseSenderRole(role); !ok {
			return response.Error(c, errors.BadRequest("role must be buyer or seller", nil))
		}
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Warn("WebSocket: Upgrade failed for %s: %v", c.RealIP(), err)
		return nil
	}

	client := h.wsManager.NewClient(conn, userID, role)
	h.wsManager.Register(c.Request().Context(), client)

	go client.WritePump()
	go client.ReadPump()

	return nil
}
