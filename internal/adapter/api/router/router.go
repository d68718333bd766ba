package router

import (
	"github.com/labstack/echo/v4"

	"scrapmart/internal/adapter/api/handler"
	"scrapmart/internal/adapter/api/middleware"
)

type Handlers struct {
	Chat      *handler.ChatHandler
	Presence  *handler.PresenceHandler
	WebSocket *handler.WebSocketHandler
	Health    *handler.HealthHandler
	// Dev is nil outside DEV_AUTH.
	Dev *handler.DevTokenHandler
}

func Setup(e *echo.Echo, h Handlers, authMiddleware *middleware.AuthMiddleware, rateLimit echo.MiddlewareFunc) {
	SetupChatRouter(e, h.Chat, h.Presence, authMiddleware, rateLimit)
	SetupWebSocketRouter(e, h.WebSocket)
	SetupHealthRouter(e, h.Health)
	SetupDevRouter(e, h.Dev)
}
