package router

import (
	"github.com/labstack/echo/v4"

	"scrapmart/internal/adapter/api/handler"
)

// SetupWebSocketRouter sets up WebSocket routes
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	// Auth is handled inside the handler so anonymous viewers can connect.
	e.GET("/ws", wsHandler.HandleWebSocket)
}
