package router

import (
	"github.com/labstack/echo/v4"

	"scrapmart/internal/adapter/api/handler"
	"scrapmart/internal/adapter/api/middleware"
)

// SetupChatRouter sets up the REST bootstrap endpoints used before the realtime channel takes over.
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, presenceHandler *handler.PresenceHandler, authMiddleware *middleware.AuthMiddleware, rateLimit echo.MiddlewareFunc) {
	v1 := e.Group("/v1")
	if rateLimit != nil {
		v1.Use(rateLimit)
	}
	v1.Use(authMiddleware.Authenticate)

	sessions := v1.Group("/chats/sessions")
	sessions.POST("", chatHandler.StartSession)             // POST /v1/chats/sessions - Start or get session for a product
	sessions.GET("", chatHandler.ListSessions)              // GET /v1/chats/sessions - Caller's sessions
	sessions.GET("/:id", chatHandler.GetSession)            // GET /v1/chats/sessions/:id
	sessions.GET("/:id/messages", chatHandler.ListMessages) // GET /v1/chats/sessions/:id/messages?after_seq=&limit=

	v1.GET("/presence/:userId", presenceHandler.GetPresence)
}
