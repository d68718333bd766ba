package router

import (
	"github.com/labstack/echo/v4"

	"scrapmart/internal/adapter/api/handler"
)

// SetupDevRouter is a no-op unless a dev token handler is configured.
func SetupDevRouter(e *echo.Echo, devTokenHandler *handler.DevTokenHandler) {
	if devTokenHandler == nil {
		return
	}

	e.GET("/_dev/token/:uid", devTokenHandler.GenerateUserToken)
}
