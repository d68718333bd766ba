package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type ConnectionStats interface {
	ConnectionCount() int
}

type HealthHandler struct {
	stats ConnectionStats
}

func NewHealthHandler(stats ConnectionStats) *HealthHandler {
	return &HealthHandler{
		stats: stats,
	}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "Server is running",
		"time":        time.Now().Format(time.RFC3339),
		"connections": h.stats.ConnectionCount(),
	})
}
