package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"scrapmart/internal/domain/entity"
	"scrapmart/pkg/errors"
	"scrapmart/pkg/response"
)

type PresenceChecker interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type PresenceHandler struct {
	presence PresenceChecker
}

func NewPresenceHandler(presence PresenceChecker) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

func (h *PresenceHandler) GetPresence(c echo.Context) error {
	userID := c.Param("userId")
	if err := entity.ValidateID(userID); err != nil {
		return response.Error(c, errors.BadRequest("Invalid user id", err))
	}

	online, err := h.presence.IsOnline(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, errors.Unavailable("Presence is unavailable", err))
	}
	return response.Success(c, map[string]interface{}{
		"user_id": userID,
		"online":  online,
	})
}
