package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"scrapmart/internal/domain/entity"
	"scrapmart/internal/infrastructure/firebase"
	"scrapmart/pkg/response"
)

type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*entity.User, error)
}

// DevTokenHandler hands out dev:<uid> tokens. Only routed when DEV_AUTH is on.
type DevTokenHandler struct {
	users UserLookup
}

func NewDevTokenHandler(users UserLookup) *DevTokenHandler {
	return &DevTokenHandler{
		users: users,
	}
}

// GenerateUserToken returns a token for an existing user.
func (h *DevTokenHandler) GenerateUserToken(c echo.Context) error {
	user, err := h.users.GetUser(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"token": firebase.DevToken(user.ID),
		"user": map[string]interface{}{
			"id":       user.ID,
			"email":    user.Email,
			"username": user.DisplayName(),
			"role":     user.Role,
		},
	})
}
