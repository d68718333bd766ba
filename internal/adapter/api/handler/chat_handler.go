package handler

import (
	"github.com/labstack/echo/v4"

	"scrapmart/internal/usecase"
	"scrapmart/pkg/response"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type startSessionRequest struct {
	ProductID string `json:"product_id" validate:"required,entityid"`
}

// StartSession finds or creates the caller's session for a product.
func (h *ChatHandler) StartSession(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req startSessionRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	result, err := h.chatUseCase.StartSession(c.Request().Context(), userID, req.ProductID)
	if err != nil {
		return response.Error(c, err)
	}

	if result.Created {
		return response.Created(c, result)
	}
	return response.Success(c, result)
}

// ListSessions returns the caller's sessions, most recently active first.
func (h *ChatHandler) ListSessions(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return response.Error(c, err)
	}
	limit, err := queryInt64(c, "limit")
	if err != nil {
		return response.Error(c, err)
	}

	sessions, err := h.chatUseCase.ListUserSessions(c.Request().Context(), userID, int(limit))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, sessions)
}

func (h *ChatHandler) GetSession(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return response.Error(c, err)
	}

	session, err := h.chatUseCase.GetSession(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	role, _ := session.RoleOf(userID)
	return response.Success(c, map[string]interface{}{
		"session": session,
		"room":    session.Room(),
		"role":    role,
	})
}

// ListMessages returns history in commit order, paged by after_seq and limit.
func (h *ChatHandler) ListMessages(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return response.Error(c, err)
	}
	afterSeq, err := queryInt64(c, "after_seq")
	if err != nil {
		return response.Error(c, err)
	}
	limit, err := queryInt64(c, "limit")
	if err != nil {
		return response.Error(c, err)
	}

	messages, err := h.chatUseCase.ListMessages(c.Request().Context(), userID, c.Param("id"), afterSeq, int(limit))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, messages)
}
