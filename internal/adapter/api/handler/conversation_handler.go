package handler

import (
	"github.com/labstack/echo/v4"

	"letschat/internal/usecase"
	"letschat/pkg/response"
)

type ConversationHandler struct {
	conversationUseCase *usecase.ConversationUseCase
}

func NewConversationHandler(conversationUseCase *usecase.ConversationUseCase) *ConversationHandler {
	return &ConversationHandler{
		conversationUseCase: conversationUseCase,
	}
}

type createConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1,dive,required"`
}

type markAsReadRequest struct {
	UserID string `json:"user_id"`
}

// ListConversations returns every conversation the caller participates in.
func (h *ConversationHandler) ListConversations(c echo.Context) error {
	userID := c.Get("uid").(string)

	conversations, err := h.conversationUseCase.ListConversations(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conversations)
}

// CreateConversation creates a conversation for the given participant set. The
// caller is expected to include their own id in the list.
func (h *ConversationHandler) CreateConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	conversationID, err := h.conversationUseCase.CreateConversation(c.Request().Context(), userID, usecase.CreateConversationInput{
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]string{"conversation_id": conversationID})
}

// MarkConversationAsRead flips the read marker for one participant row. The
// body's user_id defaults to the caller.
func (h *ConversationHandler) MarkConversationAsRead(c echo.Context) error {
	conversationID := c.Param("id")
	callerID := c.Get("uid").(string)

	var req markAsReadRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if req.UserID == "" {
		req.UserID = callerID
	}

	if err := h.conversationUseCase.MarkConversationAsRead(c.Request().Context(), callerID, req.UserID, conversationID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]bool{"marked": true})
}

// DeleteConversation removes a conversation and everything it owns.
func (h *ConversationHandler) DeleteConversation(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)

	if err := h.conversationUseCase.DeleteConversation(c.Request().Context(), userID, conversationID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]bool{"deleted": true})
}
