package router

import (
	"github.com/labstack/echo/v4"

	"letschat/internal/adapter/api/handler"
	"letschat/internal/adapter/api/middleware"
)

// SetupConversationRouter registers the conversation and message routes.
func SetupConversationRouter(e *echo.Echo, conversationHandler *handler.ConversationHandler, messageHandler *handler.MessageHandler, authMiddleware *middleware.AuthMiddleware) {
	group := e.Group("/v1/conversations")
	group.Use(authMiddleware.Authenticate)

	group.GET("", conversationHandler.ListConversations)
	group.POST("", conversationHandler.CreateConversation)
	group.PUT("/:id/read", conversationHandler.MarkConversationAsRead)
	group.DELETE("/:id", conversationHandler.DeleteConversation)

	group.POST("/:id/messages", messageHandler.SendMessage)
	group.GET("/:id/messages", messageHandler.ListMessages)
}
