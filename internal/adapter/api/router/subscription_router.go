package router

import (
	"github.com/labstack/echo/v4"

	"letschat/internal/adapter/api/handler"
)

// SetupSubscriptionRouter registers the WebSocket endpoint. Authentication
// happens inside the handshake via the token query parameter, not through the
// bearer-token middleware.
func SetupSubscriptionRouter(e *echo.Echo, subscriptionHandler *handler.SubscriptionHandler) {
	e.GET("/v1/ws", subscriptionHandler.HandleWebSocket)
}
