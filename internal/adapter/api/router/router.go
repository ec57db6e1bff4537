package router

import (
	"github.com/labstack/echo/v4"

	"letschat/internal/infrastructure/websocket"
)

func SetupHealthRouter(e *echo.Echo, wsManager *websocket.Manager) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]interface{}{
			"status":            "ok",
			"websocket_clients": wsManager.ClientCount(),
		})
	})
}
