package server

import (
	"github.com/labstack/echo/v4"

	"github.com/venturelink/pitchcall/internal/application/config"
	"github.com/venturelink/pitchcall/internal/infra/ports/http/handlers"
	"github.com/venturelink/pitchcall/internal/infra/ports/http/middleware"
)

func New(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	callHandler *handlers.CallHandler,
	messageHandler *handlers.MessageHandler,
	iceHandler *handlers.IceHandler,
	wsHandler *handlers.WebSocketHandler,
) *echo.Echo {
	e := echo.New()

	e.HideBanner = true

	e.Use(middleware.SlogLogger())
	e.Use(middleware.PrometheusMiddleware())

	api := e.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		v1 := api.Group("/v1")
		v1.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
		{
			v1.GET("/me", authHandler.GetMe)

			v1.GET("/ice", iceHandler.IceServers)

			v1.GET("/ws", wsHandler.Handle)

			v1.GET("/calls", callHandler.ListCallsHandler)
			v1.POST("/calls", callHandler.CreateCallHandler)
			v1.PUT("/calls/:id/status", callHandler.UpdateCallStatusHandler)

			v1.GET("/messages/:sessionID", messageHandler.ListMessagesHandler)
			v1.POST("/messages", messageHandler.PostMessageHandler)

			v1.GET("/users/online", authHandler.GetOnlineUsers)
		}
	}

	e.Static("/", "web")

	return e
}
