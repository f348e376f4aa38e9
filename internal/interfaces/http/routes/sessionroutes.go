package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/skyguide-inc/skyguide/internal/interfaces/http/handlers"
	"github.com/skyguide-inc/skyguide/internal/interfaces/http/middleware"
)

// SessionRouteConfig holds dependencies for the session API and the notice
// socket.
type SessionRouteConfig struct {
	SessionHandler *handlers.SessionHandler
	NoticeHandler  *handlers.NoticeHandler
}

func SetupSessionRoutes(engine *gin.Engine, cfg *SessionRouteConfig) {
	api := engine.Group("/api")
	api.Use(middleware.RequireSession())
	{
		api.GET("/sessions", cfg.SessionHandler.ListSessions)
		api.GET("/session/validate", cfg.SessionHandler.ValidateSession)
	}

	engine.GET("/ws/notices", cfg.NoticeHandler.NoticesWS)
}
