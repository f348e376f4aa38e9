package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/skyguide-inc/skyguide/internal/interfaces/http/handlers"
	"github.com/skyguide-inc/skyguide/internal/interfaces/http/middleware"
)

// AuthRouteConfig holds dependencies for authentication routes.
type AuthRouteConfig struct {
	AuthHandler *handlers.AuthHandler
	RateLimiter *middleware.RateLimiter
}

// SetupAuthRoutes configures authentication routes.
func SetupAuthRoutes(engine *gin.Engine, cfg *AuthRouteConfig) {
	auth := engine.Group("/auth")
	{
		auth.POST("/signup", cfg.RateLimiter.Limit(), cfg.AuthHandler.Signup)
		auth.POST("/login", cfg.RateLimiter.Limit(), cfg.AuthHandler.Login)

		auth.GET("/oauth/google", cfg.AuthHandler.InitiateGoogleOAuth)
		auth.GET("/oauth/google/callback", cfg.AuthHandler.HandleGoogleOAuthCallback)

		auth.POST("/refresh", cfg.AuthHandler.Refresh)
		auth.POST("/logout", cfg.AuthHandler.Logout)
		auth.GET("/me", middleware.RequireSession(), cfg.AuthHandler.GetMe)
		auth.PATCH("/me", middleware.RequireSession(), cfg.AuthHandler.UpdateMe)
	}
}
