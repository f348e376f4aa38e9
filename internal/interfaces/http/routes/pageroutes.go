package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/skyguide-inc/skyguide/internal/interfaces/http/handlers"
	"github.com/skyguide-inc/skyguide/internal/interfaces/http/middleware"
	"github.com/skyguide-inc/skyguide/internal/shared/constants"
)

type PageRouteConfig struct {
	Guard *middleware.RouteGuard
}

// SetupPageRoutes registers the guarded pages. /login and /signup are for
// signed-out clients only; the rest need a session and /admin an admin.
func SetupPageRoutes(engine *gin.Engine, cfg *PageRouteConfig) {
	publicOnly := cfg.Guard.Guard(middleware.GuardOptions{RedirectAuthenticatedTo: constants.PathChat})
	signedIn := cfg.Guard.Guard(middleware.GuardOptions{RequireAuth: true})
	admin := cfg.Guard.Guard(middleware.GuardOptions{RequireAuth: true, RequireAdmin: true})

	engine.GET(constants.PathLogin, publicOnly, handlers.Page("login"))
	engine.GET(constants.PathSignup, publicOnly, handlers.Page("signup"))

	engine.GET(constants.PathChat, signedIn, handlers.Page("chat"))
	engine.GET("/contracts", signedIn, handlers.Page("contracts"))
	engine.GET(constants.PathPricing, signedIn, handlers.Page("pricing"))
	engine.GET("/account", signedIn, handlers.Page("account"))

	engine.GET(constants.PathAdmin, admin, handlers.Page("admin"))
	engine.GET(constants.PathAdmin+"/:section", admin, handlers.Page("admin"))
}
