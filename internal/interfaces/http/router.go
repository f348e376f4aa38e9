package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/skyguide-inc/skyguide/internal/infrastructure/config"
	"github.com/skyguide-inc/skyguide/internal/interfaces/http/handlers"
	"github.com/skyguide-inc/skyguide/internal/interfaces/http/middleware"
	"github.com/skyguide-inc/skyguide/internal/interfaces/http/routes"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

// Router represents the HTTP router configuration.
type Router struct {
	*Container
}

// NewRouter wires the container and installs the global middleware chain.
func NewRouter(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, log logger.Interface) (*Router, error) {
	c, err := NewContainer(db, redisClient, cfg, log)
	if err != nil {
		return nil, err
	}

	r := &Router{Container: c}
	r.engine.Use(
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.CORS(c.allowedOrigins()),
		middleware.SecurityHeaders(),
		middleware.ClientContext(c.registry, cfg.Auth.Cookie),
		middleware.RestoreSession(c.provider, c.recovery, cfg.Auth.Cookie, log),
		middleware.Stabilizing(c.phases),
		middleware.ErrorHandler(log),
	)
	return r, nil
}

// SetupRoutes registers every route group.
func (r *Router) SetupRoutes() {
	r.engine.GET("/health", handlers.Health)

	routes.SetupAuthRoutes(r.engine, &routes.AuthRouteConfig{
		AuthHandler: r.hdlrs.auth,
		RateLimiter: r.loginLimiter,
	})

	routes.SetupSessionRoutes(r.engine, &routes.SessionRouteConfig{
		SessionHandler: r.hdlrs.session,
		NoticeHandler:  r.hdlrs.notice,
	})

	routes.SetupPageRoutes(r.engine, &routes.PageRouteConfig{
		Guard: r.routeGuard,
	})
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// StartMaintenance runs the periodic sweeps until ctx is cancelled or
// Shutdown is called.
func (r *Router) StartMaintenance(ctx context.Context) {
	r.maintenance.Start(ctx)
}
