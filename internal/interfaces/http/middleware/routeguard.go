package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skyguide-inc/skyguide/internal/application/bootphase"
	"github.com/skyguide-inc/skyguide/internal/application/clientstate"
	"github.com/skyguide-inc/skyguide/internal/shared/constants"
	"github.com/skyguide-inc/skyguide/internal/shared/errors"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
	"github.com/skyguide-inc/skyguide/internal/shared/utils"
)

// PhaseReader reports whether a client is inside a stabilizing window.
type PhaseReader interface {
	Current(clientID string) bootphase.Phase
}

// Authorizer decides admin-only page access.
type Authorizer interface {
	CanView(userID string, isAdmin bool, path string) (bool, error)
}

// GuardOptions configures one guarded route. RedirectAuthenticatedTo is
// applied only on routes that do not require authentication, such as /login.
type GuardOptions struct {
	RequireAuth               bool
	RequireAdmin              bool
	RedirectAuthenticatedTo   string
	RedirectUnauthenticatedTo string
}

type RouteGuard struct {
	phases PhaseReader
	authz  Authorizer
	logger logger.Interface
}

func NewRouteGuard(phases PhaseReader, authz Authorizer, log logger.Interface) *RouteGuard {
	return &RouteGuard{
		phases: phases,
		authz:  authz,
		logger: log.Named("middleware.routeguard"),
	}
}

// Guard evaluates, in order: stabilizing window, authentication, admin
// access, then the authenticated redirect. The stabilizing window suspends
// redirects only; admin routes are authorized inside it too.
func (g *RouteGuard) Guard(opts GuardOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := ClientID(c)
		store := ClientStore(c)
		authenticated := store != nil && store.IsAuthenticated()

		// Flags settle during the window; redirecting now would bounce the
		// client between pages.
		if g.phases.Current(clientID).IsStabilizing() {
			if opts.RequireAdmin && !g.authorizeAdmin(c, store, authenticated) {
				return
			}
			c.Next()
			return
		}

		if (opts.RequireAuth || opts.RequireAdmin) && !authenticated {
			target := opts.RedirectUnauthenticatedTo
			if target == "" {
				target = constants.PathLogin
			}
			c.Redirect(http.StatusFound, target)
			c.Abort()
			return
		}

		if opts.RequireAdmin && !g.authorizeAdmin(c, store, authenticated) {
			return
		}

		if !opts.RequireAuth && authenticated && opts.RedirectAuthenticatedTo != "" {
			c.Redirect(http.StatusFound, opts.RedirectAuthenticatedTo)
			c.Abort()
			return
		}

		c.Next()
	}
}

// authorizeAdmin aborts with 403 or 500 and returns false unless the signed-in
// client may view the admin page.
func (g *RouteGuard) authorizeAdmin(c *gin.Context, store *clientstate.Store, authenticated bool) bool {
	clientID := ClientID(c)
	if !authenticated {
		g.logger.Warnw("admin page requested without a session",
			"client_id", clientID,
			"path", c.Request.URL.Path)
		utils.ErrorResponseWithError(c, errors.NewForbiddenError(constants.ErrMsgForbidden))
		c.Abort()
		return false
	}

	allowed, err := g.authz.CanView(store.UserID(), store.AdminFlag(), c.Request.URL.Path)
	if err != nil {
		g.logger.Errorw("failed to evaluate page access",
			"client_id", clientID,
			"path", c.Request.URL.Path,
			"error", err)
		utils.ErrorResponseWithError(c, errors.NewInternalError(constants.ErrMsgInternalServerError))
		c.Abort()
		return false
	}
	if !allowed {
		g.logger.Warnw("admin page access denied",
			"client_id", clientID,
			"user_id", store.UserID(),
			"path", c.Request.URL.Path)
		utils.ErrorResponseWithError(c, errors.NewForbiddenError(constants.ErrMsgForbidden))
		c.Abort()
		return false
	}
	return true
}
