package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skyguide-inc/skyguide/internal/shared/constants"
	"github.com/skyguide-inc/skyguide/internal/shared/utils"
)

// RequireSession rejects API calls from clients without an authenticated
// store. Pages use RouteGuard instead, which redirects.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		store := ClientStore(c)
		if store == nil || !store.IsAuthenticated() {
			utils.ErrorResponse(c, http.StatusUnauthorized, constants.ErrMsgUnauthorized)
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, store.UserID())
		c.Next()
	}
}
