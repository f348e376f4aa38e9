package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skyguide-inc/skyguide/internal/interfaces/http/middleware"
	"github.com/skyguide-inc/skyguide/internal/shared/utils"
	"github.com/skyguide-inc/skyguide/internal/shared/version"
)

// Page answers a guarded page route with the page name and the client's
// auth and phase state. The browser renders the page itself.
func Page(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		store := middleware.ClientStore(c)
		authenticated := store != nil && store.IsAuthenticated()

		data := gin.H{
			"page":          name,
			"authenticated": authenticated,
		}
		if phase, ok := c.Get(middleware.ContextKeyPhase); ok {
			data["phase"] = phase
		}
		if errCode := c.Query("error"); errCode != "" {
			data["error"] = errCode
			data["message"] = c.Query("message")
		}

		utils.SuccessResponse(c, http.StatusOK, "", data)
	}
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Version,
	})
}
