package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skyguide-inc/skyguide/internal/application/clientstate"
	"github.com/skyguide-inc/skyguide/internal/shared/config"
	"github.com/skyguide-inc/skyguide/internal/shared/constants"
	"github.com/skyguide-inc/skyguide/internal/shared/utils"
)

const ContextKeyUserID = "user_id"

// StoreRegistry resolves the state of one browser context.
type StoreRegistry interface {
	Get(ctx context.Context, clientID string) *clientstate.Store
}

// ClientContext binds every request to a client id carried in the sg_client
// cookie, minting one when the cookie is missing or malformed.
func ClientContext(registry StoreRegistry, cookieCfg config.CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := utils.GetCookie(c, utils.ClientCookie)
		if _, err := uuid.Parse(clientID); err != nil {
			clientID = uuid.NewString()
			utils.SetClientCookie(c, cookieCfg, clientID)
		}

		store := registry.Get(c.Request.Context(), clientID)
		c.Set(constants.ContextKeyClientID, clientID)
		c.Set(constants.ContextKeyStore, store)
		if store.IsAuthenticated() {
			c.Set(ContextKeyUserID, store.UserID())
		}

		c.Next()
	}
}

// ClientID returns the id bound by ClientContext, or "".
func ClientID(c *gin.Context) string {
	return c.GetString(constants.ContextKeyClientID)
}

// ClientStore returns the store bound by ClientContext, or nil.
func ClientStore(c *gin.Context) *clientstate.Store {
	v, ok := c.Get(constants.ContextKeyStore)
	if !ok {
		return nil
	}
	store, _ := v.(*clientstate.Store)
	return store
}
