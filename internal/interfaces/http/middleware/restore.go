package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	appsession "github.com/skyguide-inc/skyguide/internal/application/session"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/auth"
	"github.com/skyguide-inc/skyguide/internal/shared/config"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
	"github.com/skyguide-inc/skyguide/internal/shared/utils"
)

// SessionRestorer re-establishes a provider session from a refresh token.
type SessionRestorer interface {
	GetSession(clientID string) (*auth.Session, bool)
	RestoreSession(ctx context.Context, clientID, refreshToken string) (*auth.Session, error)
}

// RecoveryRunner signs a client out with a notice.
type RecoveryRunner interface {
	Run(ctx context.Context, clientID string, cause appsession.Cause)
}

// RestoreSession brings back the provider session of a client whose
// persisted state is authenticated but whose tokens were lost, typically
// after a process restart. The provider then emits TOKEN_REFRESHED and the
// monitor resumes. A client that cannot be restored is recovered as expired.
func RestoreSession(restorer SessionRestorer, recovery RecoveryRunner, cookieCfg config.CookieConfig, log logger.Interface) gin.HandlerFunc {
	log = log.Named("middleware.restore")
	return func(c *gin.Context) {
		store := ClientStore(c)
		if store == nil || !store.IsAuthenticated() {
			c.Next()
			return
		}
		clientID := store.ClientID()
		if _, ok := restorer.GetSession(clientID); ok {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		refresh := utils.GetCookie(c, utils.RefreshTokenCookie)
		if refresh == "" {
			refresh = store.Snapshot().RefreshToken
		}
		if refresh == "" {
			log.Infow("no refresh token to restore session", "client_id", clientID)
			recovery.Run(context.WithoutCancel(ctx), clientID, appsession.CauseExpired)
			c.Set(ContextKeyUserID, "")
			c.Next()
			return
		}

		sess, err := restorer.RestoreSession(ctx, clientID, refresh)
		if err != nil {
			log.Warnw("failed to restore session", "client_id", clientID, "error", err)
			utils.ClearRefreshTokenCookie(c, cookieCfg)
			recovery.Run(context.WithoutCancel(ctx), clientID, appsession.CauseExpired)
			c.Set(ContextKeyUserID, "")
			c.Next()
			return
		}

		utils.SetRefreshTokenCookie(c, cookieCfg, sess.RefreshToken)
		log.Debugw("session restored", "client_id", clientID, "user_id", sess.UserID)
		c.Next()
	}
}
