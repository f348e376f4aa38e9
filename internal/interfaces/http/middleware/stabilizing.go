package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/skyguide-inc/skyguide/internal/application/bootphase"
)

const ContextKeyPhase = "boot_phase"

// PhaseTracker records and reports the stabilizing window of a client.
type PhaseTracker interface {
	Begin(clientID string, phase bootphase.Phase)
	Current(clientID string) bootphase.Phase
}

// Stabilizing opens a stabilizing window when the URL shows the client just
// came back from checkout or from an OAuth provider. During payment return
// the store flags are set so later navigation can confirm the subscription.
func Stabilizing(phases PhaseTracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := ClientID(c)
		if clientID == "" {
			c.Next()
			return
		}

		phase := bootphase.DetectFromURL(c.Request.URL)
		if phase.IsStabilizing() {
			phases.Begin(clientID, phase)
			if phase == bootphase.PhaseStabilizingAfterPayment {
				if store := ClientStore(c); store != nil {
					store.SetPaymentInProgress(false)
					store.SetPostPaymentConfirmation(true)
					if c.Query("subscription") == "activated" {
						store.SetSubscriptionActivated(true)
					}
				}
			}
		}

		c.Set(ContextKeyPhase, phases.Current(clientID))
		c.Next()
	}
}
