package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/skyguide-inc/skyguide/internal/infrastructure/ratelimit"
	"github.com/skyguide-inc/skyguide/internal/shared/errors"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
	"github.com/skyguide-inc/skyguide/internal/shared/utils"
)

// RateLimiter limits one route group per client IP. Counters live in Redis
// so every instance shares the same window.
type RateLimiter struct {
	limiter ratelimit.RateLimiter
	scope   string
	rule    ratelimit.Rule
	logger  logger.Interface
}

func NewRateLimiter(limiter ratelimit.RateLimiter, scope string, rule ratelimit.Rule, log logger.Interface) *RateLimiter {
	return &RateLimiter{
		limiter: limiter,
		scope:   scope,
		rule:    rule,
		logger:  log.Named("middleware.ratelimit"),
	}
}

func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rl.scope + ":" + c.ClientIP()

		allowed, err := rl.limiter.Allow(c.Request.Context(), key, rl.rule)
		if err != nil {
			// Redis unavailable: let the request through rather than lock
			// everyone out of sign-in.
			rl.logger.Warnw("rate limiter unavailable", "scope", rl.scope, "error", err)
			c.Next()
			return
		}

		if !allowed {
			utils.ErrorResponseWithError(c, errors.NewRateLimitedError("rate limit exceeded, please try again later"))
			c.Abort()
			return
		}

		c.Next()
	}
}
