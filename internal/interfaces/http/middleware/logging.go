package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skyguide-inc/skyguide/internal/shared/constants"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

// quietPaths are polled by health checks and would drown out real traffic.
var quietPaths = map[string]bool{
	"/health": true,
}

// Logger logs one line per request, tagged with the client and user it
// served. Redirects and successes log at debug.
func Logger(log logger.Interface) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if quietPaths[c.Request.URL.Path] && c.Writer.Status() < 400 {
			return
		}

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		args := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if requestID := c.GetHeader(constants.HeaderXRequestID); requestID != "" {
			args = append(args, "request_id", requestID)
		}
		if clientID := ClientID(c); clientID != "" {
			args = append(args, "client_id", clientID)
		}
		if userID := c.GetString(ContextKeyUserID); userID != "" {
			args = append(args, "user_id", userID)
		}
		if len(c.Errors) > 0 {
			args = append(args, "error", c.Errors.Last().Error())
		}

		switch requestLevel(status) {
		case slog.LevelError:
			log.Errorw("request failed", args...)
		case slog.LevelWarn:
			log.Warnw("request rejected", args...)
		default:
			log.Debugw("request served", args...)
		}
	}
}

func requestLevel(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}
