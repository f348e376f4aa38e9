package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skyguide-inc/skyguide/internal/shared/config"
)

const (
	// RefreshTokenCookie mirrors the auth provider's refresh token for the browser.
	RefreshTokenCookie = "sb-refresh-token"
	// ClientCookie identifies one browser context.
	ClientCookie = "sg_client"

	clientCookieMaxAge = 30 * 24 * 60 * 60
)

// SetRefreshTokenCookie writes sb-refresh-token with the configured max age.
func SetRefreshTokenCookie(c *gin.Context, cfg config.CookieConfig, refreshToken string) {
	setCookie(c, cfg, RefreshTokenCookie, refreshToken, cfg.MaxAge)
}

func ClearRefreshTokenCookie(c *gin.Context, cfg config.CookieConfig) {
	setCookie(c, cfg, RefreshTokenCookie, "", -1)
}

// SetClientCookie uses Lax so the client id survives the top-level redirect
// back from an OAuth provider.
func SetClientCookie(c *gin.Context, cfg config.CookieConfig, clientID string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ClientCookie, clientID, clientCookieMaxAge, "/", cfg.Domain, cfg.Secure, true)
}

// GetCookie returns the named cookie or "".
func GetCookie(c *gin.Context, name string) string {
	v, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return v
}

func setCookie(c *gin.Context, cfg config.CookieConfig, name, value string, maxAge int) {
	c.SetSameSite(parseSameSite(cfg.SameSite))
	c.SetCookie(name, value, maxAge, "/", cfg.Domain, cfg.Secure, true)
}

func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "Lax":
		return http.SameSiteLaxMode
	case "None":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
