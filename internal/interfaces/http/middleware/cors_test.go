package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func corsEngine() *gin.Engine {
	r := gin.New()
	r.Use(CORS([]string{"https://app.skyguide.example/"}), SecurityHeaders())
	r.GET("/auth/me", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestCORS_AllowedOrigin(t *testing.T) {
	req := newRequest(http.MethodGet, "/auth/me", "")
	req.Header.Set("Origin", "https://app.skyguide.example")

	w := serve(corsEngine(), req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.skyguide.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestCORS_ForeignOrigin(t *testing.T) {
	req := newRequest(http.MethodGet, "/health", "")
	req.Header.Set("Origin", "https://evil.example")

	w := serve(corsEngine(), req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Cache-Control"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestCORS_Preflight(t *testing.T) {
	allowed := newRequest(http.MethodOptions, "/auth/me", "")
	allowed.Header.Set("Origin", "https://app.skyguide.example")
	allowed.Header.Set("Access-Control-Request-Method", http.MethodPatch)

	w := serve(corsEngine(), allowed)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)

	foreign := newRequest(http.MethodOptions, "/auth/me", "")
	foreign.Header.Set("Origin", "https://evil.example")
	foreign.Header.Set("Access-Control-Request-Method", http.MethodPost)

	w = serve(corsEngine(), foreign)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
