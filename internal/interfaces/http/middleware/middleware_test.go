package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyguide-inc/skyguide/internal/application/clientstate"
	"github.com/skyguide-inc/skyguide/internal/shared/config"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
	"github.com/skyguide-inc/skyguide/internal/shared/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testCookieCfg = config.CookieConfig{SameSite: "Strict", MaxAge: 3600}

// signedIn authenticates clientID's store the way CreateSession does.
func signedIn(registry *clientstate.Registry, clientID, userID string) *clientstate.Store {
	store := registry.Get(context.Background(), clientID)
	store.SetSessionToken("token-" + clientID)
	store.SetUserID(userID)
	return store
}

func newRequest(method, target, clientID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if clientID != "" {
		req.AddCookie(&http.Cookie{Name: utils.ClientCookie, Value: clientID})
	}
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestClientContext_MintsCookieForNewClient(t *testing.T) {
	registry := clientstate.NewRegistry(nil, logger.Nop())
	r := gin.New()
	r.Use(ClientContext(registry, testCookieCfg))

	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = ClientID(c)
		require.NotNil(t, ClientStore(c))
		c.Status(http.StatusOK)
	})

	w := serve(r, newRequest(http.MethodGet, "/x", ""))

	require.Equal(t, http.StatusOK, w.Code)
	_, err := uuid.Parse(seen)
	require.NoError(t, err)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, utils.ClientCookie, cookies[0].Name)
	assert.Equal(t, seen, cookies[0].Value)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.True(t, cookies[0].HttpOnly)
}

func TestClientContext_ReusesValidCookie(t *testing.T) {
	registry := clientstate.NewRegistry(nil, logger.Nop())
	clientID := uuid.NewString()
	signedIn(registry, clientID, "user-1")

	r := gin.New()
	r.Use(ClientContext(registry, testCookieCfg))
	r.GET("/x", func(c *gin.Context) {
		assert.Equal(t, clientID, ClientID(c))
		assert.Equal(t, "user-1", c.GetString(ContextKeyUserID))
		c.Status(http.StatusOK)
	})

	w := serve(r, newRequest(http.MethodGet, "/x", clientID))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies())
}

func TestClientContext_ReplacesMalformedCookie(t *testing.T) {
	registry := clientstate.NewRegistry(nil, logger.Nop())
	r := gin.New()
	r.Use(ClientContext(registry, testCookieCfg))
	r.GET("/x", func(c *gin.Context) {
		assert.NotEqual(t, "not-a-uuid", ClientID(c))
		c.Status(http.StatusOK)
	})

	w := serve(r, newRequest(http.MethodGet, "/x", "not-a-uuid"))

	require.Len(t, w.Result().Cookies(), 1)
}

func TestRequireSession(t *testing.T) {
	registry := clientstate.NewRegistry(nil, logger.Nop())
	clientID := uuid.NewString()

	r := gin.New()
	r.Use(ClientContext(registry, testCookieCfg))
	r.GET("/api/me", RequireSession(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextKeyUserID))
	})

	w := serve(r, newRequest(http.MethodGet, "/api/me", clientID))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	signedIn(registry, clientID, "user-7")
	w = serve(r, newRequest(http.MethodGet, "/api/me", clientID))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-7", w.Body.String())
}
