package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyguide-inc/skyguide/internal/application/clientstate"
	appsession "github.com/skyguide-inc/skyguide/internal/application/session"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/auth"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
	"github.com/skyguide-inc/skyguide/internal/shared/utils"
)

type fakeRestorer struct {
	live       bool
	restoreErr error
	presented  string
	calls      int
}

func (f *fakeRestorer) GetSession(string) (*auth.Session, bool) {
	if f.live {
		return &auth.Session{UserID: "user-1"}, true
	}
	return nil, false
}

func (f *fakeRestorer) RestoreSession(_ context.Context, _ string, refreshToken string) (*auth.Session, error) {
	f.calls++
	f.presented = refreshToken
	if f.restoreErr != nil {
		return nil, f.restoreErr
	}
	return &auth.Session{UserID: "user-1", RefreshToken: "rotated"}, nil
}

type fakeRecovery struct {
	causes []appsession.Cause
}

func (f *fakeRecovery) Run(_ context.Context, _ string, cause appsession.Cause) {
	f.causes = append(f.causes, cause)
}

func restoreEngine(registry *clientstate.Registry, restorer *fakeRestorer, recovery *fakeRecovery) *gin.Engine {
	r := gin.New()
	r.Use(ClientContext(registry, testCookieCfg))
	r.Use(RestoreSession(restorer, recovery, testCookieCfg, logger.Nop()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func findCookie(w *http.Response, name string) *http.Cookie {
	for _, c := range w.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRestoreSession_SkipsAnonymousAndLiveClients(t *testing.T) {
	registry := clientstate.NewRegistry(nil, logger.Nop())
	restorer := &fakeRestorer{}
	recovery := &fakeRecovery{}
	r := restoreEngine(registry, restorer, recovery)

	w := serve(r, newRequest(http.MethodGet, "/x", uuid.NewString()))
	assert.Equal(t, http.StatusOK, w.Code)

	clientID := uuid.NewString()
	signedIn(registry, clientID, "user-1")
	restorer.live = true
	serve(r, newRequest(http.MethodGet, "/x", clientID))

	assert.Zero(t, restorer.calls)
	assert.Empty(t, recovery.causes)
}

func TestRestoreSession_FromCookie(t *testing.T) {
	registry := clientstate.NewRegistry(nil, logger.Nop())
	restorer := &fakeRestorer{}
	recovery := &fakeRecovery{}
	r := restoreEngine(registry, restorer, recovery)

	clientID := uuid.NewString()
	signedIn(registry, clientID, "user-1")
	req := newRequest(http.MethodGet, "/x", clientID)
	req.AddCookie(&http.Cookie{Name: utils.RefreshTokenCookie, Value: "from-cookie"})

	w := serve(r, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "from-cookie", restorer.presented)
	assert.Empty(t, recovery.causes)
	cookie := findCookie(w.Result(), utils.RefreshTokenCookie)
	require.NotNil(t, cookie)
	assert.Equal(t, "rotated", cookie.Value)
}

func TestRestoreSession_NoRefreshTokenRecovers(t *testing.T) {
	registry := clientstate.NewRegistry(nil, logger.Nop())
	restorer := &fakeRestorer{}
	recovery := &fakeRecovery{}
	r := restoreEngine(registry, restorer, recovery)

	clientID := uuid.NewString()
	signedIn(registry, clientID, "user-1")

	w := serve(r, newRequest(http.MethodGet, "/x", clientID))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, restorer.calls)
	assert.Equal(t, []appsession.Cause{appsession.CauseExpired}, recovery.causes)
}

func TestRestoreSession_FailureClearsCookieAndRecovers(t *testing.T) {
	registry := clientstate.NewRegistry(nil, logger.Nop())
	restorer := &fakeRestorer{restoreErr: errors.New("token expired")}
	recovery := &fakeRecovery{}
	r := restoreEngine(registry, restorer, recovery)

	clientID := uuid.NewString()
	signedIn(registry, clientID, "user-1")
	req := newRequest(http.MethodGet, "/x", clientID)
	req.AddCookie(&http.Cookie{Name: utils.RefreshTokenCookie, Value: "stale"})

	w := serve(r, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []appsession.Cause{appsession.CauseExpired}, recovery.causes)
	cookie := findCookie(w.Result(), utils.RefreshTokenCookie)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}
