package middleware

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/skyguide-inc/skyguide/internal/application/bootphase"
	"github.com/skyguide-inc/skyguide/internal/application/clientstate"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

type fakeAuthorizer struct {
	admins map[string]bool
	err    error
	calls  int
}

func (a *fakeAuthorizer) CanView(userID string, isAdmin bool, path string) (bool, error) {
	a.calls++
	if a.err != nil {
		return false, a.err
	}
	return isAdmin || a.admins[userID], nil
}

type guardFixture struct {
	registry *clientstate.Registry
	phases   *bootphase.Controller
	authz    *fakeAuthorizer
	engine   *gin.Engine
}

func newGuardFixture() *guardFixture {
	f := &guardFixture{
		registry: clientstate.NewRegistry(nil, logger.Nop()),
		phases:   bootphase.NewController(time.Minute),
		authz:    &fakeAuthorizer{admins: map[string]bool{}},
		engine:   gin.New(),
	}
	guard := NewRouteGuard(f.phases, f.authz, logger.Nop())
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }

	f.engine.Use(ClientContext(f.registry, testCookieCfg), Stabilizing(f.phases))
	f.engine.GET("/login", guard.Guard(GuardOptions{RedirectAuthenticatedTo: "/chat"}), ok)
	f.engine.GET("/chat", guard.Guard(GuardOptions{RequireAuth: true}), ok)
	f.engine.GET("/admin", guard.Guard(GuardOptions{RequireAuth: true, RequireAdmin: true}), ok)
	return f
}

func TestRouteGuard_UnauthenticatedRedirectsToLogin(t *testing.T) {
	f := newGuardFixture()

	w := serve(f.engine, newRequest(http.MethodGet, "/chat", uuid.NewString()))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestRouteGuard_AuthenticatedPasses(t *testing.T) {
	f := newGuardFixture()
	clientID := uuid.NewString()
	signedIn(f.registry, clientID, "user-1")

	w := serve(f.engine, newRequest(http.MethodGet, "/chat", clientID))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouteGuard_AuthenticatedLeavesLoginPage(t *testing.T) {
	f := newGuardFixture()
	clientID := uuid.NewString()
	signedIn(f.registry, clientID, "user-1")

	w := serve(f.engine, newRequest(http.MethodGet, "/login", clientID))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/chat", w.Header().Get("Location"))

	w = serve(f.engine, newRequest(http.MethodGet, "/login", uuid.NewString()))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouteGuard_AdminPage(t *testing.T) {
	f := newGuardFixture()
	clientID := uuid.NewString()
	store := signedIn(f.registry, clientID, "user-1")

	w := serve(f.engine, newRequest(http.MethodGet, "/admin", clientID))
	assert.Equal(t, http.StatusForbidden, w.Code)

	store.SetIsAdmin(true)
	w = serve(f.engine, newRequest(http.MethodGet, "/admin", clientID))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouteGuard_AdminPageUnauthenticatedRedirects(t *testing.T) {
	f := newGuardFixture()

	w := serve(f.engine, newRequest(http.MethodGet, "/admin", uuid.NewString()))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Zero(t, f.authz.calls)
}

func TestRouteGuard_AuthorizerErrorIsServerError(t *testing.T) {
	f := newGuardFixture()
	f.authz.err = errors.New("adapter down")
	clientID := uuid.NewString()
	signedIn(f.registry, clientID, "user-1")

	w := serve(f.engine, newRequest(http.MethodGet, "/admin", clientID))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRouteGuard_StabilizingSuspendsRedirects(t *testing.T) {
	f := newGuardFixture()
	clientID := uuid.NewString()

	w := serve(f.engine, newRequest(http.MethodGet, "/chat?payment=success", clientID))
	assert.Equal(t, http.StatusOK, w.Code)

	// The window outlives the return URL.
	w = serve(f.engine, newRequest(http.MethodGet, "/chat", clientID))
	assert.Equal(t, http.StatusOK, w.Code)

	f.phases.Clear(clientID)
	w = serve(f.engine, newRequest(http.MethodGet, "/chat", clientID))
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestRouteGuard_StabilizingStillAuthorizesAdmin(t *testing.T) {
	f := newGuardFixture()
	anonymous := uuid.NewString()

	w := serve(f.engine, newRequest(http.MethodGet, "/admin?payment=success", anonymous))
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = serve(f.engine, newRequest(http.MethodGet, "/admin?code=x&state=y", anonymous))
	assert.Equal(t, http.StatusForbidden, w.Code)

	member := uuid.NewString()
	signedIn(f.registry, member, "user-1")
	w = serve(f.engine, newRequest(http.MethodGet, "/admin?payment=success", member))
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := uuid.NewString()
	signedIn(f.registry, admin, "admin-1")
	f.authz.admins["admin-1"] = true
	w = serve(f.engine, newRequest(http.MethodGet, "/admin?payment=success", admin))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStabilizing_PaymentReturnSetsFlags(t *testing.T) {
	f := newGuardFixture()
	clientID := uuid.NewString()
	store := signedIn(f.registry, clientID, "user-1")
	store.SetPaymentInProgress(true)

	w := serve(f.engine, newRequest(http.MethodGet, "/chat?checkout_session_id=cs_1&subscription=activated", clientID))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, bootphase.PhaseStabilizingAfterPayment, f.phases.Current(clientID))
	snap := store.Snapshot()
	assert.False(t, snap.PaymentInProgress)
	assert.True(t, snap.PostPaymentConfirmation)
	assert.True(t, snap.SubscriptionActivated)
}

func TestStabilizing_OAuthReturn(t *testing.T) {
	f := newGuardFixture()
	clientID := uuid.NewString()

	w := serve(f.engine, newRequest(http.MethodGet, "/chat?code=abc&state=xyz", clientID))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, bootphase.PhaseStabilizingAfterAuth, f.phases.Current(clientID))
}
