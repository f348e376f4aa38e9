// Package testutil builds gin contexts for handler tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/skyguide-inc/skyguide/internal/application/clientstate"
	"github.com/skyguide-inc/skyguide/internal/shared/constants"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// NewTestContext creates a test gin.Context with the given method, path, and optional body.
func NewTestContext(method, path string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()

	var req *http.Request
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBytes))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	c, _ := gin.CreateTestContext(w)
	c.Request = req

	return c, w
}

// SetClientContext binds a client id and its store the way the client
// context middleware does.
func SetClientContext(c *gin.Context, store *clientstate.Store) {
	c.Set(constants.ContextKeyClientID, store.ClientID())
	c.Set(constants.ContextKeyStore, store)
}

// NewSignedInStore returns a store holding an authenticated session.
func NewSignedInStore(clientID, userID, token string) *clientstate.Store {
	store := clientstate.NewStore(clientID, nil, logger.Nop())
	store.SetSessionToken(token)
	store.SetUserID(userID)
	return store
}

// NewRegistry returns a registry without persistence.
func NewRegistry() *clientstate.Registry {
	return clientstate.NewRegistry(nil, logger.Nop())
}

// StoreFor is a shorthand for registry.Get in tests.
func StoreFor(registry *clientstate.Registry, clientID string) *clientstate.Store {
	return registry.Get(context.Background(), clientID)
}

// AddCookie attaches a cookie to the request.
func AddCookie(c *gin.Context, name, value string) {
	c.Request.AddCookie(&http.Cookie{Name: name, Value: value})
}

// SetQueryParams sets query parameters on the gin context.
func SetQueryParams(c *gin.Context, params map[string]string) {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	c.Request.URL.RawQuery = q.Encode()
}

// ParseResponse parses the JSON response body into the target struct.
func ParseResponse(w *httptest.ResponseRecorder, target any) error {
	return json.Unmarshal(w.Body.Bytes(), target)
}

// ResponseCookie returns the named Set-Cookie from the recorder, or nil.
func ResponseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range w.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

// APIResponse mirrors utils.APIResponse for test assertions.
type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorInfo      `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// ErrorInfo mirrors utils.ErrorInfo for test assertions.
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
