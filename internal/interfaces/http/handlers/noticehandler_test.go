package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyguide-inc/skyguide/internal/domain/notice"
	infranotice "github.com/skyguide-inc/skyguide/internal/infrastructure/notice"
	"github.com/skyguide-inc/skyguide/internal/shared/constants"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

func newNoticeServer(t *testing.T, hub *infranotice.Hub, clientID string) *httptest.Server {
	t.Helper()
	h := NewNoticeHandler(hub, []string{"https://app.skyguide.test"}, logger.Nop())

	r := gin.New()
	r.GET("/ws/notices", func(c *gin.Context) {
		c.Set(constants.ContextKeyClientID, clientID)
		c.Next()
	}, h.NoticesWS)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notices"
}

func waitConnected(t *testing.T, hub *infranotice.Hub, clientID string) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Connected(clientID) > 0 }, time.Second, 10*time.Millisecond)
}

func TestNoticeHandler_DeliversNotice(t *testing.T) {
	hub := infranotice.NewHub(nil, logger.Nop())
	t.Cleanup(hub.Shutdown)
	srv := newNoticeServer(t, hub, "client-1")

	header := http.Header{"Origin": []string{"https://app.skyguide.test"}}
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	defer ws.Close()
	waitConnected(t, hub, "client-1")

	n := notice.New(notice.KindSignedOutElsewhere, "/login", time.Now())
	require.NoError(t, hub.Notify(context.Background(), notice.Target{ClientID: "client-1"}, n))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var msg notice.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, notice.MessageNotice, msg.Type)
	require.NotNil(t, msg.Notice)
	assert.Equal(t, notice.KindSignedOutElsewhere, msg.Notice.Kind)
}

func TestNoticeHandler_DeliversNavigation(t *testing.T) {
	hub := infranotice.NewHub(nil, logger.Nop())
	t.Cleanup(hub.Shutdown)
	srv := newNoticeServer(t, hub, "client-1")

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer ws.Close()
	waitConnected(t, hub, "client-1")

	require.NoError(t, hub.Navigate(context.Background(), "client-1", "/login"))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var msg notice.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, notice.MessageNavigate, msg.Type)
	assert.Equal(t, "/login", msg.Path)
}

func TestNoticeHandler_RejectsForeignOrigin(t *testing.T) {
	hub := infranotice.NewHub(nil, logger.Nop())
	t.Cleanup(hub.Shutdown)
	srv := newNoticeServer(t, hub, "client-1")

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, hub.Connected("client-1"))
}

func TestNoticeHandler_UnregistersOnClose(t *testing.T) {
	hub := infranotice.NewHub(nil, logger.Nop())
	t.Cleanup(hub.Shutdown)
	srv := newNoticeServer(t, hub, "client-1")

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	waitConnected(t, hub, "client-1")

	require.NoError(t, ws.Close())

	assert.Eventually(t, func() bool { return hub.Connected("client-1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
