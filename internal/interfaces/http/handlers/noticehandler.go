package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/skyguide-inc/skyguide/internal/infrastructure/notice"
	"github.com/skyguide-inc/skyguide/internal/interfaces/http/middleware"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
	"github.com/skyguide-inc/skyguide/internal/shared/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
)

type noticeHub interface {
	Register(clientID string) *notice.Conn
	Unregister(conn *notice.Conn)
}

// NoticeHandler serves the per-client WebSocket that carries notices and
// navigation commands.
type NoticeHandler struct {
	hub      noticeHub
	upgrader websocket.Upgrader
	logger   logger.Interface
}

// NewNoticeHandler accepts upgrades only from the listed origins. A request
// without an Origin header is not a browser and is accepted.
func NewNoticeHandler(hub noticeHub, allowedOrigins []string, log logger.Interface) *NoticeHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return &NoticeHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				_, ok := allowed[u.Scheme+"://"+u.Host]
				return ok
			},
		},
		logger: log.Named("handler.notice"),
	}
}

// NoticesWS handles GET /ws/notices.
func (h *NoticeHandler) NoticesWS(c *gin.Context) {
	clientID := middleware.ClientID(c)
	if clientID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "client context missing")
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("failed to upgrade to websocket",
			"error", err,
			"client_id", clientID,
			"ip", c.ClientIP())
		return
	}

	conn := h.hub.Register(clientID)
	if conn == nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = ws.Close()
		return
	}

	h.logger.Debugw("notice websocket connected", "client_id", clientID, "conn_id", conn.ID)

	go h.writePump(ws, conn)
	h.readPump(ws, conn)
}

// readPump only keeps the read deadline moving. Clients never send data.
func (h *NoticeHandler) readPump(ws *websocket.Conn, conn *notice.Conn) {
	defer func() {
		h.hub.Unregister(conn)
		_ = ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debugw("notice websocket read error", "error", err, "client_id", conn.ClientID)
			}
			return
		}
	}
}

func (h *NoticeHandler) writePump(ws *websocket.Conn, conn *notice.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case data, ok := <-conn.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debugw("failed to write notice", "error", err, "client_id", conn.ClientID)
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
