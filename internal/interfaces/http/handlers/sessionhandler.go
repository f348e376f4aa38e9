package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skyguide-inc/skyguide/internal/interfaces/http/middleware"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
	"github.com/skyguide-inc/skyguide/internal/shared/utils"
)

type SessionHandler struct {
	records sessionRecords
	logger  logger.Interface
}

func NewSessionHandler(records sessionRecords, log logger.Interface) *SessionHandler {
	return &SessionHandler{
		records: records,
		logger:  log.Named("handler.session"),
	}
}

// ListSessions handles GET /api/sessions.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	store := middleware.ClientStore(c)
	snap := store.Snapshot()

	records, err := h.records.ListActiveSessions(c.Request.Context(), snap.UserID)
	if err != nil {
		h.logger.Errorw("failed to list sessions", "user_id", snap.UserID, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "success", toSessionResponses(records, snap.SessionToken))
}

// ValidateSession handles GET /api/session/validate. An invalid session is
// reported in the body; the monitor is what acts on it.
func (h *SessionHandler) ValidateSession(c *gin.Context) {
	store := middleware.ClientStore(c)
	valid := h.records.ValidateSession(c.Request.Context(), store.SessionToken())

	utils.SuccessResponse(c, http.StatusOK, "success", gin.H{"valid": valid})
}
