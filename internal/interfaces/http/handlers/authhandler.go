package handlers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/skyguide-inc/skyguide/internal/application/clientstate"
	"github.com/skyguide-inc/skyguide/internal/domain/session"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/auth"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/cache"
	"github.com/skyguide-inc/skyguide/internal/interfaces/http/middleware"
	"github.com/skyguide-inc/skyguide/internal/shared/config"
	"github.com/skyguide-inc/skyguide/internal/shared/constants"
	"github.com/skyguide-inc/skyguide/internal/shared/errors"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
	"github.com/skyguide-inc/skyguide/internal/shared/utils"
)

// AuthHandler drives the auth provider for one client. Session records and
// monitors are created by the auth state handler that listens to the
// provider, so by the time a provider call returns the client store is
// already up to date.
type AuthHandler struct {
	provider     authProvider
	records      sessionRecords
	profiles     profileReader
	logger       logger.Interface
	cookieConfig config.CookieConfig
}

func NewAuthHandler(
	provider authProvider,
	records sessionRecords,
	profiles profileReader,
	cookieConfig config.CookieConfig,
	logger logger.Interface,
) *AuthHandler {
	return &AuthHandler{
		provider:     provider,
		records:      records,
		profiles:     profiles,
		logger:       logger.Named("handler.auth"),
		cookieConfig: cookieConfig,
	}
}

type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateMeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func requestInfo(c *gin.Context) session.RequestInfo {
	return session.RequestInfo{
		UserAgent:      c.Request.UserAgent(),
		AcceptLanguage: c.GetHeader(constants.HeaderAcceptLanguage),
		PlatformHint:   c.GetHeader(constants.HeaderPlatformHint),
		RemoteIP:       c.ClientIP(),
	}
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponseWithError(c, errors.NewBadRequestError("invalid request body", err.Error()))
		return
	}

	clientID := middleware.ClientID(c)
	sess, err := h.provider.SignUp(c.Request.Context(), clientID, req.Email, req.Password, requestInfo(c))
	if err != nil {
		h.logAuthFailure("sign-up failed", clientID, req.Email, err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	h.respondSignedIn(c, http.StatusCreated, "sign-up successful", sess)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponseWithError(c, errors.NewBadRequestError("invalid request body", err.Error()))
		return
	}

	clientID := middleware.ClientID(c)
	sess, err := h.provider.SignIn(c.Request.Context(), clientID, req.Email, req.Password, requestInfo(c))
	if err != nil {
		h.logAuthFailure("login failed", clientID, req.Email, err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	h.respondSignedIn(c, http.StatusOK, "login successful", sess)
}

// respondSignedIn answers a successful provider sign-in. The store is not
// authenticated when the sign-in listener had to recover, in which case the
// client was already told why.
func (h *AuthHandler) respondSignedIn(c *gin.Context, status int, message string, sess *auth.Session) {
	store := middleware.ClientStore(c)
	if store == nil || !store.IsAuthenticated() {
		utils.ErrorResponseWithError(c, errors.NewUnauthorizedError("session could not be established"))
		return
	}

	utils.SetRefreshTokenCookie(c, h.cookieConfig, sess.RefreshToken)
	utils.SuccessResponse(c, status, message, &AuthResponse{
		UserID:    sess.UserID,
		Email:     sess.Email,
		ExpiresAt: sess.ExpiresAt,
		Redirect:  landingPath(store.Snapshot()),
	})
}

func landingPath(snap clientstate.Snapshot) string {
	if snap.IsNewUserSignup || snap.RedirectToPricing {
		return constants.PathPricing
	}
	return constants.PathChat
}

func (h *AuthHandler) InitiateGoogleOAuth(c *gin.Context) {
	clientID := middleware.ClientID(c)

	authURL, err := h.provider.StartOAuth(c.Request.Context(), clientID, cache.IntentSignIn)
	if err != nil {
		h.logger.Errorw("OAuth initiation failed", "client_id", clientID, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, authURL)
}

// HandleGoogleOAuthCallback finishes the OAuth flow and lands the browser on
// a page. Failures go back to the login page with an error code.
func (h *AuthHandler) HandleGoogleOAuthCallback(c *gin.Context) {
	clientID := middleware.ClientID(c)

	if errParam := c.Query("error"); errParam != "" {
		h.logger.Warnw("OAuth provider returned error",
			"client_id", clientID,
			"error_code", errParam,
			"error_description", c.Query("error_description"))
		h.redirectOAuthError(c, constants.OAuthErrorCode(errParam))
		return
	}

	code, state := c.Query("code"), c.Query("state")
	if code == "" || state == "" {
		h.logger.Warnw("OAuth callback missing parameters", "client_id", clientID)
		h.redirectOAuthError(c, constants.OAuthErrorMissingCode)
		return
	}

	result, err := h.provider.CompleteOAuth(c.Request.Context(), code, state, requestInfo(c))
	if err != nil {
		h.logger.Errorw("OAuth callback failed", "client_id", clientID, "error", err)
		h.redirectOAuthError(c, oauthErrorCode(err))
		return
	}

	// The state belongs to the client that started the flow. A different
	// cookie here means the callback was replayed in another browser.
	if result.ClientID != clientID {
		h.logger.Warnw("OAuth callback client mismatch",
			"client_id", clientID,
			"state_client_id", result.ClientID)
		_ = h.provider.SignOut(context.WithoutCancel(c.Request.Context()), result.ClientID, auth.ScopeLocal)
		h.redirectOAuthError(c, constants.OAuthErrorInvalidState)
		return
	}

	store := middleware.ClientStore(c)
	if store == nil || !store.IsAuthenticated() {
		h.redirectOAuthError(c, constants.OAuthErrorExchangeFailed)
		return
	}

	utils.SetRefreshTokenCookie(c, h.cookieConfig, result.Session.RefreshToken)
	c.Redirect(http.StatusFound, landingPath(store.Snapshot()))
}

func oauthErrorCode(err error) constants.OAuthErrorCode {
	authErr := errors.GetAuthError(err)
	if authErr == nil {
		return ""
	}
	switch authErr.Stage {
	case "state":
		return constants.OAuthErrorInvalidState
	case "exchange":
		return constants.OAuthErrorExchangeFailed
	case "userinfo":
		return constants.OAuthErrorUserInfoFailed
	}
	return ""
}

func (h *AuthHandler) redirectOAuthError(c *gin.Context, code constants.OAuthErrorCode) {
	q := url.Values{}
	q.Set("error", string(code))
	q.Set("message", constants.OAuthErrorMessage(string(code)))
	c.Redirect(http.StatusFound, constants.PathLogin+"?"+q.Encode())
}

// Refresh rotates the client's tokens. A client whose provider session is
// gone is restored from the refresh cookie instead.
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	clientID := middleware.ClientID(c)

	sess, err := h.provider.RefreshSession(ctx, clientID)
	if err != nil {
		refreshToken := utils.GetCookie(c, utils.RefreshTokenCookie)
		if refreshToken == "" {
			utils.ErrorResponseWithError(c, err)
			return
		}
		sess, err = h.provider.RestoreSession(ctx, clientID, refreshToken)
		if err != nil {
			h.logAuthFailure("token refresh failed", clientID, "", err)
			utils.ClearRefreshTokenCookie(c, h.cookieConfig)
			utils.ErrorResponseWithError(c, err)
			return
		}
	}

	utils.SetRefreshTokenCookie(c, h.cookieConfig, sess.RefreshToken)
	utils.SuccessResponse(c, http.StatusOK, "token refreshed successfully", &AuthResponse{
		UserID:    sess.UserID,
		Email:     sess.Email,
		ExpiresAt: sess.ExpiresAt,
	})
}

// Logout ends the client's session record, then signs out of the provider.
// scope=global signs out every client of the same user.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())
	clientID := middleware.ClientID(c)

	scope := auth.ScopeLocal
	if c.Query("scope") == string(auth.ScopeGlobal) {
		scope = auth.ScopeGlobal
	}

	if store := middleware.ClientStore(c); store != nil {
		if err := h.records.EndSession(ctx, store.SessionToken()); err != nil {
			h.logger.Warnw("failed to end session record", "client_id", clientID, "error", err)
		}
	}

	if err := h.provider.SignOut(ctx, clientID, scope); err != nil {
		h.logger.Errorw("logout failed", "client_id", clientID, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.ClearRefreshTokenCookie(c, h.cookieConfig)
	utils.SuccessResponse(c, http.StatusOK, "logout successful", gin.H{"redirect": constants.PathLogin})
}

func (h *AuthHandler) GetMe(c *gin.Context) {
	store := middleware.ClientStore(c)
	snap := store.Snapshot()

	profile, err := h.profiles.GetByUserID(c.Request.Context(), snap.UserID)
	if err != nil {
		h.logger.Warnw("failed to load profile", "user_id", snap.UserID, "error", err)
	}

	utils.SuccessResponse(c, http.StatusOK, "success", toMeResponse(snap, profile))
}

func (h *AuthHandler) UpdateMe(c *gin.Context) {
	var req UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponseWithError(c, errors.NewBadRequestError("invalid request body", err.Error()))
		return
	}

	clientID := middleware.ClientID(c)
	if _, err := h.provider.UpdateEmail(c.Request.Context(), clientID, req.Email); err != nil {
		h.logAuthFailure("email update failed", clientID, req.Email, err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	h.GetMe(c)
}

// logAuthFailure keeps expected client mistakes out of the error log. Emails
// are masked.
func (h *AuthHandler) logAuthFailure(msg, clientID, email string, err error) {
	kv := []any{"client_id", clientID, "error", err}
	if email != "" {
		kv = append(kv, "email", utils.MaskEmail(email))
	}

	switch {
	case errors.IsSecurityEvent(err):
		h.logger.Warnw(msg, append(kv, "security_event", true)...)
	case errors.ShouldLogAuthError(err) && !isClientError(err):
		h.logger.Errorw(msg, kv...)
	default:
		h.logger.Debugw(msg, kv...)
	}
}

func isClientError(err error) bool {
	appErr := errors.GetAppError(err)
	return appErr != nil && appErr.Code < http.StatusInternalServerError
}
