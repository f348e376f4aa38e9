package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

const (
	ErrorTypeInvalidCredentials ErrorType = "invalid_credentials"
	ErrorTypeTokenExpired       ErrorType = "token_expired"
	ErrorTypeTokenInvalid       ErrorType = "token_invalid"
	ErrorTypeSessionExpired     ErrorType = "session_expired"
	ErrorTypeOAuthError         ErrorType = "oauth_error"
)

// AuthError is an AppError with logging and security-event hints.
type AuthError struct {
	*AppError
	// ShouldLog is false for expected failures such as a wrong password.
	ShouldLog     bool
	SecurityEvent bool
	// Stage names the OAuth step that failed, empty for other errors.
	Stage string
}

func (e *AuthError) Error() string {
	return e.AppError.Error()
}

func (e *AuthError) Unwrap() error {
	return e.AppError
}

func unauthorized(t ErrorType, message, details string) *AuthError {
	return &AuthError{AppError: &AppError{
		Type:    t,
		Message: message,
		Code:    http.StatusUnauthorized,
		Details: details,
	}}
}

// NewInvalidCredentialsError does not reveal which of email or password was wrong.
func NewInvalidCredentialsError() *AuthError {
	e := unauthorized(ErrorTypeInvalidCredentials, "Invalid email or password", "")
	e.SecurityEvent = true
	return e
}

// NewTokenExpiredError is an expected outcome once a refresh token outlives
// its seven days, so it is not logged.
func NewTokenExpiredError(tokenType string) *AuthError {
	return unauthorized(ErrorTypeTokenExpired, fmt.Sprintf("%s has expired", tokenType), "Please login again")
}

// NewTokenInvalidError covers forged, mistyped and revoked tokens.
func NewTokenInvalidError(tokenType string) *AuthError {
	e := unauthorized(ErrorTypeTokenInvalid, fmt.Sprintf("Invalid %s", tokenType), "Token is invalid or has been revoked")
	e.ShouldLog = true
	e.SecurityEvent = true
	return e
}

// NewSessionExpiredError means the client holds no provider session.
func NewSessionExpiredError() *AuthError {
	return unauthorized(ErrorTypeSessionExpired, "Session has expired", "Please login again")
}

func NewOAuthError(provider string, stage string, details ...string) *AuthError {
	detail := fmt.Sprintf("sign-in with %s failed during %s", provider, stage)
	if len(details) > 0 {
		detail = details[0]
	}
	return &AuthError{
		AppError: &AppError{
			Type:    ErrorTypeOAuthError,
			Message: fmt.Sprintf("Sign-in with %s failed", provider),
			Code:    http.StatusBadGateway,
			Details: detail,
		},
		ShouldLog: true,
		Stage:     stage,
	}
}

func IsAuthError(err error) bool {
	return GetAuthError(err) != nil
}

func GetAuthError(err error) *AuthError {
	var authErr *AuthError
	if stderrors.As(err, &authErr) {
		return authErr
	}
	return nil
}

// ShouldLogAuthError defaults to true for errors that are not AuthErrors.
func ShouldLogAuthError(err error) bool {
	if authErr := GetAuthError(err); authErr != nil {
		return authErr.ShouldLog
	}
	return true
}

func IsSecurityEvent(err error) bool {
	authErr := GetAuthError(err)
	return authErr != nil && authErr.SecurityEvent
}
