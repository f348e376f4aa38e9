package constants

// OAuthErrorCode is reported to the client when the Google callback fails.
type OAuthErrorCode string

const (
	OAuthErrorAccessDenied   OAuthErrorCode = "access_denied"
	OAuthErrorMissingCode    OAuthErrorCode = "missing_code"
	OAuthErrorInvalidState   OAuthErrorCode = "invalid_state"
	OAuthErrorExchangeFailed OAuthErrorCode = "exchange_failed"
	OAuthErrorUserInfoFailed OAuthErrorCode = "userinfo_failed"
)

var oauthErrorMessages = map[OAuthErrorCode]string{
	OAuthErrorAccessDenied:   "You denied the authorization request. Please try again if you wish to continue.",
	OAuthErrorMissingCode:    "Authorization code is missing. Please try logging in again.",
	OAuthErrorInvalidState:   "Sign-in link expired or was tampered with. Please try again.",
	OAuthErrorExchangeFailed: "Failed to complete authentication. Please try again.",
	OAuthErrorUserInfoFailed: "Failed to retrieve your Google profile. Please try again.",
}

// OAuthErrorMessage maps a provider or internal code to a user-facing message.
func OAuthErrorMessage(code string) string {
	if msg, ok := oauthErrorMessages[OAuthErrorCode(code)]; ok {
		return msg
	}
	return "An unexpected error occurred during authentication. Please try again."
}
