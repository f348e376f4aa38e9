package constants

const (
	HeaderXRequestID     = "X-Request-ID"
	HeaderAcceptLanguage = "Accept-Language"
	HeaderPlatformHint   = "Sec-CH-UA-Platform"

	ContextKeyClientID = "client_id"
	ContextKeyStore    = "client_store"

	TableSessions = "sessions"
	TableUsers    = "users"
	TableProfiles = "profiles"

	// Navigation targets used by the session subsystem.
	PathLogin   = "/login"
	PathSignup  = "/signup"
	PathChat    = "/chat"
	PathPricing = "/pricing"
	PathAdmin   = "/admin"

	ErrMsgInternalServerError = "Internal server error occurred"
	ErrMsgUnauthorized        = "Unauthorized access"
	ErrMsgForbidden           = "Access forbidden"
)
