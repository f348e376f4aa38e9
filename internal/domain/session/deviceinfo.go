package session

import "time"

// UnknownIP is stored when the client address could not be determined.
const UnknownIP = "unknown"

// DeviceInfo is the fingerprint captured when a record is created.
type DeviceInfo struct {
	UserAgent string    `json:"user_agent"`
	Platform  string    `json:"platform"`
	Language  string    `json:"language"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
}

// RequestInfo is what the server knows about the request that started a
// session. It is the input to device collection.
type RequestInfo struct {
	UserAgent      string
	AcceptLanguage string
	// PlatformHint is the Sec-CH-UA-Platform client hint, quotes included.
	PlatformHint   string
	RemoteIP       string
}
