package utils

import (
	"strings"
	"unicode/utf8"
)

// MaskEmail keeps the first character of the local part and the domain, so
// log lines stay correlatable without carrying the full address.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return "***"
	}
	r, _ := utf8.DecodeRuneInString(local)
	if r == utf8.RuneError {
		return "***@" + domain
	}
	return string(r) + "***@" + domain
}
