package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// generateState returns the OAuth state value that keys the PKCE verifier
// and the initiating client in the state store.
func generateState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
