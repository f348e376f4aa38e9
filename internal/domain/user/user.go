// Package user holds account identities and the profile attributes the
// session subsystem reads after sign-in.
package user

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provider names where an identity was established.
const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Provider     string
	// ProviderSubject is the OAuth provider's stable user id.
	ProviderSubject string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewUser(email, provider string, now time.Time) (*User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if provider == "" {
		provider = ProviderEmail
	}
	return &User{
		ID:        uuid.NewString(),
		Email:     normalized,
		Provider:  provider,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HasPassword is false for accounts created through OAuth.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

func NormalizeEmail(email string) (string, error) {
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" {
		return "", fmt.Errorf("email cannot be empty")
	}
	if len(normalized) > 255 || !emailRegex.MatchString(normalized) {
		return "", fmt.Errorf("invalid email format: %s", email)
	}
	return normalized, nil
}
