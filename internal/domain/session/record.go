// Package session models the server-side session record that enforces a
// single active login per user.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive      Status = "active"
	StatusInvalidated Status = "invalidated"
)

// tokenBytes gives 256-bit session tokens.
const tokenBytes = 32

// Record is one logical login. Status only ever moves active -> invalidated.
type Record struct {
	ID            string
	UserID        string
	TokenHash     string
	DeviceInfo    DeviceInfo
	IPAddress     string
	Status        Status
	LastActivity  time.Time
	ExpiresAt     time.Time
	InvalidatedAt *time.Time
	CreatedAt     time.Time
}

// NewRecord builds an active record for token. Only the token's hash is kept.
func NewRecord(userID, token string, device DeviceInfo, ipAddress string, ttl time.Duration, now time.Time) (*Record, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	if token == "" {
		return nil, fmt.Errorf("session token is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	if ipAddress == "" {
		ipAddress = UnknownIP
	}

	return &Record{
		ID:           uuid.NewString(),
		UserID:       userID,
		TokenHash:    HashToken(token),
		DeviceInfo:   device,
		IPAddress:    ipAddress,
		Status:       StatusActive,
		LastActivity: now,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
	}, nil
}

// Invalidate marks the record invalidated. Repeated calls keep the first timestamp.
func (r *Record) Invalidate(at time.Time) {
	if r.Status == StatusInvalidated {
		return
	}
	r.Status = StatusInvalidated
	r.InvalidatedAt = &at
}

func (r *Record) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// IsValid is the record-level form of the is-session-valid predicate.
func (r *Record) IsValid(now time.Time) bool {
	return r.Status == StatusActive && !r.IsExpired(now)
}

// Touch records activity. It does not extend ExpiresAt.
func (r *Record) Touch(now time.Time) {
	if now.After(r.LastActivity) {
		r.LastActivity = now
	}
}

func (r *Record) MatchesToken(token string) bool {
	return subtle.ConstantTimeCompare([]byte(r.TokenHash), []byte(HashToken(token))) == 1
}

// GenerateToken returns a fresh hex-encoded random session token.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken is the lookup key stored in place of the plaintext token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
