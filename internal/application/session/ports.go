// Package session enforces one active session per user: it creates and
// validates session records, watches the current record for invalidation
// and funnels every loss of validity into a single recovery routine.
package session

import (
	"context"

	"github.com/skyguide-inc/skyguide/internal/domain/session"
	"github.com/skyguide-inc/skyguide/internal/domain/user"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/auth"
)

// LoginPath is where every forced logout lands.
const LoginPath = "/login"

// AuthProvider is the part of the auth provider the session lifecycle drives.
type AuthProvider interface {
	RefreshSession(ctx context.Context, clientID string) (*auth.Session, error)
	SignOut(ctx context.Context, clientID string, scope auth.Scope) error
	ReauthURL(ctx context.Context, clientID string) (string, error)
}

type DeviceCollector interface {
	Collect(ctx context.Context, req session.RequestInfo) session.DeviceInfo
}

type ProfileReader interface {
	GetByUserID(ctx context.Context, userID string) (*user.Profile, error)
}

// Navigator sends a client to another page.
type Navigator interface {
	Navigate(ctx context.Context, clientID, path string) error
}

// SessionValidator is what a monitor needs from the record service.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) bool
	UpdateActivity(ctx context.Context, token string)
}

// MonitorCanceler stops a client's monitor without waiting for it.
type MonitorCanceler interface {
	Cancel(clientID string)
}
