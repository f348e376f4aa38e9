package handlers

import (
	"context"

	"github.com/skyguide-inc/skyguide/internal/domain/session"
	"github.com/skyguide-inc/skyguide/internal/domain/user"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/auth"
)

// Collaborator interfaces for the handlers - enables unit testing with mocks.

type authProvider interface {
	SignUp(ctx context.Context, clientID, email, password string, req session.RequestInfo) (*auth.Session, error)
	SignIn(ctx context.Context, clientID, email, password string, req session.RequestInfo) (*auth.Session, error)
	StartOAuth(ctx context.Context, clientID, intent string) (string, error)
	CompleteOAuth(ctx context.Context, code, state string, req session.RequestInfo) (*auth.OAuthResult, error)
	RefreshSession(ctx context.Context, clientID string) (*auth.Session, error)
	RestoreSession(ctx context.Context, clientID, refreshToken string) (*auth.Session, error)
	SignOut(ctx context.Context, clientID string, scope auth.Scope) error
	UpdateEmail(ctx context.Context, clientID, email string) (*auth.Session, error)
}

type sessionRecords interface {
	EndSession(ctx context.Context, token string) error
	ValidateSession(ctx context.Context, token string) bool
	ListActiveSessions(ctx context.Context, userID string) ([]*session.Record, error)
}

type profileReader interface {
	GetByUserID(ctx context.Context, userID string) (*user.Profile, error)
}
