// Package notice defines the user-facing messages pushed to a browser
// context, including the navigation that follows a forced logout.
package notice

import (
	"context"
	"time"
)

type Kind string

const (
	KindSignedOutElsewhere Kind = "signed_out_elsewhere"
	KindSessionInvalidated Kind = "session_invalidated"
	KindSessionExpired     Kind = "session_expired"
	KindAuthFailed         Kind = "auth_failed"
	KindNewSignIn          Kind = "new_sign_in"
)

var defaultMessages = map[Kind]string{
	KindSignedOutElsewhere: "Your account is signed in on another device.",
	KindSessionInvalidated: "You were logged out because your account signed in on another device.",
	KindSessionExpired:     "Your session has expired. Please sign in again.",
	KindAuthFailed:         "We could not complete sign-in. Please try again.",
	KindNewSignIn:          "A new sign-in to your account ended your other sessions.",
}

// Notice is delivered before any redirect it carries.
type Notice struct {
	Kind     Kind      `json:"kind"`
	Message  string    `json:"message"`
	Redirect string    `json:"redirect,omitempty"`
	At       time.Time `json:"at"`
}

func New(kind Kind, redirect string, at time.Time) Notice {
	return Notice{Kind: kind, Message: defaultMessages[kind], Redirect: redirect, At: at}
}

// Forced reports whether the notice accompanies a forced logout.
func (n Notice) Forced() bool {
	switch n.Kind {
	case KindSessionInvalidated, KindSessionExpired, KindAuthFailed:
		return true
	}
	return false
}

// Target identifies who receives a notice.
type Target struct {
	ClientID string
	UserID   string
	Email    string
}

type Notifier interface {
	Notify(ctx context.Context, target Target, n Notice) error
}
