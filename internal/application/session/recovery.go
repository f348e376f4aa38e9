package session

import (
	"context"

	"github.com/skyguide-inc/skyguide/internal/application/clientstate"
	"github.com/skyguide-inc/skyguide/internal/domain/notice"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/auth"
	"github.com/skyguide-inc/skyguide/internal/shared/biztime"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

// Cause is why a client lost its session.
type Cause string

const (
	CauseInvalidated Cause = "invalidated"
	CauseExpired     Cause = "expired"
	CauseAuthFailed  Cause = "auth_failed"
)

func (c Cause) noticeKind() notice.Kind {
	switch c {
	case CauseInvalidated:
		return notice.KindSessionInvalidated
	case CauseExpired:
		return notice.KindSessionExpired
	default:
		return notice.KindAuthFailed
	}
}

// PhaseClearer ends a client's stabilizing window.
type PhaseClearer interface {
	Clear(clientID string)
}

// Recovery is the one path every loss of session validity takes: clear
// the client's state, notify, sign out of the provider and send the client
// to the login page.
type Recovery struct {
	registry  *clientstate.Registry
	monitors  MonitorCanceler
	provider  AuthProvider
	notifier  notice.Notifier
	navigator Navigator
	phases    PhaseClearer
	clock     biztime.Clock
	logger    logger.Interface
}

func NewRecovery(
	registry *clientstate.Registry,
	monitors MonitorCanceler,
	provider AuthProvider,
	notifier notice.Notifier,
	navigator Navigator,
	phases PhaseClearer,
	log logger.Interface,
) *Recovery {
	return &Recovery{
		registry:  registry,
		monitors:  monitors,
		provider:  provider,
		notifier:  notifier,
		navigator: navigator,
		phases:    phases,
		clock:     biztime.SystemClock(),
		logger:    log.Named("session.recovery"),
	}
}

// Run is idempotent: only the first call after a sign-in does anything, so
// overlapping triggers never sign out twice.
func (r *Recovery) Run(ctx context.Context, clientID string, cause Cause) {
	store := r.registry.Get(ctx, clientID)
	if !store.BeginRecovery() {
		r.logger.Debugw("recovery already ran", "client_id", clientID, "cause", cause)
		return
	}

	snap := store.Snapshot()
	r.logger.Infow("recovering lost session",
		"client_id", clientID,
		"user_id", snap.UserID,
		"cause", cause,
	)

	r.monitors.Cancel(clientID)
	store.ClearSession()
	store.ClearAllFlags()
	if r.phases != nil {
		r.phases.Clear(clientID)
	}

	// The notice goes out before anything that moves the client.
	n := notice.New(cause.noticeKind(), LoginPath, r.clock.Now())
	target := notice.Target{ClientID: clientID, UserID: snap.UserID, Email: snap.UserEmail}
	if err := r.notifier.Notify(ctx, target, n); err != nil {
		r.logger.Warnw("failed to deliver logout notice", "client_id", clientID, "error", err)
	}

	if err := r.provider.SignOut(ctx, clientID, auth.ScopeLocal); err != nil {
		r.logger.Warnw("provider sign-out failed", "client_id", clientID, "error", err)
	}

	if err := r.navigator.Navigate(ctx, clientID, LoginPath); err != nil {
		r.logger.Warnw("failed to redirect to login", "client_id", clientID, "error", err)
	}
}
