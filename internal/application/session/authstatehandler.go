package session

import (
	"context"

	"github.com/skyguide-inc/skyguide/internal/application/bootphase"
	"github.com/skyguide-inc/skyguide/internal/application/clientstate"
	"github.com/skyguide-inc/skyguide/internal/domain/notice"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/auth"
	"github.com/skyguide-inc/skyguide/internal/shared/biztime"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

// Monitors is what the handler needs from the monitor manager.
type Monitors interface {
	Start(clientID string)
	Cancel(clientID string)
	Running(clientID string) bool
}

// PhaseController is the part of the boot phase controller the handler uses.
type PhaseController interface {
	Begin(clientID string, phase bootphase.Phase)
	Clear(clientID string)
}

type AuthStateHandlerConfig struct {
	Registry  *clientstate.Registry
	Records   *RecordService
	Profiles  ProfileReader
	Provider  AuthProvider
	Monitors  Monitors
	Recovery  *Recovery
	Notifier  notice.Notifier
	Navigator Navigator
	Phases    PhaseController
	// ElevatedProviders must grant offline access after sign-in.
	ElevatedProviders []string
	Logger            logger.Interface
}

// AuthStateHandler turns auth provider events into session lifecycle work.
type AuthStateHandler struct {
	registry  *clientstate.Registry
	records   *RecordService
	profiles  ProfileReader
	provider  AuthProvider
	monitors  Monitors
	recovery  *Recovery
	notifier  notice.Notifier
	navigator Navigator
	phases    PhaseController
	elevated  map[string]bool
	clock     biztime.Clock
	logger    logger.Interface
}

func NewAuthStateHandler(cfg AuthStateHandlerConfig) *AuthStateHandler {
	elevated := make(map[string]bool, len(cfg.ElevatedProviders))
	for _, p := range cfg.ElevatedProviders {
		elevated[p] = true
	}
	return &AuthStateHandler{
		registry:  cfg.Registry,
		records:   cfg.Records,
		profiles:  cfg.Profiles,
		provider:  cfg.Provider,
		monitors:  cfg.Monitors,
		recovery:  cfg.Recovery,
		notifier:  cfg.Notifier,
		navigator: cfg.Navigator,
		phases:    cfg.Phases,
		elevated:  elevated,
		clock:     biztime.SystemClock(),
		logger:    cfg.Logger.Named("session.authstate"),
	}
}

// Handle has the auth.Listener signature.
func (h *AuthStateHandler) Handle(ctx context.Context, e auth.Event) {
	if e.Type == auth.EventSignedOut || e.Session == nil {
		h.handleSignedOut(ctx, e.ClientID)
		return
	}

	switch e.Type {
	case auth.EventSignedIn:
		h.handleSignedIn(ctx, e)
	case auth.EventTokenRefreshed:
		h.handleTokenRefreshed(ctx, e)
	case auth.EventUserUpdated:
		h.handleUserUpdated(ctx, e)
	default:
		h.logger.Warnw("unhandled auth event", "type", e.Type, "client_id", e.ClientID)
	}
}

// handleSignedOut clears whatever is left of the client's state. Only a
// client that was still signed in is redirected; recovery has already
// redirected the others.
func (h *AuthStateHandler) handleSignedOut(ctx context.Context, clientID string) {
	h.monitors.Cancel(clientID)
	h.phases.Clear(clientID)

	store, ok := h.registry.Lookup(clientID)
	if !ok {
		return
	}
	wasSignedIn := store.IsAuthenticated()
	store.ClearSession()
	store.ClearAllFlags()

	if wasSignedIn {
		if err := h.navigator.Navigate(ctx, clientID, LoginPath); err != nil {
			h.logger.Warnw("failed to redirect to login", "client_id", clientID, "error", err)
		}
	}
}

func (h *AuthStateHandler) handleSignedIn(ctx context.Context, e auth.Event) {
	sess := e.Session
	log := h.logger.With("client_id", e.ClientID, "user_id", sess.UserID)

	// A previous monitor for this client watches a token about to be replaced.
	h.monitors.Cancel(e.ClientID)
	// A new sign-in is a new lifetime: its failures must recover even if the
	// previous one already did.
	h.registry.Get(ctx, e.ClientID).ResetRecovery()

	record, err := h.records.CreateSession(ctx, CreateSessionCommand{
		ClientID:     e.ClientID,
		UserID:       sess.UserID,
		Email:        sess.Email,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		Request:      e.Request,
	})
	if err != nil {
		log.Errorw("session creation failed", "error", err)
		h.recovery.Run(ctx, e.ClientID, CauseAuthFailed)
		return
	}

	store := h.registry.Get(ctx, e.ClientID)

	profile, err := h.profiles.GetByUserID(ctx, sess.UserID)
	if err != nil {
		log.Errorw("profile fetch failed after sign-in", "error", err)
		h.recovery.Run(ctx, e.ClientID, CauseAuthFailed)
		return
	}
	store.SetIsAdmin(profile.IsAdmin)

	if e.NewUser {
		store.SetRecentlySignedUp(true)
		store.SetIsNewUserSignup(true)
		h.phases.Begin(e.ClientID, bootphase.PhaseStabilizingAfterAuth)
	}

	if h.elevated[sess.Provider] && !sess.OfflineAccess {
		reauthURL, err := h.provider.ReauthURL(ctx, e.ClientID)
		if err != nil {
			log.Errorw("offline re-authentication request failed", "provider", sess.Provider, "error", err)
			h.recovery.Run(ctx, e.ClientID, CauseAuthFailed)
			return
		}
		if err := h.navigator.Navigate(ctx, e.ClientID, reauthURL); err != nil {
			log.Warnw("failed to redirect to re-authentication", "error", err)
		}
	}

	h.adviseOtherSessions(ctx, e.ClientID, sess.UserID, record.ID)

	h.monitors.Start(e.ClientID)
	log.Infow("signed in", "record_id", record.ID, "new_user", e.NewUser)
}

// adviseOtherSessions warns the client when another active record survived
// the invalidation, which only happens when two sign-ins race.
func (h *AuthStateHandler) adviseOtherSessions(ctx context.Context, clientID, userID, currentRecordID string) {
	records, err := h.records.ListActiveSessions(ctx, userID)
	if err != nil {
		h.logger.Warnw("failed to check for other sessions", "user_id", userID, "error", err)
		return
	}

	others := 0
	for _, r := range records {
		if r.ID != currentRecordID {
			others++
		}
	}
	if others == 0 {
		return
	}

	n := notice.New(notice.KindSignedOutElsewhere, "", h.clock.Now())
	if err := h.notifier.Notify(ctx, notice.Target{ClientID: clientID, UserID: userID}, n); err != nil {
		h.logger.Warnw("failed to deliver advisory notice", "client_id", clientID, "error", err)
	}
}

// handleTokenRefreshed mirrors rotated tokens. A refresh that restored a
// session after a restart also restarts its monitor.
func (h *AuthStateHandler) handleTokenRefreshed(ctx context.Context, e auth.Event) {
	store := h.registry.Get(ctx, e.ClientID)
	store.SetAuthTokens(e.Session.AccessToken, e.Session.RefreshToken)

	if store.IsAuthenticated() && store.UserID() == e.Session.UserID && !h.monitors.Running(e.ClientID) {
		h.monitors.Start(e.ClientID)
	}
}

func (h *AuthStateHandler) handleUserUpdated(ctx context.Context, e auth.Event) {
	store, ok := h.registry.Lookup(e.ClientID)
	if !ok || store.UserID() != e.Session.UserID {
		return
	}
	store.SetUserEmail(e.Session.Email)

	profile, err := h.profiles.GetByUserID(ctx, e.Session.UserID)
	if err != nil {
		h.logger.Warnw("failed to refresh profile after user update", "user_id", e.Session.UserID, "error", err)
		return
	}
	store.SetIsAdmin(profile.IsAdmin)
}
