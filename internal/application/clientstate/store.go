// Package clientstate holds the per-browser-context session state: identity,
// provider tokens and the short-lived navigation flags.
package clientstate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

const persistTimeout = 2 * time.Second

// Flags gate redirects during short windows such as payment completion.
type Flags struct {
	PaymentInProgress       bool
	PostPaymentConfirmation bool
	SubscriptionActivated   bool
	SkipInitialRedirect     bool
	RedirectToPricing       bool
	APICallInProgress       bool
	RecentlySignedUp        bool
	IsNewUserSignup         bool
}

// Snapshot is a point-in-time copy of a Store.
type Snapshot struct {
	SessionToken string
	UserID       string
	UserEmail    string
	AccessToken  string
	RefreshToken string
	IsAdmin      bool
	Flags
}

// Store is one client's state. Setters are plain assignments; callers own
// the invariants between fields.
type Store struct {
	clientID  string
	persister Persister
	logger    logger.Interface

	mu         sync.RWMutex
	state      Snapshot
	recovering bool
	lastSeen   time.Time

	// adminFlag mirrors state.IsAdmin for lock-free reads by the route guard.
	adminFlag atomic.Bool

	persistMu sync.Mutex
}

// NewStore returns an empty store. persister may be nil.
func NewStore(clientID string, persister Persister, log logger.Interface) *Store {
	return &Store{
		clientID:  clientID,
		persister: persister,
		logger:    log,
		lastSeen:  time.Now(),
	}
}

func (s *Store) ClientID() string {
	return s.clientID
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAuthenticated is true when both a session token and a user id are held.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SessionToken != "" && s.state.UserID != ""
}

func (s *Store) SessionToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SessionToken
}

func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.UserID
}

// AdminFlag is readable before any profile fetch has completed.
func (s *Store) AdminFlag() bool {
	return s.adminFlag.Load()
}

// SetSessionToken also re-arms BeginRecovery when token is non-empty.
func (s *Store) SetSessionToken(token string) {
	s.mu.Lock()
	s.state.SessionToken = token
	if token != "" {
		s.recovering = false
	}
	s.mu.Unlock()
	s.persist()
}

func (s *Store) SetUserID(userID string) {
	s.mu.Lock()
	s.state.UserID = userID
	s.mu.Unlock()
	s.persist()
}

func (s *Store) SetUserEmail(email string) {
	s.mu.Lock()
	s.state.UserEmail = email
	s.mu.Unlock()
	s.persist()
}

// SetAuthTokens holds provider tokens in memory only.
func (s *Store) SetAuthTokens(access, refresh string) {
	s.mu.Lock()
	s.state.AccessToken = access
	s.state.RefreshToken = refresh
	s.mu.Unlock()
}

func (s *Store) SetIsAdmin(isAdmin bool) {
	s.mu.Lock()
	s.state.IsAdmin = isAdmin
	s.adminFlag.Store(isAdmin)
	s.mu.Unlock()
	s.persist()
}

func (s *Store) SetPaymentInProgress(v bool)       { s.setFlag(func(f *Flags) { f.PaymentInProgress = v }) }
func (s *Store) SetPostPaymentConfirmation(v bool) { s.setFlag(func(f *Flags) { f.PostPaymentConfirmation = v }) }
func (s *Store) SetSubscriptionActivated(v bool)   { s.setFlag(func(f *Flags) { f.SubscriptionActivated = v }) }
func (s *Store) SetSkipInitialRedirect(v bool)     { s.setFlag(func(f *Flags) { f.SkipInitialRedirect = v }) }
func (s *Store) SetRedirectToPricing(v bool)       { s.setFlag(func(f *Flags) { f.RedirectToPricing = v }) }
func (s *Store) SetAPICallInProgress(v bool)       { s.setFlag(func(f *Flags) { f.APICallInProgress = v }) }
func (s *Store) SetRecentlySignedUp(v bool)        { s.setFlag(func(f *Flags) { f.RecentlySignedUp = v }) }
func (s *Store) SetIsNewUserSignup(v bool)         { s.setFlag(func(f *Flags) { f.IsNewUserSignup = v }) }

func (s *Store) setFlag(apply func(*Flags)) {
	s.mu.Lock()
	apply(&s.state.Flags)
	s.mu.Unlock()
}

// ClearSession resets identity and tokens. Transient flags are left alone.
func (s *Store) ClearSession() {
	s.mu.Lock()
	s.state.SessionToken = ""
	s.state.UserID = ""
	s.state.UserEmail = ""
	s.state.AccessToken = ""
	s.state.RefreshToken = ""
	s.state.IsAdmin = false
	s.adminFlag.Store(false)
	s.mu.Unlock()
	s.persist()
}

// ClearPaymentFlags resets only the payment-related flags.
func (s *Store) ClearPaymentFlags() {
	s.setFlag(func(f *Flags) {
		f.PaymentInProgress = false
		f.PostPaymentConfirmation = false
		f.SubscriptionActivated = false
		f.RedirectToPricing = false
	})
}

// ClearAllFlags resets every transient flag and leaves identity untouched.
func (s *Store) ClearAllFlags() {
	s.setFlag(func(f *Flags) { *f = Flags{} })
}

// BeginRecovery returns true for the first caller after the last non-empty
// SetSessionToken or ResetRecovery and false for every later caller.
func (s *Store) BeginRecovery() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recovering {
		return false
	}
	s.recovering = true
	return true
}

// ResetRecovery re-arms BeginRecovery for a sign-in that has started but not
// yet produced a session token.
func (s *Store) ResetRecovery() {
	s.mu.Lock()
	s.recovering = false
	s.mu.Unlock()
}

// Persisted returns the durable subset of the current state.
func (s *Store) Persisted() Persisted {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Persisted{
		SessionToken: s.state.SessionToken,
		UserID:       s.state.UserID,
		UserEmail:    s.state.UserEmail,
		IsAdmin:      s.state.IsAdmin,
	}
}

// hydrate applies persisted state without writing it back.
func (s *Store) hydrate(p Persisted) {
	s.mu.Lock()
	s.state.SessionToken = p.SessionToken
	s.state.UserID = p.UserID
	s.state.UserEmail = p.UserEmail
	s.state.IsAdmin = p.IsAdmin
	s.adminFlag.Store(p.IsAdmin)
	s.mu.Unlock()
}

func (s *Store) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Store) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// persist writes the durable subset through, deleting it once empty. Saves
// are serialized so the last write carries the newest state. Failures are
// logged only.
func (s *Store) persist() {
	if s.persister == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	p := s.Persisted()
	if p == (Persisted{}) {
		if err := s.persister.Delete(ctx, s.clientID); err != nil {
			s.logger.Warnw("failed to delete client state", "client_id", s.clientID, "error", err)
		}
		return
	}
	if err := s.persister.Save(ctx, s.clientID, p); err != nil {
		s.logger.Warnw("failed to persist client state", "client_id", s.clientID, "error", err)
	}
}
