package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/skyguide-inc/skyguide/internal/domain/session"
	"github.com/skyguide-inc/skyguide/internal/domain/user"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/cache"
	"github.com/skyguide-inc/skyguide/internal/shared/biztime"
	"github.com/skyguide-inc/skyguide/internal/shared/errors"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Scope selects which sessions SignOut ends.
type Scope string

const (
	// ScopeLocal ends only the calling client's session.
	ScopeLocal Scope = "local"
	// ScopeGlobal ends every client session of the same user.
	ScopeGlobal Scope = "global"
)

// Session is the provider-side authenticated session of one client.
type Session struct {
	UserID       string
	Email        string
	Provider     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	// ProviderToken is the upstream OAuth access token, if any.
	ProviderToken string
	// OfflineAccess is true once the upstream provider granted a refresh token.
	OfflineAccess bool
}

func (s *Session) clone() *Session {
	c := *s
	return &c
}

// Event is delivered to every listener on an auth state change. Session is
// nil for EventSignedOut.
type Event struct {
	Type     EventType
	ClientID string
	Session  *Session
	Request  session.RequestInfo
	// NewUser is set on the SIGNED_IN that follows a sign-up.
	NewUser bool
}

type Listener func(ctx context.Context, e Event)

type StateStore interface {
	Set(ctx context.Context, state string, info cache.StateInfo) error
	VerifyAndGet(ctx context.Context, state string) (*cache.StateInfo, error)
}

type Transactor interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// OAuthResult reports which client an OAuth callback belonged to.
type OAuthResult struct {
	ClientID string
	Intent   string
	Session  *Session
}

// Provider authenticates users and owns one session per client id. Every
// state change is announced to the registered listeners synchronously, on
// the caller's goroutine and outside the provider's lock.
type Provider struct {
	users       user.Repository
	profiles    user.ProfileRepository
	tx          Transactor
	hasher      *BcryptPasswordHasher
	jwt         *JWTService
	google      *GoogleOAuthClient
	states      StateStore
	minPassword int
	logger      logger.Interface

	mu        sync.RWMutex
	sessions  map[string]*Session
	listeners map[int]Listener
	nextID    int
}

// NewProvider wires the provider. google may be nil when OAuth is not
// configured; tx may be nil to run sign-up writes without a transaction.
func NewProvider(
	users user.Repository,
	profiles user.ProfileRepository,
	tx Transactor,
	hasher *BcryptPasswordHasher,
	jwtService *JWTService,
	google *GoogleOAuthClient,
	states StateStore,
	minPasswordLength int,
	log logger.Interface,
) *Provider {
	return &Provider{
		users:       users,
		profiles:    profiles,
		tx:          tx,
		hasher:      hasher,
		jwt:         jwtService,
		google:      google,
		states:      states,
		minPassword: minPasswordLength,
		logger:      log.Named("auth.provider"),
		sessions:    make(map[string]*Session),
		listeners:   make(map[int]Listener),
	}
}

// OnAuthStateChange registers l and returns a function that removes it.
func (p *Provider) OnAuthStateChange(l Listener) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = l
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Provider) emit(ctx context.Context, e Event) {
	p.mu.RLock()
	ls := make([]Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		ls = append(ls, l)
	}
	p.mu.RUnlock()

	for _, l := range ls {
		l(ctx, e)
	}
}

func (p *Provider) SignUp(ctx context.Context, clientID, email, password string, req session.RequestInfo) (*Session, error) {
	if len(password) < p.minPassword {
		return nil, errors.NewValidationError(fmt.Sprintf("password must be at least %d characters", p.minPassword))
	}

	u, err := user.NewUser(email, user.ProviderEmail, biztime.NowUTC())
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	if existing, err := p.users.GetByEmail(ctx, u.Email); err == nil && existing != nil {
		return nil, errors.NewConflictError("email already registered")
	} else if err != nil && !errors.IsNotFoundError(err) {
		return nil, err
	}

	hash, err := p.hasher.Hash(password)
	if stderrors.Is(err, ErrPasswordTooLong) {
		return nil, errors.NewValidationError(fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes))
	}
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash

	if err := p.createUser(ctx, u); err != nil {
		return nil, err
	}

	p.logger.Infow("user signed up", "user_id", u.ID, "client_id", clientID)
	return p.establish(ctx, clientID, u, "", false, req, true)
}

func (p *Provider) SignIn(ctx context.Context, clientID, email, password string, req session.RequestInfo) (*Session, error) {
	normalized, err := user.NormalizeEmail(email)
	if err != nil {
		return nil, errors.NewInvalidCredentialsError()
	}

	u, err := p.users.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.IsNotFoundError(err) {
			p.hasher.Burn(password)
			return nil, errors.NewInvalidCredentialsError()
		}
		return nil, err
	}
	if !u.HasPassword() {
		p.hasher.Burn(password)
		return nil, errors.NewInvalidCredentialsError()
	}
	if err := p.hasher.Verify(password, u.PasswordHash); err != nil {
		return nil, errors.NewInvalidCredentialsError()
	}

	return p.establish(ctx, clientID, u, "", false, req, false)
}

// StartOAuth returns the provider URL the client must visit. IntentReauth
// asks for offline access with explicit consent.
func (p *Provider) StartOAuth(ctx context.Context, clientID, intent string) (string, error) {
	if p.google == nil {
		return "", errors.NewOAuthError("google", "config", "OAuth provider is not configured")
	}

	verifier := oauth2.GenerateVerifier()
	state, err := generateState()
	if err != nil {
		return "", err
	}

	if err := p.states.Set(ctx, state, cache.StateInfo{
		CodeVerifier: verifier,
		ClientID:     clientID,
		Intent:       intent,
	}); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}

	return p.google.AuthURL(state, verifier, intent == cache.IntentReauth), nil
}

// ReauthURL requests offline access and consent for the signed-in client.
func (p *Provider) ReauthURL(ctx context.Context, clientID string) (string, error) {
	return p.StartOAuth(ctx, clientID, cache.IntentReauth)
}

// CompleteOAuth finishes the flow started by StartOAuth. The client id comes
// from the stored state, not from the callback request.
func (p *Provider) CompleteOAuth(ctx context.Context, code, state string, req session.RequestInfo) (*OAuthResult, error) {
	if p.google == nil {
		return nil, errors.NewOAuthError("google", "config", "OAuth provider is not configured")
	}

	info, err := p.states.VerifyAndGet(ctx, state)
	if err != nil {
		return nil, errors.NewOAuthError("google", "state", err.Error())
	}

	grant, err := p.google.ExchangeCode(ctx, code, info.CodeVerifier)
	if err != nil {
		return nil, errors.NewOAuthError("google", "exchange", err.Error())
	}
	ui, err := p.google.GetUserInfo(ctx, grant.AccessToken)
	if err != nil {
		return nil, errors.NewOAuthError("google", "userinfo", err.Error())
	}

	u, newUser, err := p.resolveOAuthUser(ctx, ui)
	if err != nil {
		return nil, err
	}

	result := &OAuthResult{ClientID: info.ClientID, Intent: info.Intent}

	if info.Intent == cache.IntentReauth {
		if sess, ok := p.upgradeOffline(info.ClientID, u.ID, grant); ok {
			p.emit(ctx, Event{Type: EventTokenRefreshed, ClientID: info.ClientID, Session: sess, Request: req})
			result.Session = sess
			return result, nil
		}
		// The client lost its session meanwhile; treat it as a fresh sign-in.
		result.Intent = cache.IntentSignIn
	}

	sess, err := p.establish(ctx, info.ClientID, u, grant.AccessToken, grant.Offline, req, newUser)
	if err != nil {
		return nil, err
	}
	result.Session = sess
	return result, nil
}

func (p *Provider) resolveOAuthUser(ctx context.Context, ui *OAuthUserInfo) (*user.User, bool, error) {
	u, err := p.users.GetByProviderSubject(ctx, ui.Provider, ui.ProviderID)
	if err == nil {
		return u, false, nil
	}
	if !errors.IsNotFoundError(err) {
		return nil, false, err
	}

	if !ui.EmailVerified {
		return nil, false, errors.NewOAuthError(ui.Provider, "userinfo", "email address is not verified")
	}

	u, err = p.users.GetByEmail(ctx, ui.Email)
	switch {
	case err == nil:
		if u.ProviderSubject == "" {
			u.ProviderSubject = ui.ProviderID
			u.UpdatedAt = biztime.NowUTC()
			if err := p.users.Update(ctx, u); err != nil {
				return nil, false, err
			}
		}
		return u, false, nil
	case !errors.IsNotFoundError(err):
		return nil, false, err
	}

	u, err = user.NewUser(ui.Email, ui.Provider, biztime.NowUTC())
	if err != nil {
		return nil, false, errors.NewOAuthError(ui.Provider, "userinfo", err.Error())
	}
	u.ProviderSubject = ui.ProviderID
	if err := p.createUser(ctx, u); err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func (p *Provider) upgradeOffline(clientID, userID string, grant *OAuthGrant) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess, ok := p.sessions[clientID]
	if !ok || sess.UserID != userID {
		return nil, false
	}
	sess.ProviderToken = grant.AccessToken
	sess.OfflineAccess = sess.OfflineAccess || grant.Offline
	return sess.clone(), true
}

func (p *Provider) createUser(ctx context.Context, u *user.User) error {
	create := func(ctx context.Context) error {
		if err := p.users.Create(ctx, u); err != nil {
			return err
		}
		return p.profiles.Create(ctx, user.NewProfile(u))
	}
	if p.tx == nil {
		return create(ctx)
	}
	return p.tx.RunInTransaction(ctx, create)
}

func (p *Provider) establish(ctx context.Context, clientID string, u *user.User, providerToken string, offline bool, req session.RequestInfo, newUser bool) (*Session, error) {
	pair, err := p.jwt.Generate(u.ID, u.Email, u.Provider)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		UserID:        u.ID,
		Email:         u.Email,
		Provider:      u.Provider,
		AccessToken:   pair.AccessToken,
		RefreshToken:  pair.RefreshToken,
		ExpiresAt:     pair.ExpiresAt,
		ProviderToken: providerToken,
		OfflineAccess: offline,
	}

	p.mu.Lock()
	p.sessions[clientID] = sess
	p.mu.Unlock()

	out := sess.clone()
	p.emit(ctx, Event{Type: EventSignedIn, ClientID: clientID, Session: out, Request: req, NewUser: newUser})
	return out, nil
}

// RefreshSession rotates the client's tokens using the refresh token it holds.
func (p *Provider) RefreshSession(ctx context.Context, clientID string) (*Session, error) {
	p.mu.RLock()
	sess, ok := p.sessions[clientID]
	var refresh string
	if ok {
		refresh = sess.RefreshToken
	}
	p.mu.RUnlock()
	if !ok {
		return nil, errors.NewSessionExpiredError()
	}

	pair, _, err := p.jwt.Refresh(refresh)
	if err != nil {
		return nil, refreshTokenError(err)
	}

	p.mu.Lock()
	cur, ok := p.sessions[clientID]
	if !ok {
		p.mu.Unlock()
		return nil, errors.NewSessionExpiredError()
	}
	cur.AccessToken = pair.AccessToken
	cur.RefreshToken = pair.RefreshToken
	cur.ExpiresAt = pair.ExpiresAt
	out := cur.clone()
	p.mu.Unlock()

	p.emit(ctx, Event{Type: EventTokenRefreshed, ClientID: clientID, Session: out})
	return out, nil
}

// RestoreSession rebuilds a client's session from a refresh token presented
// by the browser, for example after a server restart.
func (p *Provider) RestoreSession(ctx context.Context, clientID, refreshToken string) (*Session, error) {
	pair, claims, err := p.jwt.Refresh(refreshToken)
	if err != nil {
		return nil, refreshTokenError(err)
	}

	u, err := p.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return nil, errors.NewTokenInvalidError("refresh token")
		}
		return nil, err
	}

	sess := &Session{
		UserID:       u.ID,
		Email:        u.Email,
		Provider:     u.Provider,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}

	p.mu.Lock()
	if prev, ok := p.sessions[clientID]; ok && prev.UserID == u.ID {
		sess.ProviderToken = prev.ProviderToken
		sess.OfflineAccess = prev.OfflineAccess
	}
	p.sessions[clientID] = sess
	p.mu.Unlock()

	out := sess.clone()
	p.emit(ctx, Event{Type: EventTokenRefreshed, ClientID: clientID, Session: out})
	return out, nil
}

// SignOut drops provider sessions and announces SIGNED_OUT for each client
// that had one.
func (p *Provider) SignOut(ctx context.Context, clientID string, scope Scope) error {
	p.mu.Lock()
	var ended []string
	if sess, ok := p.sessions[clientID]; ok {
		if scope == ScopeGlobal {
			for id, s := range p.sessions {
				if s.UserID == sess.UserID {
					delete(p.sessions, id)
					ended = append(ended, id)
				}
			}
		} else {
			delete(p.sessions, clientID)
			ended = append(ended, clientID)
		}
	}
	p.mu.Unlock()

	for _, id := range ended {
		p.emit(ctx, Event{Type: EventSignedOut, ClientID: id})
	}
	return nil
}

func (p *Provider) GetSession(clientID string) (*Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sess, ok := p.sessions[clientID]
	if !ok {
		return nil, false
	}
	return sess.clone(), true
}

// GetUser resolves the user behind an access token.
func (p *Provider) GetUser(ctx context.Context, accessToken string) (*user.User, error) {
	claims, err := p.jwt.Verify(accessToken)
	if err != nil || claims.TokenType != TokenTypeAccess {
		return nil, errors.NewTokenInvalidError("access token")
	}
	return p.users.GetByID(ctx, claims.UserID)
}

// UpdateEmail changes the signed-in user's address and announces
// USER_UPDATED to every client of that user.
func (p *Provider) UpdateEmail(ctx context.Context, clientID, email string) (*Session, error) {
	sess, ok := p.GetSession(clientID)
	if !ok {
		return nil, errors.NewSessionExpiredError()
	}

	normalized, err := user.NormalizeEmail(email)
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	if other, err := p.users.GetByEmail(ctx, normalized); err == nil && other.ID != sess.UserID {
		return nil, errors.NewConflictError("email already registered")
	} else if err != nil && !errors.IsNotFoundError(err) {
		return nil, err
	}

	u, err := p.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	u.Email = normalized
	u.UpdatedAt = biztime.NowUTC()

	update := func(ctx context.Context) error {
		if err := p.users.Update(ctx, u); err != nil {
			return err
		}
		profile, err := p.profiles.GetByUserID(ctx, u.ID)
		if err != nil {
			return err
		}
		profile.Email = normalized
		return p.profiles.Update(ctx, profile)
	}
	if p.tx != nil {
		err = p.tx.RunInTransaction(ctx, update)
	} else {
		err = update(ctx)
	}
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	updated := make(map[string]*Session)
	for id, s := range p.sessions {
		if s.UserID == u.ID {
			s.Email = normalized
			updated[id] = s.clone()
		}
	}
	p.mu.Unlock()

	for id, s := range updated {
		p.emit(ctx, Event{Type: EventUserUpdated, ClientID: id, Session: s})
	}
	return updated[clientID], nil
}

func refreshTokenError(err error) error {
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		return errors.NewTokenExpiredError("refresh token")
	}
	return errors.NewTokenInvalidError("refresh token")
}
