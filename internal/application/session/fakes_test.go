package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/skyguide-inc/skyguide/internal/application/bootphase"
	"github.com/skyguide-inc/skyguide/internal/application/clientstate"
	"github.com/skyguide-inc/skyguide/internal/domain/notice"
	"github.com/skyguide-inc/skyguide/internal/domain/session"
	"github.com/skyguide-inc/skyguide/internal/domain/user"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/auth"
	apperrors "github.com/skyguide-inc/skyguide/internal/shared/errors"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memoryRepo is an in-memory session.Repository keyed by token hash.
type memoryRepo struct {
	mu      sync.Mutex
	records map[string]*session.Record
	order   []string

	createErr     error
	invalidateErr error
	isValidErr    error
	activityErr   error
	activity      map[string]int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		records:  make(map[string]*session.Record),
		activity: make(map[string]int),
	}
}

func (r *memoryRepo) Create(_ context.Context, rec *session.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	cp := *rec
	r.records[rec.TokenHash] = &cp
	r.order = append(r.order, rec.TokenHash)
	return nil
}

func (r *memoryRepo) GetByToken(_ context.Context, token string) (*session.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[session.HashToken(token)]
	if !ok {
		return nil, apperrors.NewNotFoundError("session not found")
	}
	cp := *rec
	return &cp, nil
}

func (r *memoryRepo) ListActiveByUserID(_ context.Context, userID string, now time.Time) ([]*session.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*session.Record
	for _, h := range r.order {
		rec := r.records[h]
		if rec.UserID == userID && rec.IsValid(now) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memoryRepo) InvalidateOthers(_ context.Context, userID, exceptToken string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.invalidateErr != nil {
		return 0, r.invalidateErr
	}
	except := ""
	if exceptToken != "" {
		except = session.HashToken(exceptToken)
	}
	var n int64
	for h, rec := range r.records {
		if rec.UserID == userID && rec.Status == session.StatusActive && h != except {
			rec.Invalidate(now)
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) IsValid(_ context.Context, token string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isValidErr != nil {
		return false, r.isValidErr
	}
	rec, ok := r.records[session.HashToken(token)]
	if !ok || !rec.IsValid(now) {
		return false, nil
	}
	for _, other := range r.records {
		if other.UserID == rec.UserID && other.IsValid(now) && other.CreatedAt.After(rec.CreatedAt) {
			return false, nil
		}
	}
	return true, nil
}

func (r *memoryRepo) UpdateActivity(_ context.Context, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activityErr != nil {
		return r.activityErr
	}
	rec, ok := r.records[session.HashToken(token)]
	if !ok || rec.Status != session.StatusActive {
		return apperrors.NewNotFoundError("session not found")
	}
	rec.Touch(at)
	r.activity[token]++
	return nil
}

func (r *memoryRepo) Invalidate(_ context.Context, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[session.HashToken(token)]
	if !ok {
		return apperrors.NewNotFoundError("session not found")
	}
	rec.Invalidate(at)
	return nil
}

func (r *memoryRepo) InvalidateExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rec := range r.records {
		if rec.Status == session.StatusActive && rec.IsExpired(now) {
			rec.Invalidate(now)
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) activeTokenHashes(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for h, rec := range r.records {
		if rec.UserID == userID && rec.Status == session.StatusActive {
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out
}

type staticCollector struct{}

func (staticCollector) Collect(_ context.Context, req session.RequestInfo) session.DeviceInfo {
	return session.DeviceInfo{UserAgent: req.UserAgent, Platform: "macOS", Language: "en", IP: "203.0.113.9"}
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) RefreshSession(ctx context.Context, clientID string) (*auth.Session, error) {
	args := m.Called(ctx, clientID)
	sess, _ := args.Get(0).(*auth.Session)
	return sess, args.Error(1)
}

func (m *mockProvider) SignOut(ctx context.Context, clientID string, scope auth.Scope) error {
	args := m.Called(ctx, clientID, scope)
	return args.Error(0)
}

func (m *mockProvider) ReauthURL(ctx context.Context, clientID string) (string, error) {
	args := m.Called(ctx, clientID)
	return args.String(0), args.Error(1)
}

// timeline records notices and navigations in the order they happened.
type timeline struct {
	mu      sync.Mutex
	entries []string
	notices []notice.Notice
	targets []notice.Target
	paths   []string
	err     error
}

func (tl *timeline) Notify(_ context.Context, target notice.Target, n notice.Notice) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.entries = append(tl.entries, "notice:"+string(n.Kind))
	tl.notices = append(tl.notices, n)
	tl.targets = append(tl.targets, target)
	return tl.err
}

func (tl *timeline) Navigate(_ context.Context, _ string, path string) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.entries = append(tl.entries, "navigate:"+path)
	tl.paths = append(tl.paths, path)
	return nil
}

func (tl *timeline) Entries() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]string(nil), tl.entries...)
}

func (tl *timeline) Notices() []notice.Notice {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]notice.Notice(nil), tl.notices...)
}

func (tl *timeline) Paths() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]string(nil), tl.paths...)
}

type fakeMonitors struct {
	mu       sync.Mutex
	started  []string
	canceled []string
	running  map[string]bool
}

func newFakeMonitors() *fakeMonitors {
	return &fakeMonitors{running: make(map[string]bool)}
}

func (f *fakeMonitors) Start(clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, clientID)
	f.running[clientID] = true
}

func (f *fakeMonitors) Cancel(clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, clientID)
	delete(f.running, clientID)
}

func (f *fakeMonitors) Running(clientID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[clientID]
}

type fakePhases struct {
	mu    sync.Mutex
	begun map[string]bootphase.Phase
}

func newFakePhases() *fakePhases {
	return &fakePhases{begun: make(map[string]bootphase.Phase)}
}

func (f *fakePhases) Begin(clientID string, phase bootphase.Phase) {
	f.mu.Lock()
	f.begun[clientID] = phase
	f.mu.Unlock()
}

func (f *fakePhases) Clear(clientID string) {
	f.mu.Lock()
	delete(f.begun, clientID)
	f.mu.Unlock()
}

func (f *fakePhases) Phase(clientID string) bootphase.Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.begun[clientID]; ok {
		return p
	}
	return bootphase.PhaseNormal
}

type fakeProfiles struct {
	profiles map[string]*user.Profile
	err      error
}

func (f *fakeProfiles) GetByUserID(_ context.Context, userID string) (*user.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, apperrors.NewNotFoundError("profile not found")
	}
	return p, nil
}

// fakeFeed hands out subscriptions whose events the test pushes directly.
type fakeFeed struct {
	mu           sync.Mutex
	subs         []*fakeSubscription
	subscribeErr error
	onSubscribe  func(*fakeSubscription)
}

func (f *fakeFeed) Publish(context.Context, session.ChangeEvent) error { return nil }

func (f *fakeFeed) Subscribe(_ context.Context, userID string) (session.Subscription, error) {
	f.mu.Lock()
	if f.subscribeErr != nil {
		f.mu.Unlock()
		return nil, f.subscribeErr
	}
	sub := &fakeSubscription{userID: userID, events: make(chan session.ChangeEvent, 4)}
	f.subs = append(f.subs, sub)
	hook := f.onSubscribe
	f.mu.Unlock()

	if hook != nil {
		hook(sub)
	}
	return sub, nil
}

func (f *fakeFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeFeed) last() *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

type fakeSubscription struct {
	userID string
	events chan session.ChangeEvent
	mu     sync.Mutex
	closed bool
}

func (s *fakeSubscription) Events() <-chan session.ChangeEvent { return s.events }

func (s *fakeSubscription) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSubscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// scriptedValidator returns queued ValidateSession results, then true.
type scriptedValidator struct {
	mu       sync.Mutex
	results  []bool
	calls    int
	activity int
}

func (v *scriptedValidator) ValidateSession(context.Context, string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if len(v.results) == 0 {
		return true
	}
	r := v.results[0]
	v.results = v.results[1:]
	return r
}

func (v *scriptedValidator) UpdateActivity(context.Context, string) {
	v.mu.Lock()
	v.activity++
	v.mu.Unlock()
}

func (v *scriptedValidator) Activity() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.activity
}

var errBoom = errors.New("boom")

// harness wires the session package against in-memory collaborators.
type harness struct {
	clock    *fixedClock
	repo     *memoryRepo
	registry *clientstate.Registry
	records  *RecordService
	provider *mockProvider
	tl       *timeline
	monitors *fakeMonitors
	phases   *fakePhases
	profiles *fakeProfiles
	recovery *Recovery
	alerts   *timeline
}

func newHarness() *harness {
	log := logger.Nop()
	h := &harness{
		clock:    newFixedClock(),
		repo:     newMemoryRepo(),
		registry: clientstate.NewRegistry(nil, log),
		provider: new(mockProvider),
		tl:       &timeline{},
		monitors: newFakeMonitors(),
		phases:   newFakePhases(),
		profiles: &fakeProfiles{profiles: map[string]*user.Profile{
			"user-1": {UserID: "user-1", Email: "ada@example.com", SubscriptionStatus: user.SubscriptionActive},
		}},
		alerts: &timeline{},
	}
	h.records = NewRecordService(h.repo, staticCollector{}, h.registry, h.alerts, 2*time.Hour, log)
	h.records.clock = h.clock
	h.recovery = NewRecovery(h.registry, h.monitors, h.provider, h.tl, h.tl, h.phases, log)
	h.recovery.clock = h.clock
	return h
}

// signIn creates a record for clientID the way a successful sign-in does.
func (h *harness) signIn(t *testing.T, clientID, userID string) (*session.Record, *clientstate.Store) {
	t.Helper()
	rec, err := h.records.CreateSession(context.Background(), CreateSessionCommand{
		ClientID:     clientID,
		UserID:       userID,
		Email:        "ada@example.com",
		AccessToken:  "access-" + clientID,
		RefreshToken: "refresh-" + clientID,
	})
	require.NoError(t, err)
	return rec, h.registry.Get(context.Background(), clientID)
}
