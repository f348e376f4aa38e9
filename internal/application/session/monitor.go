package session

import (
	"context"
	"sync"
	"time"

	"github.com/skyguide-inc/skyguide/internal/application/clientstate"
	"github.com/skyguide-inc/skyguide/internal/domain/session"
	"github.com/skyguide-inc/skyguide/internal/shared/goroutine"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

type MonitorState string

const (
	StateIdle         MonitorState = "idle"
	StateWatching     MonitorState = "watching"
	StateRevalidating MonitorState = "revalidating"
	StateInvalidated  MonitorState = "invalidated"
	StateExpired      MonitorState = "expired"
	StateTerminated   MonitorState = "terminated"
)

type MonitorConfig struct {
	Store    *clientstate.Store
	Sessions SessionValidator
	Provider AuthProvider
	Feed     session.ChangeFeed
	Recovery *Recovery
	Interval time.Duration
	Logger   logger.Interface
}

// Monitor watches one client's session record until it stops being valid
// or the monitor is cancelled.
type Monitor struct {
	clientID string
	store    *clientstate.Store
	sessions SessionValidator
	provider AuthProvider
	feed     session.ChangeFeed
	recovery *Recovery
	interval time.Duration
	logger   logger.Interface

	// newTicker is replaced in tests to drive ticks by hand.
	newTicker func(time.Duration) (<-chan time.Time, func())

	mu    sync.Mutex
	state MonitorState
}

func NewMonitor(cfg MonitorConfig) *Monitor {
	return &Monitor{
		clientID:  cfg.Store.ClientID(),
		store:     cfg.Store,
		sessions:  cfg.Sessions,
		provider:  cfg.Provider,
		feed:      cfg.Feed,
		recovery:  cfg.Recovery,
		interval:  cfg.Interval,
		logger:    cfg.Logger.Named("session.monitor").With("client_id", cfg.Store.ClientID()),
		newTicker: systemTicker,
		state:     StateIdle,
	}
}

func systemTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (m *Monitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) setState(s MonitorState) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()

	if prev != s {
		m.logger.Debugw("monitor state changed", "from", prev, "to", s)
	}
}

// Run blocks until the session is lost or ctx is cancelled. A lost session
// is handed to recovery before Run returns.
func (m *Monitor) Run(ctx context.Context) {
	defer m.setState(StateTerminated)

	token := m.store.SessionToken()
	if token == "" {
		m.setState(StateInvalidated)
		m.recover(ctx, CauseInvalidated)
		return
	}

	var events <-chan session.ChangeEvent
	sub, err := m.feed.Subscribe(ctx, m.store.UserID())
	if err != nil {
		// Periodic validation still catches an invalidated record.
		m.logger.Warnw("failed to subscribe to session changes", "error", err)
	} else {
		defer sub.Close()
		events = sub.Events()
	}

	ticks, stop := m.newTicker(m.interval)
	defer stop()

	m.setState(StateWatching)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				m.logger.Warnw("session change feed closed")
				events = nil
				continue
			}
			if !ev.InvalidatesToken(token) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			m.logger.Infow("session invalidated by another sign-in", "record_id", ev.RecordID)
			m.setState(StateInvalidated)
			m.recover(ctx, CauseInvalidated)
			return

		case <-ticks:
			switch m.check(ctx, token) {
			case checkValid:
				m.setState(StateWatching)
			case checkExpired:
				m.setState(StateExpired)
				m.recover(ctx, CauseExpired)
				return
			case checkCancelled:
				return
			}
		}
	}
}

type checkResult int

const (
	checkValid checkResult = iota
	checkExpired
	checkCancelled
)

// check validates the record and, if invalid, makes exactly one refresh
// attempt. A record that stays invalid after a successful refresh counts as
// expired. Results that arrive after cancellation are discarded.
func (m *Monitor) check(ctx context.Context, token string) checkResult {
	valid := m.sessions.ValidateSession(ctx, token)
	if ctx.Err() != nil {
		return checkCancelled
	}
	if valid {
		m.sessions.UpdateActivity(ctx, token)
		return checkValid
	}

	m.setState(StateRevalidating)

	sess, err := m.provider.RefreshSession(ctx, m.clientID)
	if ctx.Err() != nil {
		return checkCancelled
	}
	if err != nil {
		m.logger.Infow("token refresh failed", "error", err)
		return checkExpired
	}
	m.store.SetAuthTokens(sess.AccessToken, sess.RefreshToken)

	valid = m.sessions.ValidateSession(ctx, token)
	if ctx.Err() != nil {
		return checkCancelled
	}
	if !valid {
		m.logger.Infow("session record still invalid after token refresh")
		return checkExpired
	}

	m.sessions.UpdateActivity(ctx, token)
	return checkValid
}

// recover runs detached from ctx: recovery cancels this monitor's context
// and must still finish.
func (m *Monitor) recover(ctx context.Context, cause Cause) {
	m.recovery.Run(context.WithoutCancel(ctx), m.clientID, cause)
}

// MonitorManager runs at most one monitor per client.
type MonitorManager struct {
	ctx        context.Context
	newMonitor func(clientID string) *Monitor
	logger     logger.Interface

	mu       sync.Mutex
	monitors map[string]*monitorHandle
}

type monitorHandle struct {
	monitor *Monitor
	cancel  context.CancelFunc
	done    <-chan struct{}
}

// NewMonitorManager runs monitors under ctx. newMonitor builds the monitor
// for a client when Start is called.
func NewMonitorManager(ctx context.Context, newMonitor func(clientID string) *Monitor, log logger.Interface) *MonitorManager {
	return &MonitorManager{
		ctx:        ctx,
		newMonitor: newMonitor,
		logger:     log.Named("session.monitors"),
		monitors:   make(map[string]*monitorHandle),
	}
}

// Start launches a monitor for clientID, cancelling any monitor already
// running for it. The replaced monitor is not waited for.
func (mm *MonitorManager) Start(clientID string) {
	ctx, cancel := context.WithCancel(mm.ctx)
	m := mm.newMonitor(clientID)
	h := &monitorHandle{monitor: m, cancel: cancel}

	mm.mu.Lock()
	if prev, ok := mm.monitors[clientID]; ok {
		prev.cancel()
	}
	mm.monitors[clientID] = h
	// done is assigned under the lock so Stop never sees a nil channel.
	h.done = goroutine.SafeGoDone(mm.logger, "session-monitor", func() {
		defer mm.release(clientID, h)
		m.Run(ctx)
	})
	mm.mu.Unlock()
}

func (mm *MonitorManager) release(clientID string, h *monitorHandle) {
	h.cancel()
	mm.mu.Lock()
	if mm.monitors[clientID] == h {
		delete(mm.monitors, clientID)
	}
	mm.mu.Unlock()
}

// Cancel stops clientID's monitor without waiting. It is safe to call from
// the monitor's own goroutine.
func (mm *MonitorManager) Cancel(clientID string) {
	mm.mu.Lock()
	h, ok := mm.monitors[clientID]
	if ok {
		delete(mm.monitors, clientID)
	}
	mm.mu.Unlock()

	if ok {
		h.cancel()
	}
}

// Stop cancels clientID's monitor and waits for it to exit. It must not be
// called from the monitor's own goroutine.
func (mm *MonitorManager) Stop(clientID string) {
	mm.mu.Lock()
	h, ok := mm.monitors[clientID]
	if ok {
		delete(mm.monitors, clientID)
	}
	mm.mu.Unlock()

	if ok {
		h.cancel()
		<-h.done
	}
}

func (mm *MonitorManager) Running(clientID string) bool {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	_, ok := mm.monitors[clientID]
	return ok
}

// State returns the state of clientID's running monitor.
func (mm *MonitorManager) State(clientID string) (MonitorState, bool) {
	mm.mu.Lock()
	h, ok := mm.monitors[clientID]
	mm.mu.Unlock()
	if !ok {
		return "", false
	}
	return h.monitor.State(), true
}

// Shutdown stops every monitor and waits for all of them.
func (mm *MonitorManager) Shutdown() {
	mm.mu.Lock()
	handles := make([]*monitorHandle, 0, len(mm.monitors))
	for id, h := range mm.monitors {
		handles = append(handles, h)
		delete(mm.monitors, id)
	}
	mm.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	for _, h := range handles {
		<-h.done
	}
	mm.logger.Infow("session monitors stopped", "count", len(handles))
}
